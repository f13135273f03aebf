// Package queryc compiles Loom's query AST (internal/query) into bleve
// query objects.
package queryc

import (
	bleveq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

// Compile translates q against s into a bleve query.Query. A nil q
// compiles to match-all.
func Compile(s *schema.Schema, q *query.Query) (bleveq.Query, error) {
	if q == nil || q.IsAll {
		return bleveq.NewMatchAllQuery(), nil
	}

	switch {
	case q.Term != nil:
		return compileTerm(s, q.Term)
	case q.Phrase != nil:
		return compilePhrase(s, q.Phrase)
	case q.Fuzzy != nil:
		return compileFuzzy(s, q.Fuzzy)
	case q.Regex != nil:
		return compileRegex(s, q.Regex)
	case q.Range != nil:
		return compileRange(s, q.Range)
	case q.Bool != nil:
		return compileBool(s, q.Bool)
	case q.Raw != nil:
		return compileRaw(s, q.Raw)
	default:
		return nil, errs.QueryError("empty query")
	}
}

func compileTerm(s *schema.Schema, t *query.TermQuery) (bleveq.Query, error) {
	if _, err := s.MustBeIndexed(t.Field); err != nil {
		return nil, err
	}
	tq := bleveq.NewTermQuery(t.Value)
	tq.SetField(t.Field)
	return tq, nil
}

func compilePhrase(s *schema.Schema, p *query.PhraseQuery) (bleveq.Query, error) {
	if _, err := s.MustBeIndexed(p.Field); err != nil {
		return nil, err
	}
	// Validated once more here defensively: the JSON decoder already
	// rejects these shapes, but Compile is also reachable from the
	// cluster RPC path where an AST can arrive pre-built.
	if len(p.Terms) <= 1 {
		return nil, errs.QueryError("phrase query requires at least 2 terms")
	}
	if p.Offsets != nil && len(p.Offsets) != len(p.Terms) {
		return nil, errs.QueryError("phrase query offsets length must match terms length")
	}
	if p.Offsets == nil {
		mq := bleveq.NewMatchPhraseQuery(joinTerms(p.Terms))
		mq.SetField(p.Field)
		return mq, nil
	}
	return bleveq.NewPhraseQuery(p.Terms, p.Field), nil
}

func joinTerms(terms []string) string {
	out := terms[0]
	for _, t := range terms[1:] {
		out += " " + t
	}
	return out
}

func compileFuzzy(s *schema.Schema, f *query.FuzzyQuery) (bleveq.Query, error) {
	if _, err := s.MustBeIndexed(f.Field); err != nil {
		return nil, err
	}
	fq := bleveq.NewFuzzyQuery(f.Value)
	fq.SetField(f.Field)
	fq.SetFuzziness(f.Distance)
	// NOTE: bleve's Levenshtein automaton has no transposition flag;
	// Transposition is accepted on the wire but does not change
	// matching behavior.
	return fq, nil
}

func compileRegex(s *schema.Schema, r *query.RegexQuery) (bleveq.Query, error) {
	if _, err := s.MustBeIndexed(r.Field); err != nil {
		return nil, err
	}
	rq := bleveq.NewRegexpQuery(r.Pattern)
	rq.SetField(r.Field)
	return rq, nil
}

func compileRange(s *schema.Schema, r *query.RangeQuery) (bleveq.Query, error) {
	f, err := s.MustBeIndexed(r.Field)
	if err != nil {
		return nil, err
	}
	if !f.Type.IsNumeric() {
		return nil, errs.QueryErrorf("range query on non-numeric field %q", r.Field)
	}

	var min, max *float64
	var minIncl, maxIncl *bool

	tru, fal := true, false

	switch {
	case r.GTE.Set && r.GT.Set:
		return nil, errs.QueryError("range query cannot set both gt and gte")
	case r.GTE.Set:
		v := r.GTE.Value
		min = &v
		minIncl = &tru
	case r.GT.Set:
		v := r.GT.Value
		min = &v
		minIncl = &fal
	}

	switch {
	case r.LTE.Set && r.LT.Set:
		return nil, errs.QueryError("range query cannot set both lt and lte")
	case r.LTE.Set:
		v := r.LTE.Value
		max = &v
		maxIncl = &tru
	case r.LT.Set:
		v := r.LT.Value
		max = &v
		maxIncl = &fal
	}

	nq := bleveq.NewNumericRangeInclusiveQuery(min, max, minIncl, maxIncl)
	nq.SetField(r.Field)
	if r.Boost != 0 {
		nq.SetBoost(r.Boost)
	}
	return nq, nil
}

func compileBool(s *schema.Schema, b *query.BoolQuery) (bleveq.Query, error) {
	must, err := compileAll(s, b.Must)
	if err != nil {
		return nil, err
	}
	mustNot, err := compileAll(s, b.MustNot)
	if err != nil {
		return nil, err
	}
	should, err := compileAll(s, b.Should)
	if err != nil {
		return nil, err
	}

	bq := bleveq.NewBooleanQuery(must, should, mustNot)
	if b.MinimumShouldMatch > 0 {
		bq.SetMinShould(float64(b.MinimumShouldMatch))
	}
	if b.Boost != 0 {
		bq.SetBoost(b.Boost)
	}
	return bq, nil
}

// compileAll compiles each clause in encounter order — that order is
// preserved into the must/must_not/should slices: producing order is
// observable and must round-trip through compilation unchanged.
func compileAll(s *schema.Schema, qs []query.Query) ([]bleveq.Query, error) {
	if len(qs) == 0 {
		return nil, nil
	}
	out := make([]bleveq.Query, 0, len(qs))
	for i := range qs {
		cq, err := Compile(s, &qs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cq)
	}
	return out, nil
}

func compileRaw(s *schema.Schema, r *query.RawQuery) (bleveq.Query, error) {
	return bleveq.NewQueryStringQuery(r.Text), nil
}
