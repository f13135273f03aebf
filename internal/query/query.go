// Package query defines Loom's JSON query algebra: the
// seven compilable variants plus the match-all sentinel, and the
// Search/SearchResults/FacetQuery envelope types around them.
package query

import (
	"encoding/json"

	"github.com/cuemby/loom/internal/errs"
)

// Query is the tagged-variant query AST. Exactly one of the pointer
// fields is non-nil after Unmarshal, or IsAll is true.
type Query struct {
	IsAll  bool
	Term   *TermQuery
	Phrase *PhraseQuery
	Fuzzy  *FuzzyQuery
	Regex  *RegexQuery
	Range  *RangeQuery
	Bool   *BoolQuery
	Raw    *RawQuery
}

// TermQuery matches {"term": {field: value}}.
type TermQuery struct {
	Field string
	Value string
}

// PhraseQuery matches {"phrase": {field: {"terms": [...], "offsets": [...]?}}}.
type PhraseQuery struct {
	Field   string
	Terms   []string
	Offsets []int // nil if not provided
}

// FuzzyQuery matches {"fuzzy": {field: {value, distance, transposition}}}.
type FuzzyQuery struct {
	Field         string
	Value         string
	Distance      int
	Transposition bool
}

// RegexQuery matches {"regex": {field: pattern}}.
type RegexQuery struct {
	Field   string
	Pattern string
}

// RangeBound is one (optional) numeric bound.
type RangeBound struct {
	Set   bool
	Value float64
}

// RangeQuery matches {"range": {field: {gte?, lte?, lt?, gt?, boost?}}}.
type RangeQuery struct {
	Field string
	GTE   RangeBound
	GT    RangeBound
	LTE   RangeBound
	LT    RangeBound
	Boost float64
}

// BoolQuery matches {"bool": {must, must_not, should, minimum_should_match?, boost?}}.
type BoolQuery struct {
	Must               []Query
	MustNot            []Query
	Should             []Query
	MinimumShouldMatch int
	Boost              float64
}

// RawQuery matches {"raw": "..."}.
type RawQuery struct {
	Text string
}

// FacetQuery requests facet counts for a field over a set of prefixes.
type FacetQuery struct {
	Field    string   `json:"field"`
	Prefixes []string `json:"prefixes"`
}

// Search is the top-level request body for POST /{index} and search_index.
type Search struct {
	Query   *Query      `json:"query,omitempty"`
	Facets  *FacetQuery `json:"facets,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	SortBy  string      `json:"sort_by,omitempty"`
}

// DefaultLimit is used when Search.Limit is zero.
const DefaultLimit = 100

// EffectiveLimit returns s.Limit, or a default when unset.
func (s Search) EffectiveLimit() int {
	if s.Limit <= 0 {
		return DefaultLimit
	}
	return s.Limit
}

// UnmarshalJSON implements the tagged-variant decode for Query,
// including the bare-string "all" sentinel.
func (q *Query) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != "all" {
			return errs.QueryErrorf("unknown query string literal: %q", asString)
		}
		q.IsAll = true
		return nil
	}

	var wire struct {
		Term   map[string]string              `json:"term"`
		Phrase map[string]wirePhrase          `json:"phrase"`
		Fuzzy  map[string]wireFuzzy           `json:"fuzzy"`
		Regex  map[string]string              `json:"regex"`
		Range  map[string]wireRange           `json:"range"`
		Bool   *wireBool                      `json:"bool"`
		Raw    *string                        `json:"raw"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return errs.IOError(err)
	}

	switch {
	case wire.Term != nil:
		for f, v := range wire.Term {
			q.Term = &TermQuery{Field: f, Value: v}
		}
	case wire.Phrase != nil:
		for f, p := range wire.Phrase {
			if len(p.Terms) <= 1 {
				return errs.QueryError("phrase query requires at least 2 terms")
			}
			if p.Offsets != nil && len(p.Offsets) != len(p.Terms) {
				return errs.QueryError("phrase query offsets length must match terms length")
			}
			q.Phrase = &PhraseQuery{Field: f, Terms: p.Terms, Offsets: p.Offsets}
		}
	case wire.Fuzzy != nil:
		for f, fz := range wire.Fuzzy {
			q.Fuzzy = &FuzzyQuery{Field: f, Value: fz.Value, Distance: fz.Distance, Transposition: fz.Transposition}
		}
	case wire.Regex != nil:
		for f, p := range wire.Regex {
			q.Regex = &RegexQuery{Field: f, Pattern: p}
		}
	case wire.Range != nil:
		for f, r := range wire.Range {
			rq := &RangeQuery{Field: f, Boost: r.Boost}
			if r.GTE != nil {
				rq.GTE = RangeBound{Set: true, Value: *r.GTE}
			}
			if r.GT != nil {
				rq.GT = RangeBound{Set: true, Value: *r.GT}
			}
			if r.LTE != nil {
				rq.LTE = RangeBound{Set: true, Value: *r.LTE}
			}
			if r.LT != nil {
				rq.LT = RangeBound{Set: true, Value: *r.LT}
			}
			q.Range = rq
		}
	case wire.Bool != nil:
		bq := &BoolQuery{MinimumShouldMatch: wire.Bool.MinimumShouldMatch, Boost: wire.Bool.Boost}
		bq.Must = wire.Bool.Must
		bq.MustNot = wire.Bool.MustNot
		bq.Should = wire.Bool.Should
		q.Bool = bq
	case wire.Raw != nil:
		q.Raw = &RawQuery{Text: *wire.Raw}
	default:
		return errs.QueryError("query object has no recognized variant")
	}

	return nil
}

type wirePhrase struct {
	Terms   []string `json:"terms"`
	Offsets []int    `json:"offsets,omitempty"`
}

type wireFuzzy struct {
	Value         string `json:"value"`
	Distance      int    `json:"distance"`
	Transposition bool   `json:"transposition"`
}

type wireRange struct {
	GTE   *float64 `json:"gte,omitempty"`
	GT    *float64 `json:"gt,omitempty"`
	LTE   *float64 `json:"lte,omitempty"`
	LT    *float64 `json:"lt,omitempty"`
	Boost float64  `json:"boost,omitempty"`
}

type wireBool struct {
	Must               []Query `json:"must,omitempty"`
	MustNot            []Query `json:"must_not,omitempty"`
	Should             []Query `json:"should,omitempty"`
	MinimumShouldMatch int     `json:"minimum_should_match,omitempty"`
	Boost              float64 `json:"boost,omitempty"`
}

// MarshalJSON implements the tagged-variant encode for Query, the
// inverse of UnmarshalJSON — used by the client SDK to build request
// bodies from a constructed Query.
func (q Query) MarshalJSON() ([]byte, error) {
	if q.IsAll {
		return json.Marshal("all")
	}

	switch {
	case q.Term != nil:
		return json.Marshal(map[string]map[string]string{"term": {q.Term.Field: q.Term.Value}})
	case q.Phrase != nil:
		return json.Marshal(map[string]map[string]wirePhrase{
			"phrase": {q.Phrase.Field: {Terms: q.Phrase.Terms, Offsets: q.Phrase.Offsets}},
		})
	case q.Fuzzy != nil:
		return json.Marshal(map[string]map[string]wireFuzzy{
			"fuzzy": {q.Fuzzy.Field: {Value: q.Fuzzy.Value, Distance: q.Fuzzy.Distance, Transposition: q.Fuzzy.Transposition}},
		})
	case q.Regex != nil:
		return json.Marshal(map[string]map[string]string{"regex": {q.Regex.Field: q.Regex.Pattern}})
	case q.Range != nil:
		w := wireRange{Boost: q.Range.Boost}
		if q.Range.GTE.Set {
			w.GTE = &q.Range.GTE.Value
		}
		if q.Range.GT.Set {
			w.GT = &q.Range.GT.Value
		}
		if q.Range.LTE.Set {
			w.LTE = &q.Range.LTE.Value
		}
		if q.Range.LT.Set {
			w.LT = &q.Range.LT.Value
		}
		return json.Marshal(map[string]map[string]wireRange{"range": {q.Range.Field: w}})
	case q.Bool != nil:
		return json.Marshal(map[string]wireBool{"bool": {
			Must:               q.Bool.Must,
			MustNot:            q.Bool.MustNot,
			Should:             q.Bool.Should,
			MinimumShouldMatch: q.Bool.MinimumShouldMatch,
			Boost:              q.Bool.Boost,
		}})
	case q.Raw != nil:
		return json.Marshal(map[string]string{"raw": q.Raw.Text})
	default:
		return nil, errs.QueryError("query has no recognized variant to encode")
	}
}
