package query

// ScoredDoc is one hit: a relevance (or sort) score and the document in
// its named-field form.
type ScoredDoc struct {
	Score float64                  `json:"score"`
	Doc   map[string][]interface{} `json:"doc"`
}

// FacetValue is one term-count pair inside a facet result.
type FacetValue struct {
	Value string `json:"value"`
	Count uint64 `json:"count"`
}

// SearchResults is the response body of search_index / the HTTP search
// endpoints. It forms a commutative monoid under Add: concatenation of
// hits, concatenation of facets, and sum of Hits.
type SearchResults struct {
	Hits   uint64                    `json:"hits"`
	Docs   []ScoredDoc               `json:"docs"`
	Facets map[string][]FacetValue   `json:"facets"`
}

// Add implements the monoid operation: order of shard results does not
// matter to the count, but each shard's own docs stay contiguous inside
// the concatenation (merging across shards does not
// preserve per-shard ordering except inside each shard's result
// sublist").
func (a SearchResults) Add(b SearchResults) SearchResults {
	out := SearchResults{
		Hits: a.Hits + b.Hits,
		Docs: make([]ScoredDoc, 0, len(a.Docs)+len(b.Docs)),
	}
	out.Docs = append(out.Docs, a.Docs...)
	out.Docs = append(out.Docs, b.Docs...)

	if len(a.Facets) == 0 && len(b.Facets) == 0 {
		return out
	}
	out.Facets = make(map[string][]FacetValue, len(a.Facets)+len(b.Facets))
	for k, v := range a.Facets {
		out.Facets[k] = append(out.Facets[k], v...)
	}
	for k, v := range b.Facets {
		out.Facets[k] = append(out.Facets[k], v...)
	}
	return out
}

// FoldResults takes the first limit entries of rs (shard results, not
// docs) and sums them — the merge strategy used for cluster fan-out.
func FoldResults(rs []SearchResults, limit int) SearchResults {
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	var out SearchResults
	for _, r := range rs {
		out = out.Add(r)
	}
	return out
}
