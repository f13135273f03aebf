package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "title", Type: schema.FieldText, Options: schema.FieldOptions{Indexed: true, Stored: true}},
		{Name: "category", Type: schema.FieldFacet, Options: schema.FieldOptions{Indexed: true, Stored: true}},
		{Name: "price", Type: schema.FieldF64, Options: schema.FieldOptions{Indexed: true, Stored: true, Fast: true}},
	})
}

func mustAdd(t *testing.T, h *Handle, doc string, commit bool) {
	t.Helper()
	err := h.AddDocument(document.AddDocument{
		Options:  document.AddOptions{Commit: commit},
		Document: json.RawMessage(doc),
	})
	require.NoError(t, err)
}

func TestOpstampResetsAfterCommit(t *testing.T) {
	h, err := Open("", "products", testSchema(), MergePolicyConfig{}, true)
	require.NoError(t, err)

	mustAdd(t, h, `{"title":"red shoe","category":"/footwear","price":19.99}`, false)
	assert.Equal(t, uint64(1), h.GetOpstamp())

	prev, err := h.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), prev)
	assert.Equal(t, uint64(0), h.GetOpstamp())
}

func TestCommitMakesDocumentsVisible(t *testing.T) {
	h, err := Open("", "products", testSchema(), MergePolicyConfig{}, true)
	require.NoError(t, err)

	mustAdd(t, h, `{"title":"red shoe","category":"/footwear","price":19.99}`, false)

	res, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Hits, "uncommitted documents must not be visible to readers")

	_, err = h.Commit()
	require.NoError(t, err)

	res, err = h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Hits)
}

func TestAddDocumentWithCommitOptionCommitsImmediately(t *testing.T) {
	h, err := Open("", "products", testSchema(), MergePolicyConfig{}, true)
	require.NoError(t, err)

	mustAdd(t, h, `{"title":"blue shoe","category":"/footwear","price":29.99}`, true)
	assert.Equal(t, uint64(0), h.GetOpstamp())

	res, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Hits)
}

func TestDeleteTermReportsAffectedCount(t *testing.T) {
	h, err := Open("", "products", testSchema(), MergePolicyConfig{}, true)
	require.NoError(t, err)

	mustAdd(t, h, `{"title":"red shoe","category":"/footwear","price":19.99}`, true)
	mustAdd(t, h, `{"title":"red hat","category":"/headwear","price":9.99}`, true)
	mustAdd(t, h, `{"title":"blue shoe","category":"/footwear","price":24.99}`, true)

	affected, err := h.DeleteTerm(document.DeleteDoc{
		Options:  document.AddOptions{Commit: true},
		TermsMap: map[string]string{"category": "/footwear"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), affected.DocsAffected)
	assert.Equal(t, "products", affected.Index)

	res, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Hits)
}

func TestSearchRejectsUnknownField(t *testing.T) {
	h, err := Open("", "products", testSchema(), MergePolicyConfig{}, true)
	require.NoError(t, err)

	_, err = h.Search(query.Search{Query: &query.Query{Term: &query.TermQuery{Field: "nope", Value: "x"}}})
	require.Error(t, err)
}

func TestSearchDefaultLimit(t *testing.T) {
	s := query.Search{}
	assert.Equal(t, query.DefaultLimit, s.EffectiveLimit())
}
