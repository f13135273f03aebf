package catalog

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
	})
}

func TestAddIndexRejectsDuplicateName(t *testing.T) {
	c := New("", 64)
	_, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	_, err = c.AddIndex("books", testSchema(), true)
	assert.Error(t, err)
}

func TestListIndexesSortedAndDeduplicated(t *testing.T) {
	c := New("", 64)
	_, err := c.AddIndex("zeta", testSchema(), true)
	require.NoError(t, err)
	_, err = c.AddIndex("alpha", testSchema(), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zeta"}, c.ListIndexes())
}

func TestGetIndexUnknownReturnsUnknownIndexError(t *testing.T) {
	c := New("", 64)
	_, _, err := c.GetIndex("missing")
	assert.Error(t, err)
}

func TestAddDocumentRoutesToLocalWhenNoRemoteShadow(t *testing.T) {
	c := New("", 64)
	_, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	err = c.AddDocument("books", document.AddDocument{
		Options:  document.AddOptions{Commit: true},
		Document: json.RawMessage(`{"title":"moby dick"}`),
	})
	require.NoError(t, err)

	res, err := c.SearchLocalIndex("books", query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Hits)
}

func TestExistsAndRemoteExistsAreIndependent(t *testing.T) {
	c := New("", 64)
	_, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	assert.True(t, c.Exists("books"))
	assert.False(t, c.RemoteExists("books"))
}
