package client_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/loom/internal/bulk"
	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/httpapi"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/client"
)

func newTestServer(t *testing.T) (*client.Client, *httptest.Server) {
	t.Helper()
	cat := catalog.New("", 0)
	srv := httpapi.New(cat, bulk.Config{})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return client.NewClient(ts.URL), ts
}

func booksSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "title", Type: schema.FieldText, Options: schema.FieldOptions{Indexed: true, Stored: true}},
	})
}

func TestPingReturnsNameAndVersion(t *testing.T) {
	c, _ := newTestServer(t)
	name, version, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "loom", name)
	assert.NotEmpty(t, version)
}

func TestCreateIndexThenSummary(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.CreateIndex(ctx, "books", booksSchema()))

	summary, err := c.Summary(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, "books", summary.Name)
}

func TestAddDocumentThenSearch(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, c.CreateIndex(ctx, "books", booksSchema()))

	require.NoError(t, c.AddDocument(ctx, "books", json.RawMessage(`{"title":"moby dick"}`), true))

	results, err := c.Search(ctx, "books", query.Search{
		Query: &query.Query{Term: &query.TermQuery{Field: "title", Value: "dick"}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), results.Hits)
}

func TestAllDocsReturnsEveryDocument(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, c.CreateIndex(ctx, "books", booksSchema()))
	require.NoError(t, c.AddDocument(ctx, "books", json.RawMessage(`{"title":"dune"}`), true))

	results, err := c.AllDocs(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), results.Hits)
}

func TestDeleteTermReturnsAffectedCount(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, c.CreateIndex(ctx, "books", booksSchema()))
	require.NoError(t, c.AddDocument(ctx, "books", json.RawMessage(`{"title":"dune"}`), true))

	affected, err := c.DeleteTerm(ctx, "books", map[string]string{"title": "dune"}, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), affected.DocsAffected)
}

func TestBulkThenFlushMakesDocsVisible(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, c.CreateIndex(ctx, "books", booksSchema()))

	ndjson := "{\"title\":\"a\"}\n{\"title\":\"b\"}\n"
	require.NoError(t, c.Bulk(ctx, "books", strings.NewReader(ndjson)))
	require.NoError(t, c.Flush(ctx, "books"))

	results, err := c.AllDocs(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), results.Hits)
}

func TestSummaryForUnknownIndexReturnsAPIError(t *testing.T) {
	c, _ := newTestServer(t)
	_, err := c.Summary(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loom:")
}
