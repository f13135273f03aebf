package bulk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "title", Type: schema.FieldText, Options: schema.FieldOptions{Indexed: true, Stored: true}},
	})
}

func TestLoadIndexesAllLinesAndCommits(t *testing.T) {
	c := catalog.New("", 64)
	h, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	body := strings.NewReader(`{"title":"dune"}
{"title":"foundation"}
{"title":"hyperion"}
`)

	res := Load(context.Background(), h, body, Config{JSONParsingThreads: 2})
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.LinesIndexed)
	assert.Equal(t, uint64(0), h.GetOpstamp(), "Load must commit once at stream end")

	searchRes, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), searchRes.Hits)
}

func TestLoadSkipsBlankLines(t *testing.T) {
	c := catalog.New("", 64)
	h, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	body := strings.NewReader("{\"title\":\"dune\"}\n\n\n{\"title\":\"foundation\"}\n")

	res := Load(context.Background(), h, body, Config{})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.LinesIndexed)
}

func TestLoadReportsFirstParseError(t *testing.T) {
	c := catalog.New("", 64)
	h, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	body := strings.NewReader(`{"title":"dune"}
{"unknown_field":"x"}
{"title":"foundation"}
`)

	res := Load(context.Background(), h, body, Config{})
	assert.Error(t, res.Err)

	searchRes, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), searchRes.Hits, "a failed bulk load must discard everything staged, not partially commit")
	assert.Equal(t, uint64(0), h.GetOpstamp(), "discarding the batch must also clear the pending opstamp count")
}

func TestLoadClearsBulkIngestLockOnCompletion(t *testing.T) {
	c := catalog.New("", 64)
	h, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	body := strings.NewReader(`{"title":"dune"}` + "\n")
	_ = Load(context.Background(), h, body, Config{})

	assert.False(t, catalog.BulkIngestLock.Load())
}
