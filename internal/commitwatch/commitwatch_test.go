package commitwatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "title", Type: schema.FieldText, Options: schema.FieldOptions{Indexed: true, Stored: true}},
	})
}

func TestTickCommitsDirtyIndexes(t *testing.T) {
	c := catalog.New("", 64)
	h, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	err = h.AddDocument(document.AddDocument{Document: json.RawMessage(`{"title":"dune"}`)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.GetOpstamp())

	w := New(c, 1)
	w.tick()

	assert.Equal(t, uint64(0), h.GetOpstamp())
	res, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Hits)
}

func TestTickSkipsWhenBulkIngestLocked(t *testing.T) {
	c := catalog.New("", 64)
	h, err := c.AddIndex("books", testSchema(), true)
	require.NoError(t, err)

	err = h.AddDocument(document.AddDocument{Document: json.RawMessage(`{"title":"dune"}`)})
	require.NoError(t, err)

	catalog.BulkIngestLock.Store(true)
	defer catalog.BulkIngestLock.Store(false)

	w := New(c, 1)
	w.tick()

	assert.Equal(t, uint64(1), h.GetOpstamp(), "auto-commit must not fire while a bulk ingest holds the lock")
}

func TestNewConvertsFloatSecondsToDuration(t *testing.T) {
	w := New(catalog.New("", 64), 0.5)
	assert.Equal(t, 500*time.Millisecond, w.interval)
}
