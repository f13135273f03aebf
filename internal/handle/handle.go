// Package handle defines the capability interface shared by local and
// remote index handles (duck-typed handle polymorphism):
// the catalog and HTTP/RPC layers operate against this interface and
// never need to know which concrete kind backs a given index name.
package handle

import (
	"github.com/blevesearch/bleve/v2"

	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

// Handle is satisfied by both *index.Handle (local) and *remote.Handle
// (a fan-out shadow over peer indexes).
type Handle interface {
	GetName() string
	GetSchema() *schema.Schema
	GetOpstamp() uint64
	SetOpstamp(uint64)

	Commit() (uint64, error)
	AddDocument(document.AddDocument) error
	DeleteTerm(document.DeleteDoc) (document.DocsAffected, error)
	Search(query.Search) (query.SearchResults, error)

	// DiscardBatch rolls back any staged-but-uncommitted writes by
	// replacing the pending batch with a fresh one; a remote handle has
	// nothing local to discard and treats this as a no-op.
	DiscardBatch()

	// GetIndex exposes the embedded bleve index for local handles;
	// remote handles return (nil, false) for a remote shadow.
	GetIndex() (bleve.Index, bool)
}
