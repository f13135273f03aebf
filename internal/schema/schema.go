// Package schema defines Loom's field and index schema model, and the
// translation of that schema onto a bleve index mapping.
package schema

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cuemby/loom/internal/errs"
)

// FieldType is one of the six supported field types.
type FieldType string

const (
	FieldText  FieldType = "text"
	FieldI64   FieldType = "i64"
	FieldU64   FieldType = "u64"
	FieldF64   FieldType = "f64"
	FieldBytes FieldType = "bytes"
	FieldFacet FieldType = "facet"
)

// IndexRecordOption controls how much positional information a text
// field's postings carry.
type IndexRecordOption string

const (
	RecordBasic    IndexRecordOption = "basic"
	RecordFreq     IndexRecordOption = "freq"
	RecordPosition IndexRecordOption = "position"
)

// FieldOptions are the per-type options a field can carry: indexed,
// stored, fast, tokenizer, index-record-option.
type FieldOptions struct {
	Indexed           bool
	Stored            bool
	Fast              bool
	Tokenizer         string // e.g. "standard", "keyword"; text fields only
	IndexRecordOption IndexRecordOption
}

// Field is one ordered entry in a Schema.
type Field struct {
	Name    string
	Type    FieldType
	Options FieldOptions
}

// Schema is an ordered, immutable-after-creation sequence of field
// definitions.
type Schema struct {
	Fields []Field
	byName map[string]Field
}

// New builds a Schema from an ordered field list, indexing it by name
// for O(1) lookups during document parsing and query compilation.
func New(fields []Field) *Schema {
	s := &Schema{Fields: fields, byName: make(map[string]Field, len(fields))}
	for _, f := range fields {
		s.byName[f.Name] = f
	}
	return s
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// MustBeIndexed returns an UnknownIndexField/QueryError style error if
// name isn't a known, indexed field — used by the query compiler.
func (s *Schema) MustBeIndexed(name string) (Field, error) {
	f, ok := s.byName[name]
	if !ok {
		return Field{}, errs.UnknownField(name)
	}
	if !f.Options.Indexed {
		return Field{}, errs.QueryErrorf("field %q is not indexed", name)
	}
	return f, nil
}

// SortableField returns the field if it qualifies for sort_by: both
// fast and stored (silent-fallback resolution —
// callers that get ok=false should fall back to score order, not error).
func (s *Schema) SortableField(name string) (Field, bool) {
	f, ok := s.byName[name]
	if !ok || !f.Options.Fast || !f.Options.Stored {
		return Field{}, false
	}
	return f, true
}

// IsNumeric reports whether a field type is one of the numeric types
// range queries are allowed against.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldI64, FieldU64, FieldF64:
		return true
	}
	return false
}

// BuildMapping translates the schema into a bleve index mapping — the
// embedded engine primitive used to build search mappings.
func (s *Schema) BuildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	for _, f := range s.Fields {
		switch f.Type {
		case FieldText:
			fm := bleve.NewTextFieldMapping()
			fm.Store = f.Options.Stored
			fm.Index = f.Options.Indexed
			if f.Options.Tokenizer != "" {
				fm.Analyzer = f.Options.Tokenizer
			}
			fm.IncludeTermVectors = f.Options.IndexRecordOption == RecordPosition
			fm.DocValues = f.Options.Fast
			doc.AddFieldMappingsAt(f.Name, fm)
		case FieldFacet:
			fm := bleve.NewTextFieldMapping()
			fm.Store = f.Options.Stored
			fm.Index = true
			fm.Analyzer = "keyword"
			doc.AddFieldMappingsAt(f.Name, fm)
		case FieldI64, FieldU64, FieldF64:
			fm := bleve.NewNumericFieldMapping()
			fm.Store = f.Options.Stored
			fm.Index = f.Options.Indexed
			fm.DocValues = f.Options.Fast || f.Options.Stored
			doc.AddFieldMappingsAt(f.Name, fm)
		case FieldBytes:
			fm := bleve.NewTextFieldMapping()
			fm.Store = f.Options.Stored
			fm.Index = false
			fm.Analyzer = "keyword"
			doc.AddFieldMappingsAt(f.Name, fm)
		}
	}

	im.DefaultMapping = doc
	return im
}
