// Package document implements Loom's document model: parsing a JSON
// document against a Schema and reshaping bleve's stored
// fields back into the named-field document form used in search results.
package document

import (
	"encoding/base64"
	"encoding/json"
	"math"

	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/schema"
)

// Document is a mapping from field name to one or more typed values,
// the in-memory form used after parsing and before handing off to the
// embedded index engine.
type Document map[string][]interface{}

// Parse decodes raw JSON against s, producing a Document and the flat
// map[string]interface{} bleve's Index()/Batch.Index() expect.
//
// Parse failures are surfaced as typed errors: invalid JSON as
// IOError, references to fields absent from the schema as
// UnknownIndexField.
func Parse(s *schema.Schema, raw []byte) (Document, map[string]interface{}, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, errs.IOError(err)
	}

	doc := make(Document, len(fields))
	flat := make(map[string]interface{}, len(fields))

	for name, raw := range fields {
		f, ok := s.Field(name)
		if !ok {
			return nil, nil, errs.UnknownField(name)
		}

		vals, flatVal, err := parseValue(f, raw)
		if err != nil {
			return nil, nil, err
		}
		doc[name] = vals
		flat[name] = flatVal
	}

	return doc, flat, nil
}

func parseValue(f schema.Field, raw json.RawMessage) ([]interface{}, interface{}, error) {
	switch f.Type {
	case schema.FieldText, schema.FieldFacet:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, errs.IOErrorf("field %q: expected string: %v", f.Name, err)
		}
		return []interface{}{s}, s, nil

	case schema.FieldI64, schema.FieldU64, schema.FieldF64:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, nil, errs.IOErrorf("field %q: expected number: %v", f.Name, err)
		}
		if f.Type == schema.FieldI64 && (n != math.Trunc(n) || n < math.MinInt64 || n > math.MaxInt64) {
			return nil, nil, errs.IOErrorf("field %q: %v is not a valid i64", f.Name, n)
		}
		if f.Type == schema.FieldU64 && (n != math.Trunc(n) || n < 0 || n > math.MaxUint64) {
			return nil, nil, errs.IOErrorf("field %q: %v is not a valid u64", f.Name, n)
		}
		return []interface{}{n}, n, nil

	case schema.FieldBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, errs.IOErrorf("field %q: expected base64 string: %v", f.Name, err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, nil, errs.IOErrorf("field %q: invalid base64: %v", f.Name, err)
		}
		return []interface{}{b}, s, nil

	default:
		return nil, nil, errs.QueryErrorf("unsupported field type %q", f.Type)
	}
}
