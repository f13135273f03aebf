package schema

import (
	"encoding/json"

	"github.com/cuemby/loom/internal/errs"
)

// jsonField is the wire shape of one field definition inside a
// SchemaBody, e.g.:
//
//	{"name":"test_text","type":"text","options":{"indexed":true,"stored":true}}
type jsonField struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Options struct {
		Indexed           bool   `json:"indexed,omitempty"`
		Stored            bool   `json:"stored,omitempty"`
		Fast              bool   `json:"fast,omitempty"`
		Tokenizer         string `json:"tokenizer,omitempty"`
		IndexRecordOption string `json:"index_record_option,omitempty"`
	} `json:"options"`
}

// Parse decodes a SchemaBody — a JSON array of field definitions — into
// a Schema.
func Parse(raw []byte) (*Schema, error) {
	var jfs []jsonField
	if err := json.Unmarshal(raw, &jfs); err != nil {
		return nil, errs.IOError(err)
	}

	fields := make([]Field, 0, len(jfs))
	for _, jf := range jfs {
		ft := FieldType(jf.Type)
		switch ft {
		case FieldText, FieldI64, FieldU64, FieldF64, FieldBytes, FieldFacet:
		default:
			return nil, errs.QueryErrorf("unknown field type: %s", jf.Type)
		}

		opt := FieldOptions{
			Indexed:           jf.Options.Indexed,
			Stored:            jf.Options.Stored,
			Fast:              jf.Options.Fast,
			Tokenizer:         jf.Options.Tokenizer,
			IndexRecordOption: IndexRecordOption(jf.Options.IndexRecordOption),
		}
		if opt.IndexRecordOption == "" {
			opt.IndexRecordOption = RecordBasic
		}
		if ft == FieldFacet {
			opt.Indexed = true
			opt.Stored = true
		}

		fields = append(fields, Field{Name: jf.Name, Type: ft, Options: opt})
	}

	return New(fields), nil
}

// MarshalJSON renders the schema back to the SchemaBody wire shape —
// used by _summary.
func (s *Schema) MarshalJSON() ([]byte, error) {
	jfs := make([]jsonField, 0, len(s.Fields))
	for _, f := range s.Fields {
		jf := jsonField{Name: f.Name, Type: string(f.Type)}
		jf.Options.Indexed = f.Options.Indexed
		jf.Options.Stored = f.Options.Stored
		jf.Options.Fast = f.Options.Fast
		jf.Options.Tokenizer = f.Options.Tokenizer
		jf.Options.IndexRecordOption = string(f.Options.IndexRecordOption)
		jfs = append(jfs, jf)
	}
	return json.Marshal(jfs)
}
