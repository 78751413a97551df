// Package document defines the index document model: named fields whose
// values are independently stored, indexed and tokenised.
package document

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
)

// Structural fields.
const (
	FieldID            = "ID"
	FieldTX            = "TX"
	FieldIsNode        = "ISNODE"
	FieldIsRoot        = "ISROOT"
	FieldIsContainer   = "ISCONTAINER"
	FieldParent        = "PARENT"
	FieldPrimaryParent = "PRIMARYPARENT"
	FieldQName         = "QNAME"
	FieldPath          = "PATH"
	FieldType          = "TYPE"
	FieldAspect        = "ASPECT"
	FieldStore         = "STORE"
	FieldFTSStatus     = "FTSSTATUS"

	// Background marker fields.
	FieldAction = "ACTION"
	FieldFrom   = "FROM"
	FieldTo     = "TO"

	// FieldNoTokens holds the sentinel term of values that produced no tokens.
	FieldNoTokens = "NO_TOKENS"
)

// Values of boolean and status fields.
const (
	True           = "T"
	FTSStatusClean = "Clean"
	FTSStatusDirty = "Dirty"
)

// Content values indexed when no text could be extracted.
const (
	NotIndexedTransformFailed = "\x00nitf"
	NotIndexedNoTransformer   = "\x00nicm"
)

// AttributePrefix marks property fields.
const AttributePrefix = "@"

// Content sub-field suffixes.
const (
	SuffixMimetype = ".mimetype"
	SuffixSize     = ".size"
	SuffixLocale   = ".locale"
)

// PropertyField is the index field of a property: @{uri}local.
func PropertyField(q dictionary.QName) string {
	return AttributePrefix + q.String()
}

// Field is one value of a named field.
type Field struct {
	Name      string
	Value     string
	Stored    bool
	Indexed   bool
	Tokenised bool
	// Analyzer splits Value when Tokenised. Untokenised values index as a
	// single term.
	Analyzer tokenizer.Analyzer
}

// Document is an ordered list of field values.
type Document struct {
	Fields []Field
}

// New returns a document carrying its identity field.
func New(id string) *Document {
	return &Document{Fields: []Field{{Name: FieldID, Value: id, Stored: true, Indexed: true}}}
}

// ID returns the identity value.
func (d *Document) ID() string {
	for _, f := range d.Fields {
		if f.Name == FieldID {
			return f.Value
		}
	}
	return ""
}

// Add appends a field value. The identity field cannot be added twice.
func (d *Document) Add(f Field) error {
	if f.Name == FieldID {
		return fmt.Errorf("document %s: identity field already set", d.ID())
	}
	d.Fields = append(d.Fields, f)
	return nil
}

// Keyword adds a stored, exact-match value.
func (d *Document) Keyword(name, value string) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Stored: true, Indexed: true})
}

// Exact adds an indexed, unstored exact-match value.
func (d *Document) Exact(name, value string) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Indexed: true})
}

// Validate checks the identity invariant: exactly one ID, stored, exact.
func (d *Document) Validate() error {
	n := 0
	for _, f := range d.Fields {
		if f.Name != FieldID {
			continue
		}
		n++
		if !f.Stored || !f.Indexed || f.Tokenised || f.Value == "" {
			return fmt.Errorf("document identity %q must be stored and exact-indexed", f.Value)
		}
	}
	if n != 1 {
		return fmt.Errorf("document has %d identity fields", n)
	}
	return nil
}

// Stored collects the stored values.
func (d *Document) Stored() StoredFields {
	out := make(StoredFields)
	for _, f := range d.Fields {
		if f.Stored {
			out[f.Name] = append(out[f.Name], f.Value)
		}
	}
	return out
}

// StoredFields are the stored values of a document by field name.
type StoredFields map[string][]string

// Get returns the first value of name.
func (s StoredFields) Get(name string) string {
	if v := s[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// ID returns the identity value.
func (s StoredFields) ID() string { return s.Get(FieldID) }

// Names returns the stored field names, sorted.
func (s StoredFields) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
