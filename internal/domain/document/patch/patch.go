package patch

import (
	"fmt"
	"maps"

	"github.com/kailas-cloud/docgate/internal/domain/document"
)

// Patch is a partial document update: named fields are replaced, all others
// are left untouched.
type Patch struct {
	fields map[string]any
}

// New validates and creates a Patch. At least one field must be provided and
// the id field cannot be rewritten.
func New(fields map[string]any) (Patch, error) {
	if len(fields) == 0 {
		return Patch{}, fmt.Errorf("at least one field must be provided")
	}
	if _, ok := fields[document.IDField]; ok {
		return Patch{}, fmt.Errorf("field %q is immutable", document.IDField)
	}
	return Patch{fields: maps.Clone(fields)}, nil
}

// Fields returns the fields to set.
func (p Patch) Fields() map[string]any { return p.fields }

// Apply returns a copy of doc with the patch merged in.
func (p Patch) Apply(doc document.Document) document.Document {
	out := doc.Clone()
	maps.Copy(out, p.fields)
	return out
}

// Encode marshals the patch fields as a JSON object.
func (p Patch) Encode() ([]byte, error) {
	return document.Document(p.fields).Encode()
}
