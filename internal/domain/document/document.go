package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// IDField is the field every stored document carries.
const IDField = "id"

// MaxIDLength bounds caller-supplied ids.
const MaxIDLength = 512

// Document is a JSON object keyed by field name. It always carries IDField
// once it has been written through the access layer.
type Document map[string]any

// ID returns the document id rendered as a string.
// Numeric ids (as found in seed files) are accepted when integral.
func (d Document) ID() (string, bool) {
	v, ok := d[IDField]
	if !ok {
		return "", false
	}
	return IDString(v)
}

// WithID returns a copy of d carrying id, unless d already has an id field.
func (d Document) WithID(id string) Document {
	out := d.Clone()
	if _, ok := out[IDField]; !ok {
		out[IDField] = id
	}
	return out
}

// Clone returns a shallow copy. A nil document clones to an empty one.
func (d Document) Clone() Document {
	out := make(Document, len(d)+1)
	maps.Copy(out, d)
	return out
}

// Encode marshals the document to JSON.
func (d Document) Encode() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode parses a JSON object, keeping numbers as json.Number so integer ids
// and counters survive the round trip.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var d Document
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("decode document: not a JSON object")
	}
	return d, nil
}

// DecodeArray parses a JSON array of objects.
func DecodeArray(data []byte) ([]Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var docs []Document
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// IDString renders an id value as a string.
func IDString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		if _, err := id.Int64(); err != nil {
			return "", false
		}
		return id.String(), true
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return "", false
	}
}

// ValidateID checks a caller-supplied id.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("document id too long (max %d)", MaxIDLength)
	}
	return nil
}
