package provision

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/kailas-cloud/docgate/internal/db"
)

// Directory layout under the provisioning root.
const (
	IndexDir = "indexs"
	DataDir  = "datas"
)

const (
	fileExt   = ".json"
	separator = "__"
)

// ErrMalformedName is returned for description files whose name does not
// encode a namespace.
var ErrMalformedName = errors.New("malformed description file name")

// IndexFile is one index description: the namespace and the engine-specific
// schema body.
type IndexFile struct {
	Name      string
	Namespace db.Namespace
	Schema    []byte
}

// ParseFileName extracts the namespace from a description file name.
// Accepted forms are "<index>__<type>.json" and the three-part
// "<marker>__<index>__<type>.json", where the marker (conventionally
// "index" or "data") is ignored.
func ParseFileName(name string) (db.Namespace, error) {
	base := path.Base(name)
	stem, ok := strings.CutSuffix(base, fileExt)
	if !ok {
		return db.Namespace{}, fmt.Errorf("%q: not a %s file: %w", base, fileExt, ErrMalformedName)
	}

	parts := strings.Split(stem, separator)
	switch len(parts) {
	case 2:
	case 3:
		parts = parts[1:]
	default:
		return db.Namespace{}, fmt.Errorf("%q: expected <index>%s<type>: %w", base, separator, ErrMalformedName)
	}
	if parts[0] == "" || parts[1] == "" {
		return db.Namespace{}, fmt.Errorf("%q: empty index or type: %w", base, ErrMalformedName)
	}

	ns, err := db.NewNamespace(parts[0], parts[1])
	if err != nil {
		return db.Namespace{}, fmt.Errorf("%q: %w: %w", base, ErrMalformedName, err)
	}
	return ns, nil
}
