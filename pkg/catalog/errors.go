package catalog

import (
	"errors"
	"fmt"
)

// ErrNoMaps is returned by Build when no usable map was found. The returned
// catalog is still valid.
var ErrNoMaps = errors.New("no maps available")

// CatalogError reports a corrupt or unreadable catalog index or map root.
// A corrupt index is never fatal; it forces a rebuild.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }
