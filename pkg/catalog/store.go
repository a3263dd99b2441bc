package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// Snapshot is a persisted catalog: the parsed definitions and the listing
// hash they were built from.
type Snapshot struct {
	Hash        uint64
	Definitions []*mapsource.Definition
}

// IndexStore persists catalog snapshots.
//
// LoadIndex returns (nil, nil) when nothing has been saved yet. Any error is
// treated as a corrupt index and forces a rebuild.
type IndexStore interface {
	LoadIndex(ctx context.Context) (*Snapshot, error)
	SaveIndex(ctx context.Context, s *Snapshot) error
}

// ListingHash returns the content hash of a map root listing. It depends on
// the path, size and modification time of every resource, not on the order
// of the listing.
func ListingHash(resources []Resource) uint64 {
	sorted := make([]Resource, len(resources))
	copy(sorted, resources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := xxhash.New()
	for _, r := range sorted {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", r.Path, r.Size, r.ModTime.UnixNano())
	}
	return h.Sum64()
}
