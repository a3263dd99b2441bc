package catalog

import (
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// coverageSamples is the side of the sampling grid used to decide whether a
// visible area is covered.
const coverageSamples = 8

// entry is a source stored in the R-tree.
type entry struct {
	src  mapsource.Source
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect { return e.rect }

// boundRect converts b to an R-tree rectangle with a minimum side so that
// degenerate bounds can still be stored.
func boundRect(b orb.Bound) rtreego.Rect {
	const epsilon = 1e-7
	w := math.Max(b.Max.Lon()-b.Min.Lon(), epsilon)
	h := math.Max(b.Max.Lat()-b.Min.Lat(), epsilon)
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min.Lon(), b.Min.Lat()}, []float64{w, h})
	return rect
}

// Catalog is a spatially indexed collection of maps.
//
// Bounded maps live in an R-tree. Online maps cover the whole world and are
// kept in a flat list beside it. All methods are safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	log     log.FieldLogger
	hash    uint64
	tree    *rtreego.Rtree
	entries map[string]*entry
	global  map[string]mapsource.Source
	broken  map[string]*mapsource.Definition
	errs    []error
}

// Stats describes catalog contents.
type Stats struct {
	Maps   int
	Online int
	Broken int
	Hash   uint64
}

// New returns an empty catalog.
func New(logger log.FieldLogger) *Catalog {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Catalog{
		log:     logger,
		tree:    rtreego.NewTree(2, 25, 50),
		entries: make(map[string]*entry),
		global:  make(map[string]mapsource.Source),
		broken:  make(map[string]*mapsource.Definition),
	}
}

func isGlobal(src mapsource.Source) bool {
	return src.Kind() == mapsource.KindOnline || src.Kind() == mapsource.KindFallback
}

// Add inserts a source, replacing any source with the same ID.
func (c *Catalog) Add(src mapsource.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(src.ID())
	if isGlobal(src) {
		c.global[src.ID()] = src
	} else {
		e := &entry{src: src, rect: boundRect(src.Definition().Bounds)}
		c.entries[src.ID()] = e
		c.tree.Insert(e)
	}
	c.updateGaugesLocked()
}

// Remove deletes a source by ID and reports whether it was present.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.removeLocked(id)
	c.updateGaugesLocked()
	return ok
}

func (c *Catalog) removeLocked(id string) bool {
	if e, ok := c.entries[id]; ok {
		c.tree.Delete(e)
		delete(c.entries, id)
		return true
	}
	if _, ok := c.global[id]; ok {
		delete(c.global, id)
		return true
	}
	return false
}

func (c *Catalog) addBroken(def *mapsource.Definition, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken[def.ID] = def
	c.errs = append(c.errs, err)
}

// Get returns the usable source with the given ID.
func (c *Catalog) Get(id string) (mapsource.Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[id]; ok {
		return e.src, true
	}
	src, ok := c.global[id]
	return src, ok
}

// All returns every usable source ordered by ID.
func (c *Catalog) All() []mapsource.Source {
	c.mu.RLock()
	out := make([]mapsource.Source, 0, len(c.entries)+len(c.global))
	for _, e := range c.entries {
		out = append(out, e.src)
	}
	for _, src := range c.global {
		out = append(out, src)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of usable sources.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries) + len(c.global)
}

// Broken returns the definitions that failed to load, ordered by ID.
func (c *Catalog) Broken() []*mapsource.Definition {
	c.mu.RLock()
	out := make([]*mapsource.Definition, 0, len(c.broken))
	for _, def := range c.broken {
		out = append(out, def)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Errors returns the parse errors collected while building.
func (c *Catalog) Errors() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]error(nil), c.errs...)
}

// CleanBad forgets broken definitions and their errors. It returns how many
// were dropped.
func (c *Catalog) CleanBad() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.broken)
	c.broken = make(map[string]*mapsource.Definition)
	c.errs = nil
	c.updateGaugesLocked()
	return n
}

// Hash returns the listing hash the catalog was built from.
func (c *Catalog) Hash() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hash
}

// Stats returns catalog counters.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Maps:   len(c.entries) + len(c.global),
		Online: len(c.global),
		Broken: len(c.broken),
		Hash:   c.hash,
	}
}

func (c *Catalog) updateGauges() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.updateGaugesLocked()
}

func (c *Catalog) updateGaugesLocked() {
	metrics.CatalogMaps.WithLabelValues("ok").Set(float64(len(c.entries) + len(c.global)))
	metrics.CatalogMaps.WithLabelValues("broken").Set(float64(len(c.broken)))
}

// candidates returns the usable sources whose bounds intersect b.
func (c *Catalog) candidates(b orb.Bound) []mapsource.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hits := c.tree.SearchIntersect(boundRect(b))
	out := make([]mapsource.Source, 0, len(hits)+len(c.global))
	for _, h := range hits {
		out = append(out, h.(*entry).src)
	}
	for _, src := range c.global {
		out = append(out, src)
	}
	return out
}

// mismatch is the scale distance between two scales in log space, so that
// half and double the reference are equally far.
func mismatch(scale, ref float64) float64 {
	return math.Abs(math.Log(scale / ref))
}

// MapsAt returns the usable maps covering (lat, lon), best first.
//
// Maps are ordered by scale mismatch against refScale, then by descending
// priority, then by ID. A non-positive refScale orders by native scale,
// finest first.
func (c *Catalog) MapsAt(lat, lon, refScale float64) []mapsource.Source {
	p := orb.Point{lon, lat}
	var out []mapsource.Source
	for _, src := range c.candidates(orb.Bound{Min: p, Max: p}) {
		if src.Covers(lat, lon) {
			out = append(out, src)
		}
	}

	key := func(src mapsource.Source) float64 {
		if refScale <= 0 {
			return src.NativeScale()
		}
		return mismatch(src.NativeScale(), refScale)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki < kj
		}
		pi, pj := out[i].Definition().Priority, out[j].Definition().Priority
		if pi != pj {
			return pi > pj
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// CoveringMaps returns the maps to draw around primary so that visible is
// covered, in draw order (coarsest first).
//
// Candidates intersect visible, exclude primary, and are tried in order of
// smallest scale mismatch to primary. A candidate is kept only when it covers
// a sample point of visible that nothing kept so far covers, which keeps the
// set minimal for the sampling grid. Points the primary covers need no other
// map, except that with preferBest a finer candidate may claim any point.
//
// With primaryCovers set (the primary already covered the whole canvas) only
// finer maps are admitted, and none at all unless preferBest is set.
func (c *Catalog) CoveringMaps(primary mapsource.Source, visible orb.Bound, primaryCovers, preferBest bool) []mapsource.Source {
	if primary == nil || (primaryCovers && !preferBest) {
		return nil
	}
	ref := primary.NativeScale()

	type sample struct {
		lat, lon float64
		gap      bool // not covered by the primary
		covered  bool // claimed by a selected map
	}
	samples := make([]sample, 0, coverageSamples*coverageSamples)
	dx := (visible.Max.Lon() - visible.Min.Lon()) / coverageSamples
	dy := (visible.Max.Lat() - visible.Min.Lat()) / coverageSamples
	for i := 0; i < coverageSamples; i++ {
		for j := 0; j < coverageSamples; j++ {
			lat := visible.Min.Lat() + (float64(i)+0.5)*dy
			lon := visible.Min.Lon() + (float64(j)+0.5)*dx
			samples = append(samples, sample{lat: lat, lon: lon, gap: !primary.Covers(lat, lon)})
		}
	}

	var cands []mapsource.Source
	for _, src := range c.candidates(visible) {
		if src.ID() == primary.ID() {
			continue
		}
		finer := src.NativeScale() < ref
		if primaryCovers && !finer {
			continue
		}
		cands = append(cands, src)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		mi, mj := mismatch(cands[i].NativeScale(), ref), mismatch(cands[j].NativeScale(), ref)
		if mi != mj {
			return mi < mj
		}
		pi, pj := cands[i].Definition().Priority, cands[j].Definition().Priority
		if pi != pj {
			return pi > pj
		}
		return cands[i].ID() < cands[j].ID()
	})

	var selected []mapsource.Source
	for _, src := range cands {
		anyPoint := preferBest && src.NativeScale() < ref
		claimed := false
		for k := range samples {
			s := &samples[k]
			if s.covered || !(s.gap || anyPoint) {
				continue
			}
			if src.Covers(s.lat, s.lon) {
				s.covered = true
				claimed = true
			}
		}
		if claimed {
			selected = append(selected, src)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		si, sj := selected[i].NativeScale(), selected[j].NativeScale()
		if si != sj {
			return si > sj
		}
		return selected[i].ID() < selected[j].ID()
	})
	return selected
}
