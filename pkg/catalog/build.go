package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// Resource is one entry of a map root listing.
type Resource struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Loader turns map resources into sources.
type Loader interface {
	// List returns the map resources under root.
	List(root string) ([]Resource, error)

	// Parse reads the definition of a single resource.
	Parse(ctx context.Context, r Resource) (*mapsource.Definition, error)

	// Open creates an inactive source for a definition. It must not
	// allocate the expensive resources; that is Activate's job.
	Open(def *mapsource.Definition) (mapsource.Source, error)
}

// BuildOptions controls catalog building.
type BuildOptions struct {
	// Workers is the number of parser goroutines. If 0, defaults to
	// runtime.NumCPU().
	Workers int

	// SkipErrors keeps going when a resource fails to parse. Failed
	// definitions are kept for diagnostics. When false, the first error
	// aborts the build.
	SkipErrors bool

	// Progress is called after each resource is parsed, with the number of
	// resources processed so far.
	Progress func(done, total int)

	// ErrorLog receives one line per parse error.
	ErrorLog io.Writer

	// Store persists the parsed index. Optional.
	Store IndexStore

	Logger log.FieldLogger
}

// DefaultBuildOptions returns build options with sensible defaults.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

// Build lists root through loader and returns a catalog of its maps.
//
// When opts.Store holds a snapshot whose hash matches the listing, the saved
// definitions are used and nothing is parsed. A corrupt snapshot is logged
// and rebuilt. When no usable map is found, Build returns the (empty)
// catalog together with ErrNoMaps.
func Build(ctx context.Context, root string, loader Loader, opts BuildOptions) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("component", "catalog")

	resources, err := loader.List(root)
	if err != nil {
		return nil, &CatalogError{Op: "list " + root, Err: err}
	}
	hash := ListingHash(resources)

	var defs []*mapsource.Definition
	reused := false
	if opts.Store != nil {
		snap, err := opts.Store.LoadIndex(ctx)
		switch {
		case err != nil:
			logger.WithError(&CatalogError{Op: "load index", Err: err}).Warn("Rebuilding catalog")
		case snap == nil:
			logger.Debug("No saved catalog index")
		case snap.Hash != hash:
			logger.Infof("Map root changed (%016x != %016x), rebuilding catalog", snap.Hash, hash)
		default:
			defs = snap.Definitions
			reused = true
		}
	}

	if !reused {
		start := time.Now()
		defs, err = parseAll(ctx, resources, loader, opts)
		if err != nil {
			return nil, err
		}
		logger.WithField("took", time.Since(start).Round(time.Millisecond)).
			Infof("Parsed %d map resources", len(resources))
	}

	c := New(logger)
	c.hash = hash
	for _, def := range defs {
		if def.Broken() {
			c.addBroken(def, &mapsource.ParseError{Path: def.Path, Err: errors.New(def.LoadError)})
			continue
		}
		src, err := loader.Open(def)
		if err != nil {
			def.LoadError = err.Error()
			c.addBroken(def, &mapsource.ParseError{Path: def.Path, Err: err})
			continue
		}
		c.Add(src)
	}

	if !reused && opts.Store != nil {
		if err := opts.Store.SaveIndex(ctx, &Snapshot{Hash: hash, Definitions: defs}); err != nil {
			logger.WithError(err).Warn("Could not save catalog index")
		}
	}
	c.updateGauges()

	if c.Count() == 0 {
		return c, ErrNoMaps
	}
	return c, nil
}

// parseAll parses resources on a worker pool. The result keeps the listing
// order. Failed resources become broken definitions when opts.SkipErrors is
// set.
func parseAll(ctx context.Context, resources []Resource, loader Loader, opts BuildOptions) ([]*mapsource.Definition, error) {
	if len(resources) == 0 {
		return nil, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(resources) {
		workers = len(resources)
	}

	type parseResult struct {
		index int
		def   *mapsource.Definition
		err   error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(resources))
	results := make(chan parseResult, len(resources))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if err := ctx.Err(); err != nil {
					results <- parseResult{index: index, err: err}
					continue
				}
				def, err := loader.Parse(ctx, resources[index])
				results <- parseResult{index: index, def: def, err: err}
			}
		}()
	}

	for i := range resources {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	defs := make([]*mapsource.Definition, len(resources))
	var firstErr error
	done := 0
	for result := range results {
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(resources))
		}

		r := resources[result.index]
		if result.err == nil && result.def == nil {
			result.err = errors.New("loader returned no definition")
		}
		if result.err != nil {
			var pe *mapsource.ParseError
			if !errors.As(result.err, &pe) {
				result.err = &mapsource.ParseError{Path: r.Path, Err: result.err}
			}
			if opts.ErrorLog != nil {
				fmt.Fprintf(opts.ErrorLog, "Error parsing map: %v\n", result.err)
			}
			if !opts.SkipErrors {
				if firstErr == nil {
					firstErr = result.err
					cancel()
				}
				continue
			}
			defs[result.index] = &mapsource.Definition{ID: r.Path, Title: r.Path, Path: r.Path, LoadError: result.err.Error()}
			continue
		}

		def := result.def
		if def.Path == "" {
			def.Path = r.Path
		}
		if def.ID == "" {
			def.ID = r.Path
		}
		defs[result.index] = def
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}
