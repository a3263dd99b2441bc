package engine

import (
	"errors"
	"fmt"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// OnlineID returns the catalog ID of the online map for a provider.
func OnlineID(provider string) string {
	return "online:" + provider
}

// SetOnlineMaps enables the online maps of the named providers and removes
// the others from the catalog. Removing the current map selects another one.
// Unknown names are reported; the known ones are still applied.
func (e *Engine) SetOnlineMaps(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			want[n] = true
		}
	}

	var errs []error
	reselect := false
	cur := e.cov.Current()

	e.mu.Lock()
	for _, p := range e.opts.Providers {
		src, have := e.online[p.Name]
		switch {
		case have && !want[p.Name]:
			e.cat.Remove(src.ID())
			delete(e.online, p.Name)
			if cur != nil && cur.ID() == src.ID() {
				reselect = true
			}
			e.log.WithField("provider", p.Name).Info("Online map disabled")

		case !have && want[p.Name]:
			def := &mapsource.Definition{
				ID:       OnlineID(p.Name),
				Title:    p.Title,
				Kind:     mapsource.KindOnline,
				Provider: p,
			}
			opts := e.opts.Online
			opts.OnTile = func(mapsource.Source) { e.RequestRender() }
			if opts.Logger == nil {
				opts.Logger = e.opts.Logger
			}
			o, err := mapsource.NewOnline(def, opts)
			if err != nil {
				errs = append(errs, fmt.Errorf("online map %s: %w", p.Name, err))
				continue
			}
			e.cat.Add(o)
			e.online[p.Name] = o
			e.log.WithField("provider", p.Name).Info("Online map enabled")
		}
		delete(want, p.Name)
	}
	e.mu.Unlock()

	for n := range want {
		errs = append(errs, fmt.Errorf("online map %s: unknown provider", n))
	}

	// Removed maps drop out of the covering set on the next recompute.
	e.cov.InvalidateCovering()
	e.requestCoverage(coverReq{findBest: reselect})
	return errors.Join(errs...)
}

// OnlineMaps returns the names of the enabled providers.
func (e *Engine) OnlineMaps() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, p := range e.opts.Providers {
		if _, ok := e.online[p.Name]; ok {
			out = append(out, p.Name)
		}
	}
	return out
}
