// Package tilecache layers tile caches: a process-local memory cache in
// front of Redis and the SQLite index database.
package tilecache

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// Layer is one named level of a Chain.
type Layer struct {
	Name  string
	Cache mapsource.TileCache
}

// Chain tries its layers in order. A hit in a slower layer is copied into
// the faster layers in front of it; writes go to every layer.
type Chain struct {
	layers []Layer
	log    log.FieldLogger
}

// NewChain returns a chain over layers, fastest first.
func NewChain(logger log.FieldLogger, layers ...Layer) *Chain {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Chain{layers: layers, log: logger.WithField("component", "tilecache")}
}

// Layers returns the layer names in lookup order.
func (c *Chain) Layers() []string {
	names := make([]string, len(c.layers))
	for i, l := range c.layers {
		names[i] = l.Name
	}
	return names
}

// GetTile returns the tile from the first layer that has it. A failing
// layer is skipped so that a Redis outage degrades to a miss.
func (c *Chain) GetTile(ctx context.Context, key string) (mapsource.CachedTile, bool, error) {
	for i, l := range c.layers {
		t, ok, err := l.Cache.GetTile(ctx, key)
		if err != nil {
			c.log.WithError(err).WithField("layer", l.Name).Warn("tile lookup failed")
			continue
		}
		if !ok {
			metrics.TileCacheMissesTotal.WithLabelValues(l.Name).Inc()
			continue
		}
		metrics.TileCacheHitsTotal.WithLabelValues(l.Name).Inc()
		for _, front := range c.layers[:i] {
			if err := front.Cache.PutTile(ctx, key, t); err != nil {
				c.log.WithError(err).WithField("layer", front.Name).Debug("tile backfill failed")
			}
		}
		return t, true, nil
	}
	return mapsource.CachedTile{}, false, nil
}

// PutTile stores the tile in every layer. It fails only when no layer
// accepted the tile.
func (c *Chain) PutTile(ctx context.Context, key string, t mapsource.CachedTile) error {
	var errs []error
	for _, l := range c.layers {
		if err := l.Cache.PutTile(ctx, key, t); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && len(errs) == len(c.layers) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		c.log.WithError(err).Warn("tile store failed")
	}
	return nil
}
