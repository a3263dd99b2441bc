package tilecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

func newRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := OpenRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { rc.Close() })
	return NewRedis(rc, ttl), mr
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t, time.Hour)
	require.NoError(t, r.Ping(ctx))

	_, ok, err := r.GetTile(ctx, "osm/3/1/2")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.UnixMilli(1700000000123)
	require.NoError(t, r.PutTile(ctx, "osm/3/1/2", mapsource.CachedTile{Data: []byte("png"), FetchedAt: at}))
	assert.True(t, mr.Exists(keyPrefix+"osm/3/1/2"))

	tile, ok, err := r.GetTile(ctx, "osm/3/1/2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("png"), tile.Data)
	assert.True(t, at.Equal(tile.FetchedAt))

	mr.FastForward(2 * time.Hour)
	_, ok, err = r.GetTile(ctx, "osm/3/1/2")
	require.NoError(t, err)
	assert.False(t, ok, "expired by ttl")

	require.NoError(t, mr.Set(keyPrefix+"bad", "x"))
	_, _, err = r.GetTile(ctx, "bad")
	assert.Error(t, err)
}

func TestOpenRedisWithoutAddress(t *testing.T) {
	assert.Nil(t, OpenRedis("", "", 0))
}

type brokenCache struct{}

func (brokenCache) GetTile(context.Context, string) (mapsource.CachedTile, bool, error) {
	return mapsource.CachedTile{}, false, errors.New("down")
}

func (brokenCache) PutTile(context.Context, string, mapsource.CachedTile) error {
	return errors.New("down")
}

func TestChainBackfills(t *testing.T) {
	ctx := context.Background()
	mem := mapsource.NewMemoryTileCache(1 << 20)
	r, _ := newRedis(t, 0)
	c := NewChain(nil, Layer{"memory", mem}, Layer{"redis", r})
	assert.Equal(t, []string{"memory", "redis"}, c.Layers())

	tile := mapsource.CachedTile{Data: []byte("a"), FetchedAt: time.UnixMilli(1000)}
	require.NoError(t, r.PutTile(ctx, "k", tile))

	_, ok, _ := mem.GetTile(ctx, "k")
	require.False(t, ok)

	got, ok, err := c.GetTile(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tile.Data, got.Data)

	got, ok, _ = mem.GetTile(ctx, "k")
	require.True(t, ok, "redis hit copied into memory")
	assert.Equal(t, tile.Data, got.Data)

	_, ok, err = c.GetTile(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChainSkipsFailingLayers(t *testing.T) {
	ctx := context.Background()
	mem := mapsource.NewMemoryTileCache(1 << 20)
	c := NewChain(nil, Layer{"broken", brokenCache{}}, Layer{"memory", mem})

	require.NoError(t, c.PutTile(ctx, "k", mapsource.CachedTile{Data: []byte("a")}))
	got, ok, err := c.GetTile(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got.Data)

	only := NewChain(nil, Layer{"broken", brokenCache{}})
	assert.Error(t, only.PutTile(ctx, "k", mapsource.CachedTile{}))
}
