package tilecache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

const keyPrefix = "chartview:tile:"

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Redis stores tiles as an 8 byte big-endian fetch time in Unix
// milliseconds followed by the encoded image.
type Redis struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedis wraps rc. Entries expire after ttl; zero keeps them forever.
func NewRedis(rc *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rc: rc, ttl: ttl}
}

func (r *Redis) GetTile(ctx context.Context, key string) (mapsource.CachedTile, bool, error) {
	raw, err := r.rc.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return mapsource.CachedTile{}, false, nil
	}
	if err != nil {
		return mapsource.CachedTile{}, false, err
	}
	if len(raw) < 8 {
		return mapsource.CachedTile{}, false, fmt.Errorf("tile %s: short value", key)
	}
	return mapsource.CachedTile{
		FetchedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(raw[:8]))),
		Data:      raw[8:],
	}, true, nil
}

func (r *Redis) PutTile(ctx context.Context, key string, t mapsource.CachedTile) error {
	val := make([]byte, 8+len(t.Data))
	binary.BigEndian.PutUint64(val, uint64(t.FetchedAt.UnixMilli()))
	copy(val[8:], t.Data)
	return r.rc.Set(ctx, keyPrefix+key, val, r.ttl).Err()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}
