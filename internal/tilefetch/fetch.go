// Package tilefetch downloads slippy map tiles over HTTP.
package tilefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// ErrEmptyTile is returned when a provider answers with a zero length body.
var ErrEmptyTile = errors.New("tilefetch: empty tile")

// maxTileBytes caps a single response.
const maxTileBytes = 8 << 20

// Fetcher is a mapsource.TileFetcher backed by an http.Client.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

// New returns a fetcher with the given request timeout.
func New(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// TileURL expands the {x}, {y}, {z} and {-y} placeholders of a provider URL.
// {-y} is the TMS row, counted from the south.
func TileURL(template string, t maptile.Tile) string {
	url := strings.Replace(template, "{x}", strconv.Itoa(int(t.X)), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(int(t.Y)), -1)
	url = strings.Replace(url, "{-y}", strconv.Itoa((1<<t.Z)-1-int(t.Y)), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(int(t.Z)), -1)
	return url
}

// FetchTile downloads one tile.
func (f *Fetcher) FetchTile(ctx context.Context, p *mapsource.Provider, t maptile.Tile) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, TileURL(p.URL, t))
	result := "ok"
	switch {
	case errors.Is(err, ErrEmptyTile):
		result = "empty"
	case err != nil:
		result = "error"
	}
	metrics.TileFetchTotal.WithLabelValues(p.Name, result).Inc()
	metrics.TileFetchDurationMs.WithLabelValues(p.Name).Observe(float64(time.Since(start).Milliseconds()))
	return body, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status code %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%s: %w", url, ErrEmptyTile)
	}
	return body, nil
}
