package tilefetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

func TestTileURL(t *testing.T) {
	tile := maptile.New(3, 1, 2)
	assert.Equal(t, "https://a/2/3/1.png", TileURL("https://a/{z}/{x}/{y}.png", tile))
	assert.Equal(t, "https://a/2/3/2.png", TileURL("https://a/{z}/{x}/{-y}.png", tile))
	assert.Equal(t, "https://a/tile?x=3&y=1&z=2", TileURL("https://a/tile?x={x}&y={y}&z={z}", tile))
}

func TestFetchTile(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
		switch r.URL.Path {
		case "/5/10/11.png":
			w.Write([]byte("tile"))
		case "/5/10/12.png":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(time.Second, "chartview-test")
	p := &mapsource.Provider{Name: "test", URL: srv.URL + "/{z}/{x}/{y}.png"}
	ctx := context.Background()

	body, err := f.FetchTile(ctx, p, maptile.New(10, 11, 5))
	require.NoError(t, err)
	assert.Equal(t, []byte("tile"), body)
	assert.Equal(t, "chartview-test", agent)

	_, err = f.FetchTile(ctx, p, maptile.New(10, 12, 5))
	assert.True(t, errors.Is(err, ErrEmptyTile))

	_, err = f.FetchTile(ctx, p, maptile.New(0, 0, 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchTileCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Fetcher{}
	_, err := f.FetchTile(ctx, &mapsource.Provider{Name: "x", URL: srv.URL + "/{z}"}, maptile.New(0, 0, 1))
	assert.Error(t, err)
}
