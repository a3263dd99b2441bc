package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/beetlebugorg/chartview/internal/config"
	"github.com/beetlebugorg/chartview/internal/logging"
	"github.com/beetlebugorg/chartview/internal/mapfile"
	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/internal/store"
	"github.com/beetlebugorg/chartview/internal/style"
	"github.com/beetlebugorg/chartview/internal/tilecache"
	"github.com/beetlebugorg/chartview/internal/tilefetch"
	"github.com/beetlebugorg/chartview/internal/tui"
	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/engine"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

const version = "v0.1.0"

var (
	hf       bool
	cf       string
	envFile  string
	root     string
	logFile  string
	snapshot string
	size     string
	settle   time.Duration
	lat, lon float64
	rebuild  bool
	list     bool
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "chartview.toml", "set config `file`")
	flag.StringVar(&envFile, "env", ".env", "load environment `file`")
	flag.StringVar(&root, "root", "", "map `directory`, overrides maps.root")
	flag.StringVar(&logFile, "log", "chartview.log", "log `file` while the terminal view runs")
	flag.StringVar(&snapshot, "snapshot", "", "render one frame to a PNG `file` and exit")
	flag.StringVar(&size, "size", "1024x768", "snapshot `WxH`")
	flag.DurationVar(&settle, "settle", 2*time.Second, "time to let online tiles arrive before a snapshot")
	flag.Float64Var(&lat, "lat", 0, "initial latitude, overrides view.lat")
	flag.Float64Var(&lon, "lon", 0, "initial longitude, overrides view.lon")
	flag.BoolVar(&rebuild, "rebuild", false, "ignore the saved map index")
	flag.BoolVar(&list, "list", false, "print the map catalog and exit")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, `chartview version: chartview/%s
Usage: chartview [-h] [-c filename] [-root dir] [-snapshot file.png] [-list]
`, version)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if err := logging.Setup("info", "text", nil); err != nil {
		return err
	}
	c, err := config.Load(cf)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			c.Maps.Root = root
		case "lat":
			c.View.Lat = lat
		case "lon":
			c.View.Lon = lon
		}
	})

	interactive := snapshot == "" && !list
	out := os.Stdout
	if interactive && logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := logging.Setup(c.Log.Level, c.Log.Format, out); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Metrics.Listen != "" {
		go serveMetrics(c.Metrics.Listen)
	}

	var st *store.Store
	if c.Maps.Index != "" {
		st, err = store.Open(c.Maps.Index)
		if err != nil {
			return fmt.Errorf("open index %s: %w", c.Maps.Index, err)
		}
		defer st.Close()
		pruneTiles(ctx, st, c)
	}

	styles, err := style.Load(c.Style.File)
	if err != nil {
		return err
	}
	cat, err := buildCatalog(ctx, c, st, styles)
	if err != nil {
		return err
	}
	if list {
		printCatalog(cat)
		return nil
	}

	opts := c.EngineOptions()
	opts.Logger = log.StandardLogger()
	opts.Online.Fetcher = tilefetch.New(c.Online.Timeout, c.Online.UserAgent)
	opts.Online.Cache = tileCache(ctx, c, st)

	if snapshot != "" {
		w, h, err := parseSize(size)
		if err != nil {
			return err
		}
		return takeSnapshot(ctx, cat, opts, c, w, h)
	}
	return runTUI(ctx, cat, opts, c)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.WithField("component", "metrics").Infof("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithField("component", "metrics").WithError(err).Error("metrics server stopped")
	}
}

func pruneTiles(ctx context.Context, st *store.Store, c *config.Config) {
	if c.Online.TileExpirationMs <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(c.Online.TileExpirationMs) * time.Millisecond)
	n, err := st.PruneTiles(ctx, cutoff)
	if err != nil {
		log.WithError(err).Warn("Could not prune stored tiles")
		return
	}
	if n > 0 {
		log.Infof("Pruned %d expired tiles", n)
	}
}

func buildCatalog(ctx context.Context, c *config.Config, st *store.Store, styles *style.Loader) (*catalog.Catalog, error) {
	opts := catalog.DefaultBuildOptions()
	if c.Maps.Workers > 0 {
		opts.Workers = c.Maps.Workers
	}
	opts.Logger = log.StandardLogger()
	if st != nil {
		if rebuild {
			// a zero hash never matches a listing
			if err := st.SaveIndex(ctx, &catalog.Snapshot{}); err != nil {
				return nil, err
			}
		}
		opts.Store = st
	}

	var bar *pb.ProgressBar
	opts.Progress = func(done, total int) {
		if bar == nil {
			bar = pb.New(total).Prefix("Maps : ")
			bar.Output = os.Stderr
			bar.Start()
		}
		bar.Set(done)
		if done == total {
			bar.Finish()
		}
	}

	start := time.Now()
	cat, err := catalog.Build(ctx, c.Maps.Root, &mapfile.Loader{Styles: styles}, opts)
	if errors.Is(err, catalog.ErrNoMaps) {
		log.Warnf("No maps found in %s, only the world map is available", c.Maps.Root)
		return cat, nil
	}
	if err != nil {
		return nil, err
	}
	stats := cat.Stats()
	log.WithField("took", time.Since(start).Round(time.Millisecond)).
		Infof("Catalog ready: %d maps, %d broken", stats.Maps, stats.Broken)
	for _, e := range cat.Errors() {
		log.Debug(e)
	}
	return cat, nil
}

func tileCache(ctx context.Context, c *config.Config, st *store.Store) mapsource.TileCache {
	layers := []tilecache.Layer{{Name: "memory", Cache: mapsource.NewMemoryTileCache(int64(c.Cache.MemoryMB) << 20)}}
	if rc := tilecache.OpenRedis(c.Cache.RedisAddr, c.Cache.RedisPassword, c.Cache.RedisDB); rc != nil {
		r := tilecache.NewRedis(rc, c.Cache.RedisTTL)
		if err := r.Ping(ctx); err != nil {
			log.WithError(err).Warnf("Redis at %s unavailable, not caching tiles there", c.Cache.RedisAddr)
		} else {
			layers = append(layers, tilecache.Layer{Name: "redis", Cache: r})
		}
	}
	if st != nil && c.Cache.Persist {
		layers = append(layers, tilecache.Layer{Name: "sqlite", Cache: st})
	}
	return tilecache.NewChain(log.StandardLogger(), layers...)
}

func printCatalog(cat *catalog.Catalog) {
	for _, src := range cat.All() {
		def := src.Definition()
		fmt.Printf("%-40s %-8s %10.2f m/px  %s\n", def.ID, src.Kind(), def.Scale, def.Title)
	}
	for _, def := range cat.Broken() {
		fmt.Printf("%-40s %-8s %s\n", def.ID, "broken", def.LoadError)
	}
}

func runTUI(ctx context.Context, cat *catalog.Catalog, opts engine.Options, c *config.Config) error {
	host := tui.NewHost()
	defer host.Close()
	eng := engine.New(cat, host, opts)
	eng.SetMapCenter(c.View.Lat, c.View.Lon)

	m := tui.New(eng, cat, tui.Options{Online: c.Online.Enabled, Rotate: c.Render.Rotate})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))
	host.Attach(p)

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Shutdown()
	if err := eng.SetOnlineMaps(c.Online.Enabled); err != nil {
		log.WithError(err).Warn("Some online maps could not be enabled")
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
