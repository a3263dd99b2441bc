// Package config reads chartview settings from a TOML file, .env files and
// CHARTVIEW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/beetlebugorg/chartview/pkg/coverage"
	"github.com/beetlebugorg/chartview/pkg/engine"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/render"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// EnvPrefix prefixes environment overrides: maps.root is read from
// CHARTVIEW_MAPS_ROOT.
const EnvPrefix = "CHARTVIEW"

type Config struct {
	Maps     Maps     `mapstructure:"maps"`
	Render   Render   `mapstructure:"render"`
	Coverage Coverage `mapstructure:"coverage"`
	View     View     `mapstructure:"view"`
	Online   Online   `mapstructure:"online"`
	Cache    Cache    `mapstructure:"cache"`
	Style    Style    `mapstructure:"style"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Log      Log      `mapstructure:"log"`
}

type Maps struct {
	Root    string `mapstructure:"root"`
	Index   string `mapstructure:"index"` // SQLite file, empty disables the saved index
	Workers int    `mapstructure:"workers"`
}

type Render struct {
	Overscan    int     `mapstructure:"overscan"`
	Rotate      bool    `mapstructure:"rotate"`
	MaxBufferMB int     `mapstructure:"max_buffer_mb"`
	IdleHz      float64 `mapstructure:"idle_hz"`
	ActiveHz    float64 `mapstructure:"active_hz"`
	CropBorder  bool    `mapstructure:"crop_border"`
	DrawBorder  bool    `mapstructure:"draw_border"`
}

type Coverage struct {
	Adjacent        bool          `mapstructure:"adjacent"`
	PreferBest      bool          `mapstructure:"prefer_best"`
	AdoptAbove      float64       `mapstructure:"adopt_above"`
	AdoptBelow      float64       `mapstructure:"adopt_below"`
	BestMapInterval time.Duration `mapstructure:"best_map_interval"`
	FallbackScale   float64       `mapstructure:"fallback_scale"`
}

type View struct {
	Lat              float64       `mapstructure:"lat"`
	Lon              float64       `mapstructure:"lon"`
	LookAhead        int           `mapstructure:"look_ahead"`
	CrossHideDelay   time.Duration `mapstructure:"cross_hide_delay"`
	ScaleMoveDelay   time.Duration `mapstructure:"scale_move_delay"`
	Vector           string        `mapstructure:"vector"` // none, proximity or speed
	VectorMultiplier int           `mapstructure:"vector_multiplier"`
	Proximity        float64       `mapstructure:"proximity"`
}

type Online struct {
	Enabled          []string             `mapstructure:"enabled"`
	Providers        []mapsource.Provider `mapstructure:"providers"`
	TileExpirationMs int64                `mapstructure:"tile_expiration_ms"`
	Workers          int                  `mapstructure:"workers"`
	Timeout          time.Duration        `mapstructure:"timeout"`
	UserAgent        string               `mapstructure:"user_agent"`
}

type Cache struct {
	MemoryMB      int           `mapstructure:"memory_mb"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`
	Persist       bool          `mapstructure:"persist"` // keep tiles in the index database
}

type Style struct {
	File string `mapstructure:"file"`
}

type Metrics struct {
	Listen string `mapstructure:"listen"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("maps.root", "maps")
	v.SetDefault("maps.index", "maps.idx")
	v.SetDefault("maps.workers", 0)

	v.SetDefault("render.overscan", viewport.DefaultOverscan)
	v.SetDefault("render.rotate", false)
	v.SetDefault("render.max_buffer_mb", 256)
	v.SetDefault("render.idle_hz", 5)
	v.SetDefault("render.active_hz", 20)
	v.SetDefault("render.crop_border", true)
	v.SetDefault("render.draw_border", false)

	v.SetDefault("coverage.adjacent", true)
	v.SetDefault("coverage.prefer_best", true)
	v.SetDefault("coverage.adopt_above", 10)
	v.SetDefault("coverage.adopt_below", 0.01)
	v.SetDefault("coverage.best_map_interval", "5s")
	v.SetDefault("coverage.fallback_scale", 20000)

	v.SetDefault("view.lat", 0)
	v.SetDefault("view.lon", 0)
	v.SetDefault("view.look_ahead", 30)
	v.SetDefault("view.cross_hide_delay", "5s")
	v.SetDefault("view.scale_move_delay", "2s")
	v.SetDefault("view.vector", "speed")
	v.SetDefault("view.vector_multiplier", 10)
	v.SetDefault("view.proximity", 200)

	v.SetDefault("online.enabled", []string{})
	v.SetDefault("online.providers", []map[string]any{})
	v.SetDefault("online.tile_expiration_ms", 0)
	v.SetDefault("online.workers", 4)
	v.SetDefault("online.timeout", "20s")
	v.SetDefault("online.user_agent", "chartview/0.1")

	v.SetDefault("cache.memory_mb", 16)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_ttl", "168h")
	v.SetDefault("cache.persist", true)

	v.SetDefault("style.file", "")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads cfgFile on top of the defaults. A missing file is not an
// error; a malformed one is.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			log.Warnf("config file(%s) not exist", cfgFile)
		} else {
			v.SetConfigType("toml")
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// A comma separated CHARTVIEW_ONLINE_ENABLED arrives as one element.
	if len(c.Online.Enabled) == 1 && strings.Contains(c.Online.Enabled[0], ",") {
		c.Online.Enabled = strings.Split(c.Online.Enabled[0], ",")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDotEnv loads environment files, skipping the ones that do not exist.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Render.Overscan < 0 {
		return fmt.Errorf("render.overscan must not be negative")
	}
	if c.Coverage.AdoptAbove <= 1 || c.Coverage.AdoptBelow <= 0 || c.Coverage.AdoptBelow >= 1 {
		return fmt.Errorf("coverage.adopt_above must exceed 1 and coverage.adopt_below must lie in (0, 1)")
	}
	if _, err := c.vectorKind(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, p := range c.Online.Providers {
		if p.Name == "" || p.URL == "" {
			return fmt.Errorf("online provider %q needs a name and a url", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate online provider %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func (c *Config) vectorKind() (render.VectorKind, error) {
	switch strings.ToLower(c.View.Vector) {
	case "", "none":
		return render.VectorNone, nil
	case "proximity":
		return render.VectorProximity, nil
	case "speed":
		return render.VectorSpeed, nil
	}
	return 0, fmt.Errorf("view.vector: unknown kind %q", c.View.Vector)
}

// Providers returns the configured tile providers with the global tile
// expiration applied where a provider sets none.
func (c *Config) Providers() []*mapsource.Provider {
	out := make([]*mapsource.Provider, len(c.Online.Providers))
	for i := range c.Online.Providers {
		p := c.Online.Providers[i]
		if p.ExpirationMs == 0 {
			p.ExpirationMs = c.Online.TileExpirationMs
		}
		out[i] = &p
	}
	return out
}

// EngineOptions maps the configuration onto engine options. Online tile
// fetching and caching are left for the caller to wire.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.Overscan = c.Render.Overscan
	opts.Rotate = c.Render.Rotate
	opts.LookAhead = c.View.LookAhead
	opts.Adjacent = c.Coverage.Adjacent
	opts.BestMap = c.Coverage.PreferBest
	opts.BestMapInterval = c.Coverage.BestMapInterval

	opts.Coverage = coverage.Options{
		AdoptAbove:    c.Coverage.AdoptAbove,
		AdoptBelow:    c.Coverage.AdoptBelow,
		FallbackScale: c.Coverage.FallbackScale,
		DrawOptions: mapsource.DrawOptions{
			CropToBorder: c.Render.CropBorder,
			DrawBorder:   c.Render.DrawBorder,
		},
	}
	opts.Render.MaxBufferBytes = int64(c.Render.MaxBufferMB) << 20

	opts.IdleHz = c.Render.IdleHz
	opts.ActiveHz = c.Render.ActiveHz
	opts.CrossHideDelay = c.View.CrossHideDelay
	opts.ScaleMoveDelay = c.View.ScaleMoveDelay

	opts.Providers = c.Providers()
	opts.Online.Workers = c.Online.Workers

	opts.VectorKind, _ = c.vectorKind()
	opts.VectorMultiplier = c.View.VectorMultiplier
	opts.Proximity = c.View.Proximity
	return opts
}
