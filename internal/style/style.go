// Package style loads vector map themes from a configuration file.
//
// A theme file holds any number of named themes:
//
//	[themes.night]
//	background = "#0b1a2a"
//	enabled = ["water", "road"]
//
//	[themes.night.default]
//	fill = "#334455"
//	stroke = "#8899aa"
//	width = 1
//
//	[themes.night.categories.water]
//	fill = "#10304a"
//
// The name "default" (or an empty name) always resolves to the built-in
// theme unless the file overrides it.
package style

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

type styleConf struct {
	Fill   string  `mapstructure:"fill"`
	Stroke string  `mapstructure:"stroke"`
	Width  float64 `mapstructure:"width"`
	Radius float64 `mapstructure:"radius"`
}

type themeConf struct {
	Background string               `mapstructure:"background"`
	Default    *styleConf           `mapstructure:"default"`
	Categories map[string]styleConf `mapstructure:"categories"`
	Enabled    []string             `mapstructure:"enabled"`
}

// Loader is a mapsource.StyleLoader. Parsed themes are kept, so every
// vector map naming the same theme shares one *Theme.
type Loader struct {
	mu     sync.Mutex
	confs  map[string]themeConf
	themes map[string]*mapsource.Theme
}

// Load reads a theme file. The format follows the file extension. An empty
// path gives a loader that only knows the built-in theme.
func Load(path string) (*Loader, error) {
	l := &Loader{
		confs:  make(map[string]themeConf),
		themes: make(map[string]*mapsource.Theme),
	}
	if path == "" {
		return l, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read themes %s: %w", path, err)
	}
	if err := v.UnmarshalKey("themes", &l.confs); err != nil {
		return nil, fmt.Errorf("decode themes %s: %w", path, err)
	}
	// Fail early on bad colors rather than when a map activates.
	for name := range l.confs {
		if _, err := l.LoadStyle(name); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Names returns the themes defined in the file.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.confs))
	for name := range l.confs {
		names = append(names, name)
	}
	return names
}

// LoadStyle returns the theme called name.
func (l *Loader) LoadStyle(name string) (*mapsource.Theme, error) {
	name = strings.ToLower(name)
	if name == "" {
		name = "default"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.themes[name]; ok {
		return t, nil
	}
	conf, ok := l.confs[name]
	if !ok {
		if name == "default" {
			t := mapsource.DefaultTheme()
			l.themes[name] = t
			return t, nil
		}
		return nil, fmt.Errorf("unknown theme %q", name)
	}
	t, err := build(name, conf)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", name, err)
	}
	l.themes[name] = t
	return t, nil
}

// build starts from the built-in theme and overrides what conf sets.
func build(name string, conf themeConf) (*mapsource.Theme, error) {
	t := mapsource.DefaultTheme()
	t.Name = name
	if conf.Background != "" {
		c, err := ParseColor(conf.Background)
		if err != nil {
			return nil, fmt.Errorf("background: %w", err)
		}
		t.Background = c
	}
	if conf.Default != nil {
		s, err := conf.Default.style(t.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		t.Default = s
	}
	for cat, sc := range conf.Categories {
		s, err := sc.style(mapsource.Style{})
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		t.Categories[cat] = s
	}
	if len(conf.Enabled) > 0 {
		t.Enabled = make(map[string]bool, len(conf.Enabled))
		for _, cat := range conf.Enabled {
			t.Enabled[cat] = true
		}
	}
	return t, nil
}

func (sc styleConf) style(base mapsource.Style) (mapsource.Style, error) {
	s := base
	var err error
	if sc.Fill != "" {
		if s.Fill, err = ParseColor(sc.Fill); err != nil {
			return s, err
		}
	}
	if sc.Stroke != "" {
		if s.Stroke, err = ParseColor(sc.Stroke); err != nil {
			return s, err
		}
	}
	if sc.Width > 0 {
		s.Width = sc.Width
	}
	if sc.Radius > 0 {
		s.Radius = sc.Radius
	}
	return s, nil
}

// ParseColor parses #rgb, #rrggbb and #rrggbbaa.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
