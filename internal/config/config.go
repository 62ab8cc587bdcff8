// Package config loads and watches the viewer configuration.
//
// Configuration is an explicit object handed to each component at
// construction, not process-wide mutable state. Sources, in order of
// precedence: environment variables (IMGV_*), an optional YAML file, built-in
// defaults. Components that need to react to file changes register a
// subscriber; the Manager re-unmarshals and notifies on every change event.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"image-viewer/internal/logging"
)

// Config is the complete viewer configuration.
type Config struct {
	Logging    Logging    `mapstructure:"logging"`
	Navigation Navigation `mapstructure:"navigation"`
	Preloader  Preloader  `mapstructure:"preloader"`
	Cache      Cache      `mapstructure:"cache"`
	Thumbnails Thumbnails `mapstructure:"thumbnails"`
	Scaler     Scaler     `mapstructure:"scaler"`
	Memory     Memory     `mapstructure:"memory"`
	Metrics    Metrics    `mapstructure:"metrics"`
}

// Logging controls log output.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Navigation controls selection movement behavior.
type Navigation struct {
	// InfiniteScrolling wraps next/prev around the directory ends.
	InfiniteScrolling bool `mapstructure:"infinite_scrolling"`
}

// Preloader controls read-ahead decoding.
type Preloader struct {
	Enabled bool `mapstructure:"enabled"`
}

// Cache controls the decoded image cache.
type Cache struct {
	// Window is the number of neighbors kept around the current selection
	// on each side. 1 gives the {prev, current, next} keep-set.
	Window int `mapstructure:"window"`
}

// Thumbnails controls the thumbnail worker pool and its persistent store.
type Thumbnails struct {
	// Size is the bounding square for generated thumbnails, in pixels.
	Size int `mapstructure:"size"`
	// StorePath is the sqlite thumbnail store location. Empty disables the
	// persistent store; thumbnails are regenerated on demand.
	StorePath string `mapstructure:"store_path"`
	// Workers caps the thumbnail pool size. 0 sizes from GOMAXPROCS.
	Workers int `mapstructure:"workers"`
}

// Scaler controls display rescaling.
type Scaler struct {
	// Filter is the resampling filter: bilinear, bicubic, lanczos or
	// nearest.
	Filter string `mapstructure:"filter"`
}

// Memory holds the decode backpressure watermarks.
type Memory struct {
	LimitBytes        int64   `mapstructure:"limit_bytes"`
	HighWaterMark     float64 `mapstructure:"high_water_mark"`
	CriticalWaterMark float64 `mapstructure:"critical_water_mark"`
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

var validFilters = map[string]bool{
	"bilinear": true,
	"bicubic":  true,
	"lanczos":  true,
	"nearest":  true,
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Cache.Window < 1 {
		return fmt.Errorf("cache.window must be at least 1, got %d", c.Cache.Window)
	}
	if c.Thumbnails.Size < 16 {
		return fmt.Errorf("thumbnails.size must be at least 16, got %d", c.Thumbnails.Size)
	}
	if !validFilters[c.Scaler.Filter] {
		return fmt.Errorf("scaler.filter %q is not one of bilinear, bicubic, lanczos, nearest", c.Scaler.Filter)
	}
	if c.Memory.HighWaterMark <= 0 || c.Memory.HighWaterMark >= c.Memory.CriticalWaterMark || c.Memory.CriticalWaterMark > 1 {
		return fmt.Errorf("memory water marks must satisfy 0 < high < critical <= 1, got %v/%v",
			c.Memory.HighWaterMark, c.Memory.CriticalWaterMark)
	}
	return nil
}

// Manager owns the viper instance, the current Config snapshot and the
// subscriber list.
type Manager struct {
	v *viper.Viper

	mu      sync.RWMutex
	current *Config
	subs    []func(*Config)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("navigation.infinite_scrolling", false)
	v.SetDefault("preloader.enabled", true)
	v.SetDefault("cache.window", 1)
	v.SetDefault("thumbnails.size", 200)
	v.SetDefault("thumbnails.store_path", "")
	v.SetDefault("thumbnails.workers", 0)
	v.SetDefault("scaler.filter", "bilinear")
	v.SetDefault("memory.limit_bytes", 0)
	v.SetDefault("memory.high_water_mark", 0.7)
	v.SetDefault("memory.critical_water_mark", 0.85)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
}

// New loads the configuration. file may be empty, in which case only
// defaults and environment variables apply.
func New(file string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMGV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	m := &Manager{v: v}
	cfg, err := m.unmarshal()
	if err != nil {
		return nil, err
	}
	m.current = cfg
	return m, nil
}

func (m *Manager) unmarshal() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers fn to run with the new snapshot after every successful
// configuration reload. fn is also invoked synchronously with the current
// snapshot so subscribers need no separate initialization path.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	cur := m.current
	m.mu.Unlock()
	fn(cur)
}

// Watch starts watching the configuration file for changes. A reload that
// fails validation is logged and discarded; the previous snapshot stays
// active.
func (m *Manager) Watch() {
	if m.v.ConfigFileUsed() == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := m.unmarshal()
		if err != nil {
			logging.Warn("config reload rejected: %v", err)
			return
		}
		logging.Info("config reloaded from %s", e.Name)

		m.mu.Lock()
		m.current = cfg
		subs := make([]func(*Config), len(m.subs))
		copy(subs, m.subs)
		m.mu.Unlock()

		for _, fn := range subs {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}
