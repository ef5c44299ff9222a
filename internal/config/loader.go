package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	watcher  *fsnotify.Watcher
	log      *slog.Logger
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path, log: slog.Default().With("component", "config")}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.log.Warn("config reload failed, keeping previous", "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file.
// An invalid file leaves the current config in place.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides, then fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyEnv overrides provider and session settings from the environment.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(&cfg.Provider); err != nil {
		return fmt.Errorf("provider env: %w", err)
	}
	if err := env.Parse(&cfg.Session); err != nil {
		return fmt.Errorf("session env: %w", err)
	}
	return nil
}

// Default returns a fully defaulted config using the in-memory provider.
func Default() *Config {
	cfg := &Config{Version: "v1", Provider: ProviderConf{Kind: "memory"}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued tunable.
func ApplyDefaults(cfg *Config) {
	p := &cfg.Provider
	if p.Kind == "" {
		p.Kind = "rest"
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = 5000
	}
	if p.Breaker.MaxRequests == 0 {
		p.Breaker.MaxRequests = 1
	}
	if p.Breaker.IntervalSec == 0 {
		p.Breaker.IntervalSec = 60
	}
	if p.Breaker.TimeoutSec == 0 {
		p.Breaker.TimeoutSec = 30
	}
	if p.Breaker.ReadyToTripRatio == 0 {
		p.Breaker.ReadyToTripRatio = 0.6
	}

	s := &cfg.Session
	if s.RootNode == 0 {
		s.RootNode = 1
	}
	if s.LoopQueueDepth == 0 {
		s.LoopQueueDepth = 1024
	}
	if s.FetchWorkers == 0 {
		s.FetchWorkers = 4
	}
	if s.FetchQueue == 0 {
		s.FetchQueue = 256
	}
	if s.TickIntervalMs == 0 {
		s.TickIntervalMs = 16
	}
	if s.CallTimeoutMs == 0 {
		s.CallTimeoutMs = 10000
	}

	DefaultLayout(&cfg.Layout)

	v := &cfg.Viewport
	if v.Width == 0 {
		v.Width = 1280
	}
	if v.Height == 0 {
		v.Height = 800
	}

	r := &cfg.Render
	if r.FontSize == 0 {
		r.FontSize = 14
	}
	if r.LabelFontSize == 0 {
		r.LabelFontSize = 11
	}
	if r.PadX == 0 {
		r.PadX = 10
	}
	if r.PadY == 0 {
		r.PadY = 6
	}
	if r.CornerRadius == 0 {
		r.CornerRadius = 8
	}
	if r.TaperSource == 0 {
		r.TaperSource = 8
	}
	if r.TaperTarget == 0 {
		r.TaperTarget = 1.5
	}
	if r.ArcCurvature == 0 {
		r.ArcCurvature = 0.2
	}
	if r.ArcSegments == 0 {
		r.ArcSegments = 24
	}
	defaultString(&r.DeclaredColor, "#607d8b")
	defaultString(&r.InferredColor, "#ef6c00")
	defaultString(&r.ClassFill, "#e3f2fd")
	defaultString(&r.InstanceFill, "#fff3e0")
	defaultString(&r.NodeStroke, "#90a4ae")
	defaultString(&r.SelectedStroke, "#1565c0")
	defaultString(&r.TextColor, "#333333")
	defaultString(&r.Background, "#f7fbff")
	if r.Supersample == 0 {
		r.Supersample = 4
	}
}

// DefaultLayout fills zero-valued simulation parameters.
func DefaultLayout(l *LayoutConf) {
	if l.LinkDistance == 0 {
		l.LinkDistance = 90
	}
	if l.LinkDistanceLabeled == 0 {
		l.LinkDistanceLabeled = 150
	}
	if l.AnchorDistance == 0 {
		l.AnchorDistance = 1
	}
	if l.AnchorStrength == 0 {
		l.AnchorStrength = 0.9
	}
	if l.NodeCharge == 0 {
		l.NodeCharge = -400
	}
	if l.AnchorCharge == 0 {
		l.AnchorCharge = -60
	}
	if l.ChargeDistanceMin == 0 {
		l.ChargeDistanceMin = 1
	}
	if l.Theta == 0 {
		l.Theta = 0.9
	}
	if l.BarnesHutThreshold == 0 {
		l.BarnesHutThreshold = 64
	}
	if l.CollideRadius == 0 {
		l.CollideRadius = 36
	}
	if l.CenterStrength == 0 {
		l.CenterStrength = 1
	}
	if l.VelocityDecay == 0 {
		l.VelocityDecay = 0.4
	}
	if l.AlphaMin == 0 {
		l.AlphaMin = 0.001
	}
	if l.AlphaDecay == 0 {
		l.AlphaDecay = 1 - math.Pow(l.AlphaMin, 1.0/300)
	}
	if l.RestartAlpha == 0 {
		l.RestartAlpha = 1
	}
	if l.ReheatAlpha == 0 {
		l.ReheatAlpha = 0.3
	}
	if l.DragAlphaTarget == 0 {
		l.DragAlphaTarget = 0.3
	}
	if l.Seed == 0 {
		l.Seed = 1
	}
}

func defaultString(s *string, v string) {
	if *s == "" {
		*s = v
	}
}
