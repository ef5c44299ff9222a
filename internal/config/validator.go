package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var knownKinds = map[string]struct{}{"rest": {}, "sqlite": {}, "memory": {}}

// Validate checks a defaulted config for:
//   - Required fields per provider kind
//   - Ranges of simulation parameters
//   - Viewport chrome that leaves no drawing area
//   - Colour syntax
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	p := cfg.Provider
	if _, ok := knownKinds[p.Kind]; !ok {
		errs = append(errs, fmt.Sprintf("provider.kind %q is not one of rest, sqlite, memory", p.Kind))
	}
	switch p.Kind {
	case "rest":
		if p.BaseURL == "" {
			errs = append(errs, "provider.base_url is required for kind rest")
		}
	case "sqlite":
		if p.DBPath == "" {
			errs = append(errs, "provider.db_path is required for kind sqlite")
		}
	}
	if p.TimeoutMs < 0 {
		errs = append(errs, "provider.timeout_ms must not be negative")
	}
	if r := p.Breaker.ReadyToTripRatio; r <= 0 || r > 1 {
		errs = append(errs, fmt.Sprintf("provider.breaker.ready_to_trip_ratio %.2f must be in (0, 1]", r))
	}

	s := cfg.Session
	if s.FetchWorkers < 1 {
		errs = append(errs, "session.fetch_workers must be at least 1")
	}
	if s.LoopQueueDepth < 1 {
		errs = append(errs, "session.loop_queue_depth must be at least 1")
	}
	if s.TickIntervalMs < 1 {
		errs = append(errs, "session.tick_interval_ms must be at least 1")
	}

	l := cfg.Layout
	if l.NodeCharge > 0 {
		errs = append(errs, "layout.node_charge must be negative (repulsive)")
	}
	if l.AnchorCharge > 0 {
		errs = append(errs, "layout.anchor_charge must be negative (repulsive)")
	}
	if l.VelocityDecay <= 0 || l.VelocityDecay >= 1 {
		errs = append(errs, "layout.velocity_decay must be in (0, 1)")
	}
	if l.AlphaDecay <= 0 || l.AlphaDecay >= 1 {
		errs = append(errs, "layout.alpha_decay must be in (0, 1)")
	}
	if l.AnchorStrength < 0 || l.AnchorStrength > 1 {
		errs = append(errs, "layout.anchor_strength must be in [0, 1]")
	}
	if l.Theta <= 0 {
		errs = append(errs, "layout.theta must be positive")
	}

	v := cfg.Viewport
	if v.Width <= v.Sidebar {
		errs = append(errs, "viewport.sidebar leaves no drawing width")
	}
	if v.Height <= v.Header+v.Toolbar {
		errs = append(errs, "viewport.header and toolbar leave no drawing height")
	}

	r := cfg.Render
	for name, c := range map[string]string{
		"declared_color":  r.DeclaredColor,
		"inferred_color":  r.InferredColor,
		"class_fill":      r.ClassFill,
		"instance_fill":   r.InstanceFill,
		"node_stroke":     r.NodeStroke,
		"selected_stroke": r.SelectedStroke,
		"text_color":      r.TextColor,
		"background":      r.Background,
	} {
		if !hexColor.MatchString(c) {
			errs = append(errs, fmt.Sprintf("render.%s %q is not a #rrggbb colour", name, c))
		}
	}
	if r.TaperTarget > r.TaperSource {
		errs = append(errs, "render.taper_target must not exceed taper_source")
	}
	if r.Supersample < 1 || r.Supersample > 8 {
		errs = append(errs, "render.supersample must be between 1 and 8")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
