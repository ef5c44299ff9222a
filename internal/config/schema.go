package config

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version"`
	Provider ProviderConf `yaml:"provider"`
	Session  SessionConf  `yaml:"session"`
	Layout   LayoutConf   `yaml:"layout"`
	Viewport ViewportConf `yaml:"viewport"`
	Render   RenderConf   `yaml:"render"`
}

// ProviderConf selects and configures the graph data provider.
type ProviderConf struct {
	Kind      string      `yaml:"kind" env:"KGX_PROVIDER_KIND"`
	BaseURL   string      `yaml:"base_url" env:"KGX_PROVIDER_URL"`
	DBPath    string      `yaml:"db_path" env:"KNOWLEDGE_DB_PATH"`
	SeedPath  string      `yaml:"seed_path" env:"KGX_SEED_PATH"`
	TimeoutMs int         `yaml:"timeout_ms" env:"KGX_PROVIDER_TIMEOUT_MS"`
	Breaker   BreakerConf `yaml:"breaker"`
}

// BreakerConf tunes the circuit breaker around remote providers.
type BreakerConf struct {
	Enabled          bool    `yaml:"enabled"`
	MaxRequests      uint32  `yaml:"max_requests"`
	IntervalSec      int     `yaml:"interval_sec"`
	TimeoutSec       int     `yaml:"timeout_sec"`
	ReadyToTripRatio float64 `yaml:"ready_to_trip_ratio"`
}

// SessionConf holds the event-loop and fetch concurrency settings.
type SessionConf struct {
	RootNode       int64 `yaml:"root_node" env:"KGX_ROOT_NODE"`
	LoopQueueDepth int   `yaml:"loop_queue_depth"`
	FetchWorkers   int   `yaml:"fetch_workers"`
	FetchQueue     int   `yaml:"fetch_queue"`
	TickIntervalMs int   `yaml:"tick_interval_ms"`
	CallTimeoutMs  int   `yaml:"call_timeout_ms"`
}

// LayoutConf holds force-simulation parameters.
// Zero values are replaced by defaults at load time.
type LayoutConf struct {
	LinkDistance        float64 `yaml:"link_distance"`
	LinkDistanceLabeled float64 `yaml:"link_distance_labeled"`
	LinkStrength        float64 `yaml:"link_strength"`
	AnchorDistance      float64 `yaml:"anchor_distance"`
	AnchorStrength      float64 `yaml:"anchor_strength"`
	NodeCharge          float64 `yaml:"node_charge"`
	AnchorCharge        float64 `yaml:"anchor_charge"`
	ChargeDistanceMin   float64 `yaml:"charge_distance_min"`
	ChargeDistanceMax   float64 `yaml:"charge_distance_max"`
	Theta               float64 `yaml:"theta"`
	BarnesHutThreshold  int     `yaml:"barnes_hut_threshold"`
	CollideRadius       float64 `yaml:"collide_radius"`
	CenterStrength      float64 `yaml:"center_strength"`
	VelocityDecay       float64 `yaml:"velocity_decay"`
	AlphaMin            float64 `yaml:"alpha_min"`
	AlphaDecay          float64 `yaml:"alpha_decay"`
	RestartAlpha        float64 `yaml:"restart_alpha"`
	ReheatAlpha         float64 `yaml:"reheat_alpha"`
	DragAlphaTarget     float64 `yaml:"drag_alpha_target"`
	LabelAnchors        *bool   `yaml:"label_anchors"`
	Seed                uint64  `yaml:"seed"`
}

// AnchorsEnabled reports whether per-edge label anchors join the simulation.
func (l LayoutConf) AnchorsEnabled() bool { return l.LabelAnchors == nil || *l.LabelAnchors }

// ViewportConf describes the drawing surface and the chrome that covers part of it.
type ViewportConf struct {
	Width   float64 `yaml:"width"`
	Height  float64 `yaml:"height"`
	Sidebar float64 `yaml:"sidebar"`
	Header  float64 `yaml:"header"`
	Toolbar float64 `yaml:"toolbar"`
}

// Center returns the centre of the uncovered drawing area.
func (v ViewportConf) Center() (x, y float64) {
	x = v.Sidebar + (v.Width-v.Sidebar)/2
	top := v.Header + v.Toolbar
	y = top + (v.Height-top)/2
	return x, y
}

// RenderConf holds glyph and edge styling.
type RenderConf struct {
	FontSize       float64 `yaml:"font_size"`
	LabelFontSize  float64 `yaml:"label_font_size"`
	PadX           float64 `yaml:"pad_x"`
	PadY           float64 `yaml:"pad_y"`
	CornerRadius   float64 `yaml:"corner_radius"`
	TaperSource    float64 `yaml:"taper_source"`
	TaperTarget    float64 `yaml:"taper_target"`
	ArcCurvature   float64 `yaml:"arc_curvature"`
	ArcSegments    int     `yaml:"arc_segments"`
	DeclaredColor  string  `yaml:"declared_color"`
	InferredColor  string  `yaml:"inferred_color"`
	ClassFill      string  `yaml:"class_fill"`
	InstanceFill   string  `yaml:"instance_fill"`
	NodeStroke     string  `yaml:"node_stroke"`
	SelectedStroke string  `yaml:"selected_stroke"`
	TextColor      string  `yaml:"text_color"`
	Background     string  `yaml:"background"`
	Supersample    int     `yaml:"supersample"`
}
