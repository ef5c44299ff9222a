// Package render turns simulated positions into drawable primitives, answers
// hit tests on them and rasterises them to PNG.
package render

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/layout"
)

// Glyph is a node box centred on the node position.
type Glyph struct {
	ID       graph.NodeID `json:"id"`
	Label    string       `json:"label"`
	Box      Rect         `json:"box"`
	Radius   float64      `json:"radius"`
	Instance bool         `json:"is_instance"`
	Pinned   bool         `json:"pinned"`
	Selected bool         `json:"selected"`
	Fill     string       `json:"fill"`
	Stroke   string       `json:"stroke"`
}

// Label is edge text placed at its anchor.
type Label struct {
	Text string `json:"text"`
	Box  Rect   `json:"box"`
}

// EdgeShape is the filled outline of one edge.
type EdgeShape struct {
	ID       int64        `json:"id,omitempty"`
	Source   graph.NodeID `json:"source"`
	Target   graph.NodeID `json:"target"`
	Inferred bool         `json:"inferred"`
	Outline  []Point      `json:"outline"`
	Color    string       `json:"color"`
	Label    Label        `json:"label"`
}

// Frame is one complete drawing of the visible graph. Edges are drawn first,
// then glyphs in order, so later glyphs are on top.
type Frame struct {
	Seq        uint64       `json:"seq"`
	Width      float64      `json:"width"`
	Height     float64      `json:"height"`
	Background string       `json:"background"`
	Selected   graph.NodeID `json:"selected,omitempty"`
	Alpha      float64      `json:"alpha"`
	Active     bool         `json:"active"`
	Edges      []EdgeShape  `json:"edges"`
	Glyphs     []Glyph      `json:"glyphs"`
}

// Glyph returns the glyph of id.
func (f *Frame) Glyph(id graph.NodeID) (Glyph, bool) {
	for _, g := range f.Glyphs {
		if g.ID == id {
			return g, true
		}
	}
	return Glyph{}, false
}

// HitTest returns the topmost glyph containing (x, y).
func (f *Frame) HitTest(x, y float64) (graph.NodeID, bool) {
	if f == nil {
		return 0, false
	}
	for i := len(f.Glyphs) - 1; i >= 0; i-- {
		if f.Glyphs[i].Box.Contains(x, y) {
			return f.Glyphs[i].ID, true
		}
	}
	return 0, false
}

// AnchorSource looks up the simulated label position of an edge.
type AnchorSource interface {
	AnchorFor(graph.EdgeKey) (layout.Anchor, bool)
}

// Scene is everything a frame is built from.
type Scene struct {
	Nodes    []*graph.Node
	Edges    []graph.Edge
	Anchors  AnchorSource
	Selected graph.NodeID
	Viewport config.ViewportConf
}

// Renderer builds frames. It is not safe for concurrent use.
type Renderer struct {
	cfg   config.RenderConf
	node  *face
	label *face
}

// New creates a Renderer with faces at the configured sizes.
func New(cfg config.RenderConf) (*Renderer, error) {
	r := &Renderer{}
	if err := r.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reconfigure swaps styling and rebuilds the faces. On error the old
// configuration stays in place.
func (r *Renderer) Reconfigure(cfg config.RenderConf) error {
	node, err := newFace(cfg.FontSize)
	if err != nil {
		return fmt.Errorf("node face: %w", err)
	}
	label, err := newFace(cfg.LabelFontSize)
	if err != nil {
		return fmt.Errorf("label face: %w", err)
	}
	r.cfg, r.node, r.label = cfg, node, label
	return nil
}

// Config returns the active styling.
func (r *Renderer) Config() config.RenderConf { return r.cfg }

// GlyphSize returns the box size of a node labelled text.
func (r *Renderer) GlyphSize(text string) (w, h float64) {
	w, h = r.node.measure(text)
	return w + 2*r.cfg.PadX, h + 2*r.cfg.PadY
}

// Build lays out one frame.
func (r *Renderer) Build(sc Scene) *Frame {
	f := &Frame{
		Width:      sc.Viewport.Width,
		Height:     sc.Viewport.Height,
		Background: r.cfg.Background,
		Selected:   sc.Selected,
		Glyphs:     make([]Glyph, 0, len(sc.Nodes)),
		Edges:      make([]EdgeShape, 0, len(sc.Edges)),
	}

	boxes := make(map[graph.NodeID]Rect, len(sc.Nodes))
	for _, n := range sc.Nodes {
		w, h := r.GlyphSize(n.Label)
		g := Glyph{
			ID:       n.ID,
			Label:    n.Label,
			Box:      Rect{CX: n.X, CY: n.Y, HW: w / 2, HH: h / 2},
			Instance: n.IsInstance,
			Pinned:   n.Pinned(),
			Selected: sc.Selected != 0 && n.ID == sc.Selected,
			Fill:     r.cfg.ClassFill,
			Stroke:   r.cfg.NodeStroke,
			Radius:   r.cfg.CornerRadius,
		}
		if n.IsInstance {
			g.Fill = r.cfg.InstanceFill
			g.Radius = 0
		}
		if g.Selected {
			g.Stroke = r.cfg.SelectedStroke
		}
		boxes[n.ID] = g.Box
		f.Glyphs = append(f.Glyphs, g)
	}

	for _, e := range sc.Edges {
		rs, ok1 := boxes[e.Source]
		rt, ok2 := boxes[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		shape, mid := r.edgeShape(e, rs, rt)
		if sc.Anchors != nil {
			if a, ok := sc.Anchors.AnchorFor(e.Key()); ok {
				mid = r2.Vec{X: a.X, Y: a.Y}
			}
		}
		w, h := r.label.measure(e.Label)
		shape.Label = Label{Text: e.Label, Box: Rect{CX: mid.X, CY: mid.Y, HW: w / 2, HH: h / 2}}
		f.Edges = append(f.Edges, shape)
	}
	return f
}

// edgeShape outlines e between the glyph boxes and returns the fallback
// label position used when the edge has no anchor.
func (r *Renderer) edgeShape(e graph.Edge, rs, rt Rect) (EdgeShape, r2.Vec) {
	shape := EdgeShape{ID: e.ID, Source: e.Source, Target: e.Target, Inferred: e.Inferred, Color: r.cfg.DeclaredColor}
	if e.Inferred {
		shape.Color = r.cfg.InferredColor
	}
	ws, wt := r.cfg.TaperSource, r.cfg.TaperTarget
	cs := r2.Vec{X: rs.CX, Y: rs.CY}
	ct := r2.Vec{X: rt.CX, Y: rt.CY}

	if e.Source == e.Target {
		a := r2.Vec{X: rs.CX - rs.HW/2, Y: rs.CY - rs.HH}
		b := r2.Vec{X: rs.CX + rs.HW/2, Y: rs.CY - rs.HH}
		c := r2.Vec{X: rs.CX, Y: rs.CY - rs.HH - 4*rs.HH}
		shape.Outline = taperedArc(a, c, b, ws, wt, r.cfg.ArcSegments)
		mid, _ := quadBezier(a, c, b, 0.5)
		return shape, mid
	}

	if !e.Inferred {
		a, b := rs.exit(r2.Sub(ct, cs)), rt.exit(r2.Sub(cs, ct))
		if r2.Dot(r2.Sub(b, a), r2.Sub(ct, cs)) <= 0 {
			a, b = cs, ct
		}
		shape.Outline = taperedQuad(a, b, ws, wt)
		return shape, r2.Scale(0.5, r2.Add(a, b))
	}

	c0 := arcControl(cs, ct, r.cfg.ArcCurvature)
	a, b := rs.exit(r2.Sub(c0, cs)), rt.exit(r2.Sub(c0, ct))
	if r2.Dot(r2.Sub(b, a), r2.Sub(ct, cs)) <= 0 {
		a, b = cs, ct
	}
	c := arcControl(a, b, r.cfg.ArcCurvature)
	shape.Outline = taperedArc(a, c, b, ws, wt, r.cfg.ArcSegments)
	mid, _ := quadBezier(a, c, b, 0.5)
	return shape, mid
}
