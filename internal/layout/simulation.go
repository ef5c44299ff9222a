// Package layout positions the visible graph with a velocity-Verlet force
// simulation over nodes and per-edge label anchors.
package layout

import (
	"math"
	"math/rand/v2"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/metrics"
)

// Anchor is the virtual body that positions one edge's label.
// It is never drawn as a node.
type Anchor struct {
	Edge     graph.EdgeKey `json:"-"`
	Inferred bool          `json:"inferred"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	VX       float64       `json:"-"`
	VY       float64       `json:"-"`
}

// body is one simulated particle: a node or an anchor.
type body struct {
	x, y, vx, vy *float64
	node         *graph.Node
	charge       float64
}

func (b *body) pinned() bool { return b.node != nil && b.node.Pinned() }

type link struct {
	source, target *body
	distance       float64
	strength       float64
	bias           float64
}

// Simulation owns node positions while the graph is on screen.
// It is not safe for concurrent use.
type Simulation struct {
	cfg    config.LayoutConf
	cx, cy float64
	rng    *rand.Rand

	alpha       float64
	alphaTarget float64
	spiral      int
	ticks       uint64

	nodes       []*graph.Node
	edges       []graph.Edge
	anchors     []*Anchor
	anchorByKey map[graph.EdgeKey]*Anchor
	bodies      []*body
	nodeBodies  []*body
	links       []*link
	anchorLinks []*link
}

// New creates an idle Simulation centred on the uncovered part of the viewport.
func New(cfg config.LayoutConf, vp config.ViewportConf) *Simulation {
	config.DefaultLayout(&cfg)
	s := &Simulation{
		cfg:         cfg,
		rng:         rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		anchorByKey: make(map[graph.EdgeKey]*Anchor),
	}
	s.cx, s.cy = vp.Center()
	return s
}

// Rebuild replaces the simulated set with nodes and edges. Nodes keep the
// positions already stored on them; unplaced nodes are seeded next to a
// placed neighbour. Anchors of surviving edges keep their positions.
func (s *Simulation) Rebuild(nodes []*graph.Node, edges []graph.Edge) {
	s.nodes = nodes
	s.edges = edges
	s.seed()

	byID := make(map[graph.NodeID]*body, len(nodes))
	s.bodies = s.bodies[:0]
	s.nodeBodies = make([]*body, 0, len(nodes))
	for _, n := range nodes {
		b := &body{x: &n.X, y: &n.Y, vx: &n.VX, vy: &n.VY, node: n, charge: s.cfg.NodeCharge}
		byID[n.ID] = b
		s.nodeBodies = append(s.nodeBodies, b)
		s.bodies = append(s.bodies, b)
	}

	s.links = s.links[:0]
	s.anchorLinks = s.anchorLinks[:0]
	prev := s.anchorByKey
	s.anchorByKey = make(map[graph.EdgeKey]*Anchor, len(edges))
	s.anchors = s.anchors[:0]

	distance := s.cfg.LinkDistance
	if s.cfg.AnchorsEnabled() {
		distance = s.cfg.LinkDistanceLabeled
	}
	for _, e := range edges {
		src, tgt := byID[e.Source], byID[e.Target]
		if src == nil || tgt == nil {
			continue
		}
		if src != tgt {
			s.links = append(s.links, &link{source: src, target: tgt, distance: distance, strength: s.cfg.LinkStrength})
		}
		if !s.cfg.AnchorsEnabled() {
			continue
		}
		k := e.Key()
		if _, dup := s.anchorByKey[k]; dup {
			continue
		}
		a, ok := prev[k]
		if !ok {
			a = &Anchor{Edge: k}
			a.X = (*src.x+*tgt.x)/2 + s.jiggle()
			a.Y = (*src.y+*tgt.y)/2 + s.jiggle()
			if src == tgt {
				a.Y -= s.cfg.CollideRadius
			}
		}
		a.Inferred = e.Inferred
		s.anchorByKey[k] = a
		s.anchors = append(s.anchors, a)
		ab := &body{x: &a.X, y: &a.Y, vx: &a.VX, vy: &a.VY, charge: s.cfg.AnchorCharge}
		s.bodies = append(s.bodies, ab)
		for _, end := range []*body{src, tgt} {
			s.anchorLinks = append(s.anchorLinks, &link{
				source:   ab,
				target:   end,
				distance: s.cfg.AnchorDistance,
				strength: s.cfg.AnchorStrength,
			})
		}
	}
	initLinks(s.links)
	initLinks(s.anchorLinks)
}

// initLinks computes degree bias and, where unset, the degree-based strength.
func initLinks(links []*link) {
	count := make(map[*body]int, len(links)*2)
	for _, l := range links {
		count[l.source]++
		count[l.target]++
	}
	for _, l := range links {
		cs, ct := float64(count[l.source]), float64(count[l.target])
		l.bias = cs / (cs + ct)
		if l.strength == 0 {
			l.strength = 1 / math.Min(cs, ct)
		}
	}
}

// Restart raises the energy to restart_alpha.
func (s *Simulation) Restart() { s.alpha = s.cfg.RestartAlpha }

// Reheat raises the energy to at least a.
func (s *Simulation) Reheat(a float64) {
	if s.alpha < a {
		s.alpha = a
	}
}

// Active reports whether ticking still moves anything.
func (s *Simulation) Active() bool {
	return s.alpha >= s.cfg.AlphaMin || s.alphaTarget > 0
}

// Alpha returns the current energy.
func (s *Simulation) Alpha() float64 { return s.alpha }

// Ticks returns the number of ticks run so far.
func (s *Simulation) Ticks() uint64 { return s.ticks }

// Tick advances the simulation one step and reports whether it is still active.
func (s *Simulation) Tick() bool {
	s.alpha += (s.alphaTarget - s.alpha) * s.cfg.AlphaDecay

	s.applyLinks(s.links)
	s.applyLinks(s.anchorLinks)
	s.applyManyBody()
	s.applyCollide()
	s.applyCenter()

	keep := 1 - s.cfg.VelocityDecay
	for _, b := range s.bodies {
		if b.pinned() {
			*b.x, *b.y = *b.node.FX, *b.node.FY
			*b.vx, *b.vy = 0, 0
			continue
		}
		*b.vx *= keep
		*b.vy *= keep
		*b.x += *b.vx
		*b.y += *b.vy
	}

	s.ticks++
	metrics.LayoutTicks.Inc()
	metrics.LayoutAlpha.Set(s.alpha)
	return s.Active()
}

// Settle ticks until the simulation goes idle or max ticks have run.
// It returns the number of ticks run.
func (s *Simulation) Settle(max int) int {
	n := 0
	for n < max && s.Active() {
		s.Tick()
		n++
	}
	return n
}

// Pin fixes n at (x, y).
func (s *Simulation) Pin(n *graph.Node, x, y float64) {
	n.Pin(x, y)
	n.X, n.Y = x, y
	n.VX, n.VY = 0, 0
	n.Placed = true
}

// Unpin releases n and reheats so it can move again.
func (s *Simulation) Unpin(n *graph.Node) {
	n.Unpin()
	s.Reheat(s.cfg.ReheatAlpha)
}

// DragStart pins n under the pointer and keeps the simulation warm while dragging.
func (s *Simulation) DragStart(n *graph.Node, x, y float64) {
	s.Pin(n, x, y)
	s.alphaTarget = s.cfg.DragAlphaTarget
	s.Reheat(s.cfg.DragAlphaTarget)
}

// DragMove moves the pin of n.
func (s *Simulation) DragMove(n *graph.Node, x, y float64) { s.Pin(n, x, y) }

// DragEnd lets the simulation cool down again. The node stays pinned.
func (s *Simulation) DragEnd() { s.alphaTarget = 0 }

// Reconfigure applies new parameters and viewport, keeping positions.
func (s *Simulation) Reconfigure(cfg config.LayoutConf, vp config.ViewportConf) {
	config.DefaultLayout(&cfg)
	s.cfg = cfg
	s.cx, s.cy = vp.Center()
	s.Rebuild(s.nodes, s.edges)
	s.Reheat(cfg.ReheatAlpha)
}

// Center returns the point the layout is pulled toward.
func (s *Simulation) Center() (x, y float64) { return s.cx, s.cy }

// Anchors returns a copy of the label anchors in edge order.
func (s *Simulation) Anchors() []Anchor {
	out := make([]Anchor, len(s.anchors))
	for i, a := range s.anchors {
		out[i] = *a
	}
	return out
}

// AnchorFor returns the anchor of the edge with key k.
func (s *Simulation) AnchorFor(k graph.EdgeKey) (Anchor, bool) {
	a, ok := s.anchorByKey[k]
	if !ok {
		return Anchor{}, false
	}
	return *a, true
}

func (s *Simulation) jiggle() float64 { return (s.rng.Float64() - 0.5) * 1e-6 }
