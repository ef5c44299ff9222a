package layout

import (
	"math"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
)

func (b *body) Coord2() r2.Vec { return r2.Vec{X: *b.x, Y: *b.y} }

// Mass is the repulsion magnitude; charges are never positive.
func (b *body) Mass() float64 { return -b.charge }

// applyLinks pulls each pair toward its rest distance, looking one step ahead.
func (s *Simulation) applyLinks(links []*link) {
	for _, l := range links {
		src, tgt := l.source, l.target
		x := *tgt.x + *tgt.vx - *src.x - *src.vx
		y := *tgt.y + *tgt.vy - *src.y - *src.vy
		if x == 0 {
			x = s.jiggle()
		}
		if y == 0 {
			y = s.jiggle()
		}
		d := math.Hypot(x, y)
		k := (d - l.distance) / d * s.alpha * l.strength
		x *= k
		y *= k
		*tgt.vx -= x * l.bias
		*tgt.vy -= y * l.bias
		*src.vx += x * (1 - l.bias)
		*src.vy += y * (1 - l.bias)
	}
}

// applyManyBody repels every body from every other. Large sets use a
// Barnes-Hut quadtree; small ones, or sets the tree rejects, are summed directly.
func (s *Simulation) applyManyBody() {
	if len(s.bodies) < 2 {
		return
	}
	if len(s.bodies) >= s.cfg.BarnesHutThreshold && s.applyBarnesHut() {
		return
	}
	s.applyDirect()
}

func (s *Simulation) chargeDistance(d2 float64) (float64, bool) {
	if dmax := s.cfg.ChargeDistanceMax; dmax > 0 && d2 >= dmax*dmax {
		return 0, false
	}
	if min2 := s.cfg.ChargeDistanceMin * s.cfg.ChargeDistanceMin; d2 < min2 {
		d2 = math.Sqrt(min2 * d2)
	}
	return d2, true
}

func (s *Simulation) applyDirect() {
	for _, bi := range s.bodies {
		for _, bj := range s.bodies {
			if bi == bj {
				continue
			}
			x := *bj.x - *bi.x
			y := *bj.y - *bi.y
			if x == 0 {
				x = s.jiggle()
			}
			if y == 0 {
				y = s.jiggle()
			}
			d2, ok := s.chargeDistance(x*x + y*y)
			if !ok {
				continue
			}
			w := bj.charge * s.alpha / d2
			*bi.vx += x * w
			*bi.vy += y * w
		}
	}
}

func (s *Simulation) applyBarnesHut() bool {
	particles := make([]barneshut.Particle2, len(s.bodies))
	seen := make(map[r2.Vec]struct{}, len(s.bodies))
	for i, b := range s.bodies {
		if b.charge >= 0 {
			return false
		}
		for {
			c := b.Coord2()
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				break
			}
			*b.x += s.jiggle()
			*b.y += s.jiggle()
		}
		particles[i] = b
	}
	plane, err := barneshut.NewPlane(particles)
	if err != nil {
		return false
	}
	alpha := s.alpha
	force := func(p1, p2 barneshut.Particle2, m1, m2 float64, v r2.Vec) r2.Vec {
		d2 := r2.Norm2(v)
		if d2 == 0 {
			return r2.Vec{}
		}
		d2, ok := s.chargeDistance(d2)
		if !ok {
			return r2.Vec{}
		}
		return r2.Scale(-m2*alpha/d2, v)
	}
	for _, b := range s.bodies {
		f := plane.ForceOn(b, s.cfg.Theta, force)
		*b.vx += f.X
		*b.vy += f.Y
	}
	return true
}

// applyCollide keeps node centres at least two collide radii apart.
// Anchors do not collide.
func (s *Simulation) applyCollide() {
	r := 2 * s.cfg.CollideRadius
	rr := r * r
	nodes := s.nodeBodies
	for i := 0; i < len(nodes); i++ {
		a := nodes[i]
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j]
			x := *a.x + *a.vx - *b.x - *b.vx
			y := *a.y + *a.vy - *b.y - *b.vy
			l := x*x + y*y
			if l >= rr {
				continue
			}
			if x == 0 {
				x = s.jiggle()
				l += x * x
			}
			if y == 0 {
				y = s.jiggle()
				l += y * y
			}
			l = math.Sqrt(l)
			k := (r - l) / l
			x *= k
			y *= k
			wa, wb := 0.5, 0.5
			switch {
			case a.pinned() && b.pinned():
				continue
			case a.pinned():
				wa, wb = 0, 1
			case b.pinned():
				wa, wb = 1, 0
			}
			*a.vx += x * wa
			*a.vy += y * wa
			*b.vx -= x * wb
			*b.vy -= y * wb
		}
	}
}

// applyCenter translates every body so the mean sits on the viewport centre.
func (s *Simulation) applyCenter() {
	if len(s.bodies) == 0 {
		return
	}
	var sx, sy float64
	for _, b := range s.bodies {
		sx += *b.x
		sy += *b.y
	}
	n := float64(len(s.bodies))
	sx = (sx/n - s.cx) * s.cfg.CenterStrength
	sy = (sy/n - s.cy) * s.cfg.CenterStrength
	for _, b := range s.bodies {
		*b.x -= sx
		*b.y -= sy
	}
}
