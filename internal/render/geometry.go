package render

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a position on the drawing surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func pt(v r2.Vec) Point { return Point{X: v.X, Y: v.Y} }

// Rect is an axis-aligned box given by its centre and half extents.
type Rect struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	HW float64 `json:"hw"`
	HH float64 `json:"hh"`
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return math.Abs(x-r.CX) <= r.HW && math.Abs(y-r.CY) <= r.HH
}

// exit returns where the ray from the centre toward dir leaves r.
func (r Rect) exit(dir r2.Vec) r2.Vec {
	c := r2.Vec{X: r.CX, Y: r.CY}
	t := math.Inf(1)
	if dir.X != 0 {
		t = math.Min(t, r.HW/math.Abs(dir.X))
	}
	if dir.Y != 0 {
		t = math.Min(t, r.HH/math.Abs(dir.Y))
	}
	if math.IsInf(t, 1) {
		return c
	}
	return r2.Add(c, r2.Scale(t, dir))
}

// perp returns the unit left normal of d, or zero for a zero vector.
func perp(d r2.Vec) r2.Vec {
	n := r2.Norm(d)
	if n == 0 {
		return r2.Vec{}
	}
	return r2.Vec{X: -d.Y / n, Y: d.X / n}
}

// taperedQuad outlines a straight band from a to b whose width shrinks
// from ws at a to wt at b.
func taperedQuad(a, b r2.Vec, ws, wt float64) []Point {
	n := perp(r2.Sub(b, a))
	return []Point{
		pt(r2.Add(a, r2.Scale(ws/2, n))),
		pt(r2.Add(b, r2.Scale(wt/2, n))),
		pt(r2.Sub(b, r2.Scale(wt/2, n))),
		pt(r2.Sub(a, r2.Scale(ws/2, n))),
	}
}

// quadBezier evaluates the quadratic curve a-c-b at t and its tangent.
func quadBezier(a, c, b r2.Vec, t float64) (p, d r2.Vec) {
	u := 1 - t
	p = r2.Add(r2.Add(r2.Scale(u*u, a), r2.Scale(2*u*t, c)), r2.Scale(t*t, b))
	d = r2.Add(r2.Scale(2*u, r2.Sub(c, a)), r2.Scale(2*t, r2.Sub(b, c)))
	return p, d
}

// taperedArc outlines the curve a-c-b sampled into segs pieces with the
// same taper as taperedQuad.
func taperedArc(a, c, b r2.Vec, ws, wt float64, segs int) []Point {
	if segs < 2 {
		segs = 2
	}
	left := make([]Point, 0, segs+1)
	right := make([]Point, 0, segs+1)
	for i := 0; i <= segs; i++ {
		t := float64(i) / float64(segs)
		p, d := quadBezier(a, c, b, t)
		n := perp(d)
		w := (ws + (wt-ws)*t) / 2
		left = append(left, pt(r2.Add(p, r2.Scale(w, n))))
		right = append(right, pt(r2.Sub(p, r2.Scale(w, n))))
	}
	out := left
	for i := len(right) - 1; i >= 0; i-- {
		out = append(out, right[i])
	}
	return out
}

// arcControl returns the control point bowing the a-b chord to its left by
// curvature times the chord length.
func arcControl(a, b r2.Vec, curvature float64) r2.Vec {
	d := r2.Sub(b, a)
	mid := r2.Scale(0.5, r2.Add(a, b))
	return r2.Add(mid, r2.Scale(curvature*r2.Norm(d), perp(d)))
}
