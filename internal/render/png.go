package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
)

// WritePNG rasterises f at cfg.Supersample times its size and scales it
// down with Catmull-Rom before encoding.
func WritePNG(w io.Writer, f *Frame, cfg config.RenderConf) error {
	s := cfg.Supersample
	if s < 1 {
		s = 1
	}
	width, height := int(f.Width), int(f.Height)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("frame has no area (%dx%d)", width, height)
	}
	scale := float64(s)

	nodeFace, err := newFace(cfg.FontSize * scale)
	if err != nil {
		return err
	}
	labelFace, err := newFace(cfg.LabelFontSize * scale)
	if err != nil {
		return err
	}

	large := image.NewRGBA(image.Rect(0, 0, width*s, height*s))
	bg := hexColor(f.Background)
	draw.Draw(large, large.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	z := vector.NewRasterizer(width*s, height*s)
	fill := func(c color.Color) {
		z.Draw(large, large.Bounds(), image.NewUniform(c), image.Point{})
		z.Reset(width*s, height*s)
	}

	for _, e := range f.Edges {
		if len(e.Outline) < 3 {
			continue
		}
		z.MoveTo(float32(e.Outline[0].X*scale), float32(e.Outline[0].Y*scale))
		for _, p := range e.Outline[1:] {
			z.LineTo(float32(p.X*scale), float32(p.Y*scale))
		}
		z.ClosePath()
		fill(hexColor(e.Color))
	}

	for _, e := range f.Edges {
		if e.Label.Text == "" {
			continue
		}
		b := scaled(e.Label.Box, scale)
		roundRect(z, b, 0)
		fill(bg)
		drawText(large, labelFace, e.Label.Text, b, hexColor(e.Color))
	}

	text := hexColor(cfg.TextColor)
	for _, g := range f.Glyphs {
		b := scaled(g.Box, scale)
		stroke := 1.0 * scale
		if g.Selected {
			stroke = 2.5 * scale
		}
		roundRect(z, b, g.Radius*scale)
		fill(hexColor(g.Stroke))
		inner := b
		inner.HW -= stroke
		inner.HH -= stroke
		roundRect(z, inner, g.Radius*scale-stroke)
		fill(hexColor(g.Fill))
		drawText(large, nodeFace, g.Label, b, text)
	}

	final := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(final, final.Bounds(), large, large.Bounds(), draw.Over, nil)
	if err := png.Encode(w, final); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func scaled(r Rect, k float64) Rect {
	return Rect{CX: r.CX * k, CY: r.CY * k, HW: r.HW * k, HH: r.HH * k}
}

// roundRect adds the outline of r to z; a radius of zero gives square corners.
func roundRect(z *vector.Rasterizer, r Rect, radius float64) {
	x0, y0 := float32(r.CX-r.HW), float32(r.CY-r.HH)
	x1, y1 := float32(r.CX+r.HW), float32(r.CY+r.HH)
	if x1 <= x0 || y1 <= y0 {
		return
	}
	k := min(float32(radius), (x1-x0)/2, (y1-y0)/2)
	if k <= 0 {
		z.MoveTo(x0, y0)
		z.LineTo(x1, y0)
		z.LineTo(x1, y1)
		z.LineTo(x0, y1)
		z.ClosePath()
		return
	}
	z.MoveTo(x0+k, y0)
	z.LineTo(x1-k, y0)
	z.QuadTo(x1, y0, x1, y0+k)
	z.LineTo(x1, y1-k)
	z.QuadTo(x1, y1, x1-k, y1)
	z.LineTo(x0+k, y1)
	z.QuadTo(x0, y1, x0, y1-k)
	z.LineTo(x0, y0+k)
	z.QuadTo(x0, y0, x0+k, y0)
	z.ClosePath()
}

// drawText centres s in r.
func drawText(dst draw.Image, f *face, s string, r Rect, c color.Color) {
	w, h := f.measure(s)
	x := r.CX - w/2
	y := r.CY - h/2 + f.ascent
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: f.Face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(s)
}

// hexColor parses #rrggbb; anything else is black.
func hexColor(s string) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{A: 0xff}
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
