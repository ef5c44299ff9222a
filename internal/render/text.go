package render

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var goRegular = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// face wraps a font face with its vertical metrics in pixels.
// A face is not safe for concurrent use.
type face struct {
	font.Face
	ascent  float64
	descent float64
}

func newFace(size float64) (*face, error) {
	fnt, err := goRegular()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	ff, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create face (size %.1f): %w", size, err)
	}
	m := ff.Metrics()
	return &face{
		Face:    ff,
		ascent:  float64(m.Ascent) / 64,
		descent: float64(m.Descent) / 64,
	}, nil
}

// measure returns the advance width and line height of s.
func (f *face) measure(s string) (w, h float64) {
	return float64(font.MeasureString(f.Face, s)) / 64, f.ascent + f.descent
}
