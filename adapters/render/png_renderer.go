// Package render draws challenge solutions as distorted PNG images
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"

	"github.com/layer-3/loginguard/ports"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const dataURLPrefix = "data:image/png;base64,"

var (
	background = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
	inks       = []color.RGBA{
		{R: 0x1f, G: 0x3a, B: 0x93, A: 0xff},
		{R: 0x8b, G: 0x1e, B: 0x3f, A: 0xff},
		{R: 0x1b, G: 0x5e, B: 0x20, A: 0xff},
		{R: 0x4a, G: 0x14, B: 0x8c, A: 0xff},
		{R: 0x33, G: 0x33, B: 0x33, A: 0xff},
	}
)

// PNGRenderer implements ports.ChallengeRenderer
type PNGRenderer struct {
	width      int
	height     int
	noiseLines int
}

type Option func(*PNGRenderer)

func WithSize(width, height int) Option {
	return func(r *PNGRenderer) {
		r.width = width
		r.height = height
	}
}

func WithNoiseLines(n int) Option {
	return func(r *PNGRenderer) {
		r.noiseLines = n
	}
}

func NewPNGRenderer(opts ...Option) *PNGRenderer {
	r := &PNGRenderer{width: 150, height: 50, noiseLines: 3}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render draws solution and returns it as a PNG data URL
func (r *PNGRenderer) Render(solution string) (string, error) {
	glyphs := []rune(solution)
	if len(glyphs) == 0 {
		return "", errors.New("empty solution")
	}
	if r.width <= 0 || r.height <= 0 {
		return "", fmt.Errorf("invalid canvas %dx%d", r.width, r.height)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, xdraw.Src)

	cell := r.width / (len(glyphs) + 1)
	glyphW := cell * 4 / 5
	glyphH := r.height * 3 / 5
	for i, ch := range glyphs {
		tile := glyphTile(ch, inks[rand.IntN(len(inks))])
		x := cell/2 + i*cell + jitter(cell/6)
		y := (r.height-glyphH)/2 + jitter(r.height/8)
		w := glyphW + jitter(glyphW/5)
		h := glyphH + jitter(glyphH/6)
		dst := image.Rect(x, y, x+w, y+h).Intersect(img.Bounds())
		xdraw.BiLinear.Scale(img, dst, tile, tile.Bounds(), xdraw.Over, nil)
	}

	for i := 0; i < r.noiseLines; i++ {
		line(img,
			image.Pt(rand.IntN(r.width), rand.IntN(r.height)),
			image.Pt(rand.IntN(r.width), rand.IntN(r.height)),
			inks[rand.IntN(len(inks))])
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// glyphTile rasterizes one character at the font's native size
func glyphTile(ch rune, ink color.Color) *image.RGBA {
	face := basicfont.Face7x13
	tile := image.NewRGBA(image.Rect(0, 0, face.Advance, face.Height))
	d := &font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(string(ch))
	return tile
}

// line draws a straight segment with Bresenham's algorithm
func line(img *image.RGBA, from, to image.Point, c color.Color) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	e := dx + dy
	x, y := from.X, from.Y
	for {
		img.Set(x, y, c)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func jitter(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(2*n+1) - n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ ports.ChallengeRenderer = (*PNGRenderer)(nil)
