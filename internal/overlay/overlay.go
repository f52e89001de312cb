// Package overlay draws recognition results onto frames for a human reviewer
// and publishes them as JPEG files.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	KnownColor   = color.RGBA{0, 200, 0, 255}
	UnknownColor = color.RGBA{220, 0, 0, 255}
	textColor    = color.White
)

const (
	borderWidth = 2
	barHeight   = 18
)

// Label is one face to draw: its box in frame coordinates and its caption.
type Label struct {
	Box   image.Rectangle
	Name  string
	Known bool
}

// Annotate returns a copy of src with every label drawn as a colored box with
// a caption bar under it, and the present-today counter in the top left.
func Annotate(src image.Image, labels []Label, present int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	for _, l := range labels {
		c := UnknownColor
		if l.Known {
			c = KnownColor
		}
		box := l.Box.Intersect(b)
		if box.Empty() {
			continue
		}
		drawBorder(dst, box, c)

		bar := image.Rect(box.Min.X, box.Max.Y-barHeight, box.Max.X, box.Max.Y).Intersect(b)
		draw.Draw(dst, bar, image.NewUniform(c), image.Point{}, draw.Src)
		drawText(dst, l.Name, image.Pt(box.Min.X+6, box.Max.Y-5), textColor)
	}

	drawText(dst, fmt.Sprintf("Present Today: %d", present), image.Pt(b.Min.X+10, b.Min.Y+30), KnownColor)
	return dst
}

func drawBorder(dst draw.Image, r image.Rectangle, c color.Color) {
	u := image.NewUniform(c)
	w := borderWidth
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), u, image.Point{}, draw.Src)
}

// drawText writes s with its baseline at dot.
func drawText(dst draw.Image, s string, dot image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(s)
}
