package recognize

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// downscale shrinks img by scale for cheaper detection and returns the
// per-axis factors actually applied. A scale of 1 returns img unchanged.
func downscale(img image.Image, scale float64) (image.Image, float64, float64) {
	if scale <= 0 || scale >= 1 {
		return img, 1, 1
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 || h < 1 {
		return img, 1, 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(w) / float64(b.Dx()), float64(h) / float64(b.Dy())
}

// upscaleRect maps a box found on the downscaled frame back onto the
// original frame bounds.
func upscaleRect(r image.Rectangle, sx, sy float64, bounds image.Rectangle) image.Rectangle {
	if sx == 1 && sy == 1 {
		return r
	}
	return image.Rect(
		bounds.Min.X+int(math.Round(float64(r.Min.X)/sx)),
		bounds.Min.Y+int(math.Round(float64(r.Min.Y)/sy)),
		bounds.Min.X+int(math.Round(float64(r.Max.X)/sx)),
		bounds.Min.Y+int(math.Round(float64(r.Max.Y)/sy)),
	)
}
