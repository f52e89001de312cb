package recognize

import (
	"image"
	"testing"
)

func TestDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))

	small, sx, sy := downscale(src, 0.25)
	if small.Bounds() != image.Rect(0, 0, 160, 120) {
		t.Fatalf("unexpected size %v", small.Bounds())
	}
	if sx != 0.25 || sy != 0.25 {
		t.Errorf("unexpected factors %f, %f", sx, sy)
	}

	got := upscaleRect(image.Rect(10, 20, 30, 40), sx, sy, src.Bounds())
	if got != image.Rect(40, 80, 120, 160) {
		t.Errorf("upscaleRect = %v", got)
	}
}

func TestDownscale_Identity(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for _, scale := range []float64{1, 0, 1.5} {
		got, sx, sy := downscale(src, scale)
		if got != image.Image(src) || sx != 1 || sy != 1 {
			t.Errorf("scale %f should leave the frame untouched", scale)
		}
	}
	// Too small to shrink
	if got, _, _ := downscale(image.NewRGBA(image.Rect(0, 0, 2, 2)), 0.1); got.Bounds().Dx() != 2 {
		t.Error("expected tiny frames to be left alone")
	}
}
