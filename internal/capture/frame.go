package capture

import (
	"image"
	"time"

	"golang.org/x/image/draw"
)

// Frame is a single camera image with its capture time.
// Frames are never modified after creation.
type Frame struct {
	Image     *image.RGBA
	Timestamp time.Time
}

// NewFrame wraps img, converting it to RGBA when needed.
func NewFrame(img image.Image, ts time.Time) *Frame {
	return &Frame{Image: ToRGBA(img), Timestamp: ts}
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point {
	if f == nil || f.Image == nil {
		return image.Point{}
	}
	return f.Image.Bounds().Size()
}

// ToRGBA returns img as an *image.RGBA anchored at the origin.
// RGBA images already anchored at the origin are returned as is.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Downscale returns a copy of f no wider than maxWidth, keeping the aspect ratio.
// Frames that already fit are returned unchanged.
func Downscale(f *Frame, maxWidth int) *Frame {
	size := f.Size()
	if maxWidth <= 0 || size.X <= maxWidth {
		return f
	}

	height := size.Y * maxWidth / size.X
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), f.Image, f.Image.Bounds(), draw.Src, nil)
	return &Frame{Image: dst, Timestamp: f.Timestamp}
}
