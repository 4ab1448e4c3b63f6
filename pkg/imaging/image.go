// Package imaging provides the image handle that flows along graph edges.
// An Image is a fixed-size RGBA8 buffer with a process-unique identity; the
// evaluator only relies on its size and identity, operators read and write
// the pixels.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
)

// ErrPixelLength is returned when a pixel buffer does not match the image size.
var ErrPixelLength = errors.New("pixel buffer length does not match image size")

// ErrInvalidSize is returned for non-positive image dimensions.
var ErrInvalidSize = errors.New("image dimensions must be positive")

var nextID uint64

// ID is the opaque identity of an image. Two handles are the same image iff
// their IDs are equal, regardless of pixel contents.
type ID uint64

// Image is a 2D RGBA8 pixel buffer, row-major, 4 bytes per pixel.
type Image struct {
	id     ID
	width  int
	height int
	pix    []byte
	source string
}

// New allocates a fully transparent image.
func New(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Image{
		id:     ID(atomic.AddUint64(&nextID, 1)),
		width:  width,
		height: height,
		pix:    make([]byte, width*height*4),
	}, nil
}

// NewFilled allocates an image where every pixel is c.
func NewFilled(width, height int, c color.RGBA) (*Image, error) {
	img, err := New(width, height)
	if err != nil {
		return nil, err
	}
	img.Fill(c)
	return img, nil
}

// FromImage copies any image.Image into a new handle.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	img, err := New(b.Dx(), b.Dy())
	if err != nil {
		// Zero-area sources still get a valid 1x1 handle.
		img, _ = New(1, 1)
		return img
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Stride == b.Dx()*4 {
		copy(img.pix, rgba.Pix)
		return img
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.RGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			img.Set(x, y, c)
		}
	}
	return img
}

func (img *Image) ID() ID { return img.id }

func (img *Image) Width() int { return img.width }

func (img *Image) Height() int { return img.height }

// Source is the file the image was decoded from, empty for computed images.
func (img *Image) Source() string { return img.source }

// SameSize reports whether both images have identical dimensions.
func (img *Image) SameSize(other *Image) bool {
	return img.width == other.width && img.height == other.height
}

// SetPixels replaces the pixel buffer contents.
func (img *Image) SetPixels(buf []byte) error {
	if len(buf) != len(img.pix) {
		return fmt.Errorf("%w: got %d, want %d", ErrPixelLength, len(buf), len(img.pix))
	}
	copy(img.pix, buf)
	return nil
}

// Pixels returns a copy of the pixel buffer.
func (img *Image) Pixels() []byte {
	out := make([]byte, len(img.pix))
	copy(out, img.pix)
	return out
}

// Pix exposes the backing buffer for operators that write in place.
// Callers must not retain it beyond the operation.
func (img *Image) Pix() []byte { return img.pix }

func (img *Image) offset(x, y int) int { return (y*img.width + x) * 4 }

// At returns the pixel at (x, y). Coordinates outside the image are clamped.
func (img *Image) At(x, y int) color.RGBA {
	x = clampInt(x, 0, img.width-1)
	y = clampInt(y, 0, img.height-1)
	o := img.offset(x, y)
	return color.RGBA{R: img.pix[o], G: img.pix[o+1], B: img.pix[o+2], A: img.pix[o+3]}
}

// Set writes the pixel at (x, y); out-of-range writes are ignored.
func (img *Image) Set(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= img.width || y >= img.height {
		return
	}
	o := img.offset(x, y)
	img.pix[o], img.pix[o+1], img.pix[o+2], img.pix[o+3] = c.R, c.G, c.B, c.A
}

// Fill sets every pixel to c.
func (img *Image) Fill(c color.RGBA) {
	for o := 0; o < len(img.pix); o += 4 {
		img.pix[o], img.pix[o+1], img.pix[o+2], img.pix[o+3] = c.R, c.G, c.B, c.A
	}
}

// Clone returns a new image with a fresh identity and the same pixels.
func (img *Image) Clone() *Image {
	out, _ := New(img.width, img.height)
	copy(out.pix, img.pix)
	out.source = img.source
	return out
}

// Equal reports pixel equality; identity is not compared.
func (img *Image) Equal(other *Image) bool {
	if img == nil || other == nil {
		return img == other
	}
	return img.SameSize(other) && bytes.Equal(img.pix, other.pix)
}

// RGBA returns a standard library view sharing the pixel buffer.
func (img *Image) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    img.pix,
		Stride: img.width * 4,
		Rect:   image.Rect(0, 0, img.width, img.height),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
