package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Registered decoders.
	_ "image/gif"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned when a file extension has no codec.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var decodable = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

var encodable = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsSupported reports whether Load can decode a file with this name.
func IsSupported(name string) bool {
	return decodable[strings.ToLower(filepath.Ext(name))]
}

// Load decodes an image file into a new handle.
func Load(path string) (*Image, error) {
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	img := FromImage(src)
	img.source = path
	return img, nil
}

// Encode writes img to w in the format named by ext (".png", ".jpg", ...).
func Encode(w io.Writer, img *Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(w, img.RGBA())
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img.RGBA(), &jpeg.Options{Quality: 95})
	case ".bmp":
		return bmp.Encode(w, img.RGBA())
	case ".tif", ".tiff":
		return tiff.Encode(w, img.RGBA(), nil)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Save encodes the image to path, choosing the codec from the extension.
func Save(img *Image, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !encodable[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, img, ext); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Resize returns a bilinear-resampled copy with the given size. If the size
// already matches, img itself is returned.
func Resize(img *Image, width, height int) (*Image, error) {
	if img.width == width && img.height == height {
		return img, nil
	}
	out, err := New(width, height)
	if err != nil {
		return nil, err
	}
	draw.BiLinear.Scale(out.RGBA(), out.RGBA().Bounds(), img.RGBA(), img.RGBA().Bounds(), draw.Src, nil)
	return out, nil
}
