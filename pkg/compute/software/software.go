// Package software implements every compute operator on the CPU. Work is
// split into row bands processed in parallel, but each Run call is
// synchronous and never touches its inputs.
package software

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
)

// Options configures the backend.
type Options struct {
	// Width and Height size generators whose params carry no size
	// (uniform color).
	Width  int
	Height int
	// Workers bounds row-band parallelism; 0 means GOMAXPROCS.
	Workers int
}

// Backend holds the shared configuration of the software operators.
type Backend struct {
	opts Options
}

// New returns a software backend. Missing sizes default to 2048x2048.
func New(opts Options) *Backend {
	if opts.Width <= 0 {
		opts.Width = 2048
	}
	if opts.Height <= 0 {
		opts.Height = 2048
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Backend{opts: opts}
}

// Registry returns a registry with an operator for every computing kind.
// Image, DynamicImage and Output are handled by the evaluator directly.
func (b *Backend) Registry() *compute.Registry {
	r := compute.NewRegistry()
	b.RegisterAll(r)
	return r
}

// RegisterAll installs the software operators into r.
func (b *Backend) RegisterAll(r *compute.Registry) {
	r.Register(node.KindBlend, &blendOp{b})
	r.Register(node.KindHSL, &hslOp{b})
	r.Register(node.KindLevels, &levelsOp{b})
	r.Register(node.KindCurves, &curvesOp{b})
	r.Register(node.KindBlur, &blurOp{b})
	r.Register(node.KindInvert, &invertOp{b})
	r.Register(node.KindTransform, &transformOp{b})
	r.Register(node.KindNoise, &noiseOp{b})
	r.Register(node.KindUniformColor, &uniformColorOp{b})
}

// rows runs fn over [0, height) split into contiguous bands.
func (b *Backend) rows(height int, fn func(y0, y1 int)) {
	workers := b.opts.Workers
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		fn(0, height)
		return
	}
	band := (height + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += band {
		y1 := min(y0+band, height)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

// mapPixels applies fn to every pixel of in, writing into a new image.
// fn receives and returns normalized RGBA.
func (b *Backend) mapPixels(in *imaging.Image, fn func(px [4]float64) [4]float64) *imaging.Image {
	out, _ := imaging.New(in.Width(), in.Height())
	src, dst := in.Pix(), out.Pix()
	stride := in.Width() * 4
	b.rows(in.Height(), func(y0, y1 int) {
		for o := y0 * stride; o < y1*stride; o += 4 {
			px := fn([4]float64{unit(src[o]), unit(src[o+1]), unit(src[o+2]), unit(src[o+3])})
			dst[o], dst[o+1], dst[o+2], dst[o+3] = toByte(px[0]), toByte(px[1]), toByte(px[2]), toByte(px[3])
		}
	})
	return out
}

func paramsAs[P node.Params](k node.Kind, params node.Params) (P, error) {
	p, ok := params.(P)
	if !ok {
		var zero P
		return zero, fmt.Errorf("%s: %w: got %T", k, compute.ErrParamsKind, params)
	}
	return p, nil
}

func unit(v byte) float64 { return float64(v) / 255 }

func toByte(v float64) byte {
	return byte(math.Round(clamp01(v) * 255))
}

// clamp01 also maps NaN to 0.
func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
