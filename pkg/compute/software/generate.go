package software

import (
	"fmt"
	"image/color"
	"math"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
)

var (
	_ compute.Operator = (*noiseOp)(nil)
	_ compute.Operator = (*uniformColorOp)(nil)
)

type uniformColorOp struct{ b *Backend }

// Run fills an image of the backend's default size with the color.
func (op *uniformColorOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindUniformColor, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.UniformColorParams](node.KindUniformColor, params)
	if err != nil {
		return nil, err
	}
	c := color.RGBA{R: toByte(p.Color.R), G: toByte(p.Color.G), B: toByte(p.Color.B), A: toByte(p.Color.A)}
	return imaging.NewFilled(op.b.opts.Width, op.b.opts.Height, c)
}

type noiseOp struct{ b *Backend }

// noiseCells is the lattice frequency at Scale 1.
const noiseCells = 8

// Run generates opaque grayscale noise. Output depends only on params.
func (op *noiseOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindNoise, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.NoiseParams](node.KindNoise, params)
	if err != nil {
		return nil, err
	}
	var field func(x, y int) float64
	freq := noiseCells * p.Scale
	seed := uint64(p.Seed)
	w, h := float64(p.Width), float64(p.Height)

	switch p.Mode {
	case node.NoiseRaw:
		cell := math.Max(1, p.Scale)
		field = func(x, y int) float64 {
			return unitHash(seed, int64(float64(x)/cell), int64(float64(y)/cell))
		}
	case node.NoisePerlin:
		field = func(x, y int) float64 {
			return 0.5 + 0.5*perlin(seed, float64(x)/w*freq, float64(y)/h*freq)
		}
	case node.NoiseSmoke:
		field = func(x, y int) float64 {
			return 0.5 + 0.5*fbm(seed, float64(x)/w*freq, float64(y)/h*freq, 5)
		}
	case node.NoiseVoronoi:
		field = func(x, y int) float64 {
			return voronoi(seed, float64(x)/w*freq, float64(y)/h*freq)
		}
	default:
		return nil, fmt.Errorf("noise: unknown mode %d", int(p.Mode))
	}

	out, err := imaging.New(p.Width, p.Height)
	if err != nil {
		return nil, fmt.Errorf("noise: %w", err)
	}
	dst := out.Pix()
	op.b.rows(p.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < p.Width; x++ {
				v := toByte(field(x, y))
				o := (y*p.Width + x) * 4
				dst[o], dst[o+1], dst[o+2], dst[o+3] = v, v, v, 255
			}
		}
	})
	return out, nil
}

// hash mixes a seed and lattice coordinates (splitmix64 finalizer).
func hash(seed uint64, x, y int64) uint64 {
	z := seed ^ uint64(x)*0x9E3779B97F4A7C15 ^ uint64(y)*0xC2B2AE3D27D4EB4F
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func unitHash(seed uint64, x, y int64) float64 {
	return float64(hash(seed, x, y)>>11) / float64(1<<53)
}

func fade(t float64) float64 { return t * t * t * (t*(t*6-15) + 10) }

func lerp(a, b, t float64) float64 { return a + t*(b-a) }

// grad returns the dot product of a hashed unit gradient with (dx, dy).
func grad(seed uint64, ix, iy int64, dx, dy float64) float64 {
	a := unitHash(seed, ix, iy) * 2 * math.Pi
	return math.Cos(a)*dx + math.Sin(a)*dy
}

// perlin is 2D gradient noise in roughly [-1, 1].
func perlin(seed uint64, x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	ix, iy := int64(x0), int64(y0)
	fx, fy := x-x0, y-y0
	u, v := fade(fx), fade(fy)
	n00 := grad(seed, ix, iy, fx, fy)
	n10 := grad(seed, ix+1, iy, fx-1, fy)
	n01 := grad(seed, ix, iy+1, fx, fy-1)
	n11 := grad(seed, ix+1, iy+1, fx-1, fy-1)
	return math.Sqrt2 * lerp(lerp(n00, n10, u), lerp(n01, n11, u), v)
}

// fbm sums octaves of perlin noise.
func fbm(seed uint64, x, y float64, octaves int) float64 {
	var sum, amp, norm float64 = 0, 1, 0
	for i := 0; i < octaves; i++ {
		sum += amp * perlin(seed+uint64(i), x, y)
		norm += amp
		amp *= 0.5
		x, y = x*2, y*2
	}
	return sum / norm
}

// voronoi returns the distance to the nearest feature point, one point per
// lattice cell, clamped to [0, 1].
func voronoi(seed uint64, x, y float64) float64 {
	ix, iy := int64(math.Floor(x)), int64(math.Floor(y))
	best := math.MaxFloat64
	for dy := int64(-1); dy <= 1; dy++ {
		for dx := int64(-1); dx <= 1; dx++ {
			cx, cy := ix+dx, iy+dy
			px := float64(cx) + unitHash(seed, cx, cy)
			py := float64(cy) + unitHash(seed^0xA5A5A5A5, cx, cy)
			best = math.Min(best, math.Hypot(px-x, py-y))
		}
	}
	return clamp01(best)
}
