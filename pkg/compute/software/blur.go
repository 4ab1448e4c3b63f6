package software

import (
	"fmt"
	"math"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

var _ compute.Operator = (*blurOp)(nil)

type blurOp struct{ b *Backend }

// Run blurs the input. Sigma is in pixels: the gaussian standard deviation,
// the spacing between motion taps, or the percentage zoom step between
// radial taps. Alpha is blurred only when UseAlpha is set.
func (op *blurOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindBlur, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.BlurParams](node.KindBlur, params)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	channels := 3
	if p.UseAlpha {
		channels = 4
	}

	switch p.Mode {
	case node.BlurGaussian:
		return op.gaussian(in, p.Sigma, channels), nil
	case node.BlurMotion:
		step := sdf.Rotate2d(sdf.DtoR(p.Angle)).MulPosition(v2.Vec{X: p.Sigma})
		taps := make([]sdf.M33, p.Samples)
		for i := range taps {
			t := float64(i) - float64(p.Samples-1)/2
			taps[i] = sdf.Translate2d(v2.Vec{X: step.X * t, Y: step.Y * t})
		}
		return op.sampleTaps(in, taps, channels), nil
	case node.BlurRadial:
		c := v2.Vec{
			X: (p.Center.X + 1) / 2 * float64(in.Width()),
			Y: (p.Center.Y + 1) / 2 * float64(in.Height()),
		}
		taps := make([]sdf.M33, p.Samples)
		for i := range taps {
			s := 1 - float64(i)*p.Sigma/100
			taps[i] = sdf.Translate2d(c).Mul(sdf.Scale2d(v2.Vec{X: s, Y: s})).Mul(sdf.Translate2d(v2.Vec{X: -c.X, Y: -c.Y}))
		}
		return op.sampleTaps(in, taps, channels), nil
	}
	return nil, fmt.Errorf("blur: unknown mode %d", int(p.Mode))
}

// sampleTaps averages the input sampled at each tap transform of the pixel
// center.
func (op *blurOp) sampleTaps(in *imaging.Image, taps []sdf.M33, channels int) *imaging.Image {
	out := in.Clone()
	dst := out.Pix()
	w := in.Width()
	op.b.rows(in.Height(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				p := v2.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5}
				var acc [4]float64
				for _, m := range taps {
					q := m.MulPosition(p)
					c := in.At(int(math.Floor(q.X)), int(math.Floor(q.Y)))
					acc[0] += float64(c.R)
					acc[1] += float64(c.G)
					acc[2] += float64(c.B)
					acc[3] += float64(c.A)
				}
				o := (y*w + x) * 4
				for ch := 0; ch < channels; ch++ {
					dst[o+ch] = byte(math.Round(acc[ch] / float64(len(taps))))
				}
			}
		}
	})
	return out
}

// gaussian runs a separable gaussian with clamped edges.
func (op *blurOp) gaussian(in *imaging.Image, sigma float64, channels int) *imaging.Image {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	w, h := in.Width(), in.Height()
	src := in.Pix()
	tmp := make([]float64, len(src))
	op.b.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				o := (y*w + x) * 4
				for ch := 0; ch < 4; ch++ {
					var acc float64
					for k, wt := range kernel {
						sx := min(max(x+k-radius, 0), w-1)
						acc += wt * float64(src[(y*w+sx)*4+ch])
					}
					tmp[o+ch] = acc
				}
			}
		}
	})

	out := in.Clone()
	dst := out.Pix()
	op.b.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				o := (y*w + x) * 4
				for ch := 0; ch < channels; ch++ {
					var acc float64
					for k, wt := range kernel {
						sy := min(max(y+k-radius, 0), h-1)
						acc += wt * tmp[(sy*w+x)*4+ch]
					}
					dst[o+ch] = byte(math.Round(math.Min(math.Max(acc, 0), 255)))
				}
			}
		}
	})
	return out
}
