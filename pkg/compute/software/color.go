package software

import (
	"math"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
)

var (
	_ compute.Operator = (*hslOp)(nil)
	_ compute.Operator = (*levelsOp)(nil)
	_ compute.Operator = (*curvesOp)(nil)
	_ compute.Operator = (*invertOp)(nil)
)

type hslOp struct{ b *Backend }

// Run shifts hue by Hue*180 degrees and scales saturation and lightness
// toward their extremes by the signed amounts.
func (op *hslOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindHSL, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.HSLParams](node.KindHSL, params)
	if err != nil {
		return nil, err
	}
	if p == (node.HSLParams{}) {
		return inputs[0].Clone(), nil
	}
	return op.b.mapPixels(inputs[0], func(px [4]float64) [4]float64 {
		h, s, l := rgbToHSL(px[0], px[1], px[2])
		h = math.Mod(h+p.Hue*0.5+1, 1)
		s = shift(s, p.Saturation)
		l = shift(l, p.Lightness)
		r, g, b := hslToRGB(h, s, l)
		return [4]float64{r, g, b, px[3]}
	}), nil
}

// shift moves v toward 1 for positive amounts and toward 0 for negative.
func shift(v, amount float64) float64 {
	if amount >= 0 {
		return v + (1-v)*amount
	}
	return v * (1 + amount)
}

func rgbToHSL(r, g, b float64) (h, s, l float64) {
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	l = (hi + lo) / 2
	if hi == lo {
		return 0, 0, l
	}
	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}
	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h / 6, s, l
}

func hslToRGB(h, s, l float64) (r, g, b float64) {
	if s == 0 {
		return l, l, l
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

type levelsOp struct{ b *Backend }

// Run remaps each channel (or luminance only) from the input range to the
// output range with gamma correction. Alpha is untouched.
func (op *levelsOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindLevels, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.LevelsParams](node.KindLevels, params)
	if err != nil {
		return nil, err
	}
	inSpan := p.InputRange.Max - p.InputRange.Min
	outSpan := p.OutputRange.Max - p.OutputRange.Min
	level := func(v float64) float64 {
		if inSpan <= 0 {
			if v >= p.InputRange.Max {
				v = 1
			} else {
				v = 0
			}
		} else {
			v = clamp01((v - p.InputRange.Min) / inSpan)
		}
		return p.OutputRange.Min + math.Pow(v, 1/p.Gamma)*outSpan
	}
	return op.b.mapPixels(inputs[0], func(px [4]float64) [4]float64 {
		if !p.LuminanceOnly {
			return [4]float64{level(px[0]), level(px[1]), level(px[2]), px[3]}
		}
		y := luma(px[0], px[1], px[2])
		if y == 0 {
			v := level(0)
			return [4]float64{v, v, v, px[3]}
		}
		k := level(y) / y
		return [4]float64{px[0] * k, px[1] * k, px[2] * k, px[3]}
	}), nil
}

func luma(r, g, b float64) float64 { return 0.2126*r + 0.7152*g + 0.0722*b }

type curvesOp struct{ b *Backend }

// Run maps each channel through its curve's lookup table, rebuilt per call.
func (op *curvesOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindCurves, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.CurvesParams](node.KindCurves, params)
	if err != nil {
		return nil, err
	}
	tables := p.Tables()
	in := inputs[0]
	out, _ := imaging.New(in.Width(), in.Height())
	src, dst := in.Pix(), out.Pix()
	stride := in.Width() * 4
	op.b.rows(in.Height(), func(y0, y1 int) {
		for o := y0 * stride; o < y1*stride; o += 4 {
			for ch := 0; ch < 4; ch++ {
				dst[o+ch] = toByte(tables[ch].Lookup(src[o+ch]))
			}
		}
	})
	return out, nil
}

type invertOp struct{ b *Backend }

// Run inverts the channels selected by the mask.
func (op *invertOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindInvert, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.InvertParams](node.KindInvert, params)
	if err != nil {
		return nil, err
	}
	masks := [4]node.ChannelMask{node.ChannelR, node.ChannelG, node.ChannelB, node.ChannelA}
	in := inputs[0]
	out := in.Clone()
	dst := out.Pix()
	stride := in.Width() * 4
	op.b.rows(in.Height(), func(y0, y1 int) {
		for o := y0 * stride; o < y1*stride; o += 4 {
			for ch, m := range masks {
				if p.Channels.Has(m) {
					dst[o+ch] = 255 - dst[o+ch]
				}
			}
		}
	})
	return out, nil
}
