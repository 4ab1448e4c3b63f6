package software

import (
	"fmt"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
)

var _ compute.Operator = (*blendOp)(nil)

type blendOp struct{ b *Backend }

// Run blends rhs onto lhs. rhs is resampled to lhs's size when they differ.
// Color channels use the blend function; alpha is composited source-over.
func (op *blendOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindBlend, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.BlendParams](node.KindBlend, params)
	if err != nil {
		return nil, err
	}
	fn, err := blendFunc(p.Mode)
	if err != nil {
		return nil, err
	}

	lhs := inputs[0]
	rhs, err := imaging.Resize(inputs[1], lhs.Width(), lhs.Height())
	if err != nil {
		return nil, fmt.Errorf("blend: resample rhs: %w", err)
	}

	out, _ := imaging.New(lhs.Width(), lhs.Height())
	a, c, dst := lhs.Pix(), rhs.Pix(), out.Pix()
	stride := lhs.Width() * 4
	op.b.rows(lhs.Height(), func(y0, y1 int) {
		for o := y0 * stride; o < y1*stride; o += 4 {
			for ch := 0; ch < 3; ch++ {
				dst[o+ch] = toByte(fn(unit(a[o+ch]), unit(c[o+ch])))
			}
			al, ar := unit(a[o+3]), unit(c[o+3])
			dst[o+3] = toByte(al + ar*(1-al))
		}
	})
	return out, nil
}

func blendFunc(mode node.BlendMode) (func(a, b float64) float64, error) {
	switch mode {
	case node.BlendAdd:
		return func(a, b float64) float64 { return a + b }, nil
	case node.BlendSubtract:
		return func(a, b float64) float64 { return a - b }, nil
	case node.BlendMultiply:
		return func(a, b float64) float64 { return a * b }, nil
	case node.BlendDivide:
		return func(a, b float64) float64 {
			if b == 0 {
				if a == 0 {
					return 0
				}
				return 1
			}
			return a / b
		}, nil
	case node.BlendScreen:
		return func(a, b float64) float64 { return 1 - (1-a)*(1-b) }, nil
	}
	return nil, fmt.Errorf("blend: unknown mode %d", int(mode))
}
