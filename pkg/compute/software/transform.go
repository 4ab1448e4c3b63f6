package software

import (
	"math"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

var _ compute.Operator = (*transformOp)(nil)

type transformOp struct{ b *Backend }

// Run flips and rotates the input about its center. The output keeps the
// input size; pixels mapped from outside the source are transparent.
func (op *transformOp) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	if err := compute.CheckInputs(node.KindTransform, inputs); err != nil {
		return nil, err
	}
	p, err := paramsAs[node.TransformParams](node.KindTransform, params)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if p == (node.TransformParams{}) {
		return in.Clone(), nil
	}

	// Inverse mapping: output pixel center -> source position.
	inv := transformMatrix(p, in.Width(), in.Height()).Inverse()

	out, _ := imaging.New(in.Width(), in.Height())
	w, h := in.Width(), in.Height()
	op.b.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				q := inv.MulPosition(v2.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5})
				sx, sy := int(math.Floor(q.X)), int(math.Floor(q.Y))
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					continue
				}
				out.Set(x, y, in.At(sx, sy))
			}
		}
	})
	return out, nil
}

// transformMatrix maps source positions to output positions.
func transformMatrix(p node.TransformParams, w, h int) sdf.M33 {
	c := v2.Vec{X: float64(w) / 2, Y: float64(h) / 2}
	scale := v2.Vec{X: 1, Y: 1}
	if p.FlipH {
		scale.X = -1
	}
	if p.FlipV {
		scale.Y = -1
	}
	return sdf.Translate2d(c).
		Mul(sdf.Rotate2d(sdf.DtoR(p.Rotation))).
		Mul(sdf.Scale2d(scale)).
		Mul(sdf.Translate2d(v2.Vec{X: -c.X, Y: -c.Y}))
}
