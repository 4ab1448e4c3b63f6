package project

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/chazu/strata/pkg/node"
)

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) token(s string) {
	if e.err != nil {
		return
	}
	if _, err := e.w.WriteString(s); err != nil {
		e.err = err
		return
	}
	e.err = e.w.WriteByte(' ')
}

func (e *encoder) int(v int) { e.token(strconv.Itoa(v)) }

func (e *encoder) int64(v int64) { e.token(strconv.FormatInt(v, 10)) }

func (e *encoder) float(v float64) { e.token(strconv.FormatFloat(v, 'g', -1, 64)) }

func (e *encoder) newline() { e.raw("\n") }

// string writes a length-prefixed string so paths may contain spaces.
func (e *encoder) string(s string) {
	e.int(len(s))
	e.token(s)
}

func (e *encoder) bezier(b node.Bezier) {
	e.float(b.X1)
	e.float(b.Y1)
	e.float(b.X2)
	e.float(b.Y2)
}

func (e *encoder) bool(v bool) {
	if v {
		e.token("1")
	} else {
		e.token("0")
	}
}

func (e *encoder) raw(s string) {
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document) error {
	if err := doc.Check(); err != nil {
		return err
	}
	e := &encoder{w: bufio.NewWriter(w)}
	e.token(magic)
	e.int(version)
	e.newline()
	e.int(len(doc.Nodes))
	e.newline()
	for _, rec := range doc.Nodes {
		e.int(int(rec.Kind))
		e.int(rec.ID)
		e.float(rec.Position.X)
		e.float(rec.Position.Y)
		for _, s := range rec.Slots {
			e.int(s)
		}
		if err := e.params(rec.Kind, rec.Params); err != nil {
			return err
		}
		e.newline()
	}
	e.int(len(doc.Links))
	e.newline()
	for _, l := range doc.Links {
		e.int(l.Slot)
		e.int(l.Producer)
		e.newline()
	}
	if e.err != nil {
		return fmt.Errorf("encode project: %w", e.err)
	}
	return e.w.Flush()
}

func (e *encoder) params(k node.Kind, p node.Params) error {
	if p == nil || p.Kind() != k {
		return fmt.Errorf("%w: %s node without matching params", ErrMalformed, k)
	}
	switch p := p.(type) {
	case node.BlendParams:
		e.int(int(p.Mode))
	case node.HSLParams:
		e.float(p.Hue)
		e.float(p.Saturation)
		e.float(p.Lightness)
	case node.LevelsParams:
		e.float(p.Gamma)
		e.bool(p.LuminanceOnly)
		e.float(p.InputRange.Min)
		e.float(p.InputRange.Max)
		e.float(p.OutputRange.Min)
		e.float(p.OutputRange.Max)
	case node.CurvesParams:
		e.bezier(p.Red)
		e.bezier(p.Green)
		e.bezier(p.Blue)
		e.bezier(p.Alpha)
	case node.BlurParams:
		e.int(int(p.Mode))
		e.float(p.Angle)
		e.int(p.Samples)
		e.float(p.Sigma)
		e.bool(p.UseAlpha)
		e.float(p.Center.X)
		e.float(p.Center.Y)
	case node.InvertParams:
		e.int(int(p.Channels))
	case node.TransformParams:
		e.bool(p.FlipH)
		e.bool(p.FlipV)
		e.float(p.Rotation)
	case node.UniformColorParams:
		e.float(p.Color.R)
		e.float(p.Color.G)
		e.float(p.Color.B)
		e.float(p.Color.A)
	case node.NoiseParams:
		e.int(int(p.Mode))
		e.int(p.Width)
		e.int(p.Height)
		e.int64(p.Seed)
		e.float(p.Scale)
	case node.ImageParams:
		e.string(p.Path)
	case node.DynamicImageParams:
		e.string(p.Folder)
	case node.OutputParams:
	}
	return nil
}
