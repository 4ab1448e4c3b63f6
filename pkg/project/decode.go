package project

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/chazu/strata/pkg/node"
)

type decoder struct {
	r   *bufio.Reader
	err error
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// token returns the next whitespace-delimited token and consumes the single
// delimiter that ends it.
func (d *decoder) token() string {
	if d.err != nil {
		return ""
	}
	var b byte
	var err error
	for {
		if b, err = d.r.ReadByte(); err != nil {
			d.fail(err)
			return ""
		}
		if !isSpace(b) {
			break
		}
	}
	buf := []byte{b}
	for {
		b, err = d.r.ReadByte()
		if errors.Is(err, io.EOF) || (err == nil && isSpace(b)) {
			return string(buf)
		}
		if err != nil {
			d.fail(err)
			return ""
		}
		buf = append(buf, b)
	}
}

func (d *decoder) fail(err error) {
	if d.err != nil {
		return
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	d.err = fmt.Errorf("%w: %v", ErrMalformed, err)
}

func (d *decoder) int() int {
	tok := d.token()
	if d.err != nil {
		return 0
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) int64() int64 {
	tok := d.token()
	if d.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) float() float64 {
	tok := d.token()
	if d.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) bool() bool {
	switch tok := d.token(); tok {
	case "0", "":
		return false
	case "1":
		return true
	default:
		d.fail(fmt.Errorf("bad bool %q", tok))
		return false
	}
}

// string reads a length-prefixed string. The bytes following the length
// and its delimiter are taken verbatim.
func (d *decoder) string() string {
	n := d.int()
	if d.err != nil {
		return ""
	}
	if n < 0 {
		d.fail(fmt.Errorf("negative string length %d", n))
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.fail(err)
		return ""
	}
	return string(buf)
}

func (d *decoder) bezier() node.Bezier {
	return node.Bezier{X1: d.float(), Y1: d.float(), X2: d.float(), Y2: d.float()}
}

// Decode reads a document written by Encode.
func Decode(r io.Reader) (*Document, error) {
	d := &decoder{r: bufio.NewReader(r)}
	if tok := d.token(); tok != magic {
		return nil, fmt.Errorf("%w: got %q", ErrBadHeader, tok)
	}
	if v := d.int(); d.err != nil || v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, v)
	}

	count := d.int()
	if d.err == nil && count < 0 {
		d.fail(fmt.Errorf("negative node count %d", count))
	}
	doc := &Document{}
	for i := 0; i < count && d.err == nil; i++ {
		rec, err := d.node()
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		doc.Nodes = append(doc.Nodes, rec)
	}

	links := d.int()
	if d.err == nil && links < 0 {
		d.fail(fmt.Errorf("negative link count %d", links))
	}
	for i := 0; i < links && d.err == nil; i++ {
		doc.Links = append(doc.Links, Link{Slot: d.int(), Producer: d.int()})
	}
	if d.err != nil {
		return nil, d.err
	}
	if err := doc.Check(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *decoder) node() (NodeRecord, error) {
	raw := d.int()
	if d.err != nil {
		return NodeRecord{}, d.err
	}
	k := node.Kind(raw)
	if !k.IsOperator() {
		return NodeRecord{}, fmt.Errorf("%w: %d", ErrUnknownKind, raw)
	}
	rec := NodeRecord{Kind: k, ID: d.int()}
	rec.Position = node.Vec2{X: d.float(), Y: d.float()}
	for range k.SlotCount() {
		rec.Slots = append(rec.Slots, d.int())
	}
	rec.Params = d.params(k)
	if d.err != nil {
		return NodeRecord{}, d.err
	}
	if err := node.Validate(rec.Params); err != nil {
		return NodeRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return rec, nil
}

func (d *decoder) params(k node.Kind) node.Params {
	switch k {
	case node.KindBlend:
		return node.BlendParams{Mode: node.BlendMode(d.int())}
	case node.KindHSL:
		return node.HSLParams{Hue: d.float(), Saturation: d.float(), Lightness: d.float()}
	case node.KindLevels:
		p := node.LevelsParams{Gamma: d.float(), LuminanceOnly: d.bool()}
		p.InputRange = node.Range{Min: d.float(), Max: d.float()}
		p.OutputRange = node.Range{Min: d.float(), Max: d.float()}
		return p
	case node.KindCurves:
		return node.CurvesParams{Red: d.bezier(), Green: d.bezier(), Blue: d.bezier(), Alpha: d.bezier()}
	case node.KindBlur:
		p := node.BlurParams{Mode: node.BlurMode(d.int()), Angle: d.float(), Samples: d.int()}
		p.Sigma = d.float()
		p.UseAlpha = d.bool()
		p.Center = node.Vec2{X: d.float(), Y: d.float()}
		return p
	case node.KindInvert:
		return node.InvertParams{Channels: node.ChannelMask(d.int())}
	case node.KindTransform:
		return node.TransformParams{FlipH: d.bool(), FlipV: d.bool(), Rotation: d.float()}
	case node.KindUniformColor:
		return node.UniformColorParams{Color: node.Color{R: d.float(), G: d.float(), B: d.float(), A: d.float()}}
	case node.KindNoise:
		p := node.NoiseParams{Mode: node.NoiseMode(d.int()), Width: d.int(), Height: d.int()}
		p.Seed = d.int64()
		p.Scale = d.float()
		return p
	case node.KindImage:
		return node.ImageParams{Path: d.string()}
	case node.KindDynamicImage:
		return node.DynamicImageParams{Folder: d.string()}
	default:
		return node.OutputParams{}
	}
}
