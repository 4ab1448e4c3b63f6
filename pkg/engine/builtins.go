package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/strata/pkg/canvas"
	"github.com/chazu/strata/pkg/node"
	zygo "github.com/glycerine/zygomys/zygo"
)

// Auto-layout grid for nodes placed without :at.
const (
	layoutColumns = 6
	layoutDX      = 220
	layoutDY      = 160
)

var (
	blendModes = map[string]node.BlendMode{
		"add":      node.BlendAdd,
		"subtract": node.BlendSubtract,
		"multiply": node.BlendMultiply,
		"divide":   node.BlendDivide,
		"screen":   node.BlendScreen,
	}
	blurModes = map[string]node.BlurMode{
		"gaussian": node.BlurGaussian,
		"motion":   node.BlurMotion,
		"radial":   node.BlurRadial,
	}
	noiseModes = map[string]node.NoiseMode{
		"raw":     node.NoiseRaw,
		"voronoi": node.NoiseVoronoi,
		"perlin":  node.NoisePerlin,
		"smoke":   node.NoiseSmoke,
	}
)

// builder places script nodes on one canvas.
type builder struct {
	c      *canvas.Canvas
	placed int
}

type builtin = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// paramSetter overlays keyword arguments onto a node's default params.
type paramSetter func(pa kwArgs, p node.Params) (node.Params, error)

// position honours :at (list x y), otherwise takes the next grid cell.
func (b *builder) position(pa kwArgs) (node.Vec2, error) {
	pos := node.Vec2{
		X: float64(b.placed%layoutColumns) * layoutDX,
		Y: float64(b.placed/layoutColumns) * layoutDY,
	}
	if err := optVec2(pa, "at", &pos); err != nil {
		return node.Vec2{}, err
	}
	b.placed++
	return pos, nil
}

func scriptName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// operator builds the builtin for kind k: positional arguments are the
// nodes feeding its slots in order (nil leaves a slot unconnected), keyword
// arguments set parameters.
func (b *builder) operator(k node.Kind, set paramSetter) builtin {
	return func(_ *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		fail := func(err error) (zygo.Sexp, error) {
			return zygo.SexpNull, fmt.Errorf("%s: %w", scriptName(name), err)
		}
		pa := parseArgs(args)
		if len(pa.positional) > k.SlotCount() {
			return fail(fmt.Errorf("takes %d inputs, got %d", k.SlotCount(), len(pa.positional)))
		}
		inputs := make([]int, len(pa.positional))
		for i, arg := range pa.positional {
			inputs[i] = -1
			if arg == zygo.SexpNull {
				continue
			}
			id, err := toNode(arg)
			if err != nil {
				return fail(fmt.Errorf("input %d: %w", i, err))
			}
			inputs[i] = id
		}

		pos, err := b.position(pa)
		if err != nil {
			return fail(err)
		}
		id, err := b.c.AddOperatorNode(k, pos)
		if err != nil {
			return fail(err)
		}
		if err := b.configure(id, pa, set); err != nil {
			return fail(err)
		}
		if err := b.feed(id, inputs); err != nil {
			return fail(err)
		}
		return &sexpNode{id: id, kind: k}, nil
	}
}

func (b *builder) configure(id int, pa kwArgs, set paramSetter) error {
	if set == nil {
		return nil
	}
	n, err := b.c.Node(id)
	if err != nil {
		return err
	}
	p, err := set(pa, n.Params)
	if err != nil {
		return err
	}
	return b.c.SetParams(id, p)
}

func (b *builder) feed(id int, inputs []int) error {
	ui, ok := b.c.UINode(id)
	if !ok {
		return fmt.Errorf("node %d vanished", id)
	}
	for i, producer := range inputs {
		if producer < 0 {
			continue
		}
		if _, err := b.c.ConnectSlot(producer, ui.Slots[i]); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return nil
}

// source builds the builtin for a file-backed kind taking one path.
func (b *builder) source(k node.Kind, add func(string, node.Vec2) (int, error)) builtin {
	return func(_ *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("%s requires a path argument", scriptName(name))
		}
		path, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: path: %w", scriptName(name), err)
		}
		pos, err := b.position(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", scriptName(name), err)
		}
		id, err := add(path, pos)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", scriptName(name), err)
		}
		return &sexpNode{id: id, kind: k}, nil
	}
}

// connect implements (connect producer consumer [slot]) for wiring that
// does not fit the nested call style, such as feeding a node created later.
func (b *builder) connect(_ *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) < 2 || len(args) > 3 {
		return zygo.SexpNull, fmt.Errorf("connect requires a producer, a consumer and an optional slot index")
	}
	producer, err := toNode(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("connect: producer: %w", err)
	}
	consumer, err := toNode(args[1])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("connect: consumer: %w", err)
	}
	var index int64
	if len(args) == 3 {
		if index, err = toInt(args[2]); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: slot: %w", err)
		}
	}
	ui, ok := b.c.UINode(consumer)
	if !ok || index < 0 || int(index) >= len(ui.Slots) {
		return zygo.SexpNull, fmt.Errorf("connect: node %d has no slot %d", consumer, index)
	}
	if _, err := b.c.ConnectSlot(producer, ui.Slots[index]); err != nil {
		return zygo.SexpNull, fmt.Errorf("connect: %w", err)
	}
	return args[1], nil
}

// registerBuiltins installs the Strata builtins into env. Source must be
// preprocessed with preprocessSource so keywords and kebab-case names
// match.
//
//	(def bg (noise :mode :perlin :seed 7 :scale 8))
//	(def tint (uniform-color :r 1 :g 0.4 :b 0))
//	(output (levels (blend bg tint :mode :multiply) :gamma 1.2))
func registerBuiltins(env *zygo.Zlisp, b *builder) {
	env.AddFunction("uniform_color", b.operator(node.KindUniformColor, setUniformColor))
	env.AddFunction("noise", b.operator(node.KindNoise, setNoise))
	env.AddFunction("blend", b.operator(node.KindBlend, setBlend))
	env.AddFunction("hsl", b.operator(node.KindHSL, setHSL))
	env.AddFunction("levels", b.operator(node.KindLevels, setLevels))
	env.AddFunction("curves", b.operator(node.KindCurves, setCurves))
	env.AddFunction("blur", b.operator(node.KindBlur, setBlur))
	env.AddFunction("invert", b.operator(node.KindInvert, setInvert))
	env.AddFunction("transform", b.operator(node.KindTransform, setTransform))
	env.AddFunction("output", b.operator(node.KindOutput, nil))
	env.AddFunction("image", b.source(node.KindImage, b.c.AddImageNode))
	env.AddFunction("image_sequence", b.source(node.KindDynamicImage, b.c.AddDynamicImageNode))
	env.AddFunction("connect", b.connect)
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// (uniform-color :r 1 :g 0 :b 0 :a 1)
func setUniformColor(pa kwArgs, p node.Params) (node.Params, error) {
	u := p.(node.UniformColorParams)
	err := firstErr(
		optFloat(pa, "r", &u.Color.R),
		optFloat(pa, "g", &u.Color.G),
		optFloat(pa, "b", &u.Color.B),
		optFloat(pa, "a", &u.Color.A),
	)
	return u, err
}

// (noise :mode :voronoi :seed 42 :scale 16 :width 512 :height 512)
func setNoise(pa kwArgs, p node.Params) (node.Params, error) {
	n := p.(node.NoiseParams)
	err := firstErr(
		optEnum(pa, "mode", noiseModes, &n.Mode),
		optInt(pa, "width", &n.Width),
		optInt(pa, "height", &n.Height),
		optInt64(pa, "seed", &n.Seed),
		optFloat(pa, "scale", &n.Scale),
	)
	return n, err
}

// (blend lhs rhs :mode :screen)
func setBlend(pa kwArgs, p node.Params) (node.Params, error) {
	bl := p.(node.BlendParams)
	return bl, optEnum(pa, "mode", blendModes, &bl.Mode)
}

// (hsl in :hue 0.1 :saturation -0.2 :lightness 0)
func setHSL(pa kwArgs, p node.Params) (node.Params, error) {
	h := p.(node.HSLParams)
	err := firstErr(
		optFloat(pa, "hue", &h.Hue),
		optFloat(pa, "saturation", &h.Saturation),
		optFloat(pa, "lightness", &h.Lightness),
	)
	return h, err
}

// (levels in :gamma 1.4 :in-lo 0.1 :in-hi 0.9 :out-lo 0 :out-hi 1 :luminance true)
func setLevels(pa kwArgs, p node.Params) (node.Params, error) {
	l := p.(node.LevelsParams)
	err := firstErr(
		optFloat(pa, "gamma", &l.Gamma),
		optFloat(pa, "in-lo", &l.InputRange.Min),
		optFloat(pa, "in-hi", &l.InputRange.Max),
		optFloat(pa, "out-lo", &l.OutputRange.Min),
		optFloat(pa, "out-hi", &l.OutputRange.Max),
		optBool(pa, "luminance", &l.LuminanceOnly),
	)
	return l, err
}

// (curves in :red (list 0.25 0.1 0.75 0.9))
func setCurves(pa kwArgs, p node.Params) (node.Params, error) {
	c := p.(node.CurvesParams)
	err := firstErr(
		optBezier(pa, "red", &c.Red),
		optBezier(pa, "green", &c.Green),
		optBezier(pa, "blue", &c.Blue),
		optBezier(pa, "alpha", &c.Alpha),
	)
	return c, err
}

// (blur in :mode :radial :sigma 2 :samples 24 :angle 30 :center (list 0 0) :alpha true)
func setBlur(pa kwArgs, p node.Params) (node.Params, error) {
	bl := p.(node.BlurParams)
	err := firstErr(
		optEnum(pa, "mode", blurModes, &bl.Mode),
		optFloat(pa, "sigma", &bl.Sigma),
		optInt(pa, "samples", &bl.Samples),
		optFloat(pa, "angle", &bl.Angle),
		optVec2(pa, "center", &bl.Center),
		optBool(pa, "alpha", &bl.UseAlpha),
	)
	return bl, err
}

// (invert in :channels :rgb)
func setInvert(pa kwArgs, p node.Params) (node.Params, error) {
	inv := p.(node.InvertParams)
	return inv, optChannels(pa, "channels", &inv.Channels)
}

// (transform in :flip-h true :rotate 90)
func setTransform(pa kwArgs, p node.Params) (node.Params, error) {
	t := p.(node.TransformParams)
	err := firstErr(
		optBool(pa, "flip-h", &t.FlipH),
		optBool(pa, "flip-v", &t.FlipV),
		optFloat(pa, "rotate", &t.Rotation),
	)
	return t, err
}
