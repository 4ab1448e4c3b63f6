package node

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidParams is returned when parameters fail validation or do not
// belong to the node's kind.
var ErrInvalidParams = errors.New("invalid parameters")

// Params is the kind-specific parameter payload of a node.
type Params interface {
	Kind() Kind
	params() // marker method restricting implementations to this package
}

// BlendMode selects the per-channel blend function.
type BlendMode int

const (
	BlendAdd BlendMode = iota
	BlendSubtract
	BlendMultiply
	BlendDivide
	BlendScreen
)

// BlurMode selects the blur kernel.
type BlurMode int

const (
	BlurGaussian BlurMode = iota
	BlurMotion
	BlurRadial
)

// NoiseMode selects the noise generator.
type NoiseMode int

const (
	NoiseRaw NoiseMode = iota
	NoiseVoronoi
	NoisePerlin
	NoiseSmoke
)

// ChannelMask is a bit set over RGBA channels.
type ChannelMask uint8

const (
	ChannelR ChannelMask = 1 << iota
	ChannelG
	ChannelB
	ChannelA

	ChannelsRGB = ChannelR | ChannelG | ChannelB
)

// Has reports whether channel bit c is set.
func (m ChannelMask) Has(c ChannelMask) bool { return m&c != 0 }

// Vec2 is a 2D point used for canvas positions and blur centers.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Range is a closed interval within [0, 1].
type Range struct {
	Min float64 `json:"min" validate:"gte=0,lte=1"`
	Max float64 `json:"max" validate:"gte=0,lte=1,gtefield=Min"`
}

// Color is a straight-alpha RGBA color with components in [0, 1].
type Color struct {
	R float64 `json:"r" validate:"gte=0,lte=1"`
	G float64 `json:"g" validate:"gte=0,lte=1"`
	B float64 `json:"b" validate:"gte=0,lte=1"`
	A float64 `json:"a" validate:"gte=0,lte=1"`
}

type BlendParams struct {
	Mode BlendMode `json:"mode" validate:"gte=0,lte=4"`
}

type HSLParams struct {
	Hue        float64 `json:"hue" validate:"gte=-1,lte=1"`
	Saturation float64 `json:"saturation" validate:"gte=-1,lte=1"`
	Lightness  float64 `json:"lightness" validate:"gte=-1,lte=1"`
}

type LevelsParams struct {
	InputRange    Range   `json:"inputRange"`
	OutputRange   Range   `json:"outputRange"`
	Gamma         float64 `json:"gamma" validate:"gte=0.2,lte=5"`
	LuminanceOnly bool    `json:"luminanceOnly"`
}

// CurvesParams holds one bezier per channel. Alpha is carried for
// completeness; the default leaves it at identity.
type CurvesParams struct {
	Red   Bezier `json:"red"`
	Green Bezier `json:"green"`
	Blue  Bezier `json:"blue"`
	Alpha Bezier `json:"alpha"`
}

type BlurParams struct {
	Mode     BlurMode `json:"mode" validate:"gte=0,lte=2"`
	Angle    float64  `json:"angle"` // degrees, motion blur direction
	Sigma    float64  `json:"sigma" validate:"gte=0.2,lte=100"`
	Samples  int      `json:"samples" validate:"gte=1,lte=256"`
	Center   Vec2     `json:"center"` // radial center, normalized [-1, 1]
	UseAlpha bool     `json:"useAlpha"`
}

type InvertParams struct {
	Channels ChannelMask `json:"channels" validate:"lte=15"`
}

type TransformParams struct {
	FlipH    bool    `json:"flipH"`
	FlipV    bool    `json:"flipV"`
	Rotation float64 `json:"rotation" validate:"gte=0,lt=360"` // degrees
}

type NoiseParams struct {
	Mode   NoiseMode `json:"mode" validate:"gte=0,lte=3"`
	Width  int       `json:"width" validate:"gte=1,lte=16384"`
	Height int       `json:"height" validate:"gte=1,lte=16384"`
	Seed   int64     `json:"seed"`
	Scale  float64   `json:"scale" validate:"gt=0,lte=1000"`
}

type UniformColorParams struct {
	Color Color `json:"color"`
}

type ImageParams struct {
	Path string `json:"path" validate:"required"`
}

// DynamicImageParams binds a folder. Files and Cursor are runtime state
// rebuilt from the folder; only Folder is persisted.
type DynamicImageParams struct {
	Folder string   `json:"folder" validate:"required"`
	Files  []string `json:"files"`
	Cursor int      `json:"cursor" validate:"gte=0"`
}

type OutputParams struct{}

type ValueParams struct{}

func (BlendParams) Kind() Kind        { return KindBlend }
func (HSLParams) Kind() Kind          { return KindHSL }
func (LevelsParams) Kind() Kind       { return KindLevels }
func (CurvesParams) Kind() Kind       { return KindCurves }
func (BlurParams) Kind() Kind         { return KindBlur }
func (InvertParams) Kind() Kind       { return KindInvert }
func (TransformParams) Kind() Kind    { return KindTransform }
func (NoiseParams) Kind() Kind        { return KindNoise }
func (UniformColorParams) Kind() Kind { return KindUniformColor }
func (ImageParams) Kind() Kind        { return KindImage }
func (DynamicImageParams) Kind() Kind { return KindDynamicImage }
func (OutputParams) Kind() Kind       { return KindOutput }
func (ValueParams) Kind() Kind        { return KindValue }

func (BlendParams) params()        {}
func (HSLParams) params()          {}
func (LevelsParams) params()       {}
func (CurvesParams) params()       {}
func (BlurParams) params()         {}
func (InvertParams) params()       {}
func (TransformParams) params()    {}
func (NoiseParams) params()        {}
func (UniformColorParams) params() {}
func (ImageParams) params()        {}
func (DynamicImageParams) params() {}
func (OutputParams) params()       {}
func (ValueParams) params()        {}

// DefaultParams returns the initial parameters for a new node of kind k.
// width and height size generators that have no input to take a size from.
func DefaultParams(k Kind, width, height int) Params {
	switch k {
	case KindBlend:
		return BlendParams{Mode: BlendAdd}
	case KindHSL:
		return HSLParams{}
	case KindLevels:
		return LevelsParams{
			InputRange:  Range{Min: 0, Max: 1},
			OutputRange: Range{Min: 0, Max: 1},
			Gamma:       1,
		}
	case KindCurves:
		return CurvesParams{
			Red:   IdentityBezier,
			Green: IdentityBezier,
			Blue:  IdentityBezier,
			Alpha: IdentityBezier,
		}
	case KindBlur:
		return BlurParams{Mode: BlurMotion, Sigma: 0.3, Samples: 10}
	case KindInvert:
		return InvertParams{Channels: ChannelsRGB}
	case KindTransform:
		return TransformParams{}
	case KindNoise:
		return NoiseParams{Mode: NoiseRaw, Width: width, Height: height, Scale: 1}
	case KindUniformColor:
		return UniformColorParams{Color: Color{R: 1, G: 1, B: 1, A: 1}}
	case KindImage:
		return ImageParams{}
	case KindDynamicImage:
		return DynamicImageParams{}
	case KindOutput:
		return OutputParams{}
	default:
		return ValueParams{}
	}
}

var validate = validator.New()

// Validate checks p against its field constraints.
func Validate(p Params) error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidParams)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, p.Kind(), err)
	}
	return nil
}

// DecodeParams unmarshals JSON into the params struct for kind k. Fields
// absent from data keep their defaults.
func DecodeParams(k Kind, data []byte, width, height int) (Params, error) {
	var err error
	var p Params
	switch d := DefaultParams(k, width, height).(type) {
	case BlendParams:
		err = json.Unmarshal(data, &d)
		p = d
	case HSLParams:
		err = json.Unmarshal(data, &d)
		p = d
	case LevelsParams:
		err = json.Unmarshal(data, &d)
		p = d
	case CurvesParams:
		err = json.Unmarshal(data, &d)
		p = d
	case BlurParams:
		err = json.Unmarshal(data, &d)
		p = d
	case InvertParams:
		err = json.Unmarshal(data, &d)
		p = d
	case TransformParams:
		err = json.Unmarshal(data, &d)
		p = d
	case NoiseParams:
		err = json.Unmarshal(data, &d)
		p = d
	case UniformColorParams:
		err = json.Unmarshal(data, &d)
		p = d
	case ImageParams:
		err = json.Unmarshal(data, &d)
		p = d
	case DynamicImageParams:
		err = json.Unmarshal(data, &d)
		p = d
	default:
		p = d
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidParams, k, err)
	}
	return p, nil
}
