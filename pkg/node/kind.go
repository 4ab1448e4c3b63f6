// Package node defines the closed set of compositing node kinds, their
// parameters, and the node payload stored in the graph.
package node

import (
	"fmt"
	"strings"
)

// Kind enumerates node kinds. The integer values are persisted; append only.
type Kind int

const (
	KindBlend        Kind = iota // two-input blend
	KindHSL                      // hue/saturation/lightness shift
	KindOutput                   // evaluation root, passthrough
	KindLevels                   // input/output range remap with gamma
	KindCurves                   // per-channel bezier lookup
	KindBlur                     // gaussian, motion or radial blur
	KindInvert                   // channel inversion
	KindTransform                // flips and rotation
	KindValue                    // input slot placeholder
	KindUniformColor             // solid color generator
	KindNoise                    // procedural noise generator
	KindImage                    // static image loaded from disk
	KindDynamicImage             // image sequence from a folder
)

var kindNames = map[Kind]string{
	KindBlend:        "blend",
	KindHSL:          "hsl",
	KindOutput:       "output",
	KindLevels:       "levels",
	KindCurves:       "curves",
	KindBlur:         "blur",
	KindInvert:       "invert",
	KindTransform:    "transform",
	KindValue:        "value",
	KindUniformColor: "uniform-color",
	KindNoise:        "noise",
	KindImage:        "image",
	KindDynamicImage: "dynamic-image",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a kind from its String form. Underscores are accepted
// in place of hyphens.
func ParseKind(s string) (Kind, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// SlotCount is the number of input slots an operator of this kind owns.
func (k Kind) SlotCount() int {
	switch k {
	case KindBlend:
		return 2
	case KindHSL, KindOutput, KindLevels, KindCurves, KindBlur, KindInvert, KindTransform:
		return 1
	default:
		return 0
	}
}

// SlotNames returns display names for the input slots, in slot order.
func (k Kind) SlotNames() []string {
	switch k.SlotCount() {
	case 2:
		return []string{"lhs", "rhs"}
	case 1:
		return []string{"input"}
	default:
		return nil
	}
}

// IsOperator reports whether k can be placed on the canvas by the user.
// Value nodes are created only as slots.
func (k Kind) IsOperator() bool {
	return k.Valid() && k != KindValue
}

// IsSource reports whether k produces an image from no inputs.
func (k Kind) IsSource() bool {
	switch k {
	case KindUniformColor, KindNoise, KindImage, KindDynamicImage:
		return true
	}
	return false
}

// Kinds returns every declared kind in tag order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindBlend; k <= KindDynamicImage; k++ {
		out = append(out, k)
	}
	return out
}
