package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/strata/pkg/node"
	zygo "github.com/glycerine/zygomys/zygo"
)

// sexpNode is a node placed by a builtin, passed between builtins as a
// value.
type sexpNode struct {
	id   int
	kind node.Kind
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s #%d)", n.kind, n.id)
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// isKW checks if a Sexp is a preprocessed keyword string and returns the
// keyword name without its prefix.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Trailing keyword with no value acts as a flag.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

func describe(s zygo.Sexp) string {
	return fmt.Sprintf("%T (%s)", s, s.SexpString(nil))
}

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %s", describe(s))
}

// toInt accepts integers and integral floats.
func toInt(s zygo.Sexp) (int64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int64(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == math.Trunc(v.Val) {
			return int64(v.Val), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %s", describe(s))
}

// toBool accepts true/false, numbers, and a bare trailing keyword (true).
func toBool(s zygo.Sexp) (bool, error) {
	if s == zygo.SexpNull {
		return true, nil
	}
	switch v := s.(type) {
	case *zygo.SexpInt:
		return v.Val != 0, nil
	case *zygo.SexpFloat:
		return v.Val != 0, nil
	}
	switch s.SexpString(nil) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("expected boolean, got %s", describe(s))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %s", describe(s))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected keyword or string, got %s", describe(s))
	}
	return strings.TrimPrefix(str, kwPrefix), nil
}

// toNode extracts the node id from a builtin result.
func toNode(s zygo.Sexp) (int, error) {
	if n, ok := s.(*sexpNode); ok {
		return n.id, nil
	}
	return -1, fmt.Errorf("expected node, got %s", describe(s))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toFloats extracts exactly n numbers from a list.
func toFloats(s zygo.Sexp, n int) ([]float64, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	if len(items) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(items))
	}
	out := make([]float64, n)
	for i, item := range items {
		if out[i], err = toFloat64(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// The opt helpers leave dst untouched when key is absent.

func optFloat(pa kwArgs, key string, dst *float64) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func optInt(pa kwArgs, key string, dst *int) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	i, err := toInt(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = int(i)
	return nil
}

func optInt64(pa kwArgs, key string, dst *int64) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	i, err := toInt(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func optBool(pa kwArgs, key string, dst *bool) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	b, err := toBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func optEnum[T ~int](pa kwArgs, key string, names map[string]T, dst *T) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	name, err := toKeywordString(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	val, ok := names[name]
	if !ok {
		return fmt.Errorf("%s: unknown value %q", key, name)
	}
	*dst = val
	return nil
}

func optBezier(pa kwArgs, key string, dst *node.Bezier) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloats(v, 4)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = node.Bezier{X1: f[0], Y1: f[1], X2: f[2], Y2: f[3]}
	return nil
}

func optVec2(pa kwArgs, key string, dst *node.Vec2) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloats(v, 2)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = node.Vec2{X: f[0], Y: f[1]}
	return nil
}

// optChannels parses a channel set written as letters, e.g. :rgb or "ra".
func optChannels(pa kwArgs, key string, dst *node.ChannelMask) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	name, err := toKeywordString(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	var mask node.ChannelMask
	for _, r := range strings.ToLower(name) {
		switch r {
		case 'r':
			mask |= node.ChannelR
		case 'g':
			mask |= node.ChannelG
		case 'b':
			mask |= node.ChannelB
		case 'a':
			mask |= node.ChannelA
		default:
			return fmt.Errorf("%s: unknown channel %q", key, r)
		}
	}
	*dst = mask
	return nil
}
