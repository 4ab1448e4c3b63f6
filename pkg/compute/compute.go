// Package compute defines the per-operator backend contract used by the
// evaluator. Implementations (software, and any accelerated backend) run one
// operator kind each behind the Operator interface and are collected in a
// Registry that the session owns and hands to the evaluator.
package compute

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
)

var (
	// ErrNoOperator is returned when no operator is registered for a kind.
	ErrNoOperator = errors.New("no operator registered")
	// ErrInputCount is returned when an operator receives the wrong number of inputs.
	ErrInputCount = errors.New("wrong number of inputs")
	// ErrParamsKind is returned when params do not belong to the operator's kind.
	ErrParamsKind = errors.New("params kind mismatch")
)

// Operator computes one output image from ordered inputs and parameters.
// Implementations must be deterministic and must not modify their inputs.
type Operator interface {
	Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error)
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(inputs []*imaging.Image, params node.Params) (*imaging.Image, error)

func (f OperatorFunc) Run(inputs []*imaging.Image, params node.Params) (*imaging.Image, error) {
	return f(inputs, params)
}

// Registry maps node kinds to operators.
type Registry struct {
	ops map[node.Kind]Operator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[node.Kind]Operator)}
}

// Register installs op for kind k, replacing any previous operator.
func (r *Registry) Register(k node.Kind, op Operator) {
	r.ops[k] = op
}

// Lookup returns the operator for kind k.
func (r *Registry) Lookup(k node.Kind) (Operator, error) {
	op, ok := r.ops[k]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoOperator, k)
	}
	return op, nil
}

// Kinds returns the registered kinds in tag order.
func (r *Registry) Kinds() []node.Kind {
	kinds := make([]node.Kind, 0, len(r.ops))
	for k := range r.ops {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// CheckInputs verifies the input count for kind k and that no input is nil.
func CheckInputs(k node.Kind, inputs []*imaging.Image) error {
	if len(inputs) != k.SlotCount() {
		return fmt.Errorf("%s: %w: got %d, want %d", k, ErrInputCount, len(inputs), k.SlotCount())
	}
	for i, in := range inputs {
		if in == nil {
			return fmt.Errorf("%s: input %d is nil", k, i)
		}
	}
	return nil
}
