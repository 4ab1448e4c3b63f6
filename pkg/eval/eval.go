// Package eval computes the output image of a compositing graph. It walks
// the graph from the root in dependency-first order and reduces it on a
// value stack: slots push the image feeding them, operators pop their
// inputs, and exactly one image must remain at the end. Each node runs at
// most once per evaluation, however many consumers share it.
package eval

import (
	"errors"
	"fmt"
	"time"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/graph"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/logging"
	"github.com/chazu/strata/pkg/metrics"
	"github.com/chazu/strata/pkg/node"
	"go.uber.org/zap"
)

// Graph is the graph type the evaluator walks.
type Graph = graph.Graph[*node.Node]

var (
	// ErrNoRoot is returned when the root id is not a live node.
	ErrNoRoot = errors.New("root node not found")
	// ErrCycle is returned when the traversal meets a node already on its path.
	ErrCycle = errors.New("cycle in graph")
	// ErrStackImbalance marks a malformed graph detected by the value stack.
	ErrStackImbalance = errors.New("value stack imbalance")
	// ErrMissingImage is returned when a source or slot has no image to push.
	ErrMissingImage = errors.New("node has no image")
)

// InvariantError reports a value stack that did not reduce to one image.
// It indicates a malformed graph, never bad user input.
type InvariantError struct {
	NodeID int // node being processed, -1 at the final check
	Depth  int // stack depth when the violation was found
	Reason string
}

func (e *InvariantError) Error() string {
	if e.NodeID < 0 {
		return fmt.Sprintf("%s: %s (depth %d)", ErrStackImbalance, e.Reason, e.Depth)
	}
	return fmt.Sprintf("%s at node %d: %s (depth %d)", ErrStackImbalance, e.NodeID, e.Reason, e.Depth)
}

func (e *InvariantError) Unwrap() error { return ErrStackImbalance }

// Evaluator runs graphs against a compute registry.
type Evaluator struct {
	registry *compute.Registry
	logger   *zap.Logger
	metrics  *metrics.Registry
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger. Invariant violations are reported with DPanic,
// so a development logger turns them into panics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// New creates an Evaluator using the operators in registry.
func New(registry *compute.Registry, opts ...Option) *Evaluator {
	e := &Evaluator{registry: registry, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Postorder returns the node ids reachable from root, each after everything
// it depends on. Outgoing edges are followed in insertion order, so an
// operator's slots appear in slot order. A node reachable along several
// paths appears once, at its first visit.
func Postorder(g *Graph, root int) ([]int, error) {
	if !g.HasNode(root) {
		return nil, fmt.Errorf("%w: %d", ErrNoRoot, root)
	}
	var order []int
	onPath := make(map[int]bool)
	done := make(map[int]bool)

	var visit func(id int) error
	visit = func(id int) error {
		if onPath[id] {
			return fmt.Errorf("%w: node %d", ErrCycle, id)
		}
		if done[id] {
			return nil
		}
		onPath[id] = true
		for _, next := range g.Neighbors(id) {
			if err := visit(next); err != nil {
				return err
			}
		}
		onPath[id] = false
		done[id] = true
		order = append(order, id)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// Evaluate computes the image for root. Every computed image is also stored
// as the Value of the node that produced it.
func (e *Evaluator) Evaluate(g *Graph, root int) (img *imaging.Image, err error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordEvaluation(err, time.Since(start))
	}()

	order, err := Postorder(g, root)
	if err != nil {
		return nil, err
	}

	// results holds what each non-slot node produced during this run.
	results := make(map[int]*imaging.Image, len(order))
	var stack []*imaging.Image
	pop := func(id, n int) ([]*imaging.Image, error) {
		if len(stack) < n {
			return nil, e.invariant(&InvariantError{NodeID: id, Depth: len(stack), Reason: fmt.Sprintf("need %d inputs", n)})
		}
		// Last slot is on top.
		inputs := make([]*imaging.Image, n)
		copy(inputs, stack[len(stack)-n:])
		stack = stack[:len(stack)-n]
		return inputs, nil
	}

	for _, id := range order {
		n, err := g.Node(id)
		if err != nil {
			return nil, err
		}

		switch n.Kind {
		case node.KindValue:
			img := n.Value
			if producers := g.Neighbors(id); len(producers) > 0 {
				// The producer precedes the slot in the order.
				img = results[producers[0]]
			}
			if img == nil {
				return nil, fmt.Errorf("slot %d: %w", id, ErrMissingImage)
			}
			stack = append(stack, img)

		case node.KindImage, node.KindDynamicImage:
			if n.Value == nil {
				return nil, fmt.Errorf("%s node %d: %w", n.Kind, id, ErrMissingImage)
			}
			results[id] = n.Value

		case node.KindOutput:
			inputs, err := pop(id, 1)
			if err != nil {
				return nil, err
			}
			n.Value = inputs[0]
			results[id] = inputs[0]

		default:
			inputs, err := pop(id, n.Kind.SlotCount())
			if err != nil {
				return nil, err
			}
			out, err := e.run(id, n, inputs)
			if err != nil {
				return nil, err
			}
			n.Value = out
			results[id] = out
		}
	}
	if img, ok := results[root]; ok {
		stack = append(stack, img)
	}

	if len(stack) != 1 {
		return nil, e.invariant(&InvariantError{NodeID: -1, Depth: len(stack), Reason: "expected exactly one result"})
	}

	e.logger.Debug("graph evaluated",
		zap.Int("root", root),
		zap.Int("steps", len(order)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stack[0], nil
}

func (e *Evaluator) run(id int, n *node.Node, inputs []*imaging.Image) (*imaging.Image, error) {
	op, err := e.registry.Lookup(n.Kind)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	start := time.Now()
	out, err := op.Run(inputs, n.Params)
	e.metrics.RecordOperator(n.Kind.String(), err, time.Since(start))
	if err != nil {
		e.logger.Warn("operator failed",
			zap.Int("node_id", id),
			zap.Stringer("kind", n.Kind),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s node %d: %w", n.Kind, id, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s node %d: %w", n.Kind, id, ErrMissingImage)
	}
	return out, nil
}

func (e *Evaluator) invariant(err *InvariantError) error {
	e.logger.DPanic("evaluation invariant violated",
		zap.Int("node_id", err.NodeID),
		zap.Int("depth", err.Depth),
		zap.String("reason", err.Reason),
	)
	return err
}
