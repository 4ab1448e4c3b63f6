// Package canvas is the editing session around a compositing graph. It owns
// the graph, tracks which nodes the user placed and which slots belong to
// them, and re-evaluates the output lazily after edits invalidate it.
//
// A Canvas is not safe for concurrent use.
package canvas

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/eval"
	"github.com/chazu/strata/pkg/graph"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/logging"
	"github.com/chazu/strata/pkg/metrics"
	"github.com/chazu/strata/pkg/node"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoRoot is the root id of a canvas without an Output node.
const NoRoot = -1

var (
	ErrRootExists     = errors.New("canvas already has an output node")
	ErrNotOperator    = errors.New("not an operator node")
	ErrNotSlot        = errors.New("not an input slot")
	ErrInvalidLink    = errors.New("invalid link")
	ErrStructuralEdge = errors.New("edge belongs to an operator")
	ErrKindMismatch   = errors.New("parameters do not match node kind")
)

// UINode is an operator placed on the canvas. Slots lists its input slot
// ids in slot order.
type UINode struct {
	Kind     node.Kind
	ID       int
	Slots    []int
	Position node.Vec2
}

// Options configures a Canvas.
type Options struct {
	Width    int // size of generated and default images
	Height   int
	Registry *compute.Registry
	Logger   *zap.Logger
	Metrics  *metrics.Registry
}

// state is everything a load replaces at once.
type state struct {
	g         *eval.Graph
	nodes     []*UINode
	byID      map[int]*UINode
	slotOwner map[int]int
	root      int
}

func newState() *state {
	return &state{
		g:         graph.New[*node.Node](),
		byID:      make(map[int]*UINode),
		slotOwner: make(map[int]int),
		root:      NoRoot,
	}
}

// Canvas is one editing session.
type Canvas struct {
	id uuid.UUID
	*state

	evaluator   *eval.Evaluator
	output      *imaging.Image
	blank       *imaging.Image
	invalidated bool

	width, height int
	logger        *zap.Logger
	metrics       *metrics.Registry
}

// New creates an empty canvas evaluating with opts.Registry.
func New(opts Options) (*Canvas, error) {
	if opts.Registry == nil {
		return nil, errors.New("canvas: nil compute registry")
	}
	logger := logging.OrNop(opts.Logger)
	c := &Canvas{
		id:      uuid.New(),
		state:   newState(),
		width:   opts.Width,
		height:  opts.Height,
		logger:  logger,
		metrics: opts.Metrics,
		evaluator: eval.New(opts.Registry,
			eval.WithLogger(logger),
			eval.WithMetrics(opts.Metrics),
		),
	}
	var err error
	if c.output, err = imaging.NewFilled(c.width, c.height, color.RGBA{255, 255, 255, 255}); err != nil {
		return nil, fmt.Errorf("canvas: %w", err)
	}
	if c.blank, err = imaging.New(c.width, c.height); err != nil {
		return nil, fmt.Errorf("canvas: %w", err)
	}
	c.logger = c.logger.With(zap.Stringer("session", c.id))
	return c, nil
}

// ID identifies the session in logs.
func (c *Canvas) ID() uuid.UUID { return c.id }

// Size returns the size used for generated and default images.
func (c *Canvas) Size() (int, int) { return c.width, c.height }

// Graph exposes the underlying graph for read access.
func (c *Canvas) Graph() *eval.Graph { return c.g }

// RootID returns the Output node id, or NoRoot.
func (c *Canvas) RootID() int { return c.root }

// Output returns the last successfully evaluated image. Before the first
// evaluation it is opaque white.
func (c *Canvas) Output() *imaging.Image { return c.output }

// Invalidated reports whether an edit is waiting to be evaluated.
func (c *Canvas) Invalidated() bool { return c.invalidated }

// Invalidate marks the output stale.
func (c *Canvas) Invalidate() { c.invalidated = true }

// UINodes returns the placed operators in creation order.
func (c *Canvas) UINodes() []UINode {
	out := make([]UINode, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = *n
		out[i].Slots = append([]int(nil), n.Slots...)
	}
	return out
}

// UINode returns the placed operator with the given id.
func (c *Canvas) UINode(id int) (UINode, bool) {
	n, ok := c.byID[id]
	if !ok {
		return UINode{}, false
	}
	cp := *n
	cp.Slots = append([]int(nil), n.Slots...)
	return cp, true
}

// Node returns the graph payload for id, operator or slot.
func (c *Canvas) Node(id int) (*node.Node, error) {
	return c.g.Node(id)
}

// SlotOwner returns the operator owning slot.
func (c *Canvas) SlotOwner(slot int) (int, bool) {
	owner, ok := c.slotOwner[slot]
	return owner, ok
}

// Links returns the slot-to-producer edges, ordered by edge id.
func (c *Canvas) Links() []graph.Edge {
	var links []graph.Edge
	for _, e := range c.g.AllEdges() {
		if _, ok := c.slotOwner[e.From]; ok {
			links = append(links, e)
		}
	}
	return links
}

// Update evaluates the graph if an edit invalidated it and an Output node
// exists. It reports whether a new output was produced. On failure the
// previous output is kept and the canvas is no longer marked invalid, so
// the same error is not reported again until the next edit.
func (c *Canvas) Update() (bool, error) {
	if !c.invalidated || c.root == NoRoot {
		return false, nil
	}
	c.invalidated = false
	if _, err := c.Evaluate(); err != nil {
		return false, err
	}
	return true, nil
}

// Evaluate computes the output now, regardless of invalidation.
func (c *Canvas) Evaluate() (*imaging.Image, error) {
	if c.root == NoRoot {
		return nil, eval.ErrNoRoot
	}
	img, err := c.evaluator.Evaluate(c.g, c.root)
	if err != nil {
		c.logger.Warn("evaluation failed", zap.Int("root", c.root), zap.Error(err))
		return nil, err
	}
	c.output = img
	return img, nil
}

// Clear removes every node and resets the root.
func (c *Canvas) Clear() {
	c.state = newState()
	c.invalidated = false
	c.logger.Info("canvas cleared")
	c.edited("clear", nil)
}

func (c *Canvas) edited(op string, err error) {
	c.metrics.RecordEdit(op, err)
	if err != nil {
		c.logger.Debug("edit rejected", zap.String("op", op), zap.Error(err))
		return
	}
	c.metrics.SetGraphSize(c.g.NodeCount(), c.g.EdgeCount())
}

func (c *Canvas) operator(id int) (*UINode, error) {
	n, ok := c.byID[id]
	if !ok {
		if c.g.HasNode(id) {
			return nil, fmt.Errorf("%w: %d", ErrNotOperator, id)
		}
		return nil, fmt.Errorf("node %d: %w", id, graph.ErrNotFound)
	}
	return n, nil
}
