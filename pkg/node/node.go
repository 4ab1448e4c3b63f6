package node

import (
	"fmt"

	"github.com/chazu/strata/pkg/imaging"
)

// Node is the payload stored in the graph for every vertex, operators and
// slots alike.
type Node struct {
	Kind   Kind
	Name   string
	Params Params

	// Value is the most recently computed image. For slots it is the
	// image supplied when nothing is connected; for Image and
	// DynamicImage nodes it is the loaded file.
	Value *imaging.Image
}

// New creates a node of kind k with the given params. A nil params means
// the kind's defaults.
func New(k Kind, params Params) (*Node, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown node kind %d", int(k))
	}
	if params == nil {
		params = DefaultParams(k, 1, 1)
	}
	if params.Kind() != k {
		return nil, fmt.Errorf("%w: %s params on %s node", ErrInvalidParams, params.Kind(), k)
	}
	return &Node{Kind: k, Name: k.String(), Params: params}, nil
}

// NewSlot creates a Value node holding img.
func NewSlot(name string, img *imaging.Image) *Node {
	return &Node{Kind: KindValue, Name: name, Params: ValueParams{}, Value: img}
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Kind, n.Name)
}
