package canvas

import (
	"fmt"

	"github.com/chazu/strata/pkg/graph"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
	"go.uber.org/zap"
)

// addOperator inserts an operator, one slot per input holding blank, and
// the structural edges to them. value seeds the operator's own image and
// is only set for file-backed sources.
func (s *state) addOperator(k node.Kind, params node.Params, pos node.Vec2, value, blank *imaging.Image) (*UINode, error) {
	if !k.IsOperator() {
		return nil, fmt.Errorf("%w: %s", ErrNotOperator, k)
	}
	if k == node.KindOutput && s.root != NoRoot {
		return nil, ErrRootExists
	}
	if err := node.Validate(params); err != nil {
		return nil, err
	}
	n, err := node.New(k, params)
	if err != nil {
		return nil, err
	}
	n.Value = value

	ui := &UINode{Kind: k, ID: s.g.InsertNode(n), Position: pos}
	for _, name := range k.SlotNames() {
		slot := s.g.InsertNode(node.NewSlot(name, blank))
		if _, err := s.g.InsertEdge(ui.ID, slot); err != nil {
			return nil, err
		}
		ui.Slots = append(ui.Slots, slot)
		s.slotOwner[slot] = ui.ID
	}
	s.nodes = append(s.nodes, ui)
	s.byID[ui.ID] = ui
	if k == node.KindOutput {
		s.root = ui.ID
	}
	return ui, nil
}

// connect links slot to producer, replacing any link the slot already had.
func (s *state) connect(producer, slot int) (int, error) {
	slotNode, err := s.g.Node(slot)
	if err != nil {
		return -1, err
	}
	owner, ok := s.slotOwner[slot]
	if !ok || slotNode.Kind != node.KindValue {
		return -1, fmt.Errorf("%w: %d", ErrNotSlot, slot)
	}
	prod, err := s.g.Node(producer)
	if err != nil {
		return -1, err
	}
	switch {
	case prod.Kind == node.KindValue || prod.Kind == node.KindOutput:
		return -1, fmt.Errorf("%w: %s node %d cannot feed a slot", ErrInvalidLink, prod.Kind, producer)
	case producer == owner:
		return -1, fmt.Errorf("%w: node %d cannot feed its own slot", ErrInvalidLink, producer)
	case graph.Reachable(s.g, producer, owner):
		return -1, fmt.Errorf("%w: linking %d into %d would form a cycle", ErrInvalidLink, producer, owner)
	}

	for _, e := range s.g.EdgesFromNode(slot) {
		s.g.EraseEdge(e.ID)
	}
	return s.g.InsertEdge(slot, producer)
}

func (s *state) deleteOperator(ui *UINode) {
	for _, slot := range ui.Slots {
		s.g.EraseNode(slot)
		delete(s.slotOwner, slot)
	}
	s.g.EraseNode(ui.ID)
	delete(s.byID, ui.ID)
	for i, n := range s.nodes {
		if n == ui {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			break
		}
	}
	if s.root == ui.ID {
		s.root = NoRoot
	}
}

// AddOperatorNode places an operator of kind k with default parameters.
// Image and DynamicImage nodes need a file and are added with AddImageNode
// and AddDynamicImageNode. Adding a node does not invalidate the output.
func (c *Canvas) AddOperatorNode(k node.Kind, pos node.Vec2) (int, error) {
	if k == node.KindImage || k == node.KindDynamicImage {
		err := fmt.Errorf("%w: %s nodes are added from a path", ErrNotOperator, k)
		c.edited("add", err)
		return -1, err
	}
	ui, err := c.addOperator(k, node.DefaultParams(k, c.width, c.height), pos, nil, c.blank)
	c.edited("add", err)
	if err != nil {
		return -1, err
	}
	c.logger.Debug("node added", zap.Int("node_id", ui.ID), zap.Stringer("kind", k))
	return ui.ID, nil
}

// AddImageNode places a static image node showing the file at path.
func (c *Canvas) AddImageNode(path string, pos node.Vec2) (int, error) {
	img, err := imaging.Load(path)
	if err == nil {
		var ui *UINode
		ui, err = c.addOperator(node.KindImage, node.ImageParams{Path: path}, pos, img, c.blank)
		if err == nil {
			c.edited("add", nil)
			c.logger.Debug("image node added", zap.Int("node_id", ui.ID), zap.String("path", path))
			return ui.ID, nil
		}
	}
	c.edited("add", err)
	return -1, err
}

// AddDynamicImageNode places a node cycling through the images in folder.
func (c *Canvas) AddDynamicImageNode(folder string, pos node.Vec2) (int, error) {
	params := node.DynamicImageParams{Folder: folder}
	img, err := c.loadSequence(&params)
	if err == nil {
		var ui *UINode
		ui, err = c.addOperator(node.KindDynamicImage, params, pos, img, c.blank)
		if err == nil {
			c.edited("add", nil)
			c.logger.Debug("dynamic image node added",
				zap.Int("node_id", ui.ID),
				zap.String("folder", folder),
				zap.Int("files", len(params.Files)),
			)
			return ui.ID, nil
		}
	}
	c.edited("add", err)
	return -1, err
}

// ConnectSlot feeds slot from producer. A slot has at most one producer:
// an existing link is replaced. Always invalidates on success.
func (c *Canvas) ConnectSlot(producer, slot int) (int, error) {
	id, err := c.connect(producer, slot)
	c.edited("connect", err)
	if err != nil {
		return -1, err
	}
	c.invalidated = true
	c.logger.Debug("slot connected",
		zap.Int("edge_id", id),
		zap.Int("slot", slot),
		zap.Int("producer", producer),
	)
	return id, nil
}

// Link connects two nodes where exactly one is a slot, whichever end the
// user dragged from.
func (c *Canvas) Link(a, b int) (int, error) {
	_, aSlot := c.slotOwner[a]
	_, bSlot := c.slotOwner[b]
	switch {
	case aSlot && !bSlot:
		return c.ConnectSlot(b, a)
	case bSlot && !aSlot:
		return c.ConnectSlot(a, b)
	}
	err := fmt.Errorf("%w: link needs exactly one slot end (%d, %d)", ErrInvalidLink, a, b)
	c.edited("connect", err)
	return -1, err
}

// DisconnectEdge removes a link. Edges from an operator to its own slots
// cannot be removed this way.
func (c *Canvas) DisconnectEdge(id int) error {
	err := c.disconnect(id)
	c.edited("disconnect", err)
	return err
}

func (c *Canvas) disconnect(id int) error {
	e, err := c.g.Edge(id)
	if err != nil {
		return err
	}
	if _, ok := c.slotOwner[e.From]; !ok {
		return fmt.Errorf("%w: %d", ErrStructuralEdge, id)
	}
	c.g.EraseEdge(id)
	c.invalidated = true
	return nil
}

// DeleteNode removes an operator together with its slots and every edge
// touching them. Deleting the Output node clears the root.
func (c *Canvas) DeleteNode(id int) error {
	ui, err := c.operator(id)
	if err == nil {
		c.deleteOperator(ui)
		c.invalidated = true
		c.logger.Debug("node deleted", zap.Int("node_id", id), zap.Stringer("kind", ui.Kind))
	}
	c.edited("delete", err)
	return err
}

// DeleteSelection deletes every operator among ids, skipping anything else.
// It reports whether anything was deleted.
func (c *Canvas) DeleteSelection(ids []int) bool {
	deleted := false
	for _, id := range ids {
		if _, ok := c.byID[id]; !ok {
			continue
		}
		if c.DeleteNode(id) == nil {
			deleted = true
		}
	}
	return deleted
}

// SetParams replaces an operator's parameters. Changing an Image path or
// a DynamicImage folder reloads from disk.
func (c *Canvas) SetParams(id int, params node.Params) error {
	err := c.setParams(id, params)
	c.edited("params", err)
	return err
}

func (c *Canvas) setParams(id int, params node.Params) error {
	ui, err := c.operator(id)
	if err != nil {
		return err
	}
	if params == nil || params.Kind() != ui.Kind {
		return fmt.Errorf("%w: node %d is %s", ErrKindMismatch, id, ui.Kind)
	}
	if err := node.Validate(params); err != nil {
		return err
	}
	n, err := c.g.Node(id)
	if err != nil {
		return err
	}

	switch p := params.(type) {
	case node.ImageParams:
		if old, _ := n.Params.(node.ImageParams); old.Path != p.Path || n.Value == nil {
			img, err := imaging.Load(p.Path)
			if err != nil {
				return err
			}
			n.Value = img
		}
	case node.DynamicImageParams:
		old, _ := n.Params.(node.DynamicImageParams)
		if old.Folder == p.Folder {
			// Files and Cursor are owned by the canvas.
			p.Files, p.Cursor = old.Files, old.Cursor
		} else {
			img, err := c.loadSequence(&p)
			if err != nil {
				return err
			}
			n.Value = img
		}
		params = p
	}

	n.Params = params
	c.invalidated = true
	return nil
}

// SetSlotValue sets the image a slot contributes when nothing is linked
// to it.
func (c *Canvas) SetSlotValue(slot int, img *imaging.Image) error {
	err := c.setSlotValue(slot, img)
	c.edited("slot-value", err)
	return err
}

func (c *Canvas) setSlotValue(slot int, img *imaging.Image) error {
	if _, ok := c.slotOwner[slot]; !ok {
		return fmt.Errorf("%w: %d", ErrNotSlot, slot)
	}
	if img == nil {
		return fmt.Errorf("slot %d: nil image", slot)
	}
	n, err := c.g.Node(slot)
	if err != nil {
		return err
	}
	n.Value = img
	c.invalidated = true
	return nil
}

// SetPosition moves an operator. Layout never invalidates.
func (c *Canvas) SetPosition(id int, pos node.Vec2) error {
	ui, err := c.operator(id)
	if err != nil {
		return err
	}
	ui.Position = pos
	return nil
}
