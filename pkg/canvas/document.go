package canvas

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/strata/pkg/graph"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
	"github.com/chazu/strata/pkg/project"
	"go.uber.org/zap"
)

// Document captures the canvas for saving.
func (c *Canvas) Document() *project.Document {
	doc := &project.Document{}
	for _, ui := range c.nodes {
		n, err := c.g.Node(ui.ID)
		if err != nil {
			continue
		}
		doc.Nodes = append(doc.Nodes, project.NodeRecord{
			Kind:     ui.Kind,
			ID:       ui.ID,
			Position: ui.Position,
			Slots:    append([]int(nil), ui.Slots...),
			Params:   n.Params,
		})
	}
	for _, e := range c.Links() {
		doc.Links = append(doc.Links, project.Link{Slot: e.From, Producer: e.To})
	}
	return doc
}

// LoadDocument replaces the canvas with doc. Ids are reassigned; the
// document's ids only relate its links to its nodes. On error the canvas
// is left as it was.
func (c *Canvas) LoadDocument(doc *project.Document) error {
	next, err := c.build(doc)
	c.metrics.RecordLoad(err)
	if err != nil {
		c.logger.Warn("project load failed", zap.Error(err))
		return err
	}
	c.state = next
	c.invalidated = true
	c.metrics.SetGraphSize(c.g.NodeCount(), c.g.EdgeCount())
	c.logger.Info("project loaded",
		zap.Int("nodes", len(c.nodes)),
		zap.Int("links", len(doc.Links)),
	)
	return nil
}

func (c *Canvas) build(doc *project.Document) (*state, error) {
	if err := doc.Check(); err != nil {
		return nil, err
	}
	s := newState()
	fix := make(map[int]int)

	for _, rec := range doc.Nodes {
		var value *imaging.Image
		params := rec.Params
		switch p := params.(type) {
		case node.ImageParams:
			img, err := imaging.Load(p.Path)
			if err != nil {
				return nil, err
			}
			value = img
		case node.DynamicImageParams:
			img, err := c.loadSequence(&p)
			if err != nil {
				return nil, err
			}
			value, params = img, p
		}
		ui, err := s.addOperator(rec.Kind, params, rec.Position, value, c.blank)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", rec.ID, err)
		}
		fix[rec.ID] = ui.ID
		for i, slot := range rec.Slots {
			fix[slot] = ui.Slots[i]
		}
	}

	for _, l := range doc.Links {
		slot, ok := fix[l.Slot]
		if !ok {
			return nil, fmt.Errorf("%w: slot %d", project.ErrUnresolvedID, l.Slot)
		}
		producer, ok := fix[l.Producer]
		if !ok {
			return nil, fmt.Errorf("%w: producer %d", project.ErrUnresolvedID, l.Producer)
		}
		if _, err := s.connect(producer, slot); err != nil {
			return nil, fmt.Errorf("link %d -> %d: %w", l.Slot, l.Producer, err)
		}
	}

	if errs := graph.Validate(s.g); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("%w: %w", project.ErrMalformed, errors.Join(joined...))
	}
	return s, nil
}

// Save writes the canvas to path.
func (c *Canvas) Save(path string) error {
	if err := project.SaveFile(path, c.Document()); err != nil {
		return err
	}
	c.logger.Info("project saved", zap.String("path", path))
	return nil
}

// Load replaces the canvas with the project at path.
func (c *Canvas) Load(path string) error {
	doc, err := project.LoadFile(path)
	if err != nil {
		c.metrics.RecordLoad(err)
		return err
	}
	return c.LoadDocument(doc)
}

// Slots returns every slot id in ascending order.
func (c *Canvas) Slots() []int {
	slots := make([]int, 0, len(c.slotOwner))
	for id := range c.slotOwner {
		slots = append(slots, id)
	}
	sort.Ints(slots)
	return slots
}
