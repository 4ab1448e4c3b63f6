package canvas_test

import (
	"errors"
	"testing"

	"github.com/chazu/strata/pkg/canvas"
	"github.com/chazu/strata/pkg/eval"
	"github.com/chazu/strata/pkg/graph"
	"github.com/chazu/strata/pkg/node"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestEditScripts drives a canvas with random link, unlink, delete and
// re-add operations.
func TestEditScripts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	kinds := []node.Kind{
		node.KindBlend, node.KindInvert, node.KindHSL, node.KindNoise,
		node.KindUniformColor, node.KindOutput, node.KindLevels,
	}

	properties.Property("slots keep at most one producer, the graph stays acyclic and evaluation reduces to one image", prop.ForAll(
		func(ops []int) bool {
			c := newCanvas(t)
			for _, k := range kinds {
				if _, err := c.AddOperatorNode(k, node.Vec2{}); err != nil {
					return false
				}
			}
			for _, op := range ops {
				ids := c.Graph().NodeIDs()
				if len(ids) == 0 {
					break
				}
				arg := op / 4
				a := ids[arg%len(ids)]
				b := ids[(arg/len(ids))%len(ids)]
				switch op % 4 {
				case 0, 1:
					_, _ = c.Link(a, b)
				case 2:
					if links := c.Links(); len(links) > 0 {
						_ = c.DisconnectEdge(links[arg%len(links)].ID)
					}
				case 3:
					if arg%3 == 0 {
						c.DeleteSelection([]int{a})
					} else {
						_, _ = c.AddOperatorNode(kinds[arg%len(kinds)], node.Vec2{})
					}
				}
			}

			for _, slot := range c.Slots() {
				if c.Graph().NumEdgesFromNode(slot) > 1 {
					return false
				}
			}
			for _, ui := range c.UINodes() {
				if c.Graph().NumEdgesFromNode(ui.ID) != ui.Kind.SlotCount() {
					return false
				}
			}
			if len(graph.Validate(c.Graph())) != 0 {
				return false
			}
			if c.RootID() != canvas.NoRoot {
				var inv *eval.InvariantError
				if _, err := c.Evaluate(); errors.As(err, &inv) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1<<16)),
	))

	properties.TestingRun(t)
}
