package canvas_test

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/strata/pkg/canvas"
	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/compute/software"
	"github.com/chazu/strata/pkg/graph"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/metrics"
	"github.com/chazu/strata/pkg/node"
	"github.com/chazu/strata/pkg/project"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const size = 4

func newCanvas(t *testing.T) *canvas.Canvas {
	t.Helper()
	return newCanvasWith(t, software.New(software.Options{Width: size, Height: size}).Registry(), nil)
}

func newCanvasWith(t *testing.T, reg *compute.Registry, m *metrics.Registry) *canvas.Canvas {
	t.Helper()
	c, err := canvas.New(canvas.Options{Width: size, Height: size, Registry: reg, Metrics: m})
	require.NoError(t, err)
	return c
}

func add(t *testing.T, c *canvas.Canvas, k node.Kind) int {
	t.Helper()
	id, err := c.AddOperatorNode(k, node.Vec2{})
	require.NoError(t, err)
	return id
}

func slot(t *testing.T, c *canvas.Canvas, id, i int) int {
	t.Helper()
	ui, ok := c.UINode(id)
	require.True(t, ok)
	require.Greater(t, len(ui.Slots), i)
	return ui.Slots[i]
}

func uniform(t *testing.T, c *canvas.Canvas, r, g, b float64) int {
	t.Helper()
	id := add(t, c, node.KindUniformColor)
	require.NoError(t, c.SetParams(id, node.UniformColorParams{Color: node.Color{R: r, G: g, B: b, A: 1}}))
	return id
}

func filled(t *testing.T, rgba color.RGBA) *imaging.Image {
	t.Helper()
	img, err := imaging.NewFilled(size, size, rgba)
	require.NoError(t, err)
	return img
}

func TestUniformColorToOutput(t *testing.T) {
	c := newCanvas(t)
	red := uniform(t, c, 1, 0, 0)
	out := add(t, c, node.KindOutput)
	_, err := c.Link(slot(t, c, out, 0), red)
	require.NoError(t, err)

	updated, err := c.Update()
	require.NoError(t, err)
	assert.True(t, updated)
	assert.True(t, filled(t, color.RGBA{255, 0, 0, 255}).Equal(c.Output()))

	updated, err = c.Update()
	require.NoError(t, err)
	assert.False(t, updated, "nothing changed since the last evaluation")
}

func TestInitialOutputIsWhite(t *testing.T) {
	c := newCanvas(t)
	assert.True(t, filled(t, color.RGBA{255, 255, 255, 255}).Equal(c.Output()))
	assert.Equal(t, canvas.NoRoot, c.RootID())
}

func TestAddingNodesDoesNotInvalidate(t *testing.T) {
	c := newCanvas(t)
	add(t, c, node.KindBlend)
	add(t, c, node.KindOutput)
	assert.False(t, c.Invalidated())

	require.NoError(t, c.SetPosition(add(t, c, node.KindInvert), node.Vec2{X: 5, Y: 6}))
	assert.False(t, c.Invalidated())
}

func TestAddOperatorNodeCreatesSlots(t *testing.T) {
	c := newCanvas(t)
	blend := add(t, c, node.KindBlend)
	noise := add(t, c, node.KindNoise)

	ui, _ := c.UINode(blend)
	require.Len(t, ui.Slots, 2)
	for i, s := range ui.Slots {
		n, err := c.Node(s)
		require.NoError(t, err)
		assert.Equal(t, node.KindValue, n.Kind)
		assert.Equal(t, []string{"lhs", "rhs"}[i], n.Name)
		owner, ok := c.SlotOwner(s)
		assert.True(t, ok)
		assert.Equal(t, blend, owner)
		_, found := c.Graph().FindEdge(blend, s)
		assert.True(t, found)
	}

	ui, _ = c.UINode(noise)
	assert.Empty(t, ui.Slots)
	n, err := c.Node(noise)
	require.NoError(t, err)
	assert.Equal(t, size, n.Params.(node.NoiseParams).Width)
}

func TestAddOperatorNodeRejects(t *testing.T) {
	c := newCanvas(t)
	add(t, c, node.KindOutput)

	_, err := c.AddOperatorNode(node.KindOutput, node.Vec2{})
	assert.ErrorIs(t, err, canvas.ErrRootExists)

	for _, k := range []node.Kind{node.KindValue, node.KindImage, node.KindDynamicImage, node.Kind(99)} {
		_, err := c.AddOperatorNode(k, node.Vec2{})
		assert.ErrorIs(t, err, canvas.ErrNotOperator, k.String())
	}
}

func TestLinkNormalizesDirection(t *testing.T) {
	c := newCanvas(t)
	red := uniform(t, c, 1, 0, 0)
	inv := add(t, c, node.KindInvert)
	in := slot(t, c, inv, 0)

	id, err := c.Link(red, in)
	require.NoError(t, err)
	e, err := c.Graph().Edge(id)
	require.NoError(t, err)
	assert.Equal(t, graph.Edge{ID: id, From: in, To: red}, e)

	_, err = c.Link(red, inv)
	assert.ErrorIs(t, err, canvas.ErrInvalidLink)
}

func TestConnectReplacesExistingLink(t *testing.T) {
	c := newCanvas(t)
	a := uniform(t, c, 1, 0, 0)
	b := uniform(t, c, 0, 1, 0)
	out := add(t, c, node.KindOutput)
	in := slot(t, c, out, 0)

	_, err := c.ConnectSlot(a, in)
	require.NoError(t, err)
	_, err = c.ConnectSlot(b, in)
	require.NoError(t, err)

	edges := c.Graph().EdgesFromNode(in)
	require.Len(t, edges, 1)
	assert.Equal(t, b, edges[0].To)
	assert.Len(t, c.Links(), 1)
}

func TestConnectSlotRejects(t *testing.T) {
	c := newCanvas(t)
	red := uniform(t, c, 1, 0, 0)
	a := add(t, c, node.KindInvert)
	b := add(t, c, node.KindHSL)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(a, slot(t, c, b, 0))
	require.NoError(t, err)
	c.Update()

	tests := []struct {
		name           string
		producer, slot int
		want           error
	}{
		{"self feed", a, slot(t, c, a, 0), canvas.ErrInvalidLink},
		{"cycle", b, slot(t, c, a, 0), canvas.ErrInvalidLink},
		{"output producer", out, slot(t, c, a, 0), canvas.ErrInvalidLink},
		{"slot producer", slot(t, c, out, 0), slot(t, c, a, 0), canvas.ErrInvalidLink},
		{"operator as slot", red, a, canvas.ErrNotSlot},
		{"unknown slot", red, 999, graph.ErrNotFound},
		{"unknown producer", 999, slot(t, c, a, 0), graph.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges := c.Graph().EdgeCount()
			_, err := c.ConnectSlot(tt.producer, tt.slot)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, edges, c.Graph().EdgeCount())
			assert.False(t, c.Invalidated())
		})
	}
}

func TestDisconnectEdge(t *testing.T) {
	c := newCanvas(t)
	red := uniform(t, c, 1, 0, 0)
	out := add(t, c, node.KindOutput)
	link, err := c.Link(slot(t, c, out, 0), red)
	require.NoError(t, err)
	_, err = c.Update()
	require.NoError(t, err)

	structural, ok := c.Graph().FindEdge(out, slot(t, c, out, 0))
	require.True(t, ok)
	assert.ErrorIs(t, c.DisconnectEdge(structural.ID), canvas.ErrStructuralEdge)
	assert.ErrorIs(t, c.DisconnectEdge(999), graph.ErrNotFound)
	assert.False(t, c.Invalidated())

	require.NoError(t, c.DisconnectEdge(link))
	assert.True(t, c.Invalidated())
	assert.Empty(t, c.Links())
}

func TestDeletingOutputLinkFallsBackToSlotImage(t *testing.T) {
	c := newCanvas(t)
	red := uniform(t, c, 1, 0, 0)
	out := add(t, c, node.KindOutput)
	link, err := c.Link(slot(t, c, out, 0), red)
	require.NoError(t, err)
	_, err = c.Update()
	require.NoError(t, err)

	require.NoError(t, c.DisconnectEdge(link))
	updated, err := c.Update()
	require.NoError(t, err)
	assert.True(t, updated)
	assert.True(t, filled(t, color.RGBA{}).Equal(c.Output()), "an unconnected output slot yields its transparent default")
}

func TestDeleteNodeRemovesSlotsAndEdges(t *testing.T) {
	c := newCanvas(t)
	a := uniform(t, c, 1, 0, 0)
	b := uniform(t, c, 0, 0, 1)
	blend := add(t, c, node.KindBlend)
	out := add(t, c, node.KindOutput)
	_, err := c.Link(slot(t, c, blend, 0), a)
	require.NoError(t, err)
	_, err = c.Link(slot(t, c, blend, 1), b)
	require.NoError(t, err)
	_, err = c.Link(slot(t, c, out, 0), blend)
	require.NoError(t, err)
	slots := append([]int(nil), mustUI(t, c, blend).Slots...)

	nodes := c.Graph().NodeCount()
	require.NoError(t, c.DeleteNode(blend))
	assert.Equal(t, nodes-3, c.Graph().NodeCount())
	for _, id := range append(slots, blend) {
		assert.False(t, c.Graph().HasNode(id))
		assert.Empty(t, c.Graph().EdgesToNode(id))
		assert.Empty(t, c.Graph().EdgesFromNode(id))
	}
	assert.Empty(t, c.Links())
	assert.True(t, c.Invalidated())

	assert.ErrorIs(t, c.DeleteNode(slot(t, c, out, 0)), canvas.ErrNotOperator)
	assert.ErrorIs(t, c.DeleteNode(blend), graph.ErrNotFound)
}

func TestDeleteOutputClearsRoot(t *testing.T) {
	c := newCanvas(t)
	out := add(t, c, node.KindOutput)
	assert.Equal(t, out, c.RootID())

	require.NoError(t, c.DeleteNode(out))
	assert.Equal(t, canvas.NoRoot, c.RootID())
	updated, err := c.Update()
	require.NoError(t, err)
	assert.False(t, updated, "no root, no evaluation")

	_, err = c.AddOperatorNode(node.KindOutput, node.Vec2{})
	assert.NoError(t, err)
}

func TestDeleteSelection(t *testing.T) {
	c := newCanvas(t)
	a := add(t, c, node.KindInvert)
	b := add(t, c, node.KindNoise)

	assert.False(t, c.DeleteSelection(nil))
	assert.False(t, c.DeleteSelection([]int{slot(t, c, a, 0), 999}))
	assert.False(t, c.Invalidated())

	assert.True(t, c.DeleteSelection([]int{a, 999, b}))
	assert.Empty(t, c.UINodes())
	assert.Zero(t, c.Graph().NodeCount())
}

func TestBlendAddWhiteBlack(t *testing.T) {
	c := newCanvas(t)
	white := uniform(t, c, 1, 1, 1)
	black := uniform(t, c, 0, 0, 0)
	blend := add(t, c, node.KindBlend)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(white, slot(t, c, blend, 0))
	require.NoError(t, err)
	_, err = c.ConnectSlot(black, slot(t, c, blend, 1))
	require.NoError(t, err)
	_, err = c.ConnectSlot(blend, slot(t, c, out, 0))
	require.NoError(t, err)

	_, err = c.Update()
	require.NoError(t, err)
	assert.True(t, filled(t, color.RGBA{255, 255, 255, 255}).Equal(c.Output()))
}

func TestChangingNoiseSeedReevaluates(t *testing.T) {
	c := newCanvas(t)
	noise := add(t, c, node.KindNoise)
	inv := add(t, c, node.KindInvert)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(noise, slot(t, c, inv, 0))
	require.NoError(t, err)
	_, err = c.ConnectSlot(inv, slot(t, c, out, 0))
	require.NoError(t, err)

	params := node.NoiseParams{Mode: node.NoiseRaw, Width: size, Height: size, Seed: 42, Scale: 1}
	require.NoError(t, c.SetParams(noise, params))
	_, err = c.Update()
	require.NoError(t, err)
	first := c.Output()

	params.Seed = 43
	require.NoError(t, c.SetParams(noise, params))
	assert.True(t, c.Invalidated())
	updated, err := c.Update()
	require.NoError(t, err)
	assert.True(t, updated)
	assert.False(t, first.Equal(c.Output()))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	c := newCanvas(t)
	noise := add(t, c, node.KindNoise)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(noise, slot(t, c, out, 0))
	require.NoError(t, err)

	first, err := c.Evaluate()
	require.NoError(t, err)
	second, err := c.Evaluate()
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestSharedProducerRunsOncePerEvaluation(t *testing.T) {
	const depth = 16
	reg := software.New(software.Options{Width: size, Height: size}).Registry()
	runs := 0
	for _, k := range reg.Kinds() {
		op, err := reg.Lookup(k)
		require.NoError(t, err)
		reg.Register(k, compute.OperatorFunc(func(inputs []*imaging.Image, p node.Params) (*imaging.Image, error) {
			runs++
			return op.Run(inputs, p)
		}))
	}
	c := newCanvasWith(t, reg, nil)

	prev := uniform(t, c, 0.01, 0.01, 0.01)
	for i := 0; i < depth; i++ {
		blend := add(t, c, node.KindBlend)
		require.NoError(t, c.SetParams(blend, node.BlendParams{Mode: node.BlendAdd}))
		for s := 0; s < 2; s++ {
			_, err := c.ConnectSlot(prev, slot(t, c, blend, s))
			require.NoError(t, err)
		}
		prev = blend
	}
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(prev, slot(t, c, out, 0))
	require.NoError(t, err)

	img, err := c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, depth+1, runs, "one run per operator")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.At(0, 0))

	runs = 0
	_, err = c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, depth+1, runs, "every evaluation recomputes from scratch")
}

func TestFailedEvaluationKeepsOutput(t *testing.T) {
	reg := software.New(software.Options{Width: size, Height: size}).Registry()
	fail := true
	inner, err := reg.Lookup(node.KindInvert)
	require.NoError(t, err)
	reg.Register(node.KindInvert, compute.OperatorFunc(func(in []*imaging.Image, p node.Params) (*imaging.Image, error) {
		if fail {
			return nil, errors.New("device lost")
		}
		return inner.Run(in, p)
	}))
	m := metrics.NewRegistry()
	c := newCanvasWith(t, reg, m)

	red := uniform(t, c, 1, 0, 0)
	inv := add(t, c, node.KindInvert)
	out := add(t, c, node.KindOutput)
	_, err = c.ConnectSlot(red, slot(t, c, inv, 0))
	require.NoError(t, err)
	_, err = c.ConnectSlot(inv, slot(t, c, out, 0))
	require.NoError(t, err)

	before := c.Output()
	updated, err := c.Update()
	assert.Error(t, err)
	assert.False(t, updated)
	assert.Same(t, before, c.Output())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("error")))

	updated, err = c.Update()
	assert.NoError(t, err)
	assert.False(t, updated, "a failed evaluation is not retried")

	fail = false
	require.NoError(t, c.SetParams(inv, node.InvertParams{Channels: node.ChannelsRGB}))
	updated, err = c.Update()
	require.NoError(t, err)
	assert.True(t, updated)
	assert.True(t, filled(t, color.RGBA{0, 255, 255, 255}).Equal(c.Output()))
}

func TestSetParams(t *testing.T) {
	c := newCanvas(t)
	hsl := add(t, c, node.KindHSL)

	assert.ErrorIs(t, c.SetParams(hsl, node.BlendParams{}), canvas.ErrKindMismatch)
	assert.ErrorIs(t, c.SetParams(hsl, node.HSLParams{Hue: 3}), node.ErrInvalidParams)
	assert.ErrorIs(t, c.SetParams(slot(t, c, hsl, 0), node.HSLParams{}), canvas.ErrNotOperator)
	assert.False(t, c.Invalidated())

	require.NoError(t, c.SetParams(hsl, node.HSLParams{Hue: 0.5}))
	assert.True(t, c.Invalidated())
	n, err := c.Node(hsl)
	require.NoError(t, err)
	assert.Equal(t, node.HSLParams{Hue: 0.5}, n.Params)
}

func TestSetSlotValue(t *testing.T) {
	c := newCanvas(t)
	out := add(t, c, node.KindOutput)
	green := filled(t, color.RGBA{0, 255, 0, 255})

	assert.ErrorIs(t, c.SetSlotValue(out, green), canvas.ErrNotSlot)
	require.NoError(t, c.SetSlotValue(slot(t, c, out, 0), green))

	_, err := c.Update()
	require.NoError(t, err)
	assert.True(t, green.Equal(c.Output()))
}

func TestEditMetrics(t *testing.T) {
	m := metrics.NewRegistry()
	c := newCanvasWith(t, software.New(software.Options{Width: size, Height: size}).Registry(), m)
	add(t, c, node.KindOutput)
	_, err := c.AddOperatorNode(node.KindOutput, node.Vec2{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EditsTotal.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EditsTotal.WithLabelValues("add", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GraphNodes))
}

func TestClear(t *testing.T) {
	c := newCanvas(t)
	add(t, c, node.KindOutput)
	add(t, c, node.KindBlend)
	c.Clear()

	assert.Equal(t, canvas.NoRoot, c.RootID())
	assert.Empty(t, c.UINodes())
	assert.Zero(t, c.Graph().NodeCount())
	_, err := c.AddOperatorNode(node.KindOutput, node.Vec2{})
	assert.NoError(t, err)
}

func mustUI(t *testing.T, c *canvas.Canvas, id int) canvas.UINode {
	t.Helper()
	ui, ok := c.UINode(id)
	require.True(t, ok)
	return ui
}

func writeImage(t *testing.T, path string, rgba color.RGBA) {
	t.Helper()
	require.NoError(t, imaging.Save(filled(t, rgba), path))
}

func TestImageNode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blue.png")
	writeImage(t, path, color.RGBA{0, 0, 255, 255})

	c := newCanvas(t)
	img := mustAdd(c.AddImageNode(path, node.Vec2{X: 1}))(t)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(img, slot(t, c, out, 0))
	require.NoError(t, err)
	_, err = c.Update()
	require.NoError(t, err)
	assert.True(t, filled(t, color.RGBA{0, 0, 255, 255}).Equal(c.Output()))

	_, err = c.AddImageNode(filepath.Join(dir, "missing.png"), node.Vec2{})
	assert.Error(t, err)
	assert.Len(t, c.UINodes(), 2)
}

func mustAdd(id int, err error) func(*testing.T) int {
	return func(t *testing.T) int {
		t.Helper()
		require.NoError(t, err)
		return id
	}
}

func TestExportSingle(t *testing.T) {
	c := newCanvas(t)
	red := uniform(t, c, 1, 0, 0)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(red, slot(t, c, out, 0))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.png")
	files, err := c.Export(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)

	got, err := imaging.Load(path)
	require.NoError(t, err)
	assert.True(t, filled(t, color.RGBA{255, 0, 0, 255}).Equal(got))
}

func sequenceFolder(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := range n {
		writeImage(t, filepath.Join(dir, fmt.Sprintf("frame%02d.png", i)), color.RGBA{uint8(10 * i), 0, 0, 255})
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))
	return dir
}

func TestBatchExport(t *testing.T) {
	const frames = 4
	folder := sequenceFolder(t, frames)
	m := metrics.NewRegistry()
	c := newCanvasWith(t, software.New(software.Options{Width: size, Height: size}).Registry(), m)

	dyn := mustAdd(c.AddDynamicImageNode(folder, node.Vec2{}))(t)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(dyn, slot(t, c, out, 0))
	require.NoError(t, err)

	outDir := t.TempDir()
	files, err := c.Export(filepath.Join(outDir, "render.png"))
	require.NoError(t, err)
	require.Len(t, files, frames)
	for i, f := range files {
		assert.Equal(t, filepath.Join(outDir, fmt.Sprintf("render_%d.png", i)), f)
		got, err := imaging.Load(f)
		require.NoError(t, err)
		// The first export shows the frame after the current one.
		want := uint8(10 * ((i + 1) % frames))
		assert.Equal(t, color.RGBA{want, 0, 0, 255}, got.At(0, 0))
	}

	n, err := c.Node(dyn)
	require.NoError(t, err)
	assert.Zero(t, n.Params.(node.DynamicImageParams).Cursor)
	assert.Equal(t, float64(frames), testutil.ToFloat64(m.ExportedImages))
}

func TestBatchExportStopsAtFirstWrap(t *testing.T) {
	c := newCanvas(t)
	short := mustAdd(c.AddDynamicImageNode(sequenceFolder(t, 2), node.Vec2{}))(t)
	long := mustAdd(c.AddDynamicImageNode(sequenceFolder(t, 5), node.Vec2{}))(t)
	blend := add(t, c, node.KindBlend)
	out := add(t, c, node.KindOutput)
	_, err := c.ConnectSlot(short, slot(t, c, blend, 0))
	require.NoError(t, err)
	_, err = c.ConnectSlot(long, slot(t, c, blend, 1))
	require.NoError(t, err)
	_, err = c.ConnectSlot(blend, slot(t, c, out, 0))
	require.NoError(t, err)

	files, err := c.Export(filepath.Join(t.TempDir(), "mix.png"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestBatchExportWithoutRoot(t *testing.T) {
	c := newCanvas(t)
	mustAdd(c.AddDynamicImageNode(sequenceFolder(t, 2), node.Vec2{}))(t)
	_, err := c.Export(filepath.Join(t.TempDir(), "x.png"))
	assert.Error(t, err)
}

func TestRefreshFolder(t *testing.T) {
	folder := sequenceFolder(t, 2)
	c := newCanvas(t)
	dyn := mustAdd(c.AddDynamicImageNode(folder, node.Vec2{}))(t)

	changed, err := c.RefreshFolder(folder)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, c.Invalidated())

	writeImage(t, filepath.Join(folder, "frame99.png"), color.RGBA{0, 0, 0, 255})
	changed, err = c.RefreshFolder(folder + string(filepath.Separator))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, c.Invalidated())

	n, err := c.Node(dyn)
	require.NoError(t, err)
	assert.Len(t, n.Params.(node.DynamicImageParams).Files, 3)
}

func buildSample(t *testing.T, c *canvas.Canvas) {
	t.Helper()
	noise := add(t, c, node.KindNoise)
	red := uniform(t, c, 1, 0, 0)
	blend := add(t, c, node.KindBlend)
	levels := add(t, c, node.KindLevels)
	out := add(t, c, node.KindOutput)
	require.NoError(t, c.SetParams(blend, node.BlendParams{Mode: node.BlendMultiply}))
	require.NoError(t, c.SetPosition(blend, node.Vec2{X: 120, Y: -40}))
	_, err := c.ConnectSlot(noise, slot(t, c, blend, 0))
	require.NoError(t, err)
	_, err = c.ConnectSlot(red, slot(t, c, blend, 1))
	require.NoError(t, err)
	_, err = c.ConnectSlot(blend, slot(t, c, levels, 0))
	require.NoError(t, err)
	_, err = c.ConnectSlot(levels, slot(t, c, out, 0))
	require.NoError(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"graph.strata", "graph.sgz"} {
		t.Run(name, func(t *testing.T) {
			src := newCanvas(t)
			buildSample(t, src)
			want, err := src.Evaluate()
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, src.Save(path))

			dst := newCanvas(t)
			require.NoError(t, dst.Load(path))
			assert.Equal(t, src.Document(), dst.Document())
			assert.NotEqual(t, canvas.NoRoot, dst.RootID())
			assert.True(t, dst.Invalidated())

			updated, err := dst.Update()
			require.NoError(t, err)
			assert.True(t, updated)
			assert.True(t, want.Equal(dst.Output()))
		})
	}
}

func TestLoadRemapsIDs(t *testing.T) {
	src := newCanvas(t)
	scratch := add(t, src, node.KindHSL)
	buildSample(t, src)
	require.NoError(t, src.DeleteNode(scratch))
	doc := src.Document()

	dst := newCanvas(t)
	require.NoError(t, dst.LoadDocument(doc))

	kinds := func(c *canvas.Canvas) []node.Kind {
		var ks []node.Kind
		for _, ui := range c.UINodes() {
			ks = append(ks, ui.Kind)
		}
		return ks
	}
	assert.Equal(t, kinds(src), kinds(dst))
	require.Len(t, dst.Links(), len(src.Links()))
	for _, l := range dst.Links() {
		owner, ok := dst.SlotOwner(l.From)
		require.True(t, ok)
		assert.True(t, dst.Graph().HasNode(owner))
		assert.True(t, dst.Graph().HasNode(l.To))
	}
	assert.Empty(t, graph.Validate(dst.Graph()))
}

func TestFailedLoadLeavesCanvasUntouched(t *testing.T) {
	c := newCanvas(t)
	buildSample(t, c)
	before := c.Document()
	root := c.RootID()

	bad := []*project.Document{
		{
			Nodes: []project.NodeRecord{{Kind: node.KindOutput, ID: 0, Slots: []int{1}, Params: node.OutputParams{}}},
			Links: []project.Link{{Slot: 1, Producer: 7}},
		},
		{
			Nodes: []project.NodeRecord{{Kind: node.KindImage, ID: 0, Params: node.ImageParams{Path: filepath.Join(t.TempDir(), "gone.png")}}},
		},
		{
			Nodes: []project.NodeRecord{
				{Kind: node.KindOutput, ID: 0, Slots: []int{1}, Params: node.OutputParams{}},
				{Kind: node.KindOutput, ID: 2, Slots: []int{3}, Params: node.OutputParams{}},
			},
		},
		{
			Nodes: []project.NodeRecord{
				{Kind: node.KindInvert, ID: 0, Slots: []int{1}, Params: node.InvertParams{Channels: node.ChannelsRGB}},
				{Kind: node.KindInvert, ID: 2, Slots: []int{3}, Params: node.InvertParams{Channels: node.ChannelsRGB}},
			},
			Links: []project.Link{{Slot: 1, Producer: 2}, {Slot: 3, Producer: 0}},
		},
	}
	for i, doc := range bad {
		assert.Error(t, c.LoadDocument(doc), "document %d", i)
		assert.Equal(t, before, c.Document())
		assert.Equal(t, root, c.RootID())
	}

	path := filepath.Join(t.TempDir(), "junk.strata")
	require.NoError(t, os.WriteFile(path, []byte("not a graph"), 0o644))
	assert.ErrorIs(t, c.Load(path), project.ErrBadHeader)
	assert.Equal(t, before, c.Document())
}
