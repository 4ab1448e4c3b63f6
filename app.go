package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chazu/strata/pkg/canvas"
	"github.com/chazu/strata/pkg/compute"
	"github.com/chazu/strata/pkg/compute/software"
	"github.com/chazu/strata/pkg/config"
	"github.com/chazu/strata/pkg/engine"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/metrics"
	"github.com/chazu/strata/pkg/node"
	"github.com/chazu/strata/pkg/watch"
	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
)

// previewSize bounds the longest side of images sent to the frontend.
const previewSize = 1024

// outputChangedEvent is emitted when a folder refresh produced a new output.
const outputChangedEvent = "output-changed"

// App is the Wails backend. It exposes methods to the frontend via bindings.
// All bindings share one canvas; mu serializes them, which keeps the canvas
// single-threaded.
type App struct {
	ctx context.Context

	mu       sync.Mutex
	cfg      *config.Config
	cfgPath  string
	logger   *zap.Logger
	metrics  *metrics.Registry
	registry *compute.Registry
	engine   *engine.Engine
	canvas   *canvas.Canvas
	watcher  *watch.Watcher

	done  chan struct{} // closed by shutdown
	loops sync.WaitGroup
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// WarningData is a JSON-serializable script warning.
type WarningData struct {
	NodeID  int    `json:"nodeId"`
	Message string `json:"message"`
}

// NodeView describes one operator node for the node editor.
type NodeView struct {
	ID     int             `json:"id"`
	Kind   string          `json:"kind"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Slots  []int           `json:"slots"`
	Params json.RawMessage `json:"params"`
}

// LinkView is a slot-to-producer link.
type LinkView struct {
	ID       int `json:"id"`
	Slot     int `json:"slot"`
	Producer int `json:"producer"`
}

// GraphView is the whole editable graph.
type GraphView struct {
	Nodes []NodeView `json:"nodes"`
	Links []LinkView `json:"links"`
	Root  int        `json:"root"`
}

// ScriptResult is returned by RunScript.
type ScriptResult struct {
	Errors   []EvalErrorData `json:"errors"`
	Warnings []WarningData   `json:"warnings"`
	Graph    GraphView       `json:"graph"`
}

// ExplorerEntry is one item of a folder listing.
type ExplorerEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

// NewApp creates an App with the software backend and an empty canvas.
// cfgPath is where explorer root changes are written back; empty disables
// saving.
func NewApp(cfg *config.Config, cfgPath string, logger *zap.Logger, m *metrics.Registry) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		metrics: m,
		registry: software.New(software.Options{
			Width:  cfg.Image.DefaultWidth,
			Height: cfg.Image.DefaultHeight,
		}).Registry(),
	}
	a.engine = engine.NewEngine(a.newCanvas,
		engine.WithTimeout(cfg.Script.Timeout),
		engine.WithLogger(logger.Named("engine")),
	)

	c, err := a.newCanvas()
	if err != nil {
		return nil, err
	}
	a.canvas = c
	return a, nil
}

func (a *App) newCanvas() (*canvas.Canvas, error) {
	return canvas.New(canvas.Options{
		Width:    a.cfg.Image.DefaultWidth,
		Height:   a.cfg.Image.DefaultHeight,
		Registry: a.registry,
		Logger:   a.logger.Named("canvas"),
		Metrics:  a.metrics,
	})
}

// startup is called by Wails on app startup. The context is saved
// so we can emit runtime events later.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if !a.cfg.Watch.Enabled {
		return
	}
	w, err := watch.New(a.cfg.Watch.Debounce, a.logger.Named("watch"))
	if err != nil {
		a.logger.Error("folder watcher disabled", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.watcher = w
	a.syncWatcher()
	a.mu.Unlock()

	w.Start()
	a.done = make(chan struct{})
	a.loops.Add(1)
	go func() {
		defer a.loops.Done()
		a.forwardFolderEvents(w.Events(), a.done)
	}()
}

// forwardFolderEvents re-renders for each changed folder until done closes.
func (a *App) forwardFolderEvents(events <-chan string, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case folder := <-events:
			if a.refreshFolder(folder) {
				a.emit(outputChangedEvent)
			}
		}
	}
}

// shutdown is called by Wails when the window closes.
func (a *App) shutdown(context.Context) {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.done != nil {
		close(a.done)
		a.loops.Wait()
	}
	_ = a.logger.Sync()
}

func (a *App) emit(name string) {
	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, name)
	}
}

// syncWatcher points the watcher at the folders the canvas uses. Callers
// hold mu.
func (a *App) syncWatcher() {
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Sync(a.sequenceFolders()); err != nil {
		a.logger.Warn("watch folders", zap.Error(err))
	}
}

func (a *App) sequenceFolders() []string {
	dynamic := lo.Filter(a.canvas.UINodes(), func(ui canvas.UINode, _ int) bool {
		return ui.Kind == node.KindDynamicImage
	})
	folders := lo.FilterMap(dynamic, func(ui canvas.UINode, _ int) (string, bool) {
		n, err := a.canvas.Node(ui.ID)
		if err != nil {
			return "", false
		}
		p, ok := n.Params.(node.DynamicImageParams)
		return p.Folder, ok
	})
	return lo.Uniq(folders)
}

// refreshFolder rescans sequences bound to folder and re-renders. It
// reports whether the output changed.
func (a *App) refreshFolder(folder string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed, err := a.canvas.RefreshFolder(folder)
	if err != nil {
		a.logger.Warn("refresh folder", zap.String("folder", folder), zap.Error(err))
	}
	if !changed {
		return false
	}
	updated, err := a.canvas.Update()
	if err != nil {
		a.logger.Warn("update after refresh", zap.Error(err))
	}
	return updated
}

// RunScript evaluates source and, when it succeeds, replaces the canvas
// with the graph it built.
func (a *App) RunScript(source string) ScriptResult {
	result := ScriptResult{
		Errors:   []EvalErrorData{},
		Warnings: []WarningData{},
	}

	res, err := a.engine.Run(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.logger.Error("script evaluation fatal error", zap.Error(err))
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		result.Graph = a.Graph()
		return result
	}

	for _, e := range res.Errors {
		result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, WarningData{NodeID: w.NodeID, Message: w.Message})
	}

	a.mu.Lock()
	if res.Canvas != nil {
		a.canvas = res.Canvas
		a.canvas.Invalidate()
		a.syncWatcher()
	}
	result.Graph = a.graphView()
	a.mu.Unlock()
	return result
}

// Graph returns the current graph.
func (a *App) Graph() GraphView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graphView()
}

func (a *App) graphView() GraphView {
	view := GraphView{Nodes: []NodeView{}, Links: []LinkView{}, Root: a.canvas.RootID()}
	for _, ui := range a.canvas.UINodes() {
		nv := NodeView{
			ID:    ui.ID,
			Kind:  ui.Kind.String(),
			X:     ui.Position.X,
			Y:     ui.Position.Y,
			Slots: ui.Slots,
		}
		if n, err := a.canvas.Node(ui.ID); err == nil {
			if raw, err := json.Marshal(n.Params); err == nil {
				nv.Params = raw
			}
		}
		view.Nodes = append(view.Nodes, nv)
	}
	for _, e := range a.canvas.Links() {
		view.Links = append(view.Links, LinkView{ID: e.ID, Slot: e.From, Producer: e.To})
	}
	return view
}

// AddNode places an operator of the named kind ("blend", "uniform-color").
func (a *App) AddNode(kind string, x, y float64) (int, error) {
	k, err := node.ParseKind(kind)
	if err != nil {
		return -1, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.AddOperatorNode(k, node.Vec2{X: x, Y: y})
}

// AddImage places an image node for a file dropped on the canvas.
func (a *App) AddImage(path string, x, y float64) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.AddImageNode(path, node.Vec2{X: x, Y: y})
}

// AddImageSequence places a node cycling through the images in folder.
func (a *App) AddImageSequence(folder string, x, y float64) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.canvas.AddDynamicImageNode(folder, node.Vec2{X: x, Y: y})
	if err == nil {
		a.syncWatcher()
	}
	return id, err
}

// Link connects two nodes; either end may be the slot.
func (a *App) Link(from, to int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.Link(from, to)
}

// Unlink removes a link by edge id.
func (a *App) Unlink(edgeID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.DisconnectEdge(edgeID)
}

// DeleteNodes removes the selected operators. It reports whether anything
// was deleted.
func (a *App) DeleteNodes(ids []int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	deleted := a.canvas.DeleteSelection(ids)
	if deleted {
		a.syncWatcher()
	}
	return deleted
}

// MoveNode records a node's editor position.
func (a *App) MoveNode(id int, x, y float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.SetPosition(id, node.Vec2{X: x, Y: y})
}

// SetParams replaces a node's parameters from JSON. Fields missing from
// raw take the kind's defaults.
func (a *App) SetParams(id int, raw string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ui, ok := a.canvas.UINode(id)
	if !ok {
		return fmt.Errorf("node %d: %w", id, canvas.ErrNotOperator)
	}
	w, h := a.canvas.Size()
	p, err := node.DecodeParams(ui.Kind, []byte(raw), w, h)
	if err != nil {
		return err
	}
	if err := a.canvas.SetParams(id, p); err != nil {
		return err
	}
	if ui.Kind == node.KindDynamicImage {
		a.syncWatcher()
	}
	return nil
}

// Render brings the output up to date and returns it as a PNG data URL,
// downscaled to at most previewSize on its longest side.
func (a *App) Render() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.canvas.Update(); err != nil {
		// The previous output stays on screen.
		a.logger.Warn("render failed", zap.Error(err))
	}
	img, err := preview(a.canvas.Output())
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, ".png"); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func preview(img *imaging.Image) (*imaging.Image, error) {
	w, h := img.Width(), img.Height()
	longest := max(w, h)
	if longest <= previewSize {
		return img, nil
	}
	return imaging.Resize(img, max(1, w*previewSize/longest), max(1, h*previewSize/longest))
}

// Export saves the output, or one file per frame when the graph holds
// image sequences.
func (a *App) Export(path string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.Export(path)
}

// NewGraph clears the canvas.
func (a *App) NewGraph() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.canvas.Clear()
	a.syncWatcher()
}

// SaveGraph writes the graph to path.
func (a *App) SaveGraph(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canvas.Save(path)
}

// LoadGraph replaces the graph with the one stored at path. On failure the
// current graph is kept.
func (a *App) LoadGraph(path string) (GraphView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.canvas.Load(path); err != nil {
		return a.graphView(), err
	}
	a.syncWatcher()
	return a.graphView(), nil
}

// ExplorerRoot returns the folder the file explorer opens at.
func (a *App) ExplorerRoot() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.ExplorerRoot
}

// SetExplorerRoot changes the explorer root and persists it to the config
// file.
func (a *App) SetExplorerRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.ExplorerRoot = dir
	if a.cfgPath == "" {
		return nil
	}
	return a.cfg.Save(a.cfgPath)
}

// Browse lists the subfolders and supported images of dir, folders first.
// An empty dir lists the explorer root.
func (a *App) Browse(dir string) ([]ExplorerEntry, error) {
	if dir == "" {
		dir = a.ExplorerRoot()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := lo.FilterMap(entries, func(e os.DirEntry, _ int) (ExplorerEntry, bool) {
		if !e.IsDir() && !imaging.IsSupported(e.Name()) {
			return ExplorerEntry{}, false
		}
		return ExplorerEntry{Name: e.Name(), Path: filepath.Join(dir, e.Name()), IsDir: e.IsDir()}, true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsDir && !out[j].IsDir })
	return out, nil
}

// Metrics returns the session metrics in the prometheus text format.
func (a *App) Metrics() (string, error) {
	if a.metrics == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := a.metrics.WriteText(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
