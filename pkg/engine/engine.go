// Package engine evaluates Strata scripts. A script is a Lisp program run by
// zygomys in a sandbox; its builtins place nodes on a fresh canvas and wire
// them together, so a whole compositing graph can be written as text.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/strata/pkg/canvas"
	"github.com/chazu/strata/pkg/logging"
	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning flags a graph that was built but will not render as the
// author probably expects.
type EvalWarning struct {
	Message string
	NodeID  int // -1 when the warning is about the whole graph
}

// EvalResult bundles the full output of an evaluation for use by UI bindings.
type EvalResult struct {
	Canvas   *canvas.Canvas
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// call to Evaluate runs in a fresh sandbox against a fresh canvas.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	newCanvas func() (*canvas.Canvas, error)
	timeout   time.Duration
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds a single evaluation. Non-positive values keep
// EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// NewEngine creates an Engine. newCanvas supplies the empty canvas each
// evaluation builds into.
func NewEngine(newCanvas func() (*canvas.Canvas, error), opts ...Option) *Engine {
	e := &Engine{newCanvas: newCanvas, timeout: EvalTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs source and returns the canvas it built.
//
// Return semantics:
//   - On success: returns canvas + nil errors + nil error
//   - On parse/eval failure: returns nil canvas + eval errors + nil error
//   - On fatal failure (timeout, panic, no canvas): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*canvas.Canvas, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		c, evalErrs, err := e.evaluate(source)
		ch <- evalResult{canvas: c, errors: evalErrs, err: err}
	}()

	c, evalErrs, err := waitWithTimeout(ch, e.timeout, gen, &e.mu, &e.generation)
	if err != nil {
		e.logger.Warn("script evaluation failed", zap.Uint64("generation", gen), zap.Error(err))
	}
	return c, evalErrs, err
}

// Run evaluates source and inspects the resulting canvas for warnings.
func (e *Engine) Run(source string) (*EvalResult, error) {
	c, evalErrs, err := e.Evaluate(source)
	if err != nil {
		return nil, err
	}
	res := &EvalResult{Canvas: c, Errors: evalErrs}
	if c != nil {
		res.Warnings = inspect(c)
	}
	return res, nil
}

// inspect reports graphs without an output and operators with inputs left
// unconnected.
func inspect(c *canvas.Canvas) []EvalWarning {
	var warnings []EvalWarning
	if len(c.UINodes()) > 0 && c.RootID() == canvas.NoRoot {
		warnings = append(warnings, EvalWarning{Message: "no output node, nothing will render", NodeID: -1})
	}
	for _, ui := range c.UINodes() {
		for i, slot := range ui.Slots {
			if c.Graph().NumEdgesFromNode(slot) == 0 {
				warnings = append(warnings, EvalWarning{
					Message: fmt.Sprintf("%s input %d is not connected", ui.Kind, i),
					NodeID:  ui.ID,
				})
			}
		}
	}
	return warnings
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*canvas.Canvas, []EvalError, error) {
	c, err := e.newCanvas()
	if err != nil {
		return nil, nil, fmt.Errorf("create canvas: %w", err)
	}

	// Empty source is a valid program that produces an empty canvas.
	if strings.TrimSpace(source) == "" {
		return c, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or
	// syscalls; only the builtins below touch files.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, &builder{c: c})

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return c, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalError values,
// extracting the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
