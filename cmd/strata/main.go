// Command strata renders a compositing graph without the desktop shell.
// The graph comes from a script (-script) or a saved project (-graph); the
// output is exported to -o, one file per frame when the graph reads image
// sequences.
//
//	strata -script poster.lisp -o poster.png
//	strata -graph frames.sgz -o out/frame.png -metrics
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/strata/pkg/canvas"
	"github.com/chazu/strata/pkg/compute/software"
	"github.com/chazu/strata/pkg/config"
	"github.com/chazu/strata/pkg/engine"
	"github.com/chazu/strata/pkg/logging"
	"github.com/chazu/strata/pkg/metrics"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "strata:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath string
	script     string
	graph      string
	output     string
	save       string
	width      int
	height     int
	metrics    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("strata", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (YAML)")
	fs.StringVar(&o.script, "script", "", "script that builds the graph")
	fs.StringVar(&o.graph, "graph", "", "saved graph to load (.strata or .sgz)")
	fs.StringVar(&o.output, "o", "", "export path for the output image")
	fs.StringVar(&o.save, "save", "", "save the graph to this path")
	fs.IntVar(&o.width, "width", 0, "image size override")
	fs.IntVar(&o.height, "height", 0, "image size override")
	fs.BoolVar(&o.metrics, "metrics", false, "print metrics to stdout when done")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case (o.script == "") == (o.graph == ""):
		return nil, errors.New("exactly one of -script or -graph is required")
	case o.output == "" && o.save == "":
		return nil, errors.New("nothing to do: pass -o and/or -save")
	}
	return &o, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.width > 0 {
		cfg.Image.DefaultWidth = o.width
	}
	if o.height > 0 {
		cfg.Image.DefaultHeight = o.height
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var reg *metrics.Registry
	if o.metrics {
		reg = metrics.NewRegistry()
	}

	registry := software.New(software.Options{
		Width:  cfg.Image.DefaultWidth,
		Height: cfg.Image.DefaultHeight,
	}).Registry()
	newCanvas := func() (*canvas.Canvas, error) {
		return canvas.New(canvas.Options{
			Width:    cfg.Image.DefaultWidth,
			Height:   cfg.Image.DefaultHeight,
			Registry: registry,
			Logger:   logger,
			Metrics:  reg,
		})
	}

	var c *canvas.Canvas
	if o.script != "" {
		c, err = runScript(o.script, newCanvas, cfg, logger, stderr)
	} else {
		c, err = loadGraph(o.graph, newCanvas)
	}
	if err != nil {
		return err
	}

	if o.save != "" {
		if err := c.Save(o.save); err != nil {
			return fmt.Errorf("save graph: %w", err)
		}
		fmt.Fprintln(stdout, "saved", o.save)
	}
	if o.output != "" {
		files, err := c.Export(o.output)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		for _, f := range files {
			fmt.Fprintln(stdout, "wrote", f)
		}
	}
	if reg != nil {
		return reg.WriteText(stdout)
	}
	return nil
}

func runScript(path string, newCanvas func() (*canvas.Canvas, error), cfg *config.Config, logger *zap.Logger, stderr io.Writer) (*canvas.Canvas, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	eng := engine.NewEngine(newCanvas,
		engine.WithTimeout(cfg.Script.Timeout),
		engine.WithLogger(logger),
	)
	res, err := eng.Run(string(source))
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "%s: warning: %s\n", path, w.Message)
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			msgs[i] = fmt.Sprintf("%s: %s", path, e.Error())
		}
		return nil, errors.New(strings.Join(msgs, "\n"))
	}
	return res.Canvas, nil
}

func loadGraph(path string, newCanvas func() (*canvas.Canvas, error)) (*canvas.Canvas, error) {
	c, err := newCanvas()
	if err != nil {
		return nil, err
	}
	if err := c.Load(path); err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return c, nil
}
