package main

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/strata/pkg/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.lisp")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestRunScriptExport(t *testing.T) {
	script := writeScript(t, `(output (uniform-color :r 0 :g 0 :b 1))`)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")
	saved := filepath.Join(dir, "graph.sgz")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-script", script, "-o", out, "-save", saved, "-width", "8", "-height", "4", "-metrics"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	img, err := imaging.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width())
	assert.Equal(t, 4, img.Height())
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.At(7, 3))

	assert.Contains(t, stdout.String(), "wrote "+out)
	assert.Contains(t, stdout.String(), "saved "+saved)
	assert.Contains(t, stdout.String(), "strata_exported_images_total")
	assert.FileExists(t, saved)

	// The saved graph renders the same image.
	again := filepath.Join(dir, "again.png")
	stdout.Reset()
	require.NoError(t, run([]string{"-graph", saved, "-o", again, "-width", "8", "-height", "4"}, &stdout, &stderr))
	img2, err := imaging.Load(again)
	require.NoError(t, err)
	assert.True(t, img.Equal(img2))
}

func TestRunScriptErrors(t *testing.T) {
	script := writeScript(t, `(output (blend nil nil :mode :sideways))`)
	var stdout, stderr bytes.Buffer
	err := run([]string{"-script", script, "-o", filepath.Join(t.TempDir(), "x.png")}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), script)
}

func TestRunWarnsOnUnconnectedInputs(t *testing.T) {
	script := writeScript(t, `(output (invert nil))`)
	var stdout, stderr bytes.Buffer
	err := run([]string{"-script", script, "-o", filepath.Join(t.TempDir(), "x.png"), "-width", "2", "-height", "2"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "invert input 0 is not connected")
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"-o", "x.png"}},
		{"both sources", []string{"-script", "a", "-graph", "b", "-o", "x.png"}},
		{"no action", []string{"-script", "a"}},
		{"unknown flag", []string{"-frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Error(t, run(tt.args, &stdout, &stderr))
		})
	}
}

func TestRunMissingGraph(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"-graph", filepath.Join(t.TempDir(), "none.strata"), "-o", "x.png"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load graph")
}
