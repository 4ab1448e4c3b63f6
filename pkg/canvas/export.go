package canvas

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/strata/pkg/eval"
	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/node"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// loadSequence scans p.Folder and loads the image under the cursor. An
// empty folder yields the blank image.
func (c *Canvas) loadSequence(p *node.DynamicImageParams) (*imaging.Image, error) {
	if _, err := p.Rescan(); err != nil {
		return nil, err
	}
	return c.loadCurrent(p)
}

func (c *Canvas) loadCurrent(p *node.DynamicImageParams) (*imaging.Image, error) {
	path := p.Current()
	if path == "" {
		return c.blank, nil
	}
	return imaging.Load(path)
}

// dynamicNodes returns the DynamicImage operators in creation order.
func (c *Canvas) dynamicNodes() []int {
	var ids []int
	for _, ui := range c.nodes {
		if ui.Kind == node.KindDynamicImage {
			ids = append(ids, ui.ID)
		}
	}
	return ids
}

// RefreshFolder rescans every DynamicImage node bound to folder and
// reloads the ones whose file list changed. It reports whether the output
// was invalidated.
func (c *Canvas) RefreshFolder(folder string) (bool, error) {
	folder = filepath.Clean(folder)
	changed := false
	var errs []error
	for _, id := range c.dynamicNodes() {
		n, err := c.g.Node(id)
		if err != nil {
			return changed, err
		}
		p := n.Params.(node.DynamicImageParams)
		if filepath.Clean(p.Folder) != folder {
			continue
		}
		diff, err := p.Rescan()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !diff {
			continue
		}
		img, err := c.loadCurrent(&p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n.Params, n.Value = p, img
		changed = true
		c.logger.Info("folder rescanned",
			zap.Int("node_id", id),
			zap.String("folder", folder),
			zap.Int("files", len(p.Files)),
		)
	}
	if changed {
		c.invalidated = true
	}
	return changed, errors.Join(errs...)
}

// advance moves a DynamicImage node to its next file and reports whether
// its cursor wrapped.
func (c *Canvas) advance(id int) (bool, error) {
	n, err := c.g.Node(id)
	if err != nil {
		return false, err
	}
	p := n.Params.(node.DynamicImageParams)
	wrapped := p.Advance()
	img, err := c.loadCurrent(&p)
	if err != nil {
		return wrapped, err
	}
	n.Params, n.Value = p, img
	return wrapped, nil
}

// Export writes the output to path. Without DynamicImage nodes this saves
// the current output once. Otherwise every DynamicImage node is stepped
// through its folder, re-evaluating and saving <base>_<n><ext> each time,
// until the first cursor wraps back to its first file. Export returns the
// files written.
func (c *Canvas) Export(path string) ([]string, error) {
	dynamic := c.dynamicNodes()
	if len(dynamic) == 0 {
		if _, err := c.Update(); err != nil {
			return nil, err
		}
		if err := imaging.Save(c.output, path); err != nil {
			return nil, err
		}
		c.metrics.RecordExport(1)
		c.logger.Info("output exported", zap.String("path", path))
		return []string{path}, nil
	}
	if c.root == NoRoot {
		return nil, eval.ErrNoRoot
	}
	return c.exportBatch(path, dynamic)
}

func (c *Canvas) exportBatch(path string, dynamic []int) ([]string, error) {
	run := uuid.New()
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".png"
	}

	var written []string
	defer func() { c.metrics.RecordExport(len(written)) }()

	for i := 0; ; i++ {
		wrapped := false
		for _, id := range dynamic {
			w, err := c.advance(id)
			if err != nil {
				return written, err
			}
			if w {
				wrapped = true
				break
			}
		}

		img, err := c.Evaluate()
		if err != nil {
			return written, err
		}
		name := fmt.Sprintf("%s_%d%s", base, i, ext)
		if err := imaging.Save(img, name); err != nil {
			return written, err
		}
		written = append(written, name)

		if wrapped {
			break
		}
	}

	c.invalidated = false
	c.logger.Info("batch exported",
		zap.Stringer("run", run),
		zap.String("base", base),
		zap.Int("images", len(written)),
	)
	return written, nil
}
