package node

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/chazu/strata/pkg/imaging"
	"github.com/samber/lo"
)

// ListImages returns the decodable image files directly inside folder,
// sorted by name.
func ListImages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", folder, err)
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		if e.IsDir() || !imaging.IsSupported(e.Name()) {
			return "", false
		}
		return filepath.Join(folder, e.Name()), true
	})
	sort.Strings(files)
	return files, nil
}

// Current returns the file under the cursor, or "" for an empty folder.
func (p DynamicImageParams) Current() string {
	if len(p.Files) == 0 {
		return ""
	}
	return p.Files[p.Cursor%len(p.Files)]
}

// Advance moves the cursor to the next file, wrapping to the first. It
// reports true when the cursor wrapped. An empty sequence always wraps.
func (p *DynamicImageParams) Advance() bool {
	if len(p.Files) == 0 {
		p.Cursor = 0
		return true
	}
	p.Cursor++
	if p.Cursor >= len(p.Files) {
		p.Cursor = 0
		return true
	}
	return false
}

// Rescan reloads the file list from Folder, keeping the cursor on the same
// file when it still exists. It reports whether the list changed.
func (p *DynamicImageParams) Rescan() (bool, error) {
	files, err := ListImages(p.Folder)
	if err != nil {
		return false, err
	}
	current := p.Current()
	changed := len(files) != len(p.Files) || len(lo.Intersect(files, p.Files)) != len(files)
	p.Files = files
	p.Cursor = 0
	if i := lo.IndexOf(files, current); i >= 0 {
		p.Cursor = i
	}
	return changed, nil
}
