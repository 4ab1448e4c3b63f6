// Package project reads and writes compositing graphs as project files.
//
// The format is a stream of whitespace-separated tokens: a header, the
// operator nodes with their slot ids and parameters, then the links from
// slots to producers. Structural operator-to-slot edges are implied by the
// node records and never written. Files with the .sgz extension hold the
// same stream compressed with snappy.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/strata/pkg/node"
	"github.com/golang/snappy"
)

const (
	magic   = "strata-graph"
	version = 1

	// CompressedExt marks snappy-compressed project files.
	CompressedExt = ".sgz"
)

var (
	ErrBadHeader    = errors.New("bad project header")
	ErrMalformed    = errors.New("malformed project")
	ErrUnknownKind  = errors.New("unknown node kind")
	ErrDuplicateID  = errors.New("duplicate node id")
	ErrUnresolvedID = errors.New("unresolved node id")
)

// Document is the persisted form of a canvas.
type Document struct {
	Nodes []NodeRecord
	Links []Link
}

// NodeRecord describes one operator node. ID and Slots are the ids the
// node had when saved; loaders remap them.
type NodeRecord struct {
	Kind     node.Kind
	ID       int
	Position node.Vec2
	Slots    []int
	Params   node.Params
}

// Link connects a slot to the node producing its image.
type Link struct {
	Slot     int
	Producer int
}

// Check verifies that ids are unique and that every link refers to a
// declared slot and node.
func (d *Document) Check() error {
	nodes := make(map[int]bool, len(d.Nodes))
	slots := make(map[int]bool)
	seen := func(id int) bool { return nodes[id] || slots[id] }

	for _, rec := range d.Nodes {
		if !rec.Kind.IsOperator() {
			return fmt.Errorf("%w: %d", ErrUnknownKind, int(rec.Kind))
		}
		if len(rec.Slots) != rec.Kind.SlotCount() {
			return fmt.Errorf("%w: %s node %d has %d slots, want %d",
				ErrMalformed, rec.Kind, rec.ID, len(rec.Slots), rec.Kind.SlotCount())
		}
		if seen(rec.ID) {
			return fmt.Errorf("%w: %d", ErrDuplicateID, rec.ID)
		}
		nodes[rec.ID] = true
		for _, s := range rec.Slots {
			if seen(s) {
				return fmt.Errorf("%w: %d", ErrDuplicateID, s)
			}
			slots[s] = true
		}
	}
	for _, l := range d.Links {
		if !slots[l.Slot] {
			return fmt.Errorf("%w: slot %d", ErrUnresolvedID, l.Slot)
		}
		if !nodes[l.Producer] {
			return fmt.Errorf("%w: producer %d", ErrUnresolvedID, l.Producer)
		}
	}
	return nil
}

// SaveFile writes doc to path, compressing when the extension is .sgz.
func SaveFile(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return err
	}
	data := buf.Bytes()
	if compressed(path) {
		data = snappy.Encode(nil, data)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a project written by SaveFile.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", path, err)
	}
	if compressed(path) {
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %v", ErrMalformed, path, err)
		}
	}
	return Decode(bytes.NewReader(data))
}

func compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), CompressedExt)
}
