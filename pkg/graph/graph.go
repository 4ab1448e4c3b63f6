package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when a node or edge id is not live.
	ErrNotFound = errors.New("not found")
	// ErrSelfLoop is returned by InsertEdge when from == to.
	ErrSelfLoop = errors.New("self-loop edge")
	// ErrDuplicateEdge is returned by InsertEdge when (from, to) already exists.
	ErrDuplicateEdge = errors.New("duplicate edge")
)

// Edge is a directed pair plus its id. By convention in this module an edge
// (From, To) means "From depends on To".
type Edge struct {
	ID   int `json:"id"`
	From int `json:"from"`
	To   int `json:"to"`
}

// idPool hands out dense integer ids and recycles released ones.
type idPool struct {
	next int
	free []int
}

func (p *idPool) acquire() int {
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		return id
	}
	id := p.next
	p.next++
	return id
}

func (p *idPool) release(id int) { p.free = append(p.free, id) }

func (p *idPool) reset() {
	p.next = 0
	p.free = p.free[:0]
}

// Graph is a directed graph whose nodes carry payloads of type T.
// Outgoing adjacency keeps insertion order, which callers rely on to
// preserve input slot order. Not safe for concurrent mutation.
type Graph[T any] struct {
	nodes map[int]T
	edges map[int]Edge

	out map[int][]int // node -> outgoing edge ids, insertion order
	in  map[int][]int // node -> incoming edge ids, insertion order

	nodeIDs idPool
	edgeIDs idPool
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		nodes: make(map[int]T),
		edges: make(map[int]Edge),
		out:   make(map[int][]int),
		in:    make(map[int][]int),
	}
}

// InsertNode stores payload under a fresh or recycled id.
func (g *Graph[T]) InsertNode(payload T) int {
	id := g.nodeIDs.acquire()
	g.nodes[id] = payload
	return id
}

// EraseNode removes the node and every edge touching it. Absent ids are a no-op.
func (g *Graph[T]) EraseNode(id int) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	for _, eid := range append([]int(nil), g.out[id]...) {
		g.EraseEdge(eid)
	}
	for _, eid := range append([]int(nil), g.in[id]...) {
		g.EraseEdge(eid)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
	g.nodeIDs.release(id)
}

// HasNode reports whether id is live.
func (g *Graph[T]) HasNode(id int) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the payload for id.
func (g *Graph[T]) Node(id int) (T, error) {
	n, ok := g.nodes[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	return n, nil
}

// SetNode replaces the payload of a live node.
func (g *Graph[T]) SetNode(id int, payload T) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	g.nodes[id] = payload
	return nil
}

// NodeCount returns the number of live nodes.
func (g *Graph[T]) NodeCount() int { return len(g.nodes) }

// NodeIDs returns all live node ids in ascending order.
func (g *Graph[T]) NodeIDs() []int {
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// InsertEdge adds the edge (from, to). Both endpoints must exist; self-loops
// and duplicates are rejected. Acyclicity is the caller's responsibility.
func (g *Graph[T]) InsertEdge(from, to int) (int, error) {
	if !g.HasNode(from) {
		return -1, fmt.Errorf("edge source %d: %w", from, ErrNotFound)
	}
	if !g.HasNode(to) {
		return -1, fmt.Errorf("edge target %d: %w", to, ErrNotFound)
	}
	if from == to {
		return -1, fmt.Errorf("node %d: %w", from, ErrSelfLoop)
	}
	if _, ok := g.FindEdge(from, to); ok {
		return -1, fmt.Errorf("%d -> %d: %w", from, to, ErrDuplicateEdge)
	}
	id := g.edgeIDs.acquire()
	g.edges[id] = Edge{ID: id, From: from, To: to}
	g.out[from] = append(g.out[from], id)
	g.in[to] = append(g.in[to], id)
	return id, nil
}

// EraseEdge removes the edge and reports whether it existed.
func (g *Graph[T]) EraseEdge(id int) bool {
	e, ok := g.edges[id]
	if !ok {
		return false
	}
	g.out[e.From] = removeID(g.out[e.From], id)
	g.in[e.To] = removeID(g.in[e.To], id)
	delete(g.edges, id)
	g.edgeIDs.release(id)
	return true
}

// Edge returns the edge with the given id.
func (g *Graph[T]) Edge(id int) (Edge, error) {
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, fmt.Errorf("edge %d: %w", id, ErrNotFound)
	}
	return e, nil
}

// FindEdge looks up the edge (from, to).
func (g *Graph[T]) FindEdge(from, to int) (Edge, bool) {
	for _, eid := range g.out[from] {
		if e := g.edges[eid]; e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// EdgesFromNode returns the outgoing edges of id in insertion order.
func (g *Graph[T]) EdgesFromNode(id int) []Edge {
	return g.collect(g.out[id])
}

// EdgesToNode returns the incoming edges of id in insertion order.
func (g *Graph[T]) EdgesToNode(id int) []Edge {
	return g.collect(g.in[id])
}

// NumEdgesFromNode returns the out-degree of id.
func (g *Graph[T]) NumEdgesFromNode(id int) int { return len(g.out[id]) }

// Neighbors returns the targets of id's outgoing edges in insertion order.
func (g *Graph[T]) Neighbors(id int) []int {
	ids := make([]int, 0, len(g.out[id]))
	for _, eid := range g.out[id] {
		ids = append(ids, g.edges[eid].To)
	}
	return ids
}

// AllEdges returns every edge ordered by id.
func (g *Graph[T]) AllEdges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EdgeCount returns the number of live edges.
func (g *Graph[T]) EdgeCount() int { return len(g.edges) }

// Clear removes everything and resets id allocation.
func (g *Graph[T]) Clear() {
	g.nodes = make(map[int]T)
	g.edges = make(map[int]Edge)
	g.out = make(map[int][]int)
	g.in = make(map[int][]int)
	g.nodeIDs.reset()
	g.edgeIDs.reset()
}

func (g *Graph[T]) collect(ids []int) []Edge {
	out := make([]Edge, 0, len(ids))
	for _, eid := range ids {
		out = append(out, g.edges[eid])
	}
	return out
}

func removeID(ids []int, id int) []int {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
