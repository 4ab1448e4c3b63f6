package graph

import "fmt"

// ValidationError describes a single structural finding.
type ValidationError struct {
	NodeID  int    // offending node, -1 if graph-level
	Message string // human-readable description
}

func (e ValidationError) Error() string {
	if e.NodeID < 0 {
		return e.Message
	}
	return fmt.Sprintf("node %d: %s", e.NodeID, e.Message)
}

// Validate runs the structural checks on g and returns every finding.
// An empty slice means the graph is a well-formed DAG. Read-only.
func Validate[T any](g *Graph[T]) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(g)...)
	errs = append(errs, validateEndpoints(g)...)
	return errs
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = on the current DFS path, black (2) = done.
// Reaching a gray node means the path closes a cycle.
func validateDAG[T any](g *Graph[T]) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[int]int)
	var errs []ValidationError

	var visit func(id int) bool
	visit = func(id int) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:  id,
				Message: "cycle detected: node is part of a cycle",
			})
			return true
		}

		color[id] = gray
		for _, next := range g.Neighbors(id) {
			if visit(next) {
				return true
			}
		}
		color[id] = black
		return false
	}

	// Start from every node (ascending) so disconnected components are
	// covered and findings are deterministic.
	for _, id := range g.NodeIDs() {
		if color[id] == white && visit(id) {
			// One cycle is enough.
			break
		}
	}
	return errs
}

// validateEndpoints checks that every edge references live nodes.
func validateEndpoints[T any](g *Graph[T]) []ValidationError {
	var errs []ValidationError
	for _, e := range g.AllEdges() {
		for _, end := range []int{e.From, e.To} {
			if !g.HasNode(end) {
				errs = append(errs, ValidationError{
					NodeID:  -1,
					Message: fmt.Sprintf("edge %d references missing node %d", e.ID, end),
				})
			}
		}
	}
	return errs
}

// Reachable reports whether target can be reached from start by following
// outgoing edges. start itself counts as reachable.
func Reachable[T any](g *Graph[T], start, target int) bool {
	seen := make(map[int]bool)
	stack := []int{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, g.Neighbors(id)...)
	}
	return false
}
