// Package graph defines the generic directed graph store used by the
// compositing canvas. Nodes and edges are addressed by small integer ids that
// are recycled after erase; payloads are owned by the store and referenced
// from outside only by id.
package graph
