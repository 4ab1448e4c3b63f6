package graph

import "testing"

func TestValidateAcceptsDAG(t *testing.T) {
	g := New[string]()
	out := g.InsertNode("output")
	slot := g.InsertNode("slot")
	src := g.InsertNode("color")
	mustEdge(t, g, out, slot)
	mustEdge(t, g, slot, src)

	if errs := Validate(g); len(errs) != 0 {
		t.Fatalf("expected no findings, got %v", errs)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	g := New[string]()
	a := g.InsertNode("a")
	b := g.InsertNode("b")
	c := g.InsertNode("c")
	mustEdge(t, g, a, b)
	mustEdge(t, g, b, c)
	mustEdge(t, g, c, a)

	errs := Validate(g)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one cycle finding, got %v", errs)
	}
	if errs[0].NodeID < 0 {
		t.Errorf("cycle finding should name a node")
	}
}

func TestReachable(t *testing.T) {
	g := New[string]()
	a := g.InsertNode("a")
	b := g.InsertNode("b")
	c := g.InsertNode("c")
	d := g.InsertNode("d")
	mustEdge(t, g, a, b)
	mustEdge(t, g, b, c)

	tests := []struct {
		name          string
		start, target int
		want          bool
	}{
		{"self", a, a, true},
		{"direct", a, b, true},
		{"transitive", a, c, true},
		{"against direction", c, a, false},
		{"disconnected", a, d, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reachable(g, tt.start, tt.target); got != tt.want {
				t.Errorf("Reachable(%d, %d) = %v, want %v", tt.start, tt.target, got, tt.want)
			}
		})
	}
}
