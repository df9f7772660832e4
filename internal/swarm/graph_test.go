package swarm

import (
	"testing"
)

func TestCyclicMembersDetectsCycle(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c"},
	})

	cyclic := g.CyclicMembers()
	if !cyclic["a"] || !cyclic["b"] {
		t.Fatalf("expected a and b cyclic, got %v", cyclic)
	}
	if cyclic["c"] {
		t.Fatalf("c should not be cyclic, got %v", cyclic)
	}
}

func TestCyclicMembersAcyclicGraph(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
	})
	if g.HasCycle() {
		t.Fatalf("expected no cycle")
	}
}

func TestReadyRootsExcludesCyclicAndDependent(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "root"},
		{ID: "child", Dependencies: []string{"root"}},
		{ID: "x", Dependencies: []string{"y"}},
		{ID: "y", Dependencies: []string{"x"}},
	})
	roots := g.ReadyRoots()
	if len(roots) != 1 || roots[0] != "root" {
		t.Fatalf("expected only root ready, got %v", roots)
	}
}

func TestReverseDependents(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"a"}},
	})
	rev := g.ReverseDependents()
	if len(rev["a"]) != 2 {
		t.Fatalf("expected 2 dependents of a, got %v", rev["a"])
	}
}

func TestExternalDependencyNotCyclic(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "a", Dependencies: []string{"outside-this-decomposition"}},
	})
	if g.HasCycle() {
		t.Fatalf("dependency outside the sibling set must never be treated as cyclic")
	}
}
