package depgraph

import (
	"reflect"
	"testing"
)

func TestParseDependency(t *testing.T) {
	dep, err := ParseDependency("scope/name@^1.0.0")
	if err != nil {
		t.Fatalf("ParseDependency: %v", err)
	}
	if dep.ID != "scope/name" || dep.Constraint != "^1.0.0" {
		t.Errorf("got %+v", dep)
	}

	bare, err := ParseDependency("scope/name")
	if err != nil {
		t.Fatalf("ParseDependency: %v", err)
	}
	if bare.ID != "scope/name" || bare.Constraint != "" {
		t.Errorf("got %+v", bare)
	}

	if _, err := ParseDependency("  "); err == nil {
		t.Errorf("expected error for empty dependency")
	}
}

func TestTopologicalSortChain(t *testing.T) {
	g := New()
	g.AddEdge("c", "b")
	g.AddEdge("b", "a")
	g.AddNode("a")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("got %v, want %v", order, want)
	}
}

func TestTopologicalSortBranch(t *testing.T) {
	g := New()
	g.AddEdge("top", "left")
	g.AddEdge("top", "right")
	g.AddEdge("left", "base")
	g.AddEdge("right", "base")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["base"] > pos["left"] || pos["base"] > pos["right"] {
		t.Errorf("base must precede left and right, got %v", order)
	}
	if pos["left"] > pos["top"] || pos["right"] > pos["top"] {
		t.Errorf("left/right must precede top, got %v", order)
	}
}

func TestDetectCycles(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	cycle := g.DetectCycles()
	if cycle == nil {
		t.Fatalf("expected cycle to be detected")
	}

	if _, err := g.TopologicalSort(); err == nil {
		t.Errorf("expected TopologicalSort to fail on a cyclic graph")
	}
}

func TestMultipleRoots(t *testing.T) {
	g := New()
	g.AddEdge("app1", "shared")
	g.AddEdge("app2", "shared")
	g.AddNode("shared")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes, got %v", order)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["shared"] > pos["app1"] || pos["shared"] > pos["app2"] {
		t.Errorf("shared must precede both apps, got %v", order)
	}
}
