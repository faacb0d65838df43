// Package depgraph builds dependency graphs over skill ids and provides
// cycle detection and topological ordering. It mirrors the structure
// (forward/reverse adjacency, DFS cycle check, Kahn's-algorithm sort) of
// the original dependency-resolution core, adapted to idiomatic Go.
package depgraph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"fastskill/internal/regerr"
)

// Dependency is a parsed "id" or "id@constraint" reference.
type Dependency struct {
	ID         string
	Constraint string // empty means "any"
}

var dependencyIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)?$`)

// ParseDependency parses "id" or "id@constraint". The id must be a bare
// skill id or a "scope/id" pair made of alphanumerics, hyphens, and
// underscores; any other id is rejected.
func ParseDependency(s string) (Dependency, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dependency{}, regerr.New(regerr.KindValidation, "depgraph.ParseDependency",
			fmt.Errorf("empty dependency reference"))
	}
	dep := Dependency{ID: s}
	if idx := strings.Index(s, "@"); idx > 0 {
		dep = Dependency{ID: s[:idx], Constraint: s[idx+1:]}
	}
	if !dependencyIDRe.MatchString(dep.ID) {
		return Dependency{}, regerr.New(regerr.KindValidation, "depgraph.ParseDependency",
			fmt.Errorf("invalid dependency id %q", dep.ID))
	}
	return dep, nil
}

// Graph is a directed dependency graph keyed by skill id.
type Graph struct {
	nodes   map[string]bool
	forward map[string][]string // id -> ids it depends on
	reverse map[string][]string // id -> ids that depend on it
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]bool),
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
}

// AddNode registers id in the graph even if it has no edges.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
	if _, ok := g.forward[id]; !ok {
		g.forward[id] = nil
	}
}

// AddEdge records that id depends on dependsOn.
func (g *Graph) AddEdge(id, dependsOn string) {
	g.AddNode(id)
	g.AddNode(dependsOn)
	g.forward[id] = append(g.forward[id], dependsOn)
	g.reverse[dependsOn] = append(g.reverse[dependsOn], id)
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.forward[id]...)
}

// DetectCycles returns the ids forming a cycle, or nil if the graph is
// acyclic. Uses DFS with a recursion stack, as the original resolver does.
func (g *Graph) DetectCycles() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	parent := make(map[string]string)

	ids := g.sortedNodes()

	var cyclePath []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range g.forward[id] {
			switch color[dep] {
			case white:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case gray:
				// Found a back edge: reconstruct the cycle from id back to dep.
				cyclePath = []string{dep}
				cur := id
				for cur != dep {
					cyclePath = append(cyclePath, cur)
					cur = parent[cur]
				}
				cyclePath = append(cyclePath, dep)
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cyclePath
			}
		}
	}
	return nil
}

// TopologicalSort returns ids ordered so that every id appears after all of
// its dependencies, using Kahn's algorithm restricted to in-graph deps only.
// Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if cycle := g.DetectCycles(); cycle != nil {
		return nil, regerr.New(regerr.KindResolution, "depgraph.TopologicalSort",
			fmt.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> ")))
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for id, deps := range g.forward {
		for _, dep := range deps {
			if g.nodes[dep] {
				inDegree[id]++
			}
			_ = dep
		}
	}
	// inDegree[id] should count edges INTO id from deps that must precede it
	// in the topological order i.e. id depends on deps, so deps come first.
	// Kahn's algorithm processes nodes with no remaining outgoing deps.
	remaining := make(map[string][]string, len(g.nodes))
	for id, deps := range g.forward {
		var filtered []string
		for _, d := range deps {
			if g.nodes[d] {
				filtered = append(filtered, d)
			}
		}
		remaining[id] = filtered
	}

	var ready []string
	for _, id := range g.sortedNodes() {
		if len(remaining[id]) == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	visited := make(map[string]bool, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)

		var next []string
		for _, dependent := range g.reverse[id] {
			if visited[dependent] {
				continue
			}
			remaining[dependent] = removeString(remaining[dependent], id)
			if len(remaining[dependent]) == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
		sort.Strings(ready)
	}

	if len(order) != len(g.nodes) {
		return nil, regerr.New(regerr.KindResolution, "depgraph.TopologicalSort",
			fmt.Errorf("graph contains unresolved cycle"))
	}
	return order, nil
}

func (g *Graph) sortedNodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
