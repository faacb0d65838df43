package resolver

import (
	"testing"

	"fastskill/internal/depgraph"
	"fastskill/internal/version"
)

func newTestIndex(candidates map[string][]Candidate) *Index {
	return &Index{bySkillID: candidates}
}

func TestResolvePrefersHighestPriority(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"acme/hello": {
			{ID: "acme/hello", Version: "1.0.0", RepositoryName: "primary", Priority: 0},
			{ID: "acme/hello", Version: "2.0.0", RepositoryName: "mirror", Priority: 5},
		},
	})
	res, err := idx.Resolve("acme/hello", nil, "", StrategyPriority)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.RepositoryName != "primary" {
		t.Errorf("expected primary repo to win on priority, got %s", res.RepositoryName)
	}
}

func TestResolveHighestVersionStrategy(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"acme/hello": {
			{ID: "acme/hello", Version: "1.0.0", RepositoryName: "primary", Priority: 0},
			{ID: "acme/hello", Version: "2.0.0", RepositoryName: "mirror", Priority: 5},
		},
	})
	res, err := idx.Resolve("acme/hello", nil, "", StrategyHighestVersion)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Candidate.Version != "2.0.0" {
		t.Errorf("expected version 2.0.0, got %s", res.Candidate.Version)
	}
}

func TestResolveExplicitStrategyFailsOnMultiple(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"acme/hello": {
			{ID: "acme/hello", Version: "1.0.0", RepositoryName: "primary"},
			{ID: "acme/hello", Version: "2.0.0", RepositoryName: "mirror"},
		},
	})
	if _, err := idx.Resolve("acme/hello", nil, "", StrategyExplicit); err == nil {
		t.Errorf("expected explicit strategy to fail on multiple candidates")
	}
}

func TestResolveVersionConstraintFiltering(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"acme/hello": {
			{ID: "acme/hello", Version: "1.0.0", RepositoryName: "primary"},
			{ID: "acme/hello", Version: "2.0.0", RepositoryName: "mirror"},
		},
	})
	constraint, err := version.ParseConstraint("^1.0.0")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	res, err := idx.Resolve("acme/hello", constraint, "", StrategyPriority)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Candidate.Version != "1.0.0" {
		t.Errorf("expected 1.0.0 to satisfy ^1.0.0, got %s", res.Candidate.Version)
	}
}

func TestResolveNotFound(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{})
	if _, err := idx.Resolve("missing/skill", nil, "", StrategyPriority); err == nil {
		t.Errorf("expected not-found error")
	}
}

func TestResolveDependenciesDiamondConflict(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"shared": {
			{ID: "shared", Version: "1.0.0", RepositoryName: "r"},
			{ID: "shared", Version: "2.0.0", RepositoryName: "r"},
		},
	})
	c1, err := version.ParseConstraint("1.0.0")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	c2, err := version.ParseConstraint("2.0.0")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	roots := []DependencyRequest{
		{SkillID: "shared", Constraint: c1},
		{SkillID: "shared", Constraint: c2},
	}
	if _, err := ResolveDependencies(idx, roots, StrategyPriority); err == nil {
		t.Errorf("expected diamond conflict between 1.0.0 and 2.0.0 requests")
	}
}

func TestResolveDependenciesNoConflict(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"a": {{ID: "a", Version: "1.0.0", RepositoryName: "r1", Priority: 0}},
	})
	roots := []DependencyRequest{{SkillID: "a"}}
	resolved, err := ResolveDependencies(idx, roots, StrategyPriority)
	if err != nil {
		t.Fatalf("ResolveDependencies: %v", err)
	}
	if resolved["a"].Candidate.Version != "1.0.0" {
		t.Errorf("unexpected resolution: %+v", resolved)
	}
}

func TestResolveDependenciesRecursesTransitively(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"a": {{ID: "a", Version: "1.0.0", RepositoryName: "r",
			Dependencies: []depgraph.Dependency{{ID: "b"}}}},
		"b": {{ID: "b", Version: "1.0.0", RepositoryName: "r",
			Dependencies: []depgraph.Dependency{{ID: "c"}}}},
		"c": {{ID: "c", Version: "1.0.0", RepositoryName: "r"}},
	})
	roots := []DependencyRequest{{SkillID: "a"}}
	resolved, err := ResolveDependencies(idx, roots, StrategyPriority)
	if err != nil {
		t.Fatalf("ResolveDependencies: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := resolved[id]; !ok {
			t.Errorf("expected %q to be transitively resolved, got %+v", id, resolved)
		}
	}
}

func TestResolveDependenciesDetectsTransitiveDiamondConflict(t *testing.T) {
	idx := newTestIndex(map[string][]Candidate{
		"a": {{ID: "a", Version: "1.0.0", RepositoryName: "r",
			Dependencies: []depgraph.Dependency{{ID: "shared", Constraint: "1.0.0"}}}},
		"b": {{ID: "b", Version: "1.0.0", RepositoryName: "r",
			Dependencies: []depgraph.Dependency{{ID: "shared", Constraint: "2.0.0"}}}},
		"shared": {
			{ID: "shared", Version: "1.0.0", RepositoryName: "r"},
			{ID: "shared", Version: "2.0.0", RepositoryName: "r"},
		},
	})
	roots := []DependencyRequest{{SkillID: "a"}, {SkillID: "b"}}
	if _, err := ResolveDependencies(idx, roots, StrategyPriority); err == nil {
		t.Errorf("expected diamond conflict surfaced through transitive dependencies")
	}
}

func TestInstallOrderComposesWithDepgraph(t *testing.T) {
	resolved := map[string]Resolution{
		"a": {Candidate: Candidate{ID: "a"}},
		"b": {Candidate: Candidate{ID: "b"}},
	}
	deps := map[string][]depgraph.Dependency{
		"a": {{ID: "b"}},
	}
	order, err := InstallOrder(resolved, deps)
	if err != nil {
		t.Fatalf("InstallOrder: %v", err)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("expected [b a], got %v", order)
	}
}

func TestInstallOrderDetectsCycle(t *testing.T) {
	resolved := map[string]Resolution{
		"a": {Candidate: Candidate{ID: "a"}},
		"b": {Candidate: Candidate{ID: "b"}},
	}
	deps := map[string][]depgraph.Dependency{
		"a": {{ID: "b"}},
		"b": {{ID: "a"}},
	}
	if _, err := InstallOrder(resolved, deps); err == nil {
		t.Errorf("expected cycle detection to fail InstallOrder")
	}
}
