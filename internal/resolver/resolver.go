// Package resolver picks, for each requested skill, which source and
// version satisfies it — source resolution, not graph structure. Ordering
// an install across resolved skills is depgraph's job.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"fastskill/internal/depgraph"
	"fastskill/internal/regerr"
	"fastskill/internal/repository"
	"fastskill/internal/version"
)

// ConflictStrategy picks among multiple candidates for the same skill id
// once version-constraint filtering still leaves more than one.
type ConflictStrategy int

const (
	// StrategyPriority takes the candidate from the highest-priority
	// repository (lowest Priority number), the index's natural order.
	StrategyPriority ConflictStrategy = iota
	// StrategyHighestVersion takes the candidate with the greatest
	// semver, regardless of which repository it came from.
	StrategyHighestVersion
	// StrategyExplicit refuses to pick among multiple candidates; the
	// caller must specify a repository.
	StrategyExplicit
)

// Candidate is a skill available from a specific repository.
type Candidate struct {
	ID             string
	Name           string
	Version        string
	Description    string
	RepositoryName string
	Priority       uint32
	DownloadURL    string
	Dependencies   []depgraph.Dependency
}

// Resolution is the candidate an Index selected for a requested skill.
type Resolution struct {
	Candidate      Candidate
	RepositoryName string
}

// Index is the unified, federated view across every configured repository:
// one skill id may resolve to candidates from several repositories at once.
type Index struct {
	manager   *repository.Manager
	bySkillID map[string][]Candidate
}

// NewIndex returns an empty Index over manager's configured repositories.
func NewIndex(manager *repository.Manager) *Index {
	return &Index{manager: manager, bySkillID: make(map[string][]Candidate)}
}

// Build queries every configured repository (skipping ones that don't
// support listing, e.g. http-registry) and groups the results by skill id,
// each group sorted by repository priority.
func (idx *Index) Build(ctx context.Context) error {
	idx.bySkillID = make(map[string][]Candidate)

	priority := make(map[string]uint32)
	for _, def := range idx.manager.List() {
		priority[def.Name] = def.Priority
	}

	for _, def := range idx.manager.List() {
		client, err := idx.manager.Client(def.Name)
		if err != nil {
			return err
		}
		skills, err := client.ListSkills(ctx)
		if err != nil {
			if regerr.Is(err, regerr.KindValidation) {
				// repository shape doesn't support listing (http-registry); skip.
				continue
			}
			return err
		}
		for _, s := range skills {
			idx.bySkillID[s.ID] = append(idx.bySkillID[s.ID], Candidate{
				ID:             s.ID,
				Name:           s.Name,
				Version:        s.Version,
				Description:    s.Description,
				RepositoryName: def.Name,
				Priority:       priority[def.Name],
				DownloadURL:    s.DownloadURL,
				Dependencies:   s.Dependencies,
			})
		}
	}

	for id := range idx.bySkillID {
		candidates := idx.bySkillID[id]
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority < candidates[j].Priority
		})
		idx.bySkillID[id] = candidates
	}
	return nil
}

// Exists reports whether id is available from any repository.
func (idx *Index) Exists(id string) bool {
	_, ok := idx.bySkillID[id]
	return ok
}

// ListSkills returns every skill id the index knows about.
func (idx *Index) ListSkills() []string {
	out := make([]string, 0, len(idx.bySkillID))
	for id := range idx.bySkillID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Versions returns every candidate of id, across all repositories.
func (idx *Index) Versions(id string) []Candidate {
	return idx.bySkillID[id]
}

// Resolve picks a single candidate for id, honoring an optional version
// constraint, an optional pinned repository, and strategy when more than
// one candidate remains.
func (idx *Index) Resolve(id string, constraint *version.Constraint, repoName string, strategy ConflictStrategy) (Resolution, error) {
	candidates, ok := idx.bySkillID[id]
	if !ok {
		return Resolution{}, regerr.New(regerr.KindResolution, "resolver.Resolve",
			fmt.Errorf("skill not found: %s", id))
	}

	filtered := candidates
	if repoName != "" {
		filtered = filterByRepo(candidates, repoName)
	}
	if len(filtered) == 0 {
		return Resolution{}, regerr.New(regerr.KindResolution, "resolver.Resolve",
			fmt.Errorf("skill not found: %s", id))
	}

	if constraint != nil {
		filtered = filterByConstraint(filtered, constraint)
	}
	if len(filtered) == 0 {
		return Resolution{}, regerr.New(regerr.KindResolution, "resolver.Resolve",
			fmt.Errorf("no version satisfies constraint for skill '%s'", id))
	}

	selected, err := pick(filtered, strategy)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Candidate: selected, RepositoryName: selected.RepositoryName}, nil
}

func filterByRepo(candidates []Candidate, repoName string) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.RepositoryName == repoName {
			out = append(out, c)
		}
	}
	return out
}

func filterByConstraint(candidates []Candidate, constraint *version.Constraint) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		v, err := version.Parse(c.Version)
		if err != nil {
			continue
		}
		if constraint.Matches(v) {
			out = append(out, c)
		}
	}
	return out
}

func pick(candidates []Candidate, strategy ConflictStrategy) (Candidate, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	switch strategy {
	case StrategyPriority:
		return candidates[0], nil // already sorted by priority
	case StrategyHighestVersion:
		best := candidates[0]
		bestV, _ := version.Parse(best.Version)
		for _, c := range candidates[1:] {
			v, err := version.Parse(c.Version)
			if err != nil {
				continue
			}
			if bestV == nil || v.Compare(bestV) > 0 {
				best, bestV = c, v
			}
		}
		return best, nil
	case StrategyExplicit:
		return Candidate{}, regerr.New(regerr.KindResolution, "resolver.pick",
			fmt.Errorf("multiple candidates found, source specification required"))
	default:
		return Candidate{}, regerr.New(regerr.KindResolution, "resolver.pick",
			fmt.Errorf("unknown conflict strategy"))
	}
}

// DependencyRequest names a skill a resolved package wants, with its
// version constraint.
type DependencyRequest struct {
	SkillID    string
	Constraint *version.Constraint
}

// ResolveDependencies resolves every dependency transitively reachable
// from roots, detecting diamond conflicts: if two dependency edges (at any
// depth) pick different versions of the same skill id, resolution
// hard-fails rather than silently picking one (the original's "version
// conflict" case, promoted here to always fail instead of only failing
// when triggered by recursion order).
func ResolveDependencies(idx *Index, roots []DependencyRequest, strategy ConflictStrategy) (map[string]Resolution, error) {
	resolved := make(map[string]Resolution)
	if err := resolveDependenciesInto(idx, roots, strategy, resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// resolveDependenciesInto resolves requests into resolved, recursing into
// each newly-resolved candidate's own declared dependencies. Every request
// is resolved independently (not dropped on first sight of a skill id) so
// that two dependents requiring incompatible versions of the same skill,
// however deep in the tree, are caught as a diamond conflict rather than
// silently resolved to whichever request happened to arrive first.
func resolveDependenciesInto(idx *Index, requests []DependencyRequest, strategy ConflictStrategy, resolved map[string]Resolution) error {
	for _, req := range requests {
		res, err := idx.Resolve(req.SkillID, req.Constraint, "", strategy)
		if err != nil {
			return err
		}

		if existing, ok := resolved[req.SkillID]; ok {
			if existing.Candidate.Version != res.Candidate.Version {
				return regerr.New(regerr.KindResolution, "resolver.ResolveDependencies",
					fmt.Errorf("diamond conflict for '%s': %s vs %s", req.SkillID,
						existing.Candidate.Version, res.Candidate.Version))
			}
			continue
		}
		resolved[req.SkillID] = res

		var next []DependencyRequest
		for _, dep := range res.Candidate.Dependencies {
			var constraint *version.Constraint
			if dep.Constraint != "" {
				c, err := version.ParseConstraint(dep.Constraint)
				if err != nil {
					return regerr.New(regerr.KindResolution, "resolver.ResolveDependencies", err)
				}
				constraint = c
			}
			next = append(next, DependencyRequest{SkillID: dep.ID, Constraint: constraint})
		}
		if len(next) > 0 {
			if err := resolveDependenciesInto(idx, next, strategy, resolved); err != nil {
				return err
			}
		}
	}
	return nil
}

// InstallOrder composes a resolved dependency set with depgraph's
// topological sort to produce a deterministic install order.
func InstallOrder(resolved map[string]Resolution, deps map[string][]depgraph.Dependency) ([]string, error) {
	g := depgraph.New()
	for id := range resolved {
		g.AddNode(id)
	}
	for id, ds := range deps {
		for _, d := range ds {
			if _, ok := resolved[d.ID]; ok {
				g.AddEdge(id, d.ID)
			}
		}
	}
	if cycle := g.DetectCycles(); cycle != nil {
		return nil, regerr.New(regerr.KindResolution, "resolver.InstallOrder",
			fmt.Errorf("dependency cycle detected: %v", cycle))
	}
	return g.TopologicalSort()
}
