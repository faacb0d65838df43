// Package manifest models the declarative skills manifest (desired state)
// and its sibling lock file (exact installed state), both serialized as
// TOML, mirroring skill-project.toml/manifest.toml/skills-lock.toml.
package manifest

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"fastskill/internal/regerr"
)

// SourceType tags the variant of a SkillSource.
type SourceType string

const (
	SourceGit    SourceType = "git"
	SourceNamed  SourceType = "source"
	SourceLocal  SourceType = "local"
	SourceZipURL SourceType = "zip-url"
)

// SkillSource is a tagged union over the four ways a skill can be sourced:
// a git repository, a named registry source, a local path, or a zip URL.
// Only the fields relevant to Type are populated.
type SkillSource struct {
	Type SourceType `toml:"type"`

	// git
	URL    string `toml:"url,omitempty"`
	Branch string `toml:"branch,omitempty"`
	Tag    string `toml:"tag,omitempty"`
	Subdir string `toml:"subdir,omitempty"`

	// source (named registry)
	Name    string `toml:"name,omitempty"`
	Skill   string `toml:"skill,omitempty"`
	Version string `toml:"version,omitempty"`

	// local
	Path     string `toml:"path,omitempty"`
	Editable bool   `toml:"editable,omitempty"`

	// zip-url
	BaseURL string `toml:"base_url,omitempty"`
}

// SkillEntry is a single skill declaration in the manifest.
type SkillEntry struct {
	ID       string      `toml:"id"`
	Source   SkillSource `toml:"source"`
	Version  string      `toml:"version,omitempty"`
	Groups   []string    `toml:"groups,omitempty"`
	Editable bool        `toml:"editable,omitempty"`
}

// Metadata is the manifest's top-level [metadata] section.
type Metadata struct {
	Version string `toml:"version"`
}

// Manifest is the full declarative skills manifest.
type Manifest struct {
	Metadata Metadata     `toml:"metadata"`
	Skills   []SkillEntry `toml:"skills,omitempty"`
}

// Load reads and parses a manifest TOML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, regerr.New(regerr.KindIO, "manifest.Load", fmt.Errorf("not found: %s", path))
		}
		return nil, regerr.New(regerr.KindIO, "manifest.Load", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, regerr.New(regerr.KindCorruption, "manifest.Load", err)
	}
	return &m, nil
}

// Save serializes the manifest to path as TOML.
func (m *Manifest) Save(path string) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return regerr.New(regerr.KindIO, "manifest.Save", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return regerr.New(regerr.KindIO, "manifest.Save", err)
	}
	return nil
}

// GetSkillsForGroups filters entries by group membership, Poetry-group
// style: if onlyGroups is non-empty, an entry must belong to one of those
// groups (entries with no groups are excluded unless onlyGroups is empty);
// otherwise an entry is excluded if it belongs to any excludeGroups.
func (m *Manifest) GetSkillsForGroups(excludeGroups, onlyGroups []string) []*SkillEntry {
	var out []*SkillEntry
	for i := range m.Skills {
		s := &m.Skills[i]
		if len(onlyGroups) > 0 {
			if len(s.Groups) == 0 {
				continue
			}
			if !anyIn(s.Groups, onlyGroups) {
				continue
			}
			out = append(out, s)
			continue
		}
		if len(excludeGroups) > 0 && anyIn(s.Groups, excludeGroups) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// GetAllSkills returns every entry, unfiltered.
func (m *Manifest) GetAllSkills() []*SkillEntry {
	out := make([]*SkillEntry, len(m.Skills))
	for i := range m.Skills {
		out[i] = &m.Skills[i]
	}
	return out
}

// AddSkill appends a new entry to the manifest.
func (m *Manifest) AddSkill(entry SkillEntry) {
	m.Skills = append(m.Skills, entry)
}

// RemoveSkill removes the entry with the given id, reporting whether one
// was found.
func (m *Manifest) RemoveSkill(id string) bool {
	for i, s := range m.Skills {
		if s.ID == id {
			m.Skills = append(m.Skills[:i], m.Skills[i+1:]...)
			return true
		}
	}
	return false
}

func anyIn(haystack, needles []string) bool {
	set := make(map[string]bool, len(needles))
	for _, n := range needles {
		set[n] = true
	}
	for _, h := range haystack {
		if set[h] {
			return true
		}
	}
	return false
}
