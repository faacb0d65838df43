package manifest

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fastskill/internal/regerr"
)

// LockMetadata is the lock file's top-level [metadata] section.
type LockMetadata struct {
	Version        string    `toml:"version"`
	GeneratedAt    time.Time `toml:"generated_at"`
	RegistryVersion string   `toml:"registry_version,omitempty"`
}

// LockedSkillEntry records the exact state a skill was installed in.
type LockedSkillEntry struct {
	ID           string      `toml:"id"`
	Name         string      `toml:"name"`
	Version      string      `toml:"version"`
	Source       SkillSource `toml:"source"`
	SourceName   string      `toml:"source_name,omitempty"`
	SourceURL    string      `toml:"source_url,omitempty"`
	SourceBranch string      `toml:"source_branch,omitempty"`
	CommitHash   string      `toml:"commit_hash,omitempty"`
	FetchedAt    time.Time   `toml:"fetched_at"`
	Checksum     string      `toml:"checksum,omitempty"`
	Dependencies []string    `toml:"dependencies,omitempty"`
	Groups       []string    `toml:"groups,omitempty"`
	Editable     bool        `toml:"editable,omitempty"`
}

// Lock is the full lock file: the exact installed state corresponding to
// a Manifest's desired state.
type Lock struct {
	Metadata LockMetadata       `toml:"metadata"`
	Skills   []LockedSkillEntry `toml:"skills,omitempty"`
}

// LoadLock reads and parses a lock file.
func LoadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, regerr.New(regerr.KindIO, "manifest.LoadLock", fmt.Errorf("not found: %s", path))
		}
		return nil, regerr.New(regerr.KindIO, "manifest.LoadLock", err)
	}
	var l Lock
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, regerr.New(regerr.KindCorruption, "manifest.LoadLock", err)
	}
	return &l, nil
}

// Save serializes the lock file to path as TOML.
func (l *Lock) Save(path string) error {
	data, err := toml.Marshal(l)
	if err != nil {
		return regerr.New(regerr.KindIO, "manifest.Lock.Save", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return regerr.New(regerr.KindIO, "manifest.Lock.Save", err)
	}
	return nil
}

// UpsertSkill replaces any existing entry with the same ID, then appends
// entry and refreshes GeneratedAt.
func (l *Lock) UpsertSkill(entry LockedSkillEntry, now time.Time) {
	for i, s := range l.Skills {
		if s.ID == entry.ID {
			l.Skills = append(l.Skills[:i], l.Skills[i+1:]...)
			break
		}
	}
	l.Skills = append(l.Skills, entry)
	l.Metadata.GeneratedAt = now
}

// RemoveSkill removes the locked entry with the given id.
func (l *Lock) RemoveSkill(id string, now time.Time) bool {
	for i, s := range l.Skills {
		if s.ID == id {
			l.Skills = append(l.Skills[:i], l.Skills[i+1:]...)
			l.Metadata.GeneratedAt = now
			return true
		}
	}
	return false
}

// LockMismatch describes a discrepancy between a lock file and installed
// skill state.
type LockMismatch struct {
	SkillID string
	Reason  string
}

// InstalledSkill is the minimal view of an installed skill needed to
// reconcile it against the lock file.
type InstalledSkill struct {
	ID         string
	Version    string
	CommitHash string
}

// VerifyMatchesInstalled reports every mismatch between the lock file and
// the given installed skill set: version drift, commit drift, a locked
// skill that is no longer installed, and an installed skill absent from
// the lock.
func (l *Lock) VerifyMatchesInstalled(installed []InstalledSkill) []LockMismatch {
	var mismatches []LockMismatch

	byID := make(map[string]InstalledSkill, len(installed))
	for _, s := range installed {
		byID[s.ID] = s
	}

	for _, locked := range l.Skills {
		inst, ok := byID[locked.ID]
		if !ok {
			mismatches = append(mismatches, LockMismatch{
				SkillID: locked.ID,
				Reason:  "skill locked but not installed",
			})
			continue
		}
		if inst.Version != locked.Version {
			mismatches = append(mismatches, LockMismatch{
				SkillID: locked.ID,
				Reason:  fmt.Sprintf("version mismatch: lock=%s, installed=%s", locked.Version, inst.Version),
			})
		}
		if locked.CommitHash != "" && inst.CommitHash != "" && locked.CommitHash != inst.CommitHash {
			mismatches = append(mismatches, LockMismatch{
				SkillID: locked.ID,
				Reason:  fmt.Sprintf("commit mismatch: lock=%s, installed=%s", locked.CommitHash, inst.CommitHash),
			})
		}
	}

	lockedIDs := make(map[string]bool, len(l.Skills))
	for _, locked := range l.Skills {
		lockedIDs[locked.ID] = true
	}
	for _, inst := range installed {
		if !lockedIDs[inst.ID] {
			mismatches = append(mismatches, LockMismatch{
				SkillID: inst.ID,
				Reason:  "skill installed but not in lock file",
			})
		}
	}

	return mismatches
}
