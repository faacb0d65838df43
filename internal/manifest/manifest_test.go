package manifest

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m := &Manifest{
		Metadata: Metadata{Version: "1"},
		Skills: []SkillEntry{
			{
				ID:      "acme/hello",
				Version: "^1.0.0",
				Groups:  []string{"dev"},
				Source: SkillSource{
					Type:   SourceGit,
					URL:    "https://github.com/acme/hello.git",
					Branch: "main",
				},
			},
		},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.toml")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Skills) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(loaded.Skills))
	}
	got := loaded.Skills[0]
	if got.ID != "acme/hello" || got.Source.Type != SourceGit || got.Source.URL != "https://github.com/acme/hello.git" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestGetSkillsForGroups(t *testing.T) {
	m := &Manifest{
		Skills: []SkillEntry{
			{ID: "a", Groups: nil},
			{ID: "b", Groups: []string{"dev"}},
			{ID: "c", Groups: []string{"test"}},
		},
	}

	only := m.GetSkillsForGroups(nil, []string{"dev"})
	if len(only) != 1 || only[0].ID != "b" {
		t.Errorf("onlyGroups filter wrong: %+v", only)
	}

	excl := m.GetSkillsForGroups([]string{"test"}, nil)
	ids := map[string]bool{}
	for _, s := range excl {
		ids[s.ID] = true
	}
	if !ids["a"] || !ids["b"] || ids["c"] {
		t.Errorf("excludeGroups filter wrong: %+v", excl)
	}
}

func TestAddRemoveSkill(t *testing.T) {
	m := &Manifest{}
	m.AddSkill(SkillEntry{ID: "x"})
	if len(m.Skills) != 1 {
		t.Fatalf("expected 1 skill after add")
	}
	if !m.RemoveSkill("x") {
		t.Fatalf("expected RemoveSkill to find x")
	}
	if m.RemoveSkill("x") {
		t.Fatalf("expected second RemoveSkill to report not found")
	}
}

func TestVerifyMatchesInstalled(t *testing.T) {
	l := &Lock{
		Skills: []LockedSkillEntry{
			{ID: "a", Version: "1.0.0", CommitHash: "abc"},
			{ID: "b", Version: "2.0.0"},
		},
	}

	mismatches := l.VerifyMatchesInstalled([]InstalledSkill{
		{ID: "a", Version: "1.0.1", CommitHash: "abc"},
		{ID: "c", Version: "3.0.0"},
	})

	var foundVersionMismatch, foundMissingB, foundExtraC bool
	for _, m := range mismatches {
		switch {
		case m.SkillID == "a":
			foundVersionMismatch = true
		case m.SkillID == "b":
			foundMissingB = true
		case m.SkillID == "c":
			foundExtraC = true
		}
	}
	if !foundVersionMismatch || !foundMissingB || !foundExtraC {
		t.Errorf("missing expected mismatches: %+v", mismatches)
	}
}
