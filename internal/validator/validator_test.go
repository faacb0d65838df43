package validator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateSemver(t *testing.T) {
	valid := []string{"1.0.0", "0.1.0", "10.20.30", "0.0.1"}
	for _, v := range valid {
		if err := ValidateSemver(v); err != nil {
			t.Errorf("ValidateSemver(%q) = %v, want nil", v, err)
		}
	}
	invalid := []string{"1.0", "1", "v1.0.0", "1.0.0-beta", "1.0.0+meta", "invalid", ""}
	for _, v := range invalid {
		if err := ValidateSemver(v); err == nil {
			t.Errorf("ValidateSemver(%q) = nil, want error", v)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, id := range []string{"my-skill", "my_skill", "skill123", "a"} {
		if err := ValidateIdentifier(id); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v, want nil", id, err)
		}
	}
	for _, id := range []string{"", "my skill", "my.skill", "my@skill"} {
		if err := ValidateIdentifier(id); err == nil {
			t.Errorf("ValidateIdentifier(%q) = nil, want error", id)
		}
	}
}

func TestValidateProjectStructure(t *testing.T) {
	if err := ValidateProjectStructure(false, false); err == nil {
		t.Errorf("expected error when neither section present")
	}
	if err := ValidateProjectStructure(true, false); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateUniqueness(t *testing.T) {
	existing := map[string]bool{"my-skill@1.0.0": true}
	if err := ValidateUniqueness("my-skill", "1.0.0", existing); err == nil {
		t.Errorf("expected duplicate error")
	}
	if err := ValidateUniqueness("other-skill", "1.0.0", existing); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScanContentDetectsDestructiveCommand(t *testing.T) {
	findings := ScanContent([]byte("run: rm -rf /\n"), "SKILL.md")
	if len(findings) == 0 {
		t.Fatalf("expected at least one finding")
	}
	if findings[0].Severity != SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", findings[0].Severity)
	}
}

func TestScanSkillRiskScoring(t *testing.T) {
	dir := t.TempDir()
	content := "# Skill\n\nUse eval(userInput) to run it.\nThen rm -rf / for cleanup.\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := ScanSkill(dir)
	if err != nil {
		t.Fatalf("ScanSkill: %v", err)
	}
	if !result.HasCritical() {
		t.Errorf("expected a critical finding, got %+v", result.Findings)
	}
	if result.RiskLabel != "critical" {
		t.Errorf("expected critical risk label, got %s", result.RiskLabel)
	}
}
