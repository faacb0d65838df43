// Package validator checks skill packages for structural correctness
// (semver format, identifier shape, required sections, version
// uniqueness) and scans their content for dangerous patterns, producing
// a severity-scored result the publish pipeline uses to accept or
// reject a staged package.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"fastskill/internal/regerr"
)

var (
	semverRe     = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	identifierRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateSemver checks that version is exactly MAJOR.MINOR.PATCH, with no
// pre-release or build metadata suffix.
func ValidateSemver(version string) error {
	if !semverRe.MatchString(version) {
		return regerr.New(regerr.KindValidation, "validator.ValidateSemver",
			fmt.Errorf("invalid semantic version %q, expected MAJOR.MINOR.PATCH", version))
	}
	return nil
}

// ValidateIdentifier checks that id is non-empty and contains only
// alphanumerics, hyphens, and underscores.
func ValidateIdentifier(id string) error {
	if id == "" {
		return regerr.New(regerr.KindValidation, "validator.ValidateIdentifier",
			fmt.Errorf("empty identifier"))
	}
	if !identifierRe.MatchString(id) {
		return regerr.New(regerr.KindValidation, "validator.ValidateIdentifier",
			fmt.Errorf("invalid identifier %q: must be alphanumeric, hyphen, or underscore", id))
	}
	return nil
}

// ValidateProjectStructure checks that a skill-project.toml declares at
// least one of [metadata] or [dependencies].
func ValidateProjectStructure(hasMetadata, hasDependencies bool) error {
	if !hasMetadata && !hasDependencies {
		return regerr.New(regerr.KindValidation, "validator.ValidateProjectStructure",
			fmt.Errorf("skill-project.toml must declare [metadata] or [dependencies]"))
	}
	return nil
}

// ValidateUniqueness checks name/version are well-formed and not already
// present in existing, a set of "name@version" keys.
func ValidateUniqueness(name, version string, existing map[string]bool) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	if err := ValidateSemver(version); err != nil {
		return err
	}
	key := name + "@" + version
	if existing[key] {
		return regerr.New(regerr.KindValidation, "validator.ValidateUniqueness",
			fmt.Errorf("duplicate skill: %s@%s already exists", name, version))
	}
	return nil
}

// Severity ranks a Finding. Lower rank is more severe.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

var severityWeight = map[Severity]int{
	SeverityCritical: 25,
	SeverityHigh:     15,
	SeverityMedium:   8,
	SeverityLow:      3,
	SeverityInfo:     1,
}

// Finding is a single issue detected while scanning a skill's content.
type Finding struct {
	Severity Severity `json:"severity"`
	Pattern  string   `json:"pattern"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Snippet  string   `json:"snippet"`
}

// Result aggregates every finding for a scanned skill plus a derived risk
// score and label.
type Result struct {
	SkillName string    `json:"skill_name"`
	Findings  []Finding `json:"findings"`
	RiskScore int       `json:"risk_score"`
	RiskLabel string    `json:"risk_label"`
}

func (r *Result) updateRisk() {
	score := 0
	for _, f := range r.Findings {
		score += severityWeight[f.Severity]
	}
	if score > 100 {
		score = 100
	}
	r.RiskScore = score
	r.RiskLabel = riskLabel(score, r.maxSeverity())
}

func (r *Result) maxSeverity() Severity {
	max := Severity("")
	maxRank := 999
	for _, f := range r.Findings {
		if rank := severityRank[f.Severity]; rank < maxRank {
			max = f.Severity
			maxRank = rank
		}
	}
	return max
}

// HasCritical reports whether any finding is CRITICAL.
func (r *Result) HasCritical() bool { return r.HasSeverityAtOrAbove(SeverityCritical) }

// HasHigh reports whether any finding is HIGH or above.
func (r *Result) HasHigh() bool { return r.HasSeverityAtOrAbove(SeverityHigh) }

// HasSeverityAtOrAbove reports whether any finding is at least as severe as
// threshold.
func (r *Result) HasSeverityAtOrAbove(threshold Severity) bool {
	cutoff, ok := severityRank[threshold]
	if !ok {
		cutoff = severityRank[SeverityHigh]
	}
	for _, f := range r.Findings {
		if severityRank[f.Severity] <= cutoff {
			return true
		}
	}
	return false
}

func riskLabel(score int, max Severity) string {
	scoreLabel := scoreLabelOnly(score)
	floor := floorFromSeverity(max)
	if labelRank(floor) < labelRank(scoreLabel) {
		return floor
	}
	return scoreLabel
}

func scoreLabelOnly(score int) string {
	switch {
	case score <= 0:
		return "clean"
	case score <= 25:
		return "low"
	case score <= 50:
		return "medium"
	case score <= 75:
		return "high"
	default:
		return "critical"
	}
}

func floorFromSeverity(s Severity) string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "clean"
	}
}

var labelRanks = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3, "clean": 4}

func labelRank(label string) int {
	if r, ok := labelRanks[label]; ok {
		return r
	}
	return 999
}

// rule is a single dangerous-pattern detector.
type rule struct {
	pattern  string
	severity Severity
	message  string
	regex    *regexp.Regexp
}

// defaultRules flags common attack-shaped content in skill sources: dynamic
// code execution, raw shell invocation, destructive filesystem commands,
// and credential-shaped string literals.
var defaultRules = []rule{
	{"dynamic-code-exec", SeverityHigh, "dynamic code execution", regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`)},
	{"shell-execution", SeverityMedium, "shell command execution", regexp.MustCompile(`(?i)\b(os/exec|subprocess|child_process)\b`)},
	{"destructive-commands", SeverityCritical, "destructive filesystem command", regexp.MustCompile(`(?i)\brm\s+-rf\s+/`)},
	{"hardcoded-secret", SeverityHigh, "hardcoded credential-shaped string", regexp.MustCompile(`(?i)(api[_-]?key|secret|password)\s*=\s*["'][^"']{8,}["']`)},
	{"insecure-http", SeverityLow, "plaintext HTTP URL", regexp.MustCompile(`(?i)\bhttp://`)},
}

const maxScanFileSize = 1_000_000

// ScanSkill walks a skill directory and scans every scannable text file
// for dangerous patterns, returning an aggregated Result.
func ScanSkill(skillPath string) (*Result, error) {
	info, err := os.Stat(skillPath)
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "validator.ScanSkill", err)
	}
	if !info.IsDir() {
		return nil, regerr.New(regerr.KindValidation, "validator.ScanSkill",
			fmt.Errorf("not a directory: %s", skillPath))
	}

	result := &Result{SkillName: filepath.Base(skillPath)}

	err = filepath.Walk(skillPath, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if fi.IsDir() {
			if fi.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.Size() > maxScanFileSize || !isScannable(fi.Name()) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if isBinary(data) {
			return nil
		}
		rel, err := filepath.Rel(skillPath, path)
		if err != nil {
			rel = fi.Name()
		}
		result.Findings = append(result.Findings, ScanContent(data, filepath.ToSlash(rel))...)
		return nil
	})
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "validator.ScanSkill", err)
	}

	result.updateRisk()
	return result, nil
}

// ScanContent scans raw content against the default rule set, returning
// any findings with the given filename attached for reporting.
func ScanContent(content []byte, filename string) []Finding {
	var findings []Finding
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		for _, r := range defaultRules {
			if r.regex.MatchString(line) {
				findings = append(findings, Finding{
					Severity: r.severity,
					Pattern:  r.pattern,
					Message:  r.message,
					File:     filename,
					Line:     i + 1,
					Snippet:  strings.TrimSpace(line),
				})
			}
		}
	}
	return findings
}

func isScannable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".md", ".txt", ".yaml", ".yml", ".json", ".toml",
		".sh", ".bash", ".zsh", ".py", ".js", ".ts", ".rb", ".go":
		return true
	}
	return ext == ""
}

func isBinary(content []byte) bool {
	n := len(content)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// IssueSeverity is the severity scale ValidateSkillDirectory reports,
// distinct from the dangerous-pattern Severity scale above: a skill is
// only rejected for Critical and Error issues, never for Warning.
type IssueSeverity string

const (
	IssueWarning  IssueSeverity = "warning"
	IssueError    IssueSeverity = "error"
	IssueCritical IssueSeverity = "critical"
)

// ValidationError is a structural problem serious enough to invalidate a
// skill (IssueError or IssueCritical).
type ValidationError struct {
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path,omitempty"`
	Message  string        `json:"message"`
}

// ValidationWarning is a non-fatal structural observation.
type ValidationWarning struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of ValidateSkillDirectory. IsValid is
// false as soon as any error is recorded; Score starts at 1.0 and is
// penalized 0.3 per error and 0.1 per warning, floored at 0.
type ValidationResult struct {
	SkillName string              `json:"skill_name"`
	IsValid   bool                `json:"is_valid"`
	Errors    []ValidationError   `json:"errors"`
	Warnings  []ValidationWarning `json:"warnings"`
	Score     float64             `json:"score"`
}

func (r *ValidationResult) withError(severity IssueSeverity, path, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationError{Severity: severity, Path: path, Message: fmt.Sprintf(format, args...)})
	r.IsValid = false
}

func (r *ValidationResult) withWarning(path, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, ValidationWarning{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) finalize() {
	score := 1 - float64(len(r.Errors))*0.3 - float64(len(r.Warnings))*0.1
	if score < 0 {
		score = 0
	}
	r.Score = score
}

// HasBlockingErrors reports whether a skill failed validation outright.
func (r *ValidationResult) HasBlockingErrors() bool { return !r.IsValid }

const (
	maxSkillMDSize      = 10 * 1024 * 1024
	warnSkillMDSize     = 50 * 1024
	warnSkillMDLines    = 500
	maxNameLength       = 64
	maxDescriptionLen   = 1024
	maxCompatibilityLen = 500
)

var skillNameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

var fileRefRe = regexp.MustCompile(`(?:\./|/)?(scripts|references|assets)/([A-Za-z0-9_.\-/]+)`)

var rootAllowedFiles = map[string]bool{"SKILL.md": true, "skill-project.toml": true}
var allowedSubdirs = map[string]bool{"scripts": true, "references": true, "assets": true}

var scriptExtensions = map[string]bool{
	"py": true, "js": true, "ts": true, "sh": true,
	"bash": true, "rb": true, "go": true, "rs": true,
}
var referenceExtensions = map[string]bool{
	"md": true, "txt": true, "json": true, "yaml": true,
	"yml": true, "csv": true, "tsv": true,
}

// SkillFrontmatter is SKILL.md's YAML frontmatter schema.
type SkillFrontmatter struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Version       string            `yaml:"version,omitempty"`
	Author        string            `yaml:"author,omitempty"`
	Tags          []string          `yaml:"tags,omitempty"`
	Capabilities  []string          `yaml:"capabilities,omitempty"`
	License       string            `yaml:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
	AllowedTools  []string          `yaml:"allowed_tools,omitempty"`
}

// ValidateSkillDirectory runs the full structural validation contract
// against an extracted (or on-disk) skill directory: frontmatter shape,
// name/description/compatibility limits, the root and subdirectory
// allowlists, file-reference resolution, script/reference extension
// checks, SKILL.md size limits, and the dangerous-pattern scan. Unlike
// ScanSkill, which only flags content, this is the gate the publish
// pipeline runs before a package is accepted.
func ValidateSkillDirectory(skillPath string) (*ValidationResult, error) {
	info, err := os.Stat(skillPath)
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "validator.ValidateSkillDirectory", err)
	}
	if !info.IsDir() {
		return nil, regerr.New(regerr.KindValidation, "validator.ValidateSkillDirectory",
			fmt.Errorf("not a directory: %s", skillPath))
	}

	dirName := filepath.Base(skillPath)
	result := &ValidationResult{SkillName: dirName, IsValid: true}

	skillMDPath := filepath.Join(skillPath, "SKILL.md")
	content, err := os.ReadFile(skillMDPath)
	if err != nil {
		result.withError(IssueCritical, "SKILL.md", "SKILL.md is missing or unreadable: %v", err)
		result.finalize()
		return result, nil
	}

	if len(content) > maxSkillMDSize {
		result.withError(IssueCritical, "SKILL.md", "SKILL.md exceeds the %d byte size limit", maxSkillMDSize)
	} else if len(content) > warnSkillMDSize {
		result.withWarning("SKILL.md", "SKILL.md is larger than %d bytes", warnSkillMDSize)
	}
	if lines := strings.Count(string(content), "\n") + 1; lines > warnSkillMDLines {
		result.withWarning("SKILL.md", "SKILL.md has more than %d lines", warnSkillMDLines)
	}

	fm, body, ok := parseSkillFrontmatter(content)
	if !ok {
		result.withError(IssueError, "SKILL.md", "SKILL.md must open with a --- delimited YAML frontmatter block")
	} else {
		validateFrontmatterFields(result, fm, dirName)
	}

	for _, finding := range ScanContent(content, "SKILL.md") {
		result.withError(IssueCritical, "SKILL.md", "%s: %s", finding.Pattern, finding.Snippet)
	}
	forEachScriptFile(skillPath, func(rel string, data []byte) {
		for _, finding := range ScanContent(data, rel) {
			result.withError(IssueCritical, rel, "%s: %s", finding.Pattern, finding.Snippet)
		}
	})

	validateTopLevelEntries(result, skillPath)
	validateFileReferences(result, skillPath, extractFileReferences(body))
	validateSubdirectory(result, skillPath, "scripts", scriptExtensions, "script file without extension:")
	validateSubdirectory(result, skillPath, "references", referenceExtensions, "")

	result.finalize()
	return result, nil
}

// ReadFrontmatter reads and parses skillPath's SKILL.md frontmatter,
// letting publish-side callers lift descriptive metadata (description,
// author, license) without re-implementing the parse.
func ReadFrontmatter(skillPath string) (SkillFrontmatter, bool, error) {
	content, err := os.ReadFile(filepath.Join(skillPath, "SKILL.md"))
	if err != nil {
		return SkillFrontmatter{}, false, regerr.New(regerr.KindIO, "validator.ReadFrontmatter", err)
	}
	fm, _, ok := parseSkillFrontmatter(content)
	return fm, ok, nil
}

func parseSkillFrontmatter(content []byte) (SkillFrontmatter, string, bool) {
	s := string(content)
	const delim = "---\n"
	if !strings.HasPrefix(s, delim) {
		return SkillFrontmatter{}, s, false
	}
	rest := s[len(delim):]
	idx := strings.Index(rest, delim)
	if idx < 0 {
		return SkillFrontmatter{}, s, false
	}
	raw, body := rest[:idx], rest[idx+len(delim):]
	var fm SkillFrontmatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return SkillFrontmatter{}, body, false
	}
	return fm, body, true
}

func validateFrontmatterFields(result *ValidationResult, fm SkillFrontmatter, dirName string) {
	switch {
	case fm.Name == "":
		result.withError(IssueError, "SKILL.md", "frontmatter is missing required key 'name'")
	default:
		if len(fm.Name) > maxNameLength {
			result.withError(IssueError, "SKILL.md", "name must be at most %d characters", maxNameLength)
		}
		if !skillNameRe.MatchString(fm.Name) {
			result.withError(IssueError, "SKILL.md", "name %q must match %s", fm.Name, skillNameRe.String())
		}
		if fm.Name != dirName {
			result.withError(IssueError, "SKILL.md", "name %q must match its containing directory %q", fm.Name, dirName)
		}
	}

	switch {
	case fm.Description == "":
		result.withError(IssueError, "SKILL.md", "frontmatter is missing required key 'description'")
	case len(fm.Description) > maxDescriptionLen:
		result.withError(IssueError, "SKILL.md", "description exceeds %d characters", maxDescriptionLen)
	}

	if len(fm.Compatibility) > maxCompatibilityLen {
		result.withError(IssueError, "SKILL.md", "compatibility exceeds %d characters", maxCompatibilityLen)
	}

	if fm.Version != "" {
		if err := ValidateSemver(fm.Version); err != nil {
			result.withWarning("SKILL.md", "version %q is not MAJOR.MINOR.PATCH", fm.Version)
		}
	}
}

func validateTopLevelEntries(result *ValidationResult, skillPath string) {
	entries, err := os.ReadDir(skillPath)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name == ".git" {
			continue
		}
		if e.IsDir() {
			if !allowedSubdirs[name] {
				result.withWarning(name, "unexpected top-level directory %q, expected one of scripts/, references/, assets/", name)
			}
			continue
		}
		if !rootAllowedFiles[name] {
			result.withWarning(name, "unexpected top-level file %q, expected SKILL.md or skill-project.toml", name)
		}
	}
}

func extractFileReferences(body string) []string {
	matches := fileRefRe.FindAllString(body, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimPrefix(strings.TrimPrefix(m, "./"), "/")
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func validateFileReferences(result *ValidationResult, skillPath string, refs []string) {
	for _, ref := range refs {
		full := filepath.Join(skillPath, filepath.FromSlash(ref))
		rel, err := filepath.Rel(skillPath, full)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			result.withError(IssueError, ref, "file reference %q escapes the skill directory", ref)
			continue
		}
		if _, err := os.Stat(full); err != nil {
			result.withWarning(ref, "referenced file %q does not exist", ref)
		}
	}
}

func validateSubdirectory(result *ValidationResult, skillPath, dirname string, allowedExts map[string]bool, noExtMessage string) {
	entries, err := os.ReadDir(filepath.Join(skillPath, dirname))
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		rel := dirname + "/" + name
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if ext == "" {
			if noExtMessage != "" {
				result.withWarning(rel, "%s %s", noExtMessage, name)
			}
			continue
		}
		if !allowedExts[ext] {
			result.withWarning(rel, "unusual file extension %q in %s/", ext, dirname)
		}
	}
}

func forEachScriptFile(skillPath string, fn func(rel string, data []byte)) {
	scriptsDir := filepath.Join(skillPath, "scripts")
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(scriptsDir, e.Name()))
		if err != nil || isBinary(data) {
			continue
		}
		fn("scripts/"+e.Name(), data)
	}
}
