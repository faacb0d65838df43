// Package packager builds skill ZIP archives via the two-pass
// build-then-checksum algorithm: a first pass writes every file plus
// BUILD_INFO.json and hashes the resulting archive, then a second pass
// rewrites the same archive with a CHECKSUM.sha256 entry holding that
// hash, so the archive can self-verify without an out-of-band channel.
package packager

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	digest "github.com/opencontainers/go-digest"

	"fastskill/internal/regerr"
	"fastskill/internal/validator"
)

// BuildEnvironment records the toolchain that produced a package.
type BuildEnvironment struct {
	RegistryVersion string `json:"registry_version"`
	GoVersion       string `json:"go_version"`
}

// BuildMetadata is the JSON document written as BUILD_INFO.json.
type BuildMetadata struct {
	SkillID          string            `json:"skill_id"`
	Version          string            `json:"version"`
	BuildTimestamp   string            `json:"build_timestamp"`
	GitCommit        string            `json:"git_commit,omitempty"`
	GitBranch        string            `json:"git_branch,omitempty"`
	BuildEnvironment BuildEnvironment  `json:"build_environment"`
}

// PackageOptions controls PackageSkill.
type PackageOptions struct {
	SkillPath       string
	OutputDir       string
	Version         string
	SkillIDOverride string // takes precedence over skill-project.toml and directory name
	GitCommit       string
	GitBranch       string
	RegistryVersion string
	Now             func() time.Time // injectable for deterministic tests; defaults to time.Now
}

// PackageSkill packages a skill directory into a self-checksumming ZIP
// archive and returns its path. Skill id precedence: SkillIDOverride >
// skill-project.toml metadata > directory name. Version precedence:
// skill-project.toml metadata > opts.Version.
func PackageSkill(opts PackageOptions, projectID, projectVersion string) (string, error) {
	info, err := os.Stat(opts.SkillPath)
	if err != nil || !info.IsDir() {
		return "", regerr.New(regerr.KindValidation, "packager.PackageSkill",
			fmt.Errorf("skill directory does not exist or is not a directory: %s", opts.SkillPath))
	}
	if _, err := os.Stat(filepath.Join(opts.SkillPath, "SKILL.md")); err != nil {
		return "", regerr.New(regerr.KindValidation, "packager.PackageSkill",
			fmt.Errorf("SKILL.md not found in %s", opts.SkillPath))
	}

	// §4.1 requires a skill to pass structural validation before it is
	// packaged, not merely before it is accepted off the staging queue.
	structural, err := validator.ValidateSkillDirectory(opts.SkillPath)
	if err != nil {
		return "", err
	}
	if !structural.IsValid {
		return "", regerr.New(regerr.KindValidation, "packager.PackageSkill",
			fmt.Errorf("skill failed structural validation: %s", firstValidationError(structural)))
	}

	if err := validateProjectFile(opts.SkillPath); err != nil {
		return "", err
	}

	skillID := opts.SkillIDOverride
	if skillID == "" {
		skillID = projectID
	}
	if skillID == "" {
		skillID = filepath.Base(opts.SkillPath)
	}

	version := projectVersion
	if version == "" {
		version = opts.Version
	}

	if err := validateSkillID(skillID); err != nil {
		return "", err
	}
	if err := validator.ValidateSemver(version); err != nil {
		return "", err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", regerr.New(regerr.KindIO, "packager.PackageSkill", err)
	}

	sanitizedID := strings.ReplaceAll(skillID, "/", "-")
	zipPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s-%s.zip", sanitizedID, version))

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	meta := BuildMetadata{
		SkillID:        skillID,
		Version:        version,
		BuildTimestamp: now().UTC().Format(time.RFC3339),
		GitCommit:      opts.GitCommit,
		GitBranch:      opts.GitBranch,
		BuildEnvironment: BuildEnvironment{
			RegistryVersion: opts.RegistryVersion,
			GoVersion:       "go1.25",
		},
	}
	buildInfoJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", regerr.New(regerr.KindIO, "packager.PackageSkill", err)
	}

	files, err := collectFiles(opts.SkillPath)
	if err != nil {
		return "", err
	}

	// Pass 1: build the archive with BUILD_INFO.json, hash it.
	pass1, err := buildZip(files, buildInfoJSON, nil)
	if err != nil {
		return "", err
	}
	checksum := digest.FromBytes(pass1).String()

	// Pass 2: rebuild, adding CHECKSUM.sha256 containing the pass-1 hash.
	pass2, err := buildZip(files, buildInfoJSON, []byte(checksum))
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(zipPath, pass2, 0o644); err != nil {
		return "", regerr.New(regerr.KindIO, "packager.PackageSkill", err)
	}
	return zipPath, nil
}

// validateSkillID checks a bare identifier, or, for a scoped "scope/name"
// id, each segment independently (registry scoping is layered on top of
// validator's identifier shape, not a replacement for it).
func validateSkillID(skillID string) error {
	parts := strings.Split(skillID, "/")
	for _, p := range parts {
		if err := validator.ValidateIdentifier(p); err != nil {
			return err
		}
	}
	return nil
}

// validateProjectFile runs ValidateProjectStructure against an optional
// skill-project.toml, a no-op when the file isn't present.
func validateProjectFile(skillPath string) error {
	data, err := os.ReadFile(filepath.Join(skillPath, "skill-project.toml"))
	if err != nil {
		return nil
	}
	hasMetadata := strings.Contains(string(data), "[metadata]")
	hasDependencies := strings.Contains(string(data), "[dependencies]")
	return validator.ValidateProjectStructure(hasMetadata, hasDependencies)
}

func firstValidationError(r *validator.ValidationResult) string {
	if len(r.Errors) == 0 {
		return "unknown validation failure"
	}
	return r.Errors[0].Message
}

type packagedFile struct {
	relPath string
	data    []byte
}

func collectFiles(skillPath string) ([]packagedFile, error) {
	var files []packagedFile
	err := filepath.Walk(skillPath, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(skillPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.Contains(rel, ".git/") || strings.HasPrefix(rel, ".git/") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, packagedFile{relPath: rel, data: data})
		return nil
	})
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "packager.collectFiles", err)
	}
	return files, nil
}

// buildZip writes files plus BUILD_INFO.json, and — when checksum is
// non-nil — a CHECKSUM.sha256 entry, returning the archive bytes.
func buildZip(files []packagedFile, buildInfoJSON, checksum []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range files {
		fw, err := w.Create(f.relPath)
		if err != nil {
			return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
		}
	}

	biw, err := w.Create("BUILD_INFO.json")
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
	}
	if _, err := biw.Write(buildInfoJSON); err != nil {
		return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
	}

	if checksum != nil {
		cw, err := w.Create("CHECKSUM.sha256")
		if err != nil {
			return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
		}
		if _, err := cw.Write(checksum); err != nil {
			return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, regerr.New(regerr.KindIO, "packager.buildZip", err)
	}
	return buf.Bytes(), nil
}

// VerifyChecksum re-derives the pass-1 hash of a packaged archive (every
// entry except CHECKSUM.sha256 itself) and compares it against the value
// stored in CHECKSUM.sha256, returning an error if they disagree.
func VerifyChecksum(zipPath string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return regerr.New(regerr.KindIO, "packager.VerifyChecksum", err)
	}
	defer r.Close()

	var stored string
	var files []packagedFile
	var buildInfo []byte

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return regerr.New(regerr.KindIO, "packager.VerifyChecksum", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return regerr.New(regerr.KindIO, "packager.VerifyChecksum", err)
		}

		switch f.Name {
		case "CHECKSUM.sha256":
			stored = string(data)
		case "BUILD_INFO.json":
			buildInfo = data
		default:
			files = append(files, packagedFile{relPath: f.Name, data: data})
		}
	}

	if stored == "" {
		return regerr.New(regerr.KindCorruption, "packager.VerifyChecksum",
			fmt.Errorf("archive missing CHECKSUM.sha256"))
	}

	pass1, err := buildZip(files, buildInfo, nil)
	if err != nil {
		return err
	}
	computed := digest.FromBytes(pass1).String()
	if computed != stored {
		return regerr.New(regerr.KindCorruption, "packager.VerifyChecksum",
			fmt.Errorf("checksum mismatch: stored %s, computed %s", stored, computed))
	}
	return nil
}
