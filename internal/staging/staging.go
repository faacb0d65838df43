// Package staging implements the publish pipeline's state machine: a
// staged package moves pending -> validating -> accepted or rejected.
// Validation/IO failures during that transition make the staging record
// rejected rather than bubbling the error up — the record is the log.
package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"fastskill/internal/logging"
	"fastskill/internal/regerr"
)

// Status is a staging record's position in the publish pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
)

// Metadata is the JSON sidecar stored alongside a staged package.
type Metadata struct {
	SkillID          string    `json:"skill_id"`
	Version          string    `json:"version"`
	Checksum         string    `json:"checksum"`
	UploadedAt       time.Time `json:"uploaded_at"`
	UploadedBy       string    `json:"uploaded_by,omitempty"`
	Status           Status    `json:"status"`
	ValidationErrors []string  `json:"validation_errors,omitempty"`
	JobID            string    `json:"job_id"`
}

// Manager manages the staging directory tree: {root}/{scope}/{name}/{version}/.
type Manager struct {
	Root string
}

// NewManager returns a Manager rooted at root, creating it if necessary.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, regerr.New(regerr.KindIO, "staging.NewManager", err)
	}
	return &Manager{Root: root}, nil
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitize(component string) string {
	return sanitizeRe.ReplaceAllString(component, "")
}

// pathFor returns the staging directory for a skill id ("scope/name") and
// version, sanitizing each path component to prevent traversal.
func (m *Manager) pathFor(skillID, version string) string {
	path := m.Root
	for _, component := range splitID(skillID) {
		path = filepath.Join(path, sanitize(component))
	}
	return filepath.Join(path, sanitize(version))
}

func splitID(id string) []string {
	var parts []string
	cur := ""
	for _, r := range id {
		if r == '/' {
			parts = append(parts, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	parts = append(parts, cur)
	return parts
}

// StorePackage writes packageData into the staging area for skillID at
// version, generating a job id and a pending Metadata record.
func (m *Manager) StorePackage(skillID, version string, packageData []byte, uploadedBy string) (jobID string, err error) {
	stagingPath := m.pathFor(skillID, version)
	if err := os.MkdirAll(stagingPath, 0o755); err != nil {
		return "", regerr.New(regerr.KindIO, "staging.StorePackage", err)
	}

	jobID = "job_" + uuid.New().String()

	sum := sha256.Sum256(packageData)
	checksum := "sha256:" + hex.EncodeToString(sum[:])

	packageName := lastComponent(skillID)
	packagePath := filepath.Join(stagingPath, fmt.Sprintf("%s-%s.zip", packageName, version))
	if err := os.WriteFile(packagePath, packageData, 0o644); err != nil {
		return "", regerr.New(regerr.KindIO, "staging.StorePackage", err)
	}

	meta := Metadata{
		SkillID:    skillID,
		Version:    version,
		Checksum:   checksum,
		UploadedAt: time.Now().UTC(),
		UploadedBy: uploadedBy,
		Status:     StatusPending,
		JobID:      jobID,
	}
	if err := m.writeMetadata(stagingPath, meta); err != nil {
		return "", err
	}

	logging.Info("staged package", "job_id", jobID, "skill_id", skillID, "version", version)
	return jobID, nil
}

func lastComponent(id string) string {
	parts := splitID(id)
	return parts[len(parts)-1]
}

func (m *Manager) writeMetadata(stagingPath string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return regerr.New(regerr.KindIO, "staging.writeMetadata", err)
	}
	if err := os.WriteFile(filepath.Join(stagingPath, "metadata.json"), data, 0o644); err != nil {
		return regerr.New(regerr.KindIO, "staging.writeMetadata", err)
	}
	return nil
}

// LoadMetadata searches the staging tree for the record with the given
// job id. Returns nil, nil if not found.
func (m *Manager) LoadMetadata(jobID string) (*Metadata, error) {
	var found *Metadata
	err := filepath.Walk(m.Root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil || found != nil {
			return nil
		}
		if fi.IsDir() || filepath.Base(path) != "metadata.json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil
		}
		if meta.JobID == jobID {
			found = &meta
		}
		return nil
	})
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "staging.LoadMetadata", err)
	}
	return found, nil
}

// UpdateStatus transitions the staging record identified by jobID to
// status, recording any validation errors.
func (m *Manager) UpdateStatus(jobID string, status Status, validationErrors []string) error {
	meta, err := m.LoadMetadata(jobID)
	if err != nil {
		return err
	}
	if meta == nil {
		return regerr.New(regerr.KindValidation, "staging.UpdateStatus", fmt.Errorf("job %s not found", jobID))
	}
	meta.Status = status
	meta.ValidationErrors = validationErrors

	stagingPath := m.pathFor(meta.SkillID, meta.Version)
	return m.writeMetadata(stagingPath, *meta)
}

// PackagePath returns the on-disk path of the staged archive for jobID, or
// "" if the job or its archive is not found.
func (m *Manager) PackagePath(jobID string) (string, error) {
	meta, err := m.LoadMetadata(jobID)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", regerr.New(regerr.KindValidation, "staging.PackagePath", fmt.Errorf("job %s not found", jobID))
	}
	stagingPath := m.pathFor(meta.SkillID, meta.Version)
	packagePath := filepath.Join(stagingPath, fmt.Sprintf("%s-%s.zip", lastComponent(meta.SkillID), meta.Version))
	if _, err := os.Stat(packagePath); err != nil {
		return "", nil
	}
	return packagePath, nil
}
