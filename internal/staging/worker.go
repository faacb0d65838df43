package staging

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fastskill/internal/blobstore"
	"fastskill/internal/logging"
	"fastskill/internal/packager"
	"fastskill/internal/regerr"
	"fastskill/internal/registry"
	"fastskill/internal/validator"
)

// Worker drains pending staging records through validation and, once
// validation passes, into the blob store and registry index, marking a
// record accepted only after both of those succeed. It runs as a
// single-threaded cooperative poll loop — the per-skill advisory lock in
// registry is what allows multiple worker processes to make progress on
// different skills concurrently, not goroutine parallelism inside one
// worker.
type Worker struct {
	Staging  *Manager
	Blobs    blobstore.Store
	Index    *registry.IndexManager
	Interval time.Duration
}

// NewWorker returns a Worker polling every interval (defaulting to 2s).
func NewWorker(staging *Manager, blobs blobstore.Store, index *registry.IndexManager, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{Staging: staging, Blobs: blobs, Index: index, Interval: interval}
}

// Run polls for pending staging records until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Worker) pollOnce() {
	var pending []*Metadata
	_ = pendingWalk(w.Staging.Root, &pending)
	for _, meta := range pending {
		w.processJob(meta.JobID)
	}
}

// ProcessJob validates the staged package for jobID and transitions it to
// accepted (publishing its blob and index entry) or rejected.
func (w *Worker) ProcessJob(jobID string) error {
	return w.processJob(jobID)
}

func (w *Worker) processJob(jobID string) error {
	meta, err := w.Staging.LoadMetadata(jobID)
	if err != nil || meta == nil {
		return err
	}
	if meta.Status != StatusPending {
		return nil
	}
	if err := w.Staging.UpdateStatus(jobID, StatusValidating, nil); err != nil {
		return err
	}

	packagePath, err := w.Staging.PackagePath(jobID)
	if err != nil || packagePath == "" {
		return w.reject(jobID, []string{"staged package not found"})
	}

	if err := packager.VerifyChecksum(packagePath); err != nil {
		return w.reject(jobID, []string{err.Error()})
	}

	scoped, err := registry.ParseScopedName(meta.SkillID)
	if err != nil {
		return w.reject(jobID, []string{err.Error()})
	}

	extractRoot, err := os.MkdirTemp("", "fastskill-validate-*")
	if err != nil {
		return w.reject(jobID, []string{regerr.New(regerr.KindIO, "staging.processJob", err).Error()})
	}
	defer os.RemoveAll(extractRoot)

	// Extracted under the skill's own bare name so ValidateSkillDirectory's
	// name-must-match-containing-directory rule has a directory name to
	// check against, rather than an opaque temp-dir name.
	skillDir := filepath.Join(extractRoot, scoped.Name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return w.reject(jobID, []string{regerr.New(regerr.KindIO, "staging.processJob", err).Error()})
	}
	if err := extractZipSafely(packagePath, skillDir); err != nil {
		return w.reject(jobID, []string{err.Error()})
	}

	result, err := validator.ValidateSkillDirectory(skillDir)
	if err != nil {
		return w.reject(jobID, []string{err.Error()})
	}
	if !result.IsValid {
		var messages []string
		for _, e := range result.Errors {
			messages = append(messages, e.Message)
		}
		return w.reject(jobID, messages)
	}

	filename := scoped.Name + "-" + meta.Version + ".zip"
	blobKey := "skills/" + scoped.Scope + "/" + filename

	data, err := os.ReadFile(packagePath)
	if err != nil {
		return w.reject(jobID, []string{err.Error()})
	}
	if err := w.Blobs.Upload(blobKey, bytesReader(data)); err != nil {
		return w.reject(jobID, []string{err.Error()})
	}
	downloadURL := strings.TrimSuffix(w.Blobs.BaseURL(), "/") + "/" + blobKey

	entry := registry.Entry{
		ID:           meta.SkillID,
		Version:      meta.Version,
		Dependencies: readDeclaredDependencies(skillDir),
		Checksum:     meta.Checksum,
		DownloadURL:  downloadURL,
		PublishedAt:  time.Now().UTC().Format(time.RFC3339),
		PublishedBy:  meta.UploadedBy,
		Metadata:     descriptiveMetadata(skillDir),
	}
	if err := w.Index.AppendEntry(meta.SkillID, entry); err != nil {
		return w.reject(jobID, []string{err.Error()})
	}

	if err := w.Staging.UpdateStatus(jobID, StatusAccepted, nil); err != nil {
		return err
	}
	logging.Info("accepted staged package", "job_id", jobID, "skill_id", meta.SkillID, "version", meta.Version)
	return nil
}

func (w *Worker) reject(jobID string, reasons []string) error {
	if err := w.Staging.UpdateStatus(jobID, StatusRejected, reasons); err != nil {
		return err
	}
	logging.Warn("rejected staged package", "job_id", jobID, "reasons", reasons)
	return nil
}

// skillProjectDependencies is the [dependencies] table of skill-project.toml:
// a map from dependency skill id to its version constraint string.
type skillProjectDependencies struct {
	Dependencies map[string]string `toml:"dependencies"`
}

// readDeclaredDependencies reads extractDir/skill-project.toml's
// [dependencies] table, if present, into the index entry's dependency
// list, sorted by name for deterministic NDJSON output.
func readDeclaredDependencies(extractDir string) []registry.Dependency {
	data, err := os.ReadFile(filepath.Join(extractDir, "skill-project.toml"))
	if err != nil {
		return nil
	}
	var doc skillProjectDependencies
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	deps := make([]registry.Dependency, 0, len(doc.Dependencies))
	for name, req := range doc.Dependencies {
		deps = append(deps, registry.Dependency{Name: name, Req: req})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// descriptiveMetadata lifts description/author/license off SKILL.md's
// frontmatter for the index entry's optional metadata block.
func descriptiveMetadata(extractDir string) *registry.IndexMetadata {
	fm, ok, err := validator.ReadFrontmatter(extractDir)
	if err != nil || !ok {
		return nil
	}
	return &registry.IndexMetadata{
		Description: fm.Description,
		Author:      fm.Author,
		License:     fm.License,
	}
}

func pendingWalk(root string, out *[]*Metadata) error {
	return walkMetadata(root, func(meta *Metadata) {
		if meta.Status == StatusPending {
			*out = append(*out, meta)
		}
	})
}
