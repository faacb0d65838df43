package staging

import (
	"strings"
	"testing"
)

func TestStoreAndLoadPackage(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	jobID, err := m.StorePackage("test/skill", "1.0.0", []byte("test package data"), "user1")
	if err != nil {
		t.Fatalf("StorePackage: %v", err)
	}
	if !strings.HasPrefix(jobID, "job_") {
		t.Errorf("expected job id prefix, got %s", jobID)
	}

	meta, err := m.LoadMetadata(jobID)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta == nil {
		t.Fatalf("expected metadata, got nil")
	}
	if meta.SkillID != "test/skill" || meta.Version != "1.0.0" || meta.Status != StatusPending {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.UploadedBy != "user1" {
		t.Errorf("expected uploaded_by user1, got %s", meta.UploadedBy)
	}

	path, err := m.PackagePath(jobID)
	if err != nil {
		t.Fatalf("PackagePath: %v", err)
	}
	if path == "" {
		t.Errorf("expected package path to be found")
	}
}

func TestUpdateStatus(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	jobID, err := m.StorePackage("test/skill", "1.0.0", []byte("data"), "")
	if err != nil {
		t.Fatalf("StorePackage: %v", err)
	}

	if err := m.UpdateStatus(jobID, StatusRejected, []string{"bad content"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	meta, err := m.LoadMetadata(jobID)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta.Status != StatusRejected || len(meta.ValidationErrors) != 1 {
		t.Errorf("unexpected metadata after update: %+v", meta)
	}
}
