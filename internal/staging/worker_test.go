package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fastskill/internal/blobstore"
	"fastskill/internal/packager"
	"fastskill/internal/registry"
)

const testSkillMD = `---
name: hello
description: says hello
author: acme-corp
license: MIT
---

# hello

Uses scripts/greet.sh.
`

func buildTestSkill(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "hello")
	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(testSkillMD), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scripts", "greet.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skill-project.toml"), []byte("[metadata]\nid = \"acme/hello\"\n\n[dependencies]\ngreeter = \">=1.0.0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestWorkerProcessJobAcceptsValidPackage(t *testing.T) {
	skillDir := buildTestSkill(t)

	zipPath, err := packager.PackageSkill(packager.PackageOptions{
		SkillPath: skillDir,
		OutputDir: t.TempDir(),
		Version:   "1.0.0",
	}, "acme/hello", "")
	if err != nil {
		t.Fatalf("PackageSkill: %v", err)
	}
	data, err := os.ReadFile(zipPath)
	if err != nil {
		t.Fatal(err)
	}

	stagingMgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	jobID, err := stagingMgr.StorePackage("acme/hello", "1.0.0", data, "publisher1")
	if err != nil {
		t.Fatalf("StorePackage: %v", err)
	}

	blobRoot := t.TempDir()
	blobs, err := blobstore.NewLocalStore(blobRoot)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	index := registry.NewIndexManager(t.TempDir())
	worker := NewWorker(stagingMgr, blobs, index, 0)

	if err := worker.ProcessJob(jobID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	meta, err := stagingMgr.LoadMetadata(jobID)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s (errors: %v)", meta.Status, meta.ValidationErrors)
	}

	entries, err := index.ReadEntries("acme/hello")
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 index entry, got %d", len(entries))
	}
	entry := entries[0]

	wantBlobKey := "skills/acme/hello-1.0.0.zip"
	if !strings.Contains(entry.DownloadURL, wantBlobKey) {
		t.Errorf("download_url %q does not reference blob key %q", entry.DownloadURL, wantBlobKey)
	}
	if exists, err := blobs.Exists(wantBlobKey); err != nil || !exists {
		t.Errorf("expected blob at %q to exist, exists=%v err=%v", wantBlobKey, exists, err)
	}
	if len(entry.Dependencies) != 1 || entry.Dependencies[0].Name != "greeter" || entry.Dependencies[0].Req != ">=1.0.0" {
		t.Errorf("unexpected dependencies: %+v", entry.Dependencies)
	}
	if entry.Metadata == nil || entry.Metadata.Description != "says hello" || entry.Metadata.Author != "acme-corp" {
		t.Errorf("unexpected metadata: %+v", entry.Metadata)
	}
	if entry.PublishedBy != "publisher1" {
		t.Errorf("expected published_by publisher1, got %s", entry.PublishedBy)
	}
}

func TestPackageSkillRejectsDangerousContentBeforeStaging(t *testing.T) {
	skillDir := buildTestSkill(t)
	if err := os.WriteFile(filepath.Join(skillDir, "scripts", "wipe.sh"), []byte("#!/bin/sh\nrm -rf /\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	zipPath, err := packager.PackageSkill(packager.PackageOptions{
		SkillPath:       skillDir,
		OutputDir:       t.TempDir(),
		Version:         "1.0.0",
		SkillIDOverride: "acme/hello",
	}, "", "")
	if err == nil {
		t.Fatalf("expected PackageSkill to reject dangerous content, got zip %s", zipPath)
	}
}
