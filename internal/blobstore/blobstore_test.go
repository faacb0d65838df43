package blobstore

import (
	"bytes"
	"io"
	"testing"
)

func TestUploadDownloadExistsDelete(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	key := "acme/hello/1.0.0/hello-1.0.0.zip"
	if err := s.Upload(key, bytes.NewReader([]byte("archive bytes"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	ok, err := s.Exists(key)
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	rc, err := s.Download(key)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "archive bytes" {
		t.Errorf("got %q", data)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = s.Exists(key)
	if err != nil || ok {
		t.Fatalf("expected deleted key to not exist, ok=%v err=%v", ok, err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := s.Upload("../../etc/passwd", bytes.NewReader([]byte("x"))); err == nil {
		t.Errorf("expected path traversal to be rejected")
	}
}
