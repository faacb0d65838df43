package staging

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fastskill/internal/regerr"
)

// extractZipSafely extracts every entry of zipPath into destDir, rejecting
// any entry whose path would escape destDir (e.g. a "../foo" entry) before
// writing anything for that entry.
func extractZipSafely(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return regerr.New(regerr.KindIO, "staging.extractZipSafely", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(filepath.Separator)) {
			return regerr.New(regerr.KindValidation, "staging.extractZipSafely",
				fmt.Errorf("path traversal in archive entry %q", f.Name))
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return regerr.New(regerr.KindIO, "staging.extractZipSafely", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return regerr.New(regerr.KindIO, "staging.extractZipSafely", err)
		}
		rc, err := f.Open()
		if err != nil {
			return regerr.New(regerr.KindIO, "staging.extractZipSafely", err)
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return regerr.New(regerr.KindIO, "staging.extractZipSafely", err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return regerr.New(regerr.KindIO, "staging.extractZipSafely", copyErr)
		}
	}
	return nil
}

func bytesReader(data []byte) io.Reader { return bytes.NewReader(data) }

// walkMetadata invokes fn for every metadata.json record found under root.
func walkMetadata(root string, fn func(*Metadata)) error {
	return filepath.Walk(root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
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
		fn(&meta)
		return nil
	})
}
