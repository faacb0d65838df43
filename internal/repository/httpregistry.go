package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fastskill/internal/depgraph"
	"fastskill/internal/logging"
	"fastskill/internal/regerr"
)

// indexDependency mirrors registry.Dependency's JSON shape.
type indexDependency struct {
	Name string `json:"name"`
	Req  string `json:"req"`
}

// indexEntry mirrors registry.Entry's JSON shape without importing the
// registry package, keeping repository free of a dependency on the
// publish-side package.
type indexEntry struct {
	ID           string             `json:"id"`
	Version      string             `json:"version"`
	Dependencies []indexDependency  `json:"dependencies"`
	Checksum     string             `json:"checksum"`
	DownloadURL  string             `json:"download_url"`
}

// HTTPRegistryClient queries a flat-file index server — one NDJSON
// document, one version entry per line, per GET {indexURL}/{scope}/{name}
// — rather than listing an entire repository tree. It cannot enumerate or
// search — only point lookups by id are meaningful, mirroring the
// registry index's on-disk layout.
type HTTPRegistryClient struct {
	def        Definition
	httpClient *http.Client
}

// NewHTTPRegistryClient builds a client against def.URL as the index root.
func NewHTTPRegistryClient(def Definition) *HTTPRegistryClient {
	return &HTTPRegistryClient{def: def, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

func (c *HTTPRegistryClient) fetchEntries(ctx context.Context, id string) ([]indexEntry, error) {
	scope, name, err := splitScopedID(id)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSuffix(c.def.URL, "/") + "/" + scope + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchEntries", err)
	}
	if token := authToken(c.def.AuthEnv); token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchEntries", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchEntries",
			fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode))
	}
	return parseNDJSONEntries(resp.Body, url)
}

// parseNDJSONEntries reads one JSON entry per line, the wire format the
// registry index handler streams verbatim. Malformed lines are logged and
// skipped rather than failing the whole fetch.
func parseNDJSONEntries(r io.Reader, source string) ([]indexEntry, error) {
	var entries []indexEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logging.Warn("skipping malformed index line", "source", source, "line", lineNum, "err", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, regerr.New(regerr.KindNetwork, "repository.parseNDJSONEntries", err)
	}
	return entries, nil
}

func splitScopedID(id string) (scope, name string, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 2 {
		return "", "", regerr.New(regerr.KindValidation, "repository.splitScopedID",
			fmt.Errorf("expected scope/name, got %q", id))
	}
	return parts[0], parts[1], nil
}

// ListSkills is unsupported: flat HTTP registries expose only point
// lookups, never a full listing.
func (c *HTTPRegistryClient) ListSkills(ctx context.Context) ([]SkillInfo, error) {
	return nil, regerr.New(regerr.KindValidation, "repository.ListSkills",
		fmt.Errorf("http-registry repositories do not support listing"))
}

// GetSkill returns the latest entry, or the entry matching version if given.
func (c *HTTPRegistryClient) GetSkill(ctx context.Context, id, version string) (*SkillInfo, error) {
	entries, err := c.fetchEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	var chosen *indexEntry
	if version != "" {
		for i := range entries {
			if entries[i].Version == version {
				chosen = &entries[i]
				break
			}
		}
	} else {
		chosen = &entries[len(entries)-1]
	}
	if chosen == nil {
		return nil, nil
	}
	deps := make([]depgraph.Dependency, 0, len(chosen.Dependencies))
	for _, d := range chosen.Dependencies {
		deps = append(deps, depgraph.Dependency{ID: d.Name, Constraint: d.Req})
	}
	return &SkillInfo{
		ID: chosen.ID, Version: chosen.Version, SourceName: c.def.Name,
		DownloadURL: chosen.DownloadURL, Dependencies: deps,
	}, nil
}

// Search is unsupported for the same reason as ListSkills.
func (c *HTTPRegistryClient) Search(ctx context.Context, query string) ([]SkillInfo, error) {
	return nil, regerr.New(regerr.KindValidation, "repository.Search",
		fmt.Errorf("http-registry repositories do not support search"))
}

// Download fetches the archive bytes for id at version from the index
// entry's download_url, per spec: resolve the entry, then GET its
// download_url directly — no blob-key URL construction on the client side.
func (c *HTTPRegistryClient) Download(ctx context.Context, id, version string) ([]byte, error) {
	entries, err := c.fetchEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Version != version {
			continue
		}
		url := e.DownloadURL
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, regerr.New(regerr.KindNetwork, "repository.Download", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, regerr.New(regerr.KindNetwork, "repository.Download", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, regerr.New(regerr.KindNetwork, "repository.Download",
				fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode))
		}
		return io.ReadAll(resp.Body)
	}
	return nil, regerr.New(regerr.KindResolution, "repository.Download",
		fmt.Errorf("version %s not found for %s", version, id))
}

// GetVersions returns every version entry's tag for id.
func (c *HTTPRegistryClient) GetVersions(ctx context.Context, id string) ([]string, error) {
	entries, err := c.fetchEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, e.Version)
	}
	return versions, nil
}
