package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"fastskill/internal/depgraph"
	"fastskill/internal/logging"
	"fastskill/internal/regerr"
)

// MarketplaceSource distinguishes how a MarketplaceClient locates its
// marketplace.json (or, for Local, skips it and scans SKILL.md directly).
type MarketplaceSource int

const (
	MarketplaceSourceGit MarketplaceSource = iota
	MarketplaceSourceZipURL
	MarketplaceSourceLocal
)

// claudeCodeMarketplace mirrors the marketplace.json schema Claude Code
// standard repositories publish at .claude-plugin/marketplace.json (or,
// failing that, at the repository root).
type claudeCodeMarketplace struct {
	Name     string                `json:"name"`
	Owner    *claudeCodeOwner      `json:"owner,omitempty"`
	Metadata *claudeCodeMetadata   `json:"metadata,omitempty"`
	Plugins  []claudeCodePlugin    `json:"plugins"`
}

type claudeCodeOwner struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type claudeCodeMetadata struct {
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

type claudeCodePlugin struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source,omitempty"`
	Strict      bool     `json:"strict,omitempty"`
	Skills      []string `json:"skills"`
}

type cachedMarketplace struct {
	skills    []SkillInfo
	fetchedAt time.Time
	ttl       time.Duration
}

func (c *cachedMarketplace) expired() bool {
	return time.Since(c.fetchedAt) > c.ttl
}

// MarketplaceClient serves git-marketplace, zip-url, and local repositories.
// All three publish a tree of skill directories; git and zip-url advertise
// that tree via a marketplace.json, while local is scanned directly.
type MarketplaceClient struct {
	def    Definition
	source MarketplaceSource

	httpClient *http.Client
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]*cachedMarketplace
}

// NewMarketplaceClient builds a client over def using the given discovery
// strategy. The cache TTL defaults to 5 minutes, matching the reference
// implementation's default marketplace.json cache lifetime.
func NewMarketplaceClient(def Definition, source MarketplaceSource) *MarketplaceClient {
	return &MarketplaceClient{
		def:        def,
		source:     source,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cacheTTL:   5 * time.Minute,
		cache:      make(map[string]*cachedMarketplace),
	}
}

// githubRawURL converts a github.com repo URL into its raw-content
// equivalent at the given branch, e.g.
// https://github.com/acme/skills(.git) -> https://raw.githubusercontent.com/acme/skills/main
func githubRawURL(repoURL, branch string) (string, bool) {
	if !strings.Contains(repoURL, "github.com") || strings.Contains(repoURL, "raw.githubusercontent.com") {
		return "", false
	}
	repoPath := repoURL
	repoPath = strings.TrimPrefix(repoPath, "https://github.com/")
	repoPath = strings.TrimPrefix(repoPath, "http://github.com/")
	repoPath = strings.TrimSuffix(repoPath, ".git")
	repoPath = strings.TrimSuffix(repoPath, "/")
	if branch == "" {
		branch = "main"
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s", repoPath, branch), true
}

// marketplaceCandidateURLs returns the Claude Code standard location
// (.claude-plugin/marketplace.json) and the root fallback location, in
// that priority order.
func marketplaceCandidateURLs(baseURL, branch string) (claudePluginURL, rootURL string) {
	if raw, ok := githubRawURL(baseURL, branch); ok {
		return raw + "/.claude-plugin/marketplace.json", raw + "/marketplace.json"
	}
	base := baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + ".claude-plugin/marketplace.json", base + "marketplace.json"
}

func (c *MarketplaceClient) fetchJSON(ctx context.Context, url string) (*claudeCodeMarketplace, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchJSON", err)
	}
	if token := authToken(c.def.AuthEnv); token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchJSON", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchJSON",
			fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "repository.fetchJSON", err)
	}
	var m claudeCodeMarketplace
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, regerr.New(regerr.KindValidation, "repository.fetchJSON", err)
	}
	return &m, nil
}

func authToken(envVar string) string {
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// resolveSkillPath resolves a plugin-relative skill path against the
// plugin's own source root, per the Claude Code marketplace.json schema.
func resolveSkillPath(pluginSource, skillPath string) string {
	if pluginSource == "" {
		pluginSource = "./"
	}
	switch {
	case strings.HasPrefix(skillPath, "./"):
		return strings.TrimSuffix(pluginSource, "/") + skillPath[1:]
	case strings.HasPrefix(skillPath, "/"):
		return strings.TrimPrefix(skillPath, "/")
	default:
		return strings.TrimSuffix(pluginSource, "/") + "/" + skillPath
	}
}

func downloadURLFor(baseURL, resolvedPath string) string {
	if strings.Contains(baseURL, "github.com") && !strings.Contains(baseURL, "raw.githubusercontent.com") {
		repoPath := baseURL
		repoPath = strings.TrimPrefix(repoPath, "https://github.com/")
		repoPath = strings.TrimPrefix(repoPath, "http://github.com/")
		repoPath = strings.TrimSuffix(repoPath, ".git")
		repoPath = strings.TrimSuffix(repoPath, "/")
		return fmt.Sprintf("https://github.com/%s/tree/main/%s", repoPath, resolvedPath)
	}
	if baseURL == "" {
		return ""
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + resolvedPath
}

// convertClaudeMarketplace flattens a Claude Code marketplace.json's
// plugin/skills tree into individual SkillInfo records.
func convertClaudeMarketplace(m *claudeCodeMarketplace, baseURL, sourceName string) []SkillInfo {
	var owner string
	if m.Owner != nil {
		owner = m.Owner.Name
	}
	version := "1.0.0"
	if m.Metadata != nil && m.Metadata.Version != "" {
		version = m.Metadata.Version
	}

	var out []SkillInfo
	for _, plugin := range m.Plugins {
		for _, skillPath := range plugin.Skills {
			resolved := resolveSkillPath(plugin.Source, skillPath)
			id := lastPathComponent(resolved)

			description := plugin.Description
			if description == "" && m.Metadata != nil {
				description = m.Metadata.Description
			}
			if description == "" {
				description = "Skill from " + plugin.Name
			}

			out = append(out, SkillInfo{
				ID:          id,
				Name:        id,
				Description: description,
				Version:     version,
				Author:      owner,
				Tags:        []string{plugin.Name},
				SourceName:  sourceName,
				DownloadURL: downloadURLFor(baseURL, resolved),
			})
		}
	}
	return out
}

func lastPathComponent(p string) string {
	p = strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

// ListSkills discovers every skill the marketplace advertises, consulting
// (and refreshing) the TTL cache keyed by the successful candidate URL.
func (c *MarketplaceClient) ListSkills(ctx context.Context) ([]SkillInfo, error) {
	if c.source == MarketplaceSourceLocal {
		return c.scanLocal()
	}

	baseURL := c.def.URL
	claudeURL, rootURL := marketplaceCandidateURLs(baseURL, c.def.Branch)

	c.mu.Lock()
	for _, key := range []string{claudeURL, rootURL} {
		if cached, ok := c.cache[key]; ok && !cached.expired() {
			c.mu.Unlock()
			return cached.skills, nil
		}
	}
	c.mu.Unlock()

	raw, successURL, err := c.tryBothLocations(ctx, claudeURL, rootURL)
	if err != nil {
		return nil, err
	}

	skills := convertClaudeMarketplace(raw, baseURL, c.def.Name)
	for _, s := range skills {
		if s.ID == "" || s.Name == "" || s.Description == "" {
			return nil, regerr.New(regerr.KindValidation, "repository.ListSkills",
				fmt.Errorf("invalid marketplace.json: skills must have id, name, and description"))
		}
	}

	c.mu.Lock()
	c.cache[successURL] = &cachedMarketplace{skills: skills, fetchedAt: time.Now(), ttl: c.cacheTTL}
	c.mu.Unlock()

	return skills, nil
}

func (c *MarketplaceClient) tryBothLocations(ctx context.Context, claudeURL, rootURL string) (*claudeCodeMarketplace, string, error) {
	if m, err := c.fetchJSON(ctx, claudeURL); err == nil {
		logging.Debug("loaded marketplace.json from Claude Code standard location", "url", claudeURL)
		return m, claudeURL, nil
	} else {
		logging.Debug("Claude Code location failed, trying root", "url", claudeURL, "error", err)
	}
	m, err := c.fetchJSON(ctx, rootURL)
	if err != nil {
		return nil, "", regerr.New(regerr.KindNetwork, "repository.tryBothLocations",
			fmt.Errorf("failed to fetch marketplace.json from both locations: %w", err))
	}
	return m, rootURL, nil
}

// skillFrontmatter is the subset of SKILL.md's YAML frontmatter this
// client reads to describe a locally-discovered skill.
type skillFrontmatter struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	Dependencies []string `yaml:"dependencies"`
}

func (c *MarketplaceClient) scanLocal() ([]SkillInfo, error) {
	root := c.def.Path
	info, err := os.Stat(root)
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "repository.scanLocal", err)
	}
	if !info.IsDir() {
		return nil, regerr.New(regerr.KindValidation, "repository.scanLocal",
			fmt.Errorf("path is not a directory: %s", root))
	}

	var out []SkillInfo
	err = filepath.Walk(root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil || fi.IsDir() || filepath.Base(path) != "SKILL.md" {
			return nil
		}
		skillDir := filepath.Dir(path)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		out = append(out, extractLocalSkillInfo(content, skillDir, c.def.Name))
		return nil
	})
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "repository.scanLocal", err)
	}
	return out, nil
}

func extractLocalSkillInfo(content []byte, skillDir, sourceName string) SkillInfo {
	dirName := filepath.Base(skillDir)
	fm, ok := parseFrontmatter(content)
	if !ok {
		return SkillInfo{ID: dirName, Name: dirName, Description: "No description", Version: "1.0.0", SourceName: sourceName}
	}
	id := fm.ID
	if id == "" {
		id = dirName
	}
	name := fm.Name
	if name == "" {
		name = id
	}
	description := fm.Description
	if description == "" {
		description = "No description"
	}
	version := fm.Version
	if version == "" {
		version = "1.0.0"
	}
	return SkillInfo{
		ID: id, Name: name, Description: description, Version: version,
		SourceName: sourceName, Dependencies: parseDependencyRefs(fm.Dependencies),
	}
}

// parseDependencyRefs parses each "id" or "id@constraint" frontmatter
// dependency reference, skipping (and logging) any that don't parse
// rather than failing the whole skill's discovery over one bad entry.
func parseDependencyRefs(refs []string) []depgraph.Dependency {
	var out []depgraph.Dependency
	for _, ref := range refs {
		dep, err := depgraph.ParseDependency(ref)
		if err != nil {
			logging.Warn("skipping malformed dependency reference", "ref", ref, "err", err)
			continue
		}
		out = append(out, dep)
	}
	return out
}

func parseFrontmatter(content []byte) (skillFrontmatter, bool) {
	s := string(content)
	if !strings.HasPrefix(s, "---\n") {
		return skillFrontmatter{}, false
	}
	rest := s[4:]
	end := strings.Index(rest, "---\n")
	if end < 0 {
		return skillFrontmatter{}, false
	}
	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return skillFrontmatter{}, false
	}
	return fm, true
}

// GetSkill returns the skill matching id (and version, if non-empty).
func (c *MarketplaceClient) GetSkill(ctx context.Context, id, version string) (*SkillInfo, error) {
	skills, err := c.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	for i := range skills {
		if skills[i].ID == id && (version == "" || skills[i].Version == version) {
			return &skills[i], nil
		}
	}
	return nil, nil
}

// Search returns every skill whose id, name, or description contains query
// (case-insensitive).
func (c *MarketplaceClient) Search(ctx context.Context, query string) ([]SkillInfo, error) {
	skills, err := c.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []SkillInfo
	for _, s := range skills {
		if strings.Contains(strings.ToLower(s.ID), q) ||
			strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Description), q) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Download fetches the skill archive bytes from its resolved DownloadURL.
func (c *MarketplaceClient) Download(ctx context.Context, id, version string) ([]byte, error) {
	skill, err := c.GetSkill(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if skill == nil || skill.DownloadURL == "" {
		return nil, regerr.New(regerr.KindResolution, "repository.Download",
			fmt.Errorf("no download location for %s", id))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, skill.DownloadURL, nil)
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
			fmt.Errorf("download %s: HTTP %d", skill.DownloadURL, resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

// GetVersions returns every known version of id.
func (c *MarketplaceClient) GetVersions(ctx context.Context, id string) ([]string, error) {
	skills, err := c.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, s := range skills {
		if s.ID == id {
			versions = append(versions, s.Version)
		}
	}
	return versions, nil
}
