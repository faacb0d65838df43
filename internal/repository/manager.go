package repository

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"fastskill/internal/regerr"
)

// repositoriesFile is the repositories.toml on-disk schema.
type repositoriesFile struct {
	Repositories []repositoryTOML `toml:"repositories"`
}

type repositoryTOML struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Priority uint32 `toml:"priority"`
	URL      string `toml:"url,omitempty"`
	Branch   string `toml:"branch,omitempty"`
	Tag      string `toml:"tag,omitempty"`
	Path     string `toml:"path,omitempty"`
	IndexURL string `toml:"index_url,omitempty"`
	AuthEnv  string `toml:"auth_env,omitempty"`
}

func (t repositoryTOML) toDefinition() Definition {
	url := t.URL
	if t.Type == string(KindHTTPRegistry) {
		url = t.IndexURL
	}
	return Definition{
		Name:     t.Name,
		Kind:     Kind(t.Type),
		Priority: t.Priority,
		URL:      url,
		Branch:   t.Branch,
		Tag:      t.Tag,
		Path:     t.Path,
		AuthEnv:  t.AuthEnv,
	}
}

func fromDefinition(d Definition) repositoryTOML {
	t := repositoryTOML{
		Name:     d.Name,
		Type:     string(d.Kind),
		Priority: d.Priority,
		Branch:   d.Branch,
		Tag:      d.Tag,
		Path:     d.Path,
		AuthEnv:  d.AuthEnv,
	}
	if d.Kind == KindHTTPRegistry {
		t.IndexURL = d.URL
	} else {
		t.URL = d.URL
	}
	return t
}

// Manager holds the set of configured repositories, sorted by priority
// with first-occurrence-at-a-name winning ties, and caches the Client
// built for each one.
type Manager struct {
	configPath string

	mu    sync.RWMutex
	defs  map[string]Definition
	order []string

	clientsMu sync.Mutex
	clients   map[string]Client
}

// NewManager returns a Manager backed by configPath (a repositories.toml).
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		defs:       make(map[string]Definition),
		clients:    make(map[string]Client),
	}
}

// FromDefinitions builds a Manager directly from an in-memory definition
// list (used when a skill project embeds its repositories inline rather
// than via a shared repositories.toml).
func FromDefinitions(defs []Definition) *Manager {
	m := &Manager{defs: make(map[string]Definition), clients: make(map[string]Client)}
	m.replace(defs)
	return m
}

func (m *Manager) replace(defs []Definition) {
	sorted := append([]Definition(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	seen := make(map[string]bool, len(sorted))
	var order []string
	byName := make(map[string]Definition, len(sorted))
	for _, d := range sorted {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		byName[d.Name] = d
		order = append(order, d.Name)
	}

	m.mu.Lock()
	m.defs = byName
	m.order = order
	m.mu.Unlock()
}

// Load reads repositories.toml, creating an empty one if it doesn't exist.
func (m *Manager) Load() error {
	if m.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return m.Save()
	}
	if err != nil {
		return regerr.New(regerr.KindIO, "repository.Load", err)
	}
	var file repositoriesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return regerr.New(regerr.KindValidation, "repository.Load", err)
	}
	defs := make([]Definition, 0, len(file.Repositories))
	for _, r := range file.Repositories {
		defs = append(defs, r.toDefinition())
	}
	m.replace(defs)
	return nil
}

// Save writes the current repository set back to repositories.toml,
// sorted by priority.
func (m *Manager) Save() error {
	if m.configPath == "" {
		return nil
	}
	m.mu.RLock()
	defs := m.list()
	m.mu.RUnlock()

	file := repositoriesFile{Repositories: make([]repositoryTOML, 0, len(defs))}
	for _, d := range defs {
		file.Repositories = append(file.Repositories, fromDefinition(d))
	}
	data, err := toml.Marshal(file)
	if err != nil {
		return regerr.New(regerr.KindValidation, "repository.Save", err)
	}
	if dir := filepath.Dir(m.configPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return regerr.New(regerr.KindIO, "repository.Save", err)
		}
	}
	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		return regerr.New(regerr.KindIO, "repository.Save", err)
	}
	return nil
}

// Add registers a new repository definition. Returns an error if the name
// already exists.
func (m *Manager) Add(def Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.defs[def.Name]; exists {
		return regerr.New(regerr.KindValidation, "repository.Add",
			&alreadyExistsError{Name: def.Name})
	}
	m.defs[def.Name] = def
	m.order = insertSorted(m.order, m.defs, def.Name)
	return nil
}

// Remove deletes a repository definition and its cached client.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	if _, exists := m.defs[name]; !exists {
		m.mu.Unlock()
		return regerr.New(regerr.KindValidation, "repository.Remove", &notFoundError{Name: name})
	}
	delete(m.defs, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.clientsMu.Lock()
	delete(m.clients, name)
	m.clientsMu.Unlock()
	return nil
}

// Get returns the definition for name, and whether it was found.
func (m *Manager) Get(name string) (Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defs[name]
	return d, ok
}

// List returns every repository, sorted by priority (insertion order ties
// already resolved at Add/Load time).
func (m *Manager) List() []Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list()
}

func (m *Manager) list() []Definition {
	out := make([]Definition, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.defs[n])
	}
	return out
}

// Default returns the repository named "default" if present, otherwise the
// highest-priority (first-listed) repository.
func (m *Manager) Default() (Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.defs["default"]; ok {
		return d, true
	}
	if len(m.order) == 0 {
		return Definition{}, false
	}
	return m.defs[m.order[0]], true
}

// Client returns (building and caching, if necessary) the Client for name.
func (m *Manager) Client(name string) (Client, error) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if c, ok := m.clients[name]; ok {
		return c, nil
	}
	def, ok := m.Get(name)
	if !ok {
		return nil, regerr.New(regerr.KindValidation, "repository.Client", &notFoundError{Name: name})
	}
	c, err := NewClient(def)
	if err != nil {
		return nil, err
	}
	m.clients[name] = c
	return c, nil
}

func insertSorted(order []string, defs map[string]Definition, name string) []string {
	newOrder := append(order, name)
	sort.SliceStable(newOrder, func(i, j int) bool {
		return defs[newOrder[i]].Priority < defs[newOrder[j]].Priority
	})
	return newOrder
}

type alreadyExistsError struct{ Name string }

func (e *alreadyExistsError) Error() string { return "repository '" + e.Name + "' already exists" }

type notFoundError struct{ Name string }

func (e *notFoundError) Error() string { return "repository '" + e.Name + "' not found" }
