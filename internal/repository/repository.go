// Package repository provides a unified client abstraction over the four
// shapes a skill repository can take: a git marketplace, a zip-url
// marketplace, a flat-file HTTP index, and a local directory.
package repository

import (
	"context"

	"fastskill/internal/depgraph"
)

// Kind identifies a repository client shape.
type Kind string

const (
	KindGitMarketplace Kind = "git-marketplace"
	KindZipURL         Kind = "zip-url"
	KindHTTPRegistry   Kind = "http-registry"
	KindLocal          Kind = "local"
)

// Definition configures a single named repository entry, sorted and
// deduplicated by Priority (lower number wins) the way repositories.toml
// does: first occurrence at a given name wins.
type Definition struct {
	Name     string
	Kind     Kind
	Priority uint32
	URL      string // git / zip-url base, or http-registry index URL
	Branch   string
	Tag      string
	Path     string // local
	AuthEnv  string // PAT/API-key env var name, if any
}

// SkillInfo is the normalized shape a repository client reports for a
// discovered skill, independent of where it was found.
type SkillInfo struct {
	ID           string
	Name         string
	Description  string
	Version      string
	Author       string
	Tags         []string
	SourceName   string
	DownloadURL  string
	Dependencies []depgraph.Dependency
}

// Client is the capability every repository shape implements. Not every
// shape supports every operation: an http-registry client has no listing
// capability, and Download is meaningful only once a concrete archive
// location is known.
type Client interface {
	ListSkills(ctx context.Context) ([]SkillInfo, error)
	GetSkill(ctx context.Context, id, version string) (*SkillInfo, error)
	Search(ctx context.Context, query string) ([]SkillInfo, error)
	Download(ctx context.Context, id, version string) ([]byte, error)
	GetVersions(ctx context.Context, id string) ([]string, error)
}

// NewClient builds the concrete Client for def's Kind.
func NewClient(def Definition) (Client, error) {
	switch def.Kind {
	case KindGitMarketplace:
		return NewMarketplaceClient(def, MarketplaceSourceGit), nil
	case KindZipURL:
		return NewMarketplaceClient(def, MarketplaceSourceZipURL), nil
	case KindLocal:
		return NewMarketplaceClient(def, MarketplaceSourceLocal), nil
	case KindHTTPRegistry:
		return NewHTTPRegistryClient(def), nil
	default:
		return nil, &UnsupportedKindError{Kind: def.Kind}
	}
}

// UnsupportedKindError reports a Definition.Kind with no registered client.
type UnsupportedKindError struct {
	Kind Kind
}

func (e *UnsupportedKindError) Error() string {
	return "repository: unsupported kind " + string(e.Kind)
}
