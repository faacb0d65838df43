package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"fastskill/internal/logging"
	"fastskill/internal/regerr"
)

// DefaultConcurrency bounds how many embedding calls a Reindex runs at
// once, keeping a single reindex from saturating an embedding API's own
// rate limit.
const DefaultConcurrency = 5

// Indexer walks a skill tree, embeds each SKILL.md's frontmatter+body, and
// keeps the Store in sync: unchanged files (by content hash) are skipped,
// and records for skills no longer on disk are removed.
type Indexer struct {
	Store       *Store
	Embeddings  EmbeddingClient
	Concurrency int
}

// NewIndexer returns an Indexer with DefaultConcurrency.
func NewIndexer(store *Store, embeddings EmbeddingClient) *Indexer {
	return &Indexer{Store: store, Embeddings: embeddings, Concurrency: DefaultConcurrency}
}

type discoveredSkill struct {
	id, path, hash string
	frontmatter    json.RawMessage
	embedText      string
}

// Reindex walks root for SKILL.md files, embeds any that are new or whose
// content hash changed since the last index, and removes index entries for
// skills no longer present on disk.
func (idx *Indexer) Reindex(ctx context.Context, root string) error {
	discovered, err := discoverSkills(root)
	if err != nil {
		return err
	}

	existing, err := idx.Store.All(ctx)
	if err != nil {
		return err
	}
	existingHash := make(map[string]string, len(existing))
	for _, e := range existing {
		existingHash[e.ID] = e.FileHash
	}

	var toEmbed []discoveredSkill
	seen := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		seen[d.id] = true
		if existingHash[d.id] == d.hash {
			continue // unchanged, skip re-embedding
		}
		toEmbed = append(toEmbed, d)
	}

	if err := idx.embedAndStore(ctx, toEmbed); err != nil {
		return err
	}

	removed := 0
	for id := range existingHash {
		if !seen[id] {
			if err := idx.Store.Remove(ctx, id); err != nil {
				return err
			}
			removed++
			logging.Info("removed stale vector index entry", "skill_id", id)
		}
	}

	logging.Info("reindex complete", "discovered", len(discovered), "embedded", len(toEmbed), "removed", removed)
	return nil
}

func (idx *Indexer) embedAndStore(ctx context.Context, skills []discoveredSkill) error {
	if len(skills) == 0 {
		return nil
	}
	concurrency := idx.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	for _, skill := range skills {
		skill := skill
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			embedding, err := idx.Embeddings.Embed(ctx, skill.embedText)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			record := IndexedSkill{
				ID:              skill.id,
				SkillPath:       skill.path,
				FrontmatterJSON: skill.frontmatter,
				Embedding:       embedding,
				FileHash:        skill.hash,
				UpdatedAt:       time.Now(),
			}
			if err := idx.Store.Upsert(ctx, record); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return firstErr
}

func discoverSkills(root string) ([]discoveredSkill, error) {
	var out []discoveredSkill
	err := filepath.Walk(root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil || fi.IsDir() || filepath.Base(path) != "SKILL.md" {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		skillDir := filepath.Dir(path)
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])

		frontmatter, body := splitFrontmatter(content)
		fmJSON, _ := yamlToJSON(frontmatter)
		id := frontmatterID(frontmatter, filepath.Base(skillDir))

		out = append(out, discoveredSkill{
			id:          id,
			path:        skillDir,
			hash:        hash,
			frontmatter: fmJSON,
			embedText:   frontmatter + "\n" + body,
		})
		return nil
	})
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "vectorstore.discoverSkills", err)
	}
	return out, nil
}

func splitFrontmatter(content []byte) (frontmatter, body string) {
	s := string(content)
	const delim = "---\n"
	if !hasPrefixDelim(s, delim) {
		return "", s
	}
	rest := s[len(delim):]
	idx := indexOf(rest, delim)
	if idx < 0 {
		return "", s
	}
	return rest[:idx], rest[idx+len(delim):]
}

func hasPrefixDelim(s, delim string) bool { return len(s) >= len(delim) && s[:len(delim)] == delim }
func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func frontmatterID(frontmatter, fallback string) string {
	var fm struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal([]byte(frontmatter), &fm); err == nil && fm.ID != "" {
		return fm.ID
	}
	return fallback
}

func yamlToJSON(frontmatter string) (json.RawMessage, error) {
	var data any
	if err := yaml.Unmarshal([]byte(frontmatter), &data); err != nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("{}"), nil
	}
	if string(b) == "null" {
		return json.RawMessage("{}"), nil
	}
	return b, nil
}
