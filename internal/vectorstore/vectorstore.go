// Package vectorstore persists skill embeddings in a local SQLite database
// and serves brute-force cosine-similarity search over them. It favors a
// flat table scan over an ANN index: the corpus size a single skill
// directory produces is small enough that exactness beats approximation.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"fastskill/internal/regerr"
)

// IndexedSkill is one embedded skill record.
type IndexedSkill struct {
	ID              string
	SkillPath       string
	FrontmatterJSON json.RawMessage
	Embedding       []float32
	FileHash        string
	UpdatedAt       time.Time
}

// Match pairs an IndexedSkill with its similarity to a query embedding.
type Match struct {
	Skill      IndexedSkill
	Similarity float32
}

// Store wraps a SQLite-backed skills table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// ensures its schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "vectorstore.Open", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		skill_path TEXT NOT NULL,
		frontmatter_json TEXT NOT NULL,
		embedding_json TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return regerr.New(regerr.KindIO, "vectorstore.ensureSchema", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_updated_at ON skills(updated_at)`)
	if err != nil {
		return regerr.New(regerr.KindIO, "vectorstore.ensureSchema", err)
	}
	return nil
}

// Upsert inserts or replaces the record for skill.ID.
func (s *Store) Upsert(ctx context.Context, skill IndexedSkill) error {
	embeddingJSON, err := json.Marshal(skill.Embedding)
	if err != nil {
		return regerr.New(regerr.KindValidation, "vectorstore.Upsert", err)
	}
	frontmatter := skill.FrontmatterJSON
	if frontmatter == nil {
		frontmatter = json.RawMessage("{}")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO skills (id, skill_path, frontmatter_json, embedding_json, file_hash, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		skill.ID, skill.SkillPath, string(frontmatter), string(embeddingJSON), skill.FileHash, skill.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return regerr.New(regerr.KindIO, "vectorstore.Upsert", err)
	}
	return nil
}

// GetByID returns the record for id, or nil if not found.
func (s *Store) GetByID(ctx context.Context, id string) (*IndexedSkill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, skill_path, frontmatter_json, embedding_json, file_hash, updated_at FROM skills WHERE id = ?`, id)
	skill, err := scanSkill(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "vectorstore.GetByID", err)
	}
	return skill, nil
}

// Remove deletes the record for id, if present.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id); err != nil {
		return regerr.New(regerr.KindIO, "vectorstore.Remove", err)
	}
	return nil
}

// All returns every indexed skill.
func (s *Store) All(ctx context.Context) ([]IndexedSkill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, skill_path, frontmatter_json, embedding_json, file_hash, updated_at FROM skills`)
	if err != nil {
		return nil, regerr.New(regerr.KindIO, "vectorstore.All", err)
	}
	defer rows.Close()

	var out []IndexedSkill
	for rows.Next() {
		skill, err := scanSkill(rows.Scan)
		if err != nil {
			return nil, regerr.New(regerr.KindCorruption, "vectorstore.All", err)
		}
		out = append(out, *skill)
	}
	if err := rows.Err(); err != nil {
		return nil, regerr.New(regerr.KindIO, "vectorstore.All", err)
	}
	return out, nil
}

func scanSkill(scan func(dest ...any) error) (*IndexedSkill, error) {
	var (
		id, skillPath, frontmatterStr, embeddingStr, fileHash, updatedAtStr string
	)
	if err := scan(&id, &skillPath, &frontmatterStr, &embeddingStr, &fileHash, &updatedAtStr); err != nil {
		return nil, err
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(embeddingStr), &embedding); err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("decode updated_at for %s: %w", id, err)
	}
	return &IndexedSkill{
		ID:              id,
		SkillPath:       skillPath,
		FrontmatterJSON: json.RawMessage(frontmatterStr),
		Embedding:       embedding,
		FileHash:        fileHash,
		UpdatedAt:       updatedAt,
	}, nil
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 if they
// differ in length or either is a zero vector (NaN-safe: a zero-norm
// vector would otherwise divide by zero and produce NaN).
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// SearchSimilar returns the top-limit records by cosine similarity to
// queryEmbedding, brute-force over the whole table.
func (s *Store) SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]Match, error) {
	skills, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(skills))
	for _, sk := range skills {
		matches = append(matches, Match{Skill: sk, Similarity: CosineSimilarity(queryEmbedding, sk.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit >= 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}
