// Package knowledge implements the guideline knowledge base: a SQLite-backed
// store of guideline chunks with embeddings, and the retriever that grounds
// findings in ranked passages. Retrieval failures always degrade to empty
// guidance; the review loop never aborts because the KB is unreachable.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tomato/internal/logging"
)

// Chunk is one stored guideline passage.
type Chunk struct {
	ID        int64
	Source    string // Document identifier, e.g. "PEP 8" or a file path
	Title     string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Store persists guideline chunks in SQLite. Embeddings are stored as JSON
// arrays and ranked in Go; safe for concurrent readers.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

const schema = `
CREATE TABLE IF NOT EXISTS guidelines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	chunk TEXT NOT NULL,
	embedding TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_guidelines_source ON guidelines(source);
`

// OpenStore opens (creating if needed) the KB database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create kb directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open kb database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init kb schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertChunk stores one guideline chunk with its embedding.
func (s *Store) InsertChunk(ctx context.Context, c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embJSON, err := json.Marshal(c.Embedding)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO guidelines (source, title, chunk, embedding) VALUES (?, ?, ?, ?)",
		c.Source, c.Title, c.Text, string(embJSON),
	)
	if err != nil {
		logging.StoreError("insert chunk from %s: %v", c.Source, err)
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// DeleteSource removes all chunks for a document, used before re-ingesting.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM guidelines WHERE source = ?", source)
	return err
}

// AllEmbedded streams every chunk that has an embedding.
func (s *Store) AllEmbedded(ctx context.Context) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, source, title, chunk, embedding, created_at FROM guidelines WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embJSON string
		if err := rows.Scan(&c.ID, &c.Source, &c.Title, &c.Text, &embJSON, &c.CreatedAt); err != nil {
			logging.StoreError("scan chunk: %v", err)
			continue
		}
		if err := json.Unmarshal([]byte(embJSON), &c.Embedding); err != nil {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guidelines").Scan(&n)
	return n, err
}

// Sources lists distinct ingested documents with chunk counts.
func (s *Store) Sources(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM guidelines GROUP BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			continue
		}
		out[source] = n
	}
	return out, rows.Err()
}
