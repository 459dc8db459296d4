package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"tomato/internal/embedding"
	"tomato/internal/logging"
)

// Ingestor loads guideline documents into the KB: it splits markdown or
// plain-text files into paragraph chunks, embeds them, and stores them.
type Ingestor struct {
	store  *Store
	engine embedding.Engine

	// ChunkMinChars drops fragments too short to be useful guidance.
	ChunkMinChars int

	// Parallelism bounds concurrent document ingestion.
	Parallelism int
}

// NewIngestor creates an ingestor with defaults.
func NewIngestor(store *Store, engine embedding.Engine) *Ingestor {
	return &Ingestor{
		store:         store,
		engine:        engine,
		ChunkMinChars: 80,
		Parallelism:   4,
	}
}

// IngestDir ingests every .md and .txt file under dir. Each document is
// re-ingested atomically: old chunks for that source are removed first.
// Returns the number of chunks stored.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".md", ".txt", ".rst":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no guideline documents (.md/.txt/.rst) under %s", dir)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.Parallelism)

	counts := make([]int, len(paths))
	for i, path := range paths {
		g.Go(func() error {
			n, err := in.IngestFile(ctx, path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	logging.Knowledge("ingested %d chunks from %d documents under %s", total, len(paths), dir)
	return total, nil
}

// IngestFile ingests one document and returns the chunk count.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	source := filepath.Base(path)
	title := titleOf(string(data), source)
	chunks := SplitChunks(string(data), in.ChunkMinChars)
	if len(chunks) == 0 {
		return 0, nil
	}

	vecs, err := in.engine.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	if err := in.store.DeleteSource(ctx, source); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}
	for i, text := range chunks {
		c := Chunk{Source: source, Title: title, Text: text, Embedding: vecs[i]}
		if err := in.store.InsertChunk(ctx, c); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// SplitChunks splits a document on blank lines, merging fragments shorter
// than minChars into their successor so headings stay attached to their
// section body.
func SplitChunks(doc string, minChars int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n\n")

	var chunks []string
	var pending string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if pending != "" {
			p = pending + "\n\n" + p
			pending = ""
		}
		if len(p) < minChars {
			pending = p
			continue
		}
		chunks = append(chunks, p)
	}
	if pending != "" && len(pending) >= minChars/2 {
		chunks = append(chunks, pending)
	}
	return chunks
}

// titleOf extracts the first markdown heading, falling back to the filename.
func titleOf(doc, fallback string) string {
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
		if line != "" {
			break
		}
	}
	return fallback
}
