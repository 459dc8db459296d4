package knowledge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tomato/internal/embedding"
	"tomato/internal/logging"
	"tomato/internal/types"
)

// Retriever is the guideline retrieval contract. Implementations may return
// an empty slice; callers must never treat guidance as mandatory.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.GuidancePassage, error)
}

// KBRetriever ranks stored guideline chunks against a query embedding by
// cosine similarity.
type KBRetriever struct {
	store   *Store
	engine  embedding.Engine
	timeout time.Duration
}

// NewKBRetriever wires the store and embedding engine together.
func NewKBRetriever(store *Store, engine embedding.Engine, timeout time.Duration) *KBRetriever {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &KBRetriever{store: store, engine: engine, timeout: timeout}
}

// Retrieve embeds the query and returns the topK most similar chunks.
func (r *KBRetriever) Retrieve(ctx context.Context, query string, topK int) ([]types.GuidancePassage, error) {
	if topK <= 0 {
		topK = 5
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	queryVec, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := r.store.AllEmbedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	type scored struct {
		chunk Chunk
		score float64
	}
	var candidates []scored
	for _, c := range chunks {
		score, err := embedding.CosineSimilarity(queryVec, c.Embedding)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{chunk: c, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	passages := make([]types.GuidancePassage, len(candidates))
	for i, c := range candidates {
		passages[i] = types.GuidancePassage{
			Text:   c.chunk.Text,
			Score:  c.score,
			Source: c.chunk.Source,
			Title:  c.chunk.Title,
		}
	}
	logging.Knowledge("retrieved %d/%d passages for query %.60q", len(passages), len(chunks), query)
	return passages, nil
}

// WithRetry wraps a retriever with the loop's degradation policy: one
// immediate retry, then empty guidance. Retrieval is advisory; its failure
// is logged and absorbed.
type WithRetry struct {
	inner Retriever
}

// NewWithRetry wraps a retriever.
func NewWithRetry(inner Retriever) *WithRetry {
	return &WithRetry{inner: inner}
}

func (w *WithRetry) Retrieve(ctx context.Context, query string, topK int) ([]types.GuidancePassage, error) {
	passages, err := w.inner.Retrieve(ctx, query, topK)
	if err == nil {
		return passages, nil
	}

	logging.KnowledgeWarn("retrieve failed, retrying once: %v", err)
	passages, err = w.inner.Retrieve(ctx, query, topK)
	if err != nil {
		logging.KnowledgeWarn("retry failed, proceeding without guidance: %v", err)
		return nil, nil
	}
	return passages, nil
}

// NullRetriever returns no guidance. Used when no embedding backend is
// configured so the loop runs on diagnostics alone.
type NullRetriever struct{}

func (NullRetriever) Retrieve(ctx context.Context, query string, topK int) ([]types.GuidancePassage, error) {
	return nil, nil
}

// QueryForFinding phrases a finding as a KB query the way a reviewer would
// ask it: rule id plus the human-readable message.
func QueryForFinding(f types.Finding) string {
	return fmt.Sprintf("coding convention %s: %s", f.Rule, f.Message)
}

// GatherGuidance retrieves guidance for each distinct finding. Duplicate
// rule+message pairs share one query to avoid hammering the KB in files with
// repeated violations.
func GatherGuidance(ctx context.Context, r Retriever, findings []types.Finding, topK int) []types.GuidanceRecord {
	seen := make(map[string]bool, len(findings))
	var records []types.GuidanceRecord
	for _, f := range findings {
		key := f.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		query := QueryForFinding(f)
		passages, err := r.Retrieve(ctx, query, topK)
		if err != nil {
			// Only reachable with a bare retriever; WithRetry absorbs errors.
			logging.KnowledgeWarn("guidance for %s dropped: %v", key, err)
			continue
		}
		if len(passages) == 0 {
			continue
		}
		records = append(records, types.GuidanceRecord{
			FindingKey: key,
			Query:      query,
			Passages:   passages,
		})
	}
	return records
}
