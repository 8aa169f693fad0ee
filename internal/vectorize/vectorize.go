// Package vectorize implements C5: builds a compact per-repository text
// representation, drives the embedder and vector index, and exposes
// per-repository and batch indexing operations. Grounded structurally on
// the teacher's internal/store/vector_store.go SetEmbeddingEngine/
// StoreVectorWithEmbedding pairing of "compose input, embed, persist."
package vectorize

import (
	"context"
	"fmt"

	"starbase/internal/logging"
	"starbase/internal/model"
)

const minDerivedTextLength = 10

// Embedder is the capability C5 depends on (C3).
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// VectorIndex is the capability C5 depends on (C4).
type VectorIndex interface {
	Upsert(id string, vector []float32, metadata map[string]interface{}, text string) error
	Delete(id string) error
}

// Service is the C5 capability.
type Service struct {
	embedder Embedder
	index    VectorIndex
	maxChars int
}

// New builds a Service. maxChars bounds the README-derived summary length
// (spec §4.5 default 500).
func New(embedder Embedder, index VectorIndex, maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = 500
	}
	return &Service{embedder: embedder, index: index, maxChars: maxChars}
}

// ComposeText builds the text representation embedded for a repository:
// "{name} - {description}\n\n{readme_summary}" (spec §4.5).
func ComposeText(r *model.Repository) string {
	return fmt.Sprintf("%s - %s\n\n%s", r.Name, r.Description, r.ReadmeSummary)
}

// IndexRepository embeds and upserts a single repository's vector, skipping
// repositories with fewer than minDerivedTextLength characters of derived
// text and skipping silently when the embedder returns an empty vector
// (spec §4.5: "On C3 returning an empty vector, the repository is skipped
// without raising"). Returns whether the repository was actually indexed.
func (s *Service) IndexRepository(ctx context.Context, r *model.Repository) bool {
	text := ComposeText(r)
	if len(text) < minDerivedTextLength {
		logging.VectorizeDebug("skipping %s: derived text too short (%d chars)", r.FullName(), len(text))
		return false
	}

	vector := s.embedder.Embed(ctx, text)
	if len(vector) == 0 {
		logging.Vectorize("skipping %s: embedder returned empty vector", r.FullName())
		return false
	}

	metadata := map[string]interface{}{
		"primary_language": r.PrimaryLanguage,
		"stargazer_count":  r.StargazerCount,
		"owner":            r.Owner,
		"topics":           r.Topics,
	}
	if err := s.index.Upsert(r.FullName(), vector, metadata, text); err != nil {
		logging.Vectorize("upserting vector for %s failed: %v", r.FullName(), err)
		return false
	}
	return true
}

// IndexBatch indexes every repository, returning the count actually
// indexed (others are skipped per IndexRepository's rules).
func (s *Service) IndexBatch(ctx context.Context, repos []*model.Repository) int {
	count := 0
	for _, r := range repos {
		if s.IndexRepository(ctx, r) {
			count++
		}
	}
	return count
}

// RemoveRepository deletes a repository's vector entry, used when a
// repository is soft-deleted.
func (s *Service) RemoveRepository(fullName string) error {
	return s.index.Delete(fullName)
}

// Summarize derives the README summary stored on a repository record from
// raw README text, using the service's configured maxChars bound. Callers
// (the sync engine) run this once per fetched README before persisting the
// repository, so IndexRepository never re-parses raw README markdown.
func (s *Service) Summarize(rawReadme string) string {
	return ExtractSummary(rawReadme, s.maxChars)
}
