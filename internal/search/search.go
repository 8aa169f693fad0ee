// Package search implements C8: fires lexical and semantic retrieval in
// parallel, normalizes both to [0,1], and fuses them by owner/name into a
// single ranked result set. Grounded on the teacher's fan-out pattern in
// internal/shards/researcher (parallel sub-searches joined via errgroup),
// generalized from multi-shard research queries to a two-source score
// fusion.
package search

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"starbase/internal/logging"
	"starbase/internal/model"
	"starbase/internal/store"
	"starbase/internal/vectorindex"
)

const (
	defaultFTSWeight      = 0.3
	defaultSemanticWeight = 0.7
)

// MatchType records which retrieval path produced a hit.
type MatchType string

const (
	MatchFTS      MatchType = "fts"
	MatchSemantic MatchType = "semantic"
	MatchHybrid   MatchType = "hybrid"
)

// HybridHit is one ranked search result.
type HybridHit struct {
	Repository *model.Repository
	Final      float64
	FTSNorm    float64
	SemNorm    float64
	MatchType  MatchType
}

// Store is the persistence capability C8 depends on (C1).
type Store interface {
	FullTextSearch(query string, filters model.Filters, limit int) ([]store.FTSResult, error)
	GetRepository(fullName string) (*model.Repository, error)
}

// Embedder is the query-embedding capability C8 depends on (C3).
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// VectorIndex is the similarity-query capability C8 depends on (C4).
type VectorIndex interface {
	Query(vector []float32, k int, where map[string]bool) ([]vectorindex.Match, error)
}

// Engine is the C8 capability.
type Engine struct {
	store    Store
	embedder Embedder
	vector   VectorIndex

	ftsWeight      float64
	semanticWeight float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the default (0.3, 0.7) fusion weights.
func WithWeights(fts, semantic float64) Option {
	return func(e *Engine) {
		e.ftsWeight = fts
		e.semanticWeight = semantic
	}
}

// New builds an Engine. vector/embedder may be nil to always degrade to
// lexical-only search.
func New(store Store, embedder Embedder, vector VectorIndex, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		embedder:       embedder,
		vector:         vector,
		ftsWeight:      defaultFTSWeight,
		semanticWeight: defaultSemanticWeight,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs the hybrid retrieval algorithm. topK defaults to
// max(limit, 10) when non-positive.
func (e *Engine) Search(ctx context.Context, query string, filters model.Filters, limit, topK int) ([]HybridHit, error) {
	if topK <= 0 {
		topK = limit
		if topK < 10 {
			topK = 10
		}
	}

	var ftsResults []store.FTSResult
	var semMatches []vectorindex.Match
	var semAvailable bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := e.store.FullTextSearch(query, filters, topK)
		if err != nil {
			return err
		}
		ftsResults = results
		return nil
	})
	g.Go(func() error {
		if e.embedder == nil || e.vector == nil {
			return nil
		}
		vector := e.embedder.Embed(gctx, query)
		if len(vector) == 0 {
			logging.SearchDebug("query embedding empty, degrading to lexical-only search")
			return nil
		}
		matches, err := e.vector.Query(vector, topK, nil)
		if err != nil {
			logging.Search("semantic query failed, degrading to lexical-only search: %v", err)
			return nil
		}
		semMatches = matches
		semAvailable = true
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := e.merge(ftsResults, semMatches, semAvailable)

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Final != hits[j].Final {
			return hits[i].Final > hits[j].Final
		}
		if hits[i].FTSNorm != hits[j].FTSNorm {
			return hits[i].FTSNorm > hits[j].FTSNorm
		}
		return hits[i].Repository.FullName() < hits[j].Repository.FullName()
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (e *Engine) merge(ftsResults []store.FTSResult, semMatches []vectorindex.Match, semAvailable bool) []HybridHit {
	type accum struct {
		repo     *model.Repository
		fts, sem float64
		hasFTS   bool
		hasSem   bool
	}
	byName := make(map[string]*accum)

	for _, r := range ftsResults {
		byName[r.Repository.FullName()] = &accum{
			repo:   r.Repository,
			fts:    sigmoid(-r.Relevance),
			hasFTS: true,
		}
	}

	for _, m := range semMatches {
		a, ok := byName[m.ID]
		if !ok {
			repo, err := e.store.GetRepository(m.ID)
			if err != nil || repo == nil {
				continue
			}
			a = &accum{repo: repo}
			byName[m.ID] = a
		}
		a.sem = m.Similarity
		a.hasSem = true
	}

	hits := make([]HybridHit, 0, len(byName))
	for _, a := range byName {
		hit := HybridHit{Repository: a.repo, FTSNorm: a.fts, SemNorm: a.sem}

		switch {
		case !semAvailable:
			hit.Final = a.fts
			hit.MatchType = MatchFTS
		case a.hasFTS && a.hasSem:
			hit.Final = e.ftsWeight*a.fts + e.semanticWeight*a.sem
			hit.MatchType = MatchHybrid
		case a.hasSem:
			hit.Final = e.semanticWeight * a.sem
			hit.MatchType = MatchSemantic
		default:
			hit.Final = e.ftsWeight * a.fts
			hit.MatchType = MatchFTS
		}

		hits = append(hits, hit)
	}
	return hits
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
