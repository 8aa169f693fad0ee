// Package recommend implements C9: fuses graph-neighborhood recall with
// semantic nearest-neighbor recall into a single ranked, diversified
// recommendation list. Grounded on the teacher's internal/store/local_graph.go
// neighbor-scoring shape (already used as the base for C6) and the cosine
// top-k pattern in internal/embedding/engine.go, recombined here as a
// two-source weighted fusion analogous to C8's lexical/semantic fusion.
package recommend

import (
	"context"
	"sort"

	"starbase/internal/model"
	"starbase/internal/vectorindex"
)

const (
	defaultGraphWeight    = 0.65
	defaultSemanticWeight = 0.35
	defaultSemanticTopK   = 20
	defaultOwnerCap       = 2

	kindWeightAuthor     = 1.0
	kindWeightEcosystem  = 0.5
	kindWeightCollection = 0.5
	graphScoreDivisor    = 2.0
)

// Source records which recall stage(s) surfaced a candidate.
type Source string

const (
	SourceGraph    Source = "graph"
	SourceSemantic Source = "semantic"
)

// Recommendation is one ranked candidate.
type Recommendation struct {
	Repository *model.Repository
	Final      float64
	GraphNorm  float64
	Semantic   float64
	Sources    []Source
}

// Store is the persistence capability C9 depends on (C1).
type Store interface {
	EdgesFor(fullName string, kinds ...model.EdgeKind) ([]model.GraphEdge, error)
	GetRepository(fullName string) (*model.Repository, error)
}

// VectorIndex is the similarity capability C9 depends on (C4).
type VectorIndex interface {
	Get(id string) ([]float32, bool, error)
	Query(vector []float32, k int, where map[string]bool) ([]vectorindex.Match, error)
}

// Engine is the C9 capability.
type Engine struct {
	store  Store
	vector VectorIndex

	graphWeight    float64
	semanticWeight float64
	semanticTopK   int
	ownerCap       int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the default (0.65, 0.35) fusion weights.
func WithWeights(graph, semantic float64) Option {
	return func(e *Engine) {
		e.graphWeight = graph
		e.semanticWeight = semantic
	}
}

// WithOwnerCap overrides the default per-owner diversity cap of 2.
func WithOwnerCap(n int) Option {
	return func(e *Engine) { e.ownerCap = n }
}

// New builds an Engine. vector may be nil to always skip semantic recall.
func New(store Store, vector VectorIndex, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		vector:         vector,
		graphWeight:    defaultGraphWeight,
		semanticWeight: defaultSemanticWeight,
		semanticTopK:   defaultSemanticTopK,
		ownerCap:       defaultOwnerCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend runs the three-stage recommendation algorithm for the
// repository identified by fullName.
func (e *Engine) Recommend(ctx context.Context, fullName string, limit int, includeSemantic bool, exclude map[string]bool) ([]Recommendation, error) {
	byName := make(map[string]*Recommendation)

	graphEdges, err := e.store.EdgesFor(fullName, model.EdgeAuthor, model.EdgeEcosystem, model.EdgeCollection)
	if err != nil {
		return nil, err
	}
	for candidate, score := range graphScores(fullName, graphEdges) {
		if candidate == fullName {
			continue
		}
		byName[candidate] = &Recommendation{GraphNorm: score, Sources: []Source{SourceGraph}}
	}

	if includeSemantic && e.vector != nil {
		matches, err := e.semanticNeighbors(fullName)
		if err != nil {
			matches = nil
		}
		for _, m := range matches {
			if m.ID == fullName {
				continue
			}
			rec, ok := byName[m.ID]
			if !ok {
				rec = &Recommendation{}
				byName[m.ID] = rec
			}
			rec.Semantic = m.Similarity
			rec.Sources = append(rec.Sources, SourceSemantic)
		}
	}

	recs := make([]Recommendation, 0, len(byName))
	for name, rec := range byName {
		if exclude != nil && exclude[name] {
			continue
		}
		rec.Final = e.graphWeight*rec.GraphNorm + e.semanticWeight*rec.Semantic
		repo, err := e.store.GetRepository(name)
		if err != nil || repo == nil {
			continue
		}
		rec.Repository = repo
		recs = append(recs, *rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Final != recs[j].Final {
			return recs[i].Final > recs[j].Final
		}
		return recs[i].Repository.FullName() < recs[j].Repository.FullName()
	})

	return e.applyDiversityCap(recs, limit), nil
}

func (e *Engine) semanticNeighbors(fullName string) ([]vectorindex.Match, error) {
	vector, ok, err := e.vector.Get(fullName)
	if err != nil {
		return nil, err
	}
	if !ok || len(vector) == 0 {
		return nil, nil
	}
	return e.vector.Query(vector, e.semanticTopK, nil)
}

func (e *Engine) applyDiversityCap(recs []Recommendation, limit int) []Recommendation {
	ownerCounts := make(map[string]int)
	out := make([]Recommendation, 0, limit)
	for _, rec := range recs {
		if len(out) >= limit {
			break
		}
		owner := rec.Repository.Owner
		if ownerCounts[owner] >= e.ownerCap {
			continue
		}
		ownerCounts[owner]++
		out = append(out, rec)
	}
	return out
}

// graphScores accumulates each neighbor's weighted edge score for the
// given repository, normalized per spec (divide by 2.0, cap at 1).
func graphScores(fullName string, edges []model.GraphEdge) map[string]float64 {
	raw := make(map[string]float64)
	for _, edge := range edges {
		neighbor := edge.Target
		if edge.Source != fullName {
			neighbor = edge.Source
		}
		raw[neighbor] += edge.Weight * kindWeight(edge.Kind)
	}
	for name, score := range raw {
		normalized := score / graphScoreDivisor
		if normalized > 1 {
			normalized = 1
		}
		raw[name] = normalized
	}
	return raw
}

func kindWeight(kind model.EdgeKind) float64 {
	switch kind {
	case model.EdgeAuthor:
		return kindWeightAuthor
	case model.EdgeEcosystem:
		return kindWeightEcosystem
	case model.EdgeCollection:
		return kindWeightCollection
	default:
		return 0
	}
}
