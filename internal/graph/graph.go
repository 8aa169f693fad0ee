// Package graph implements C6: pure functions that compute author,
// ecosystem, collection, and semantic edges over a live-repository
// snapshot, plus the store/vector-index-driving rebuild operations.
// Grounded structurally on the teacher's internal/store/local_graph.go,
// which maintains a knowledge-graph edge table the same "compute in Go,
// batch-write to SQLite" way.
package graph

import (
	"context"
	"sort"

	"starbase/internal/logging"
	"starbase/internal/model"
	"starbase/internal/vectorindex"
)

const (
	defaultSemanticTopK         = 10
	defaultMinSimilarity        = 0.6
	ecosystemLanguageMinCount   = 2
	ecosystemLanguageMaxCount   = 50
	ecosystemLanguageSampleSize = 20
	topicJaccardMinShared       = 2
	topicJaccardMinScore        = 0.3

	authorEdgeWeight     = 1.0
	ecosystemEdgeWeight  = 0.6
	collectionEdgeWeight = 0.5
)

// Store is the persistence capability C6 depends on.
type Store interface {
	AllLive() ([]*model.Repository, error)
	CollectionMemberships() (map[int64][]string, error)
	PutEdges(edges []model.GraphEdge) error
	DeleteEdgesByKind(kinds ...model.EdgeKind) error
	DeleteSemanticEdgesFor(fullName string) error
	TouchEdgesComputed(fullName string) error
}

// VectorIndex is the similarity-query capability C6 depends on (C4).
type VectorIndex interface {
	Get(id string) ([]float32, bool, error)
	Query(vector []float32, k int, where map[string]bool) ([]vectorindex.Match, error)
}

// Engine is the C6 capability.
type Engine struct {
	store  Store
	vector VectorIndex

	semanticTopK  int
	minSimilarity float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSemanticParams overrides the default top-K and minimum similarity
// used by semantic edge discovery.
func WithSemanticParams(topK int, minSimilarity float64) Option {
	return func(e *Engine) {
		e.semanticTopK = topK
		e.minSimilarity = minSimilarity
	}
}

// New builds an Engine.
func New(store Store, vector VectorIndex, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		vector:        vector,
		semanticTopK:  defaultSemanticTopK,
		minSimilarity: defaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RebuildAll clears every non-semantic edge, recomputes author, ecosystem,
// and collection edges from the current live snapshot, batch-writes them,
// and marks every touched repository's edges_computed_at.
func (e *Engine) RebuildAll() error {
	repos, err := e.store.AllLive()
	if err != nil {
		return err
	}

	if err := e.store.DeleteEdgesByKind(model.EdgeAuthor, model.EdgeEcosystem, model.EdgeCollection); err != nil {
		return err
	}

	var edges []model.GraphEdge
	edges = append(edges, AuthorEdges(repos)...)
	edges = append(edges, EcosystemByLanguageEdges(repos)...)
	edges = append(edges, EcosystemByTopicEdges(repos)...)

	memberships, err := e.store.CollectionMemberships()
	if err != nil {
		return err
	}
	edges = append(edges, CollectionEdges(memberships)...)

	if err := e.store.PutEdges(edges); err != nil {
		return err
	}

	logging.Graph("rebuild_all computed %d non-semantic edges over %d repositories", len(edges), len(repos))

	for _, r := range repos {
		if err := e.store.TouchEdgesComputed(r.FullName()); err != nil {
			return err
		}
	}
	return nil
}

// RefreshSemanticFor recomputes semantic edges touching a single
// repository: deletes its existing semantic edges, queries C4 for its
// nearest neighbors, and writes edges for those meeting minSimilarity.
func (e *Engine) RefreshSemanticFor(ctx context.Context, fullName string) error {
	return e.refreshSemanticWithParams(ctx, fullName, e.semanticTopK, e.minSimilarity)
}

// RebuildSemanticAll recomputes semantic edges for every live repository,
// overriding the engine's configured top-K/min-similarity when topK or
// minSimilarity is non-zero. Used by the manual "rebuild semantic edges"
// API trigger, which accepts per-request overrides.
func (e *Engine) RebuildSemanticAll(ctx context.Context, topK int, minSimilarity float64) error {
	if topK <= 0 {
		topK = e.semanticTopK
	}
	if minSimilarity <= 0 {
		minSimilarity = e.minSimilarity
	}

	repos, err := e.store.AllLive()
	if err != nil {
		return err
	}
	for _, r := range repos {
		if err := e.refreshSemanticWithParams(ctx, r.FullName(), topK, minSimilarity); err != nil {
			return err
		}
	}
	logging.Graph("rebuild_semantic recomputed edges over %d repositories (top_k=%d min_similarity=%.2f)", len(repos), topK, minSimilarity)
	return nil
}

func (e *Engine) refreshSemanticWithParams(ctx context.Context, fullName string, topK int, minSimilarity float64) error {
	if err := e.store.DeleteSemanticEdgesFor(fullName); err != nil {
		return err
	}

	vector, ok, err := e.vector.Get(fullName)
	if err != nil {
		return err
	}
	if !ok {
		logging.GraphDebug("skipping semantic refresh for %s: no vector indexed", fullName)
		return nil
	}

	matches, err := e.vector.Query(vector, topK+1, nil)
	if err != nil {
		return err
	}

	var edges []model.GraphEdge
	for _, m := range matches {
		if m.ID == fullName {
			continue
		}
		if m.Similarity < minSimilarity {
			continue
		}
		source, target := orderPair(fullName, m.ID)
		edges = append(edges, model.GraphEdge{
			Source: source,
			Target: target,
			Kind:   model.EdgeSemantic,
			Weight: m.Similarity,
		})
	}

	if len(edges) == 0 {
		return nil
	}
	if err := e.store.PutEdges(edges); err != nil {
		return err
	}
	return e.store.TouchEdgesComputed(fullName)
}

// AuthorEdges emits a weight-1.0 edge for every unordered pair of
// repositories sharing an owner with more than one repository.
func AuthorEdges(repos []*model.Repository) []model.GraphEdge {
	byOwner := map[string][]string{}
	for _, r := range repos {
		byOwner[r.Owner] = append(byOwner[r.Owner], r.FullName())
	}

	var edges []model.GraphEdge
	for _, names := range byOwner {
		if len(names) < 2 {
			continue
		}
		edges = append(edges, pairEdges(names, model.EdgeAuthor, authorEdgeWeight, nil)...)
	}
	return edges
}

// EcosystemByLanguageEdges emits weight-0.6 edges for repositories sharing
// a primary language, for languages with 2 ≤ count < 50 (mega-languages are
// skipped as uninformative), sampling at most 20 repositories per language.
func EcosystemByLanguageEdges(repos []*model.Repository) []model.GraphEdge {
	byLanguage := map[string][]string{}
	for _, r := range repos {
		if r.PrimaryLanguage == "" {
			continue
		}
		byLanguage[r.PrimaryLanguage] = append(byLanguage[r.PrimaryLanguage], r.FullName())
	}

	var edges []model.GraphEdge
	for language, names := range byLanguage {
		count := len(names)
		if count < ecosystemLanguageMinCount || count >= ecosystemLanguageMaxCount {
			continue
		}
		sort.Strings(names)
		if len(names) > ecosystemLanguageSampleSize {
			names = names[:ecosystemLanguageSampleSize]
		}
		meta := map[string]interface{}{"language": language}
		edges = append(edges, pairEdges(names, model.EdgeEcosystem, ecosystemEdgeWeight, meta)...)
	}
	return edges
}

// EcosystemByTopicEdges emits edges between repositories sharing at least
// two topics with a Jaccard similarity strictly greater than 0.3, weighted
// by that similarity (rounded to 2 decimals).
func EcosystemByTopicEdges(repos []*model.Repository) []model.GraphEdge {
	var edges []model.GraphEdge
	for i := 0; i < len(repos); i++ {
		a := topicSet(repos[i])
		if len(a) == 0 {
			continue
		}
		for j := i + 1; j < len(repos); j++ {
			b := topicSet(repos[j])
			if len(b) == 0 {
				continue
			}
			shared, union := intersectAndUnion(a, b)
			if shared < topicJaccardMinShared {
				continue
			}
			jaccard := roundTo2(float64(shared) / float64(union))
			if jaccard <= topicJaccardMinScore {
				continue
			}
			source, target := orderPair(repos[i].FullName(), repos[j].FullName())
			edges = append(edges, model.GraphEdge{
				Source: source,
				Target: target,
				Kind:   model.EdgeEcosystem,
				Weight: jaccard,
			})
		}
	}
	return edges
}

// CollectionEdges emits weight-0.5 edges between every pair of repositories
// co-members of the same user-curated collection.
func CollectionEdges(memberships map[int64][]string) []model.GraphEdge {
	var edges []model.GraphEdge
	for _, names := range memberships {
		if len(names) < 2 {
			continue
		}
		edges = append(edges, pairEdges(names, model.EdgeCollection, collectionEdgeWeight, nil)...)
	}
	return edges
}

func pairEdges(names []string, kind model.EdgeKind, weight float64, meta map[string]interface{}) []model.GraphEdge {
	seen := map[string]bool{}
	var edges []model.GraphEdge
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			source, target := orderPair(names[i], names[j])
			key := source + "\x00" + target
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, model.GraphEdge{
				Source:   source,
				Target:   target,
				Kind:     kind,
				Weight:   weight,
				Metadata: meta,
			})
		}
	}
	return edges
}

// orderPair normalizes a pair so source < target lexicographically,
// deduping the edge regardless of discovery order (spec §4.6).
func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func topicSet(r *model.Repository) map[string]bool {
	set := map[string]bool{}
	for _, t := range r.Topics {
		set[t] = true
	}
	return set
}

func intersectAndUnion(a, b map[string]bool) (shared, union int) {
	union = len(a)
	for t := range b {
		if a[t] {
			shared++
		} else {
			union++
		}
	}
	return shared, union
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
