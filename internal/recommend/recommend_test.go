package recommend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starbase/internal/model"
	"starbase/internal/vectorindex"
)

type fakeStore struct {
	edges map[string][]model.GraphEdge
	repos map[string]*model.Repository
}

func (f *fakeStore) EdgesFor(fullName string, kinds ...model.EdgeKind) ([]model.GraphEdge, error) {
	var out []model.GraphEdge
	allowed := make(map[model.EdgeKind]bool)
	for _, k := range kinds {
		allowed[k] = true
	}
	for _, e := range f.edges[fullName] {
		if len(allowed) == 0 || allowed[e.Kind] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRepository(fullName string) (*model.Repository, error) {
	return f.repos[fullName], nil
}

type fakeVectorIndex struct {
	vectors map[string][]float32
	matches []vectorindex.Match
}

func (f *fakeVectorIndex) Get(id string) ([]float32, bool, error) {
	v, ok := f.vectors[id]
	return v, ok, nil
}

func (f *fakeVectorIndex) Query(vector []float32, k int, where map[string]bool) ([]vectorindex.Match, error) {
	return f.matches, nil
}

func repo(owner, name string) *model.Repository {
	return &model.Repository{Owner: owner, Name: name}
}

func edge(source, target string, kind model.EdgeKind, weight float64) model.GraphEdge {
	return model.GraphEdge{Source: source, Target: target, Kind: kind, Weight: weight}
}

func TestRecommendGraphOnlyNormalizesAndCaps(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {
				edge("acme/base", "acme/a", model.EdgeAuthor, 1.0),
				edge("acme/base", "acme/b", model.EdgeEcosystem, 1.0),
			},
		},
		repos: map[string]*model.Repository{
			"acme/a": repo("acme", "a"),
			"acme/b": repo("acme", "b"),
		},
	}
	e := New(store, nil)

	recs, err := e.Recommend(context.Background(), "acme/base", 10, false, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byName := map[string]Recommendation{}
	for _, r := range recs {
		byName[r.Repository.FullName()] = r
	}
	assert.InDelta(t, 0.5, byName["acme/a"].GraphNorm, 1e-9)
	assert.InDelta(t, 0.25, byName["acme/b"].GraphNorm, 1e-9)
}

func TestRecommendGraphScoreCapsAtOne(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {
				edge("acme/base", "acme/a", model.EdgeAuthor, 5.0),
			},
		},
		repos: map[string]*model.Repository{"acme/a": repo("acme", "a")},
	}
	e := New(store, nil)

	recs, err := e.Recommend(context.Background(), "acme/base", 10, false, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1.0, recs[0].GraphNorm)
}

func TestRecommendFusesGraphAndSemantic(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {edge("acme/base", "acme/a", model.EdgeAuthor, 1.0)},
		},
		repos: map[string]*model.Repository{
			"acme/a": repo("acme", "a"),
			"acme/c": repo("acme", "c"),
		},
	}
	vec := &fakeVectorIndex{
		vectors: map[string][]float32{"acme/base": {0.1, 0.2}},
		matches: []vectorindex.Match{
			{ID: "acme/a", Similarity: 0.8},
			{ID: "acme/c", Similarity: 0.9},
		},
	}
	e := New(store, vec)

	recs, err := e.Recommend(context.Background(), "acme/base", 10, true, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byName := map[string]Recommendation{}
	for _, r := range recs {
		byName[r.Repository.FullName()] = r
	}
	assert.InDelta(t, 0.65*0.5+0.35*0.8, byName["acme/a"].Final, 1e-9)
	assert.ElementsMatch(t, []Source{SourceGraph, SourceSemantic}, byName["acme/a"].Sources)
	assert.InDelta(t, 0.35*0.9, byName["acme/c"].Final, 1e-9)
	assert.Equal(t, []Source{SourceSemantic}, byName["acme/c"].Sources)
}

func TestRecommendExcludesRequestedCandidates(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {
				edge("acme/base", "acme/a", model.EdgeAuthor, 1.0),
				edge("acme/base", "acme/b", model.EdgeAuthor, 1.0),
			},
		},
		repos: map[string]*model.Repository{
			"acme/a": repo("acme", "a"),
			"acme/b": repo("acme", "b"),
		},
	}
	e := New(store, nil)

	recs, err := e.Recommend(context.Background(), "acme/base", 10, false, map[string]bool{"acme/a": true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "acme/b", recs[0].Repository.FullName())
}

func TestRecommendEnforcesPerOwnerCap(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {
				edge("acme/base", "owner1/a", model.EdgeAuthor, 1.0),
				edge("acme/base", "owner1/b", model.EdgeAuthor, 0.9),
				edge("acme/base", "owner1/c", model.EdgeAuthor, 0.8),
				edge("acme/base", "owner2/x", model.EdgeAuthor, 0.5),
			},
		},
		repos: map[string]*model.Repository{
			"owner1/a": repo("owner1", "a"),
			"owner1/b": repo("owner1", "b"),
			"owner1/c": repo("owner1", "c"),
			"owner2/x": repo("owner2", "x"),
		},
	}
	e := New(store, nil)

	recs, err := e.Recommend(context.Background(), "acme/base", 10, false, nil)
	require.NoError(t, err)

	owner1Count := 0
	for _, r := range recs {
		if r.Repository.Owner == "owner1" {
			owner1Count++
		}
	}
	assert.LessOrEqual(t, owner1Count, 2)
	assert.Len(t, recs, 3)
}

func TestRecommendStopsAtLimit(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {
				edge("acme/base", "a1/x", model.EdgeAuthor, 1.0),
				edge("acme/base", "a2/x", model.EdgeAuthor, 0.9),
				edge("acme/base", "a3/x", model.EdgeAuthor, 0.8),
			},
		},
		repos: map[string]*model.Repository{
			"a1/x": repo("a1", "x"),
			"a2/x": repo("a2", "x"),
			"a3/x": repo("a3", "x"),
		},
	}
	e := New(store, nil)

	recs, err := e.Recommend(context.Background(), "acme/base", 1, false, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a1/x", recs[0].Repository.FullName())
}

func TestRecommendSkipsSemanticWhenDisabled(t *testing.T) {
	store := &fakeStore{repos: map[string]*model.Repository{"acme/a": repo("acme", "a")}}
	vec := &fakeVectorIndex{
		vectors: map[string][]float32{"acme/base": {0.1}},
		matches: []vectorindex.Match{{ID: "acme/a", Similarity: 0.9}},
	}
	e := New(store, vec)

	recs, err := e.Recommend(context.Background(), "acme/base", 10, false, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecommendCustomWeightsAndOwnerCap(t *testing.T) {
	store := &fakeStore{
		edges: map[string][]model.GraphEdge{
			"acme/base": {edge("acme/base", "acme/a", model.EdgeAuthor, 1.0)},
		},
		repos: map[string]*model.Repository{"acme/a": repo("acme", "a")},
	}
	e := New(store, nil, WithWeights(1.0, 0), WithOwnerCap(1))

	recs, err := e.Recommend(context.Background(), "acme/base", 10, false, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.5, recs[0].Final, 1e-9)
}
