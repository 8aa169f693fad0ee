package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starbase/internal/model"
	"starbase/internal/vectorindex"
)

func repo(owner, name, language string, topics ...string) *model.Repository {
	return &model.Repository{Owner: owner, Name: name, PrimaryLanguage: language, Topics: topics}
}

func TestAuthorEdgesOnlyForOwnersWithMultipleRepos(t *testing.T) {
	repos := []*model.Repository{
		repo("acme", "widget", "Go"),
		repo("acme", "gadget", "Go"),
		repo("solo", "lonely", "Go"),
	}

	edges := AuthorEdges(repos)

	require.Len(t, edges, 1)
	assert.Equal(t, "acme/gadget", edges[0].Source)
	assert.Equal(t, "acme/widget", edges[0].Target)
	assert.Equal(t, model.EdgeAuthor, edges[0].Kind)
	assert.Equal(t, 1.0, edges[0].Weight)
}

func TestEcosystemByLanguageEdgesSkipsMegaLanguages(t *testing.T) {
	var repos []*model.Repository
	for i := 0; i < 60; i++ {
		repos = append(repos, repo("owner", "repo"+string(rune('a'+i%26))+string(rune('0'+i/26)), "JavaScript"))
	}
	repos = append(repos, repo("acme", "one", "Zig"))
	repos = append(repos, repo("acme", "two", "Zig"))

	edges := EcosystemByLanguageEdges(repos)

	for _, e := range edges {
		assert.NotEqual(t, "JavaScript", e.Metadata["language"])
	}
	assert.NotEmpty(t, edges)
}

func TestEcosystemByLanguageEdgesCapsSampleSize(t *testing.T) {
	var repos []*model.Repository
	for i := 0; i < 30; i++ {
		repos = append(repos, repo("owner", string(rune('a'+i%26))+string(rune('0'+i/26)), "Go"))
	}

	edges := EcosystemByLanguageEdges(repos)

	seen := map[string]bool{}
	for _, e := range edges {
		seen[e.Source] = true
		seen[e.Target] = true
	}
	assert.LessOrEqual(t, len(seen), 20)
}

func TestEcosystemByTopicEdgesRequiresSharedCountAndJaccard(t *testing.T) {
	repos := []*model.Repository{
		repo("a", "one", "Go", "cli", "tool", "infra"),
		repo("b", "two", "Go", "cli", "tool", "web", "db"),
		repo("c", "three", "Go", "cli"),
	}

	edges := EcosystemByTopicEdges(repos)

	require.Len(t, edges, 1)
	assert.Equal(t, "a/one", edges[0].Source)
	assert.Equal(t, "b/two", edges[0].Target)
	assert.Greater(t, edges[0].Weight, topicJaccardMinScore)
}

func TestCollectionEdgesPairsCoMembers(t *testing.T) {
	memberships := map[int64][]string{
		1: {"acme/widget", "acme/gadget", "other/thing"},
		2: {"solo/lonely"},
	}

	edges := CollectionEdges(memberships)

	require.Len(t, edges, 3)
	for _, e := range edges {
		assert.Equal(t, model.EdgeCollection, e.Kind)
		assert.Equal(t, 0.5, e.Weight)
		assert.Less(t, e.Source, e.Target)
	}
}

func TestOrderPairIsDeterministic(t *testing.T) {
	s1, t1 := orderPair("b/b", "a/a")
	s2, t2 := orderPair("a/a", "b/b")
	assert.Equal(t, s1, s2)
	assert.Equal(t, t1, t2)
	assert.Equal(t, "a/a", s1)
}

type fakeStore struct {
	repos               []*model.Repository
	memberships         map[int64][]string
	putEdges            []model.GraphEdge
	deletedKinds        []model.EdgeKind
	deletedSemanticFor  string
	touchedEdgesFor     []string
	putEdgesErr         error
}

func (f *fakeStore) AllLive() ([]*model.Repository, error) { return f.repos, nil }
func (f *fakeStore) CollectionMemberships() (map[int64][]string, error) {
	return f.memberships, nil
}
func (f *fakeStore) PutEdges(edges []model.GraphEdge) error {
	if f.putEdgesErr != nil {
		return f.putEdgesErr
	}
	f.putEdges = append(f.putEdges, edges...)
	return nil
}
func (f *fakeStore) DeleteEdgesByKind(kinds ...model.EdgeKind) error {
	f.deletedKinds = append(f.deletedKinds, kinds...)
	return nil
}
func (f *fakeStore) DeleteSemanticEdgesFor(fullName string) error {
	f.deletedSemanticFor = fullName
	return nil
}
func (f *fakeStore) TouchEdgesComputed(fullName string) error {
	f.touchedEdgesFor = append(f.touchedEdgesFor, fullName)
	return nil
}

type fakeVectorIndex struct {
	vectors map[string][]float32
	matches []vectorindex.Match
	lastK   int
}

func (f *fakeVectorIndex) Get(id string) ([]float32, bool, error) {
	v, ok := f.vectors[id]
	return v, ok, nil
}

func (f *fakeVectorIndex) Query(vector []float32, k int, where map[string]bool) ([]vectorindex.Match, error) {
	f.lastK = k
	return f.matches, nil
}

func TestRebuildAllComputesAndWritesNonSemanticEdges(t *testing.T) {
	store := &fakeStore{
		repos: []*model.Repository{
			repo("acme", "widget", "Go"),
			repo("acme", "gadget", "Go"),
		},
		memberships: map[int64][]string{},
	}
	engine := New(store, &fakeVectorIndex{})

	err := engine.RebuildAll()

	require.NoError(t, err)
	assert.ElementsMatch(t, []model.EdgeKind{model.EdgeAuthor, model.EdgeEcosystem, model.EdgeCollection}, store.deletedKinds)
	assert.NotEmpty(t, store.putEdges)
	assert.ElementsMatch(t, []string{"acme/widget", "acme/gadget"}, store.touchedEdgesFor)
}

func TestRefreshSemanticForSkipsWhenNoVectorIndexed(t *testing.T) {
	store := &fakeStore{}
	engine := New(store, &fakeVectorIndex{vectors: map[string][]float32{}})

	err := engine.RefreshSemanticFor(context.Background(), "acme/widget")

	require.NoError(t, err)
	assert.Equal(t, "acme/widget", store.deletedSemanticFor)
	assert.Empty(t, store.putEdges)
}

func TestRefreshSemanticForWritesEdgesMeetingThreshold(t *testing.T) {
	store := &fakeStore{}
	vi := &fakeVectorIndex{
		vectors: map[string][]float32{"acme/widget": {1, 0, 0}},
		matches: []vectorindex.Match{
			{ID: "acme/widget", Similarity: 1.0},
			{ID: "acme/gadget", Similarity: 0.8},
			{ID: "acme/unrelated", Similarity: 0.2},
		},
	}
	engine := New(store, vi)

	err := engine.RefreshSemanticFor(context.Background(), "acme/widget")

	require.NoError(t, err)
	require.Len(t, store.putEdges, 1)
	assert.Equal(t, model.EdgeSemantic, store.putEdges[0].Kind)
	assert.Equal(t, 0.8, store.putEdges[0].Weight)
	assert.Contains(t, []string{"acme/widget", "acme/gadget"}, store.putEdges[0].Source)
}

func TestRebuildSemanticAllRefreshesEveryLiveRepository(t *testing.T) {
	store := &fakeStore{
		repos: []*model.Repository{
			{Owner: "acme", Name: "widget"},
			{Owner: "acme", Name: "gadget"},
		},
	}
	vi := &fakeVectorIndex{
		vectors: map[string][]float32{
			"acme/widget": {1, 0, 0},
			"acme/gadget": {1, 0, 0},
		},
		matches: []vectorindex.Match{
			{ID: "acme/widget", Similarity: 1.0},
			{ID: "acme/gadget", Similarity: 0.9},
		},
	}
	engine := New(store, vi)

	err := engine.RebuildSemanticAll(context.Background(), 5, 0.5)

	require.NoError(t, err)
	assert.NotEmpty(t, store.putEdges)
}

func TestRebuildSemanticAllUsesDefaultsWhenOverridesAreZero(t *testing.T) {
	store := &fakeStore{repos: []*model.Repository{{Owner: "acme", Name: "widget"}}}
	vi := &fakeVectorIndex{
		vectors: map[string][]float32{"acme/widget": {1, 0, 0}},
		matches: []vectorindex.Match{{ID: "acme/gadget", Similarity: 0.65}},
	}
	engine := New(store, vi, WithSemanticParams(3, 0.7))

	err := engine.RebuildSemanticAll(context.Background(), 0, 0)

	require.NoError(t, err)
	assert.Equal(t, 4, vi.lastK)
	assert.Empty(t, store.putEdges)
}

func TestRebuildAllPropagatesStoreErrors(t *testing.T) {
	store := &fakeStore{putEdgesErr: errors.New("write failed")}
	engine := New(store, &fakeVectorIndex{})

	err := engine.RebuildAll()

	assert.Error(t, err)
}
