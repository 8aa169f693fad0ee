package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starbase/internal/apperr"
	"starbase/internal/model"
	"starbase/internal/recommend"
	"starbase/internal/search"
	"starbase/internal/sync"
)

type fakeStore struct {
	repos      map[string]*model.Repository
	edges      []model.GraphEdge
	history    []*model.HistoryEntry
	liveCount  int
	getErr     error
	edgesErr   error
}

func (f *fakeStore) CountLive() (int, error) { return f.liveCount, nil }
func (f *fakeStore) CountPendingUpdate(since time.Time) (int, error) { return 3, nil }
func (f *fakeStore) ListHistory(limit int) ([]*model.HistoryEntry, error) { return f.history, nil }
func (f *fakeStore) GetRepository(fullName string) (*model.Repository, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.repos[fullName], nil
}
func (f *fakeStore) EdgesFor(fullName string, kinds ...model.EdgeKind) ([]model.GraphEdge, error) {
	return f.edges, f.edgesErr
}
func (f *fakeStore) AllLive() ([]*model.Repository, error) {
	var out []*model.Repository
	for _, r := range f.repos {
		out = append(out, r)
	}
	return out, nil
}

type fakeSync struct {
	syncCalled    chan model.SyncMode
	reanalyzeErr  error
	reanalyzedFor string
}

func (f *fakeSync) Sync(ctx context.Context, mode model.SyncMode) (*sync.Result, error) {
	if f.syncCalled != nil {
		f.syncCalled <- mode
	}
	return &sync.Result{}, nil
}
func (f *fakeSync) Reanalyze(ctx context.Context, fullName string) error {
	f.reanalyzedFor = fullName
	return f.reanalyzeErr
}

type fakeSearch struct {
	hits []search.HybridHit
	err  error
}

func (f *fakeSearch) Search(ctx context.Context, query string, filters model.Filters, limit, topK int) ([]search.HybridHit, error) {
	return f.hits, f.err
}

type fakeRecommend struct {
	recs                []recommend.Recommendation
	err                 error
	lastIncludeSemantic bool
	lastExclude         map[string]bool
}

func (f *fakeRecommend) Recommend(ctx context.Context, fullName string, limit int, includeSemantic bool, exclude map[string]bool) ([]recommend.Recommendation, error) {
	f.lastIncludeSemantic = includeSemantic
	f.lastExclude = exclude
	return f.recs, f.err
}

type fakeGraph struct {
	rebuildAllErr  error
	rebuildSemErr  error
	rebuiltSemTopK int
}

func (f *fakeGraph) RebuildAll() error { return f.rebuildAllErr }
func (f *fakeGraph) RebuildSemanticAll(ctx context.Context, topK int, minSimilarity float64) error {
	f.rebuiltSemTopK = topK
	return f.rebuildSemErr
}

type fakeVectorIndex struct{ count int }

func (f *fakeVectorIndex) Count() (int, error) { return f.count, nil }

type fakeEmbedder struct{ healthy bool }

func (f *fakeEmbedder) Health(ctx context.Context) bool { return f.healthy }

type fakeVectorizer struct{ indexed int }

func (f *fakeVectorizer) IndexBatch(ctx context.Context, repos []*model.Repository) int {
	f.indexed = len(repos)
	return f.indexed
}

func newTestServer(store *fakeStore, syncEngine *fakeSync, searchEngine *fakeSearch, rec *fakeRecommend, g *fakeGraph, vi *fakeVectorIndex, emb *fakeEmbedder, vec *fakeVectorizer) http.Handler {
	return NewRouter(Deps{
		Store: store, Sync: syncEngine, Search: searchEngine, Recommend: rec,
		Graph: g, VectorIndex: vi, Embedder: emb, Vectorizer: vec,
	})
}

func emptyDeps() (*fakeStore, *fakeSync, *fakeSearch, *fakeRecommend, *fakeGraph, *fakeVectorIndex, *fakeEmbedder, *fakeVectorizer) {
	return &fakeStore{repos: map[string]*model.Repository{}}, &fakeSync{}, &fakeSearch{}, &fakeRecommend{}, &fakeGraph{}, &fakeVectorIndex{}, &fakeEmbedder{}, &fakeVectorizer{}
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEveryResponseCarriesARequestID(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestSearchRequiresNonEmptyQuery(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperr.InputInvalid), body.Error)
}

func TestSearchReturnsHitsFromEngine(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	sr.hits = []search.HybridHit{{Repository: &model.Repository{Owner: "acme", Name: "widget"}, Final: 0.9}}
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=widget", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "widget")
}

func TestSearchIncludesRelatedWhenRequested(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	sr.hits = []search.HybridHit{{Repository: &model.Repository{Owner: "acme", Name: "widget"}}}
	rc.recs = []recommend.Recommendation{{Repository: &model.Repository{Owner: "acme", Name: "gadget"}}}
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=widget&include_related=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gadget")
}

func TestSearchMapsEngineErrorKindToStatus(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	sr.err = apperr.New(apperr.EmbedderUnavailable, "embedder down")
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=widget", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecommendationsAppliesExcludeAndSemanticFlags(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	rc.recs = []recommend.Recommendation{{Repository: &model.Repository{Owner: "acme", Name: "gadget"}}}
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations/acme/widget?exclude_repos=acme/other&include_semantic=false", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gadget")
	assert.Equal(t, map[string]bool{"acme/other": true}, rc.lastExclude)
	assert.False(t, rc.lastIncludeSemantic)
}

func TestSyncManualDispatchesBackgroundJobWithRequestedMode(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	se.syncCalled = make(chan model.SyncMode, 1)
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/manual?full_sync=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case mode := <-se.syncCalled:
		assert.Equal(t, model.SyncFull, mode)
	case <-time.After(time.Second):
		t.Fatal("background sync was not dispatched")
	}
}

func TestSyncRepoReanalyzeReturns404WhenNotFound(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	se.reanalyzeErr = apperr.New(apperr.NotFound, "repository not found: acme/widget")
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/repo/acme/widget/reanalyze", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "acme/widget", se.reanalyzedFor)
}

func TestGraphNodeEdgesSortsByWeightDescendingAndRespectsLimit(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	store.edges = []model.GraphEdge{
		{Source: "acme/widget", Target: "acme/a", Kind: model.EdgeAuthor, Weight: 0.2},
		{Source: "acme/widget", Target: "acme/b", Kind: model.EdgeAuthor, Weight: 0.9},
	}
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/graph/nodes/acme/widget/edges?limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "acme/b")
	assert.NotContains(t, body, "acme/a")
}

func TestGraphNodeRelatedEnrichesNeighborsFromStore(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	store.repos["acme/gadget"] = &model.Repository{Owner: "acme", Name: "gadget"}
	store.edges = []model.GraphEdge{
		{Source: "acme/widget", Target: "acme/gadget", Kind: model.EdgeAuthor, Weight: 1.0},
		{Source: "acme/widget", Target: "acme/missing", Kind: model.EdgeAuthor, Weight: 0.5},
	}
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/graph/nodes/acme/widget/related", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "gadget")
	assert.NotContains(t, body, "missing")
}

func TestGraphSemanticRebuildDispatchesWithOverrides(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodPost, "/api/graph/semantic-edges/rebuild?top_k=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestVectorStatusReportsHealthAndCounts(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	store.liveCount = 10
	vi.count = 7
	emb.healthy = true
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodGet, "/api/vector/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
	assert.EqualValues(t, 7, body["indexed_count"])
	assert.EqualValues(t, 10, body["total_count"])
}

func TestVectorReindexDispatchesBackgroundBatch(t *testing.T) {
	store, se, sr, rc, g, vi, emb, vec := emptyDeps()
	store.repos["acme/widget"] = &model.Repository{Owner: "acme", Name: "widget"}
	router := newTestServer(store, se, sr, rc, g, vi, emb, vec)

	req := httptest.NewRequest(http.MethodPost, "/api/vector/reindex", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestFiltersFromQueryParsesAllFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=x&languages=Go,Rust&min_stars=5&owner_type=org&is_active=true&exclude_archived=true", nil)
	filters := filtersFromQuery(req)

	assert.Equal(t, []string{"Go", "Rust"}, filters.Languages)
	assert.Equal(t, 5, filters.MinStars)
	assert.Equal(t, model.OwnerOrg, filters.OwnerType)
	require.NotNil(t, filters.IsActive)
	assert.True(t, *filters.IsActive)
	assert.True(t, filters.ExcludeArchived)
}

func TestWriteErrorMapsKindsToStatusCodes(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.InputInvalid:        http.StatusBadRequest,
		apperr.NotFound:            http.StatusNotFound,
		apperr.Conflict:            http.StatusConflict,
		apperr.RemoteFatal:         http.StatusBadGateway,
		apperr.EmbedderUnavailable: http.StatusServiceUnavailable,
		apperr.StoreUnavailable:    http.StatusInternalServerError,
		apperr.Cancelled:           499,
		apperr.Internal:            http.StatusInternalServerError,
	}
	for kind, status := range cases {
		w := httptest.NewRecorder()
		writeError(w, apperr.New(kind, "boom"))
		assert.Equal(t, status, w.Code, "kind=%s", kind)
		assert.True(t, strings.Contains(w.Body.String(), string(kind)))
	}
}
