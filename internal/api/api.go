// Package api implements C11: the thin HTTP boundary over the components
// above. It validates inputs, rejects malformed requests with 4xx, dispatches
// to the component capabilities, and encodes results as JSON, mapping error
// kinds per the shared apperr taxonomy. Grounded on the teacher's
// internal/auth/antigravity/server.go for the http.Server lifecycle
// (ListenAndServe in a goroutine, context-bounded graceful Shutdown) and on
// go-chi/chi + go-chi/cors for routing and CORS, the idiomatic pairing for a
// small Go HTTP service in this corpus.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"starbase/internal/apperr"
	"starbase/internal/logging"
	"starbase/internal/model"
	"starbase/internal/recommend"
	"starbase/internal/search"
	"starbase/internal/sync"
)

// Store is the read-path persistence capability C11 depends on (C1).
type Store interface {
	CountLive() (int, error)
	CountPendingUpdate(since time.Time) (int, error)
	ListHistory(limit int) ([]*model.HistoryEntry, error)
	GetRepository(fullName string) (*model.Repository, error)
	EdgesFor(fullName string, kinds ...model.EdgeKind) ([]model.GraphEdge, error)
	AllLive() ([]*model.Repository, error)
}

// SyncEngine is the capability C11 depends on (C7).
type SyncEngine interface {
	Sync(ctx context.Context, mode model.SyncMode) (*sync.Result, error)
	Reanalyze(ctx context.Context, fullName string) error
}

// SearchEngine is the capability C11 depends on (C8).
type SearchEngine interface {
	Search(ctx context.Context, query string, filters model.Filters, limit, topK int) ([]search.HybridHit, error)
}

// RecommendEngine is the capability C11 depends on (C9).
type RecommendEngine interface {
	Recommend(ctx context.Context, fullName string, limit int, includeSemantic bool, exclude map[string]bool) ([]recommend.Recommendation, error)
}

// GraphEngine is the capability C11 depends on (C6).
type GraphEngine interface {
	RebuildAll() error
	RebuildSemanticAll(ctx context.Context, topK int, minSimilarity float64) error
}

// VectorIndex is the capability C11 depends on (C4).
type VectorIndex interface {
	Count() (int, error)
}

// Embedder is the capability C11 depends on (C3).
type Embedder interface {
	Health(ctx context.Context) bool
}

// Vectorizer is the capability C11 depends on (C5), used by the manual
// reindex trigger.
type Vectorizer interface {
	IndexBatch(ctx context.Context, repos []*model.Repository) int
}

// Deps bundles every collaborator the HTTP surface dispatches to.
type Deps struct {
	Store       Store
	Sync        SyncEngine
	Search      SearchEngine
	Recommend   RecommendEngine
	Graph       GraphEngine
	VectorIndex VectorIndex
	Embedder    Embedder
	Vectorizer  Vectorizer

	// CORSOrigins lists allowed CORS origins. Empty allows all origins,
	// matching a single-user local deployment's default posture.
	CORSOrigins []string
}

type server struct {
	deps Deps
}

// NewRouter builds the chi router implementing every endpoint in the
// external HTTP surface.
func NewRouter(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sync/status", s.handleSyncStatus)
		r.Post("/sync/manual", s.handleSyncManual)
		r.Get("/sync/history", s.handleSyncHistory)
		r.Post("/sync/repo/{owner}/{name}/reanalyze", s.handleSyncRepoReanalyze)

		r.Get("/search", s.handleSearch)
		r.Get("/recommendations/{owner}/{name}", s.handleRecommendations)

		r.Post("/graph/rebuild", s.handleGraphRebuild)
		r.Post("/graph/semantic-edges/rebuild", s.handleGraphSemanticRebuild)
		r.Get("/graph/nodes/{owner}/{name}/edges", s.handleGraphNodeEdges)
		r.Get("/graph/nodes/{owner}/{name}/related", s.handleGraphNodeRelated)

		r.Get("/vector/status", s.handleVectorStatus)
		r.Post("/vector/reindex", s.handleVectorReindex)
	})

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)
		logging.APIDebug("[%s] %s %s (%v)", requestID, r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	liveCount, err := s.deps.Store.CountLive()
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := s.deps.Store.CountPendingUpdate(time.Now().Add(-24 * time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.deps.Store.ListHistory(1)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"live_count":           liveCount,
		"pending_update_count": pending,
	}
	if len(history) > 0 {
		resp["last_sync"] = history[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSyncManual(w http.ResponseWriter, r *http.Request) {
	mode := model.SyncIncremental
	if boolParam(r, "full_sync") {
		mode = model.SyncFull
	}
	if boolParam(r, "reanalyze") {
		mode = model.SyncFullReanalyze
	}

	go func() {
		if _, err := s.deps.Sync.Sync(context.Background(), mode); err != nil {
			logging.API("background sync (mode=%s) failed: %v", mode, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "started", "mode": mode})
}

func (s *server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 20)
	history, err := s.deps.Store.ListHistory(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *server) handleSyncRepoReanalyze(w http.ResponseWriter, r *http.Request) {
	fullName := ownerName(r)
	if err := s.deps.Sync.Reanalyze(r.Context(), fullName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued", "repo": fullName})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, apperr.New(apperr.InputInvalid, "q must not be empty"))
		return
	}

	filters := filtersFromQuery(r)
	limit := intParam(r, "limit", 20)

	hits, err := s.deps.Search.Search(r.Context(), q, filters, limit, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"results": hits}

	if boolParam(r, "include_related") && len(hits) > 0 {
		related, err := s.deps.Recommend.Recommend(r.Context(), hits[0].Repository.FullName(), limit, true, nil)
		if err == nil {
			resp["related"] = related
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	fullName := ownerName(r)
	limit := intParam(r, "limit", 10)
	includeSemantic := r.URL.Query().Get("include_semantic") != "false"

	exclude := map[string]bool{}
	if csv := r.URL.Query().Get("exclude_repos"); csv != "" {
		for _, name := range strings.Split(csv, ",") {
			exclude[strings.TrimSpace(name)] = true
		}
	}

	recs, err := s.deps.Recommend.Recommend(r.Context(), fullName, limit, includeSemantic, exclude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": recs})
}

func (s *server) handleGraphRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Graph.RebuildAll(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *server) handleGraphSemanticRebuild(w http.ResponseWriter, r *http.Request) {
	topK := intParam(r, "top_k", 0)
	minSimilarity := floatParam(r, "min_similarity", 0)

	go func() {
		if err := s.deps.Graph.RebuildSemanticAll(context.Background(), topK, minSimilarity); err != nil {
			logging.API("background semantic-edge rebuild failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *server) handleGraphNodeEdges(w http.ResponseWriter, r *http.Request) {
	fullName := ownerName(r)
	kinds := edgeKindsFromQuery(r)
	limit := intParam(r, "limit", 50)

	edges, err := s.deps.Store.EdgesFor(fullName, kinds...)
	if err != nil {
		writeError(w, err)
		return
	}
	edges = sortEdgesByWeight(edges)
	if len(edges) > limit {
		edges = edges[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": edges})
}

func (s *server) handleGraphNodeRelated(w http.ResponseWriter, r *http.Request) {
	fullName := ownerName(r)
	limit := intParam(r, "limit", 10)

	edges, err := s.deps.Store.EdgesFor(fullName)
	if err != nil {
		writeError(w, err)
		return
	}
	edges = sortEdgesByWeight(edges)

	type related struct {
		Repository *model.Repository `json:"repository"`
		Kind        model.EdgeKind    `json:"kind"`
		Weight      float64           `json:"weight"`
	}
	var out []related
	for _, e := range edges {
		if len(out) >= limit {
			break
		}
		neighbor := e.Target
		if e.Source != fullName {
			neighbor = e.Source
		}
		repo, err := s.deps.Store.GetRepository(neighbor)
		if err != nil || repo == nil {
			continue
		}
		out = append(out, related{Repository: repo, Kind: e.Kind, Weight: e.Weight})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

func (s *server) handleVectorStatus(w http.ResponseWriter, r *http.Request) {
	indexed, err := s.deps.VectorIndex.Count()
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := s.deps.Store.CountLive()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":       s.deps.Embedder.Health(r.Context()),
		"indexed_count": indexed,
		"total_count":   total,
	})
}

func (s *server) handleVectorReindex(w http.ResponseWriter, r *http.Request) {
	go func() {
		repos, err := s.deps.Store.AllLive()
		if err != nil {
			logging.API("background reindex: listing live repositories failed: %v", err)
			return
		}
		n := s.deps.Vectorizer.IndexBatch(context.Background(), repos)
		logging.API("background reindex completed: %d/%d repositories indexed", n, len(repos))
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func ownerName(r *http.Request) string {
	return chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")
}

func boolParam(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func intParam(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func floatParam(r *http.Request, key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func edgeKindsFromQuery(r *http.Request) []model.EdgeKind {
	csv := r.URL.Query().Get("edge_types")
	if csv == "" {
		return nil
	}
	var kinds []model.EdgeKind
	for _, k := range strings.Split(csv, ",") {
		kinds = append(kinds, model.EdgeKind(strings.TrimSpace(k)))
	}
	return kinds
}

func filtersFromQuery(r *http.Request) model.Filters {
	q := r.URL.Query()
	filters := model.Filters{
		ExcludeArchived: boolParam(r, "exclude_archived"),
	}
	if languages := q.Get("languages"); languages != "" {
		filters.Languages = strings.Split(languages, ",")
	}
	if minStars, err := strconv.Atoi(q.Get("min_stars")); err == nil {
		filters.MinStars = minStars
	}
	if ownerType := q.Get("owner_type"); ownerType != "" {
		filters.OwnerType = model.OwnerType(ownerType)
	}
	if v, err := strconv.ParseBool(q.Get("is_active")); err == nil {
		filters.IsActive = &v
	}
	if v, err := strconv.ParseBool(q.Get("is_new")); err == nil {
		filters.IsNew = &v
	}
	return filters
}

func sortEdgesByWeight(edges []model.GraphEdge) []model.GraphEdge {
	sorted := make([]model.GraphEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
	return sorted
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.API("encoding JSON response failed: %v", err)
	}
}

type errorBody struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{
		Error:   string(kind),
		Message: err.Error(),
	})
}

// statusForKind maps the error taxonomy to HTTP status codes per §7.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.InputInvalid:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.RemoteFatal:
		return http.StatusBadGateway
	case apperr.EmbedderUnavailable:
		return http.StatusServiceUnavailable
	case apperr.StoreUnavailable:
		return http.StatusInternalServerError
	case apperr.Cancelled:
		return 499
	case apperr.RemoteTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
