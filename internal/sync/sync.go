// Package sync implements C7: reconciles the remote starred-repository set
// against the local store, classifies per-repository drift, applies the
// minimal update each bucket calls for, records run history, and triggers
// C5/C6 for anything that changed. Grounded on the teacher's
// internal/shards/researcher orchestration for the "fetch, diff, act,
// record history" shape, generalized from research-task reconciliation to
// star-set reconciliation.
package sync

import (
	"context"
	"sync"
	"time"

	"starbase/internal/apperr"
	"starbase/internal/logging"
	"starbase/internal/model"
)

// Store is the persistence capability C7 depends on (C1).
type Store interface {
	AllLive() ([]*model.Repository, error)
	GetRepository(fullName string) (*model.Repository, error)
	UpsertRepository(r *model.Repository) error
	UpdateRepositoryFields(fullName string, fields map[string]interface{}) error
	SoftDelete(fullName string) error
	BeginHistory(kind model.SyncMode, startedAt time.Time) (int64, error)
	CompleteHistory(id int64, added, updated, deleted, failed int, errMsg string) error
}

// RemoteClient is the upstream-fetch capability C7 depends on (C2).
type RemoteClient interface {
	FetchStarred(ctx context.Context, since time.Time, yield func(model.RemoteRepo) error) error
	FetchReadme(ctx context.Context, owner, name string, pushedAt time.Time) (string, error)
}

// Vectorizer is the embedding-drive capability C7 depends on (C5).
type Vectorizer interface {
	IndexRepository(ctx context.Context, r *model.Repository) bool
	RemoveRepository(fullName string) error
	Summarize(rawReadme string) string
}

// GraphEngine is the edge-recompute capability C7 depends on (C6).
type GraphEngine interface {
	RebuildAll() error
	RefreshSemanticFor(ctx context.Context, fullName string) error
}

// Analyzer is the AI re-analysis hook §4.7 references ("enqueue for
// analysis") without specifying it as a standalone component. A no-op
// default satisfies the reconciliation contract when no LLM analysis
// backend is configured; a real one can be swapped in without touching
// reconciliation logic.
type Analyzer interface {
	Analyze(ctx context.Context, r *model.Repository) error
}

// NoopAnalyzer does nothing and returns nil; it derives no analysis data.
type NoopAnalyzer struct{}

// Analyze implements Analyzer.
func (NoopAnalyzer) Analyze(ctx context.Context, r *model.Repository) error { return nil }

// Result summarizes one sync run's outcome.
type Result struct {
	HistoryID int64
	Added     int
	Updated   int
	Deleted   int
	Failed    int
}

// Engine is the C7 capability.
type Engine struct {
	store    Store
	remote   RemoteClient
	vector   Vectorizer
	graph    GraphEngine
	analyzer Analyzer

	mu runLock

	// runAsync dispatches post-reconciliation embedding/graph work so it
	// never blocks the sync critical path (spec §4.7). Defaults to a bare
	// goroutine; tests substitute a synchronous runner for determinism.
	runAsync func(func())
}

// runLock wraps sync.Mutex's TryLock so a second concurrent sync call can
// fail fast with apperr.Conflict rather than block, per the recorded Open
// Question decision.
type runLock struct {
	mu sync.Mutex
}

func (l *runLock) TryLock() bool { return l.mu.TryLock() }
func (l *runLock) Unlock()       { l.mu.Unlock() }

// New builds an Engine.
func New(store Store, remote RemoteClient, vector Vectorizer, graph GraphEngine, analyzer Analyzer) *Engine {
	if analyzer == nil {
		analyzer = NoopAnalyzer{}
	}
	return &Engine{
		store:    store,
		remote:   remote,
		vector:   vector,
		graph:    graph,
		analyzer: analyzer,
		runAsync: func(fn func()) { go fn() },
	}
}

// Sync runs one reconciliation pass. Only one sync may run at a time; a
// concurrent call returns an apperr.Conflict error immediately.
func (e *Engine) Sync(ctx context.Context, mode model.SyncMode) (*Result, error) {
	if !e.mu.TryLock() {
		return nil, apperr.New(apperr.Conflict, "a sync is already running")
	}
	defer e.mu.Unlock()

	startedAt := time.Now().UTC()
	historyID, err := e.store.BeginHistory(mode, startedAt)
	if err != nil {
		return nil, err
	}

	result := &Result{HistoryID: historyID}
	var toReembed []*model.Repository

	runErr := e.reconcile(ctx, mode, result, &toReembed)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		logging.Sync("sync run %d failed: %v", historyID, runErr)
	}
	if err := e.store.CompleteHistory(historyID, result.Added, result.Updated, result.Deleted, result.Failed, errMsg); err != nil {
		logging.Sync("recording sync history for run %d failed: %v", historyID, err)
	}

	e.runPostSyncHooks(mode, toReembed)

	return result, runErr
}

// Reanalyze enqueues a single live repository for re-analysis, re-embedding,
// and a semantic-edge refresh, without running a full reconciliation pass.
// It does not participate in the single-sync-at-a-time lock: it touches one
// repository, not the whole local/remote diff.
func (e *Engine) Reanalyze(ctx context.Context, fullName string) error {
	r, err := e.store.GetRepository(fullName)
	if err != nil {
		return err
	}
	if r == nil {
		return apperr.New(apperr.NotFound, "repository not found: "+fullName)
	}

	if err := e.analyzer.Analyze(ctx, r); err != nil {
		logging.Sync("manual reanalysis of %s failed: %v", fullName, err)
	}

	e.runAsync(func() {
		e.vector.IndexRepository(context.Background(), r)
		if err := e.graph.RefreshSemanticFor(context.Background(), r.FullName()); err != nil {
			logging.Sync("post-reanalyze semantic refresh for %s failed: %v", r.FullName(), err)
		}
	})
	return nil
}

func (e *Engine) reconcile(ctx context.Context, mode model.SyncMode, result *Result, toReembed *[]*model.Repository) error {
	local, err := e.store.AllLive()
	if err != nil {
		return err
	}
	localByName := make(map[string]*model.Repository, len(local))
	for _, r := range local {
		localByName[r.FullName()] = r
	}

	since := time.Time{}
	if mode == model.SyncIncremental {
		since = earliestLastSynced(local)
	}

	remoteSeen := make(map[string]bool)
	fetchErr := e.remote.FetchStarred(ctx, since, func(rr model.RemoteRepo) error {
		remoteSeen[rr.FullName()] = true

		if l, ok := localByName[rr.FullName()]; ok {
			outcome := e.applyCommon(ctx, rr, l, mode)
			if outcome.updated {
				result.Updated++
			}
			if outcome.reembed != nil {
				*toReembed = append(*toReembed, outcome.reembed)
			}
			return nil
		}

		added, err := e.applyAdded(ctx, rr, mode)
		if err != nil {
			result.Failed++
			logging.Sync("adding %s failed: %v", rr.FullName(), err)
			return nil
		}
		result.Added++
		*toReembed = append(*toReembed, added)
		return nil
	})
	if fetchErr != nil {
		return fetchErr
	}

	for fullName := range localByName {
		if remoteSeen[fullName] {
			continue
		}
		if err := e.applyRemoved(fullName); err != nil {
			result.Failed++
			logging.Sync("removing %s failed: %v", fullName, err)
			continue
		}
		result.Deleted++
	}

	return nil
}

func (e *Engine) applyAdded(ctx context.Context, rr model.RemoteRepo, mode model.SyncMode) (*model.Repository, error) {
	now := time.Now().UTC()
	r := &model.Repository{
		Owner: rr.Owner, Name: rr.Name,
		Description:     rr.Description,
		PrimaryLanguage: rr.PrimaryLanguage,
		Topics:          rr.Topics,
		Homepage:        rr.Homepage,
		StargazerCount:  rr.StargazerCount,
		ForkCount:       rr.ForkCount,
		CreatedAt:       rr.CreatedAt,
		PushedAt:        rr.PushedAt,
		StarredAt:       rr.StarredAt,
		LastSyncedAt:    now,
		OwnerType:       rr.OwnerType,
		Archived:        rr.Archived,
		Visibility:      rr.Visibility,
		License:         rr.License,
	}

	if raw, err := e.remote.FetchReadme(ctx, rr.Owner, rr.Name, rr.PushedAt); err != nil {
		logging.Sync("fetching readme for %s failed: %v", rr.FullName(), err)
	} else {
		r.ReadmeSummary = e.vector.Summarize(raw)
	}

	if err := e.store.UpsertRepository(r); err != nil {
		return nil, err
	}
	if mode == model.SyncFullReanalyze {
		if err := e.analyzer.Analyze(ctx, r); err != nil {
			logging.Sync("analyzing %s failed: %v", r.FullName(), err)
		}
	}
	return r, nil
}

// commonOutcome reports what happened to a repository observed in both the
// remote and local sets: whether it counts as Updated in the sync result,
// and (non-nil only for light-B/heavy) the post-update repository record
// that needs re-embedding and a semantic-edge refresh.
type commonOutcome struct {
	updated bool
	reembed *model.Repository
}

func (e *Engine) applyCommon(ctx context.Context, rr model.RemoteRepo, local *model.Repository, mode model.SyncMode) commonOutcome {
	switch classify(rr, local) {
	case model.BucketNone:
		if err := e.store.UpdateRepositoryFields(local.FullName(), map[string]interface{}{
			"last_synced_at": time.Now().UTC(),
		}); err != nil {
			logging.Sync("touching last_synced_at for %s failed: %v", local.FullName(), err)
		}
		return commonOutcome{}

	case model.BucketLightA:
		fields := lightAFields(rr)
		fields["last_synced_at"] = time.Now().UTC()
		if err := e.store.UpdateRepositoryFields(local.FullName(), fields); err != nil {
			logging.Sync("applying light-a update to %s failed: %v", local.FullName(), err)
		}
		return commonOutcome{updated: true}

	case model.BucketLightB:
		return e.applyLightB(ctx, rr, local)

	case model.BucketHeavy:
		return e.applyHeavy(ctx, rr, local)
	}
	return commonOutcome{}
}

func (e *Engine) applyLightB(ctx context.Context, rr model.RemoteRepo, local *model.Repository) commonOutcome {
	fields := lightBFields(rr)
	fields["last_synced_at"] = time.Now().UTC()
	if err := e.store.UpdateRepositoryFields(local.FullName(), fields); err != nil {
		logging.Sync("applying light-b update to %s failed: %v", local.FullName(), err)
		return commonOutcome{}
	}

	if rr.PrimaryLanguage != local.PrimaryLanguage {
		if err := e.analyzer.Analyze(ctx, local); err != nil {
			logging.Sync("re-analyzing %s failed: %v", local.FullName(), err)
		}
	}

	updated := *local
	updated.Description = rr.Description
	updated.PrimaryLanguage = rr.PrimaryLanguage
	return commonOutcome{updated: true, reembed: &updated}
}

func (e *Engine) applyHeavy(ctx context.Context, rr model.RemoteRepo, local *model.Repository) commonOutcome {
	now := time.Now().UTC()
	updated := *local
	updated.Description = rr.Description
	updated.PrimaryLanguage = rr.PrimaryLanguage
	updated.Topics = rr.Topics
	updated.Homepage = rr.Homepage
	updated.StargazerCount = rr.StargazerCount
	updated.ForkCount = rr.ForkCount
	updated.PushedAt = rr.PushedAt
	updated.OwnerType = rr.OwnerType
	updated.Archived = rr.Archived
	updated.Visibility = rr.Visibility
	updated.License = rr.License
	updated.LastSyncedAt = now

	if raw, err := e.remote.FetchReadme(ctx, rr.Owner, rr.Name, rr.PushedAt); err != nil {
		logging.Sync("fetching readme for %s failed: %v", rr.FullName(), err)
	} else {
		updated.ReadmeSummary = e.vector.Summarize(raw)
	}

	if err := e.store.UpsertRepository(&updated); err != nil {
		logging.Sync("applying heavy update to %s failed: %v", rr.FullName(), err)
		return commonOutcome{}
	}

	updated.LastAnalyzedAt = now
	if err := e.analyzer.Analyze(ctx, &updated); err != nil {
		logging.Sync("re-analyzing %s failed: %v", rr.FullName(), err)
	}
	return commonOutcome{updated: true, reembed: &updated}
}

func (e *Engine) applyRemoved(fullName string) error {
	if err := e.store.SoftDelete(fullName); err != nil {
		return err
	}
	if err := e.vector.RemoveRepository(fullName); err != nil {
		logging.Sync("removing vector for %s failed: %v", fullName, err)
	}
	return nil
}

// runPostSyncHooks fires C5/C6 work for repositories needing re-embedding,
// and a full graph rebuild on full syncs, without blocking Sync's return.
// Re-embedding happens before the semantic-edge refresh for the same
// repository so the refresh sees the fresh vector.
func (e *Engine) runPostSyncHooks(mode model.SyncMode, toReembed []*model.Repository) {
	if mode != model.SyncIncremental {
		e.runAsync(func() {
			if err := e.graph.RebuildAll(); err != nil {
				logging.Sync("post-sync rebuild_all failed: %v", err)
			}
		})
	}

	for _, r := range toReembed {
		r := r
		e.runAsync(func() {
			e.vector.IndexRepository(context.Background(), r)
			if err := e.graph.RefreshSemanticFor(context.Background(), r.FullName()); err != nil {
				logging.Sync("post-sync semantic refresh for %s failed: %v", r.FullName(), err)
			}
		})
	}
}

func lightAFields(rr model.RemoteRepo) map[string]interface{} {
	return map[string]interface{}{
		"stargazer_count": rr.StargazerCount,
		"fork_count":      rr.ForkCount,
		"archived":        rr.Archived,
		"visibility":      rr.Visibility,
		"owner_type":      string(rr.OwnerType),
	}
}

func lightBFields(rr model.RemoteRepo) map[string]interface{} {
	return map[string]interface{}{
		"description":      rr.Description,
		"primary_language": rr.PrimaryLanguage,
	}
}

func earliestLastSynced(repos []*model.Repository) time.Time {
	var earliest time.Time
	for _, r := range repos {
		if earliest.IsZero() || r.LastSyncedAt.Before(earliest) {
			earliest = r.LastSyncedAt
		}
	}
	return earliest
}
