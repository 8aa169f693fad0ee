// Command starbased runs the starbase server: it syncs starred
// repositories from the remote client, vectorizes and indexes them,
// computes graph edges, and serves hybrid search, recommendations, and
// sync control over HTTP. Grounded on the teacher's composition-root
// wiring style (a single main assembling every collaborator before
// blocking on signal handling), generalized from the teacher's CLI
// entrypoint shape to a long-running server process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"starbase/internal/api"
	"starbase/internal/config"
	"starbase/internal/embedding"
	"starbase/internal/graph"
	"starbase/internal/logging"
	"starbase/internal/recommend"
	"starbase/internal/remote"
	"starbase/internal/scheduler"
	"starbase/internal/search"
	"starbase/internal/store"
	"starbase/internal/sync"
	"starbase/internal/vectorindex"
	"starbase/internal/vectorize"
)

// vectorDimension matches the embedding model's output width
// (embeddinggemma, the default EMBEDDER_MODEL).
const vectorDimension = 768

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	if err := logging.Initialize(cfg.LogDebug); err != nil {
		println("failed to initialize logging:", err.Error())
		return 1
	}
	defer logging.Flush()
	if err := cfg.Validate(); err != nil {
		logging.Boot("invalid configuration: %v", err)
		return 1
	}

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		logging.Boot("opening store failed (migration or file error): %v", err)
		return 1
	}
	defer db.Close()

	vectorIdx, err := vectorindex.Open(cfg.VectorPath, vectorDimension)
	if err != nil {
		logging.Boot("opening vector index failed: %v", err)
		return 1
	}

	embedder := embedding.New(cfg.EmbedderURL, cfg.EmbedderModel, cfg.EmbedderBatchSize)
	remoteClient := remote.New(cfg.RemoteToken, cfg.RemoteMaxRetries, cfg.RemoteRateLimitRPS)
	vectorizer := vectorize.New(embedder, vectorIdx, cfg.ReadmeMaxChars)
	graphEngine := graph.New(db, vectorIdx, graph.WithSemanticParams(cfg.SemanticTopK, cfg.SemanticMinSimilarity))
	syncEngine := sync.New(db, remoteClient, vectorizer, graphEngine, nil)
	searchEngine := search.New(db, embedder, vectorIdx, search.WithWeights(cfg.FTSWeight, cfg.SemanticWeight))
	recommendEngine := recommend.New(db, vectorIdx, recommend.WithWeights(cfg.GraphWeight, 1-cfg.GraphWeight))

	sched := scheduler.New(syncEngine, scheduler.WithDailySchedule(cfg.SyncCronDaily), scheduler.WithWeeklySchedule(cfg.SyncCronWeekly))
	if err := sched.Start(); err != nil {
		logging.Boot("starting scheduler failed: %v", err)
		return 1
	}
	defer sched.Stop()

	router := api.NewRouter(api.Deps{
		Store:       db,
		Sync:        syncEngine,
		Search:      searchEngine,
		Recommend:   recommendEngine,
		Graph:       graphEngine,
		VectorIndex: vectorIdx,
		Embedder:    embedder,
		Vectorizer:  vectorizer,
	})

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	serveErr := make(chan error, 1)
	go func() {
		logging.Boot("listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logging.Boot("shutdown signal received")
	case err := <-serveErr:
		logging.Boot("http server failed to bind: %v", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Boot("graceful shutdown failed: %v", err)
	}

	return 0
}
