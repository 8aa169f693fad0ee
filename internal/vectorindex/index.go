// Package vectorindex implements C4: a persistent cosine-similarity index
// keyed by repository identifier. Two backends are selected at compile time
// by build tag — driver_cgo.go wires github.com/asg017/sqlite-vec-go-bindings's
// vec0 virtual table for true ANN search when cgo is available (grounded on
// the teacher's internal/store/init_vec.go); driver_nocgo.go falls back to
// modernc.org/sqlite with brute-force cosine similarity computed in Go
// (grounded on the teacher's internal/embedding/engine.go CosineSimilarity
// and FindTopK). Both present the same Index API, so callers are unaware of
// which backend is active.
package vectorindex

import (
	"database/sql"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"starbase/internal/apperr"
	"starbase/internal/logging"
)

// Match is one query result: a repository id, its similarity to the query
// vector in [0,1], and the metadata/text stored alongside its vector.
type Match struct {
	ID         string
	Similarity float64
	Metadata   map[string]interface{}
	Text       string
}

// Index is the C4 capability.
type Index struct {
	db  *sql.DB
	dim int
}

// Open creates or reopens the vector index rooted at dir, sized for
// dim-wide vectors. dim must stay consistent across the index's lifetime;
// the backend's schema is created on first open.
func Open(dir string, dim int) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "creating vector index directory", err)
	}
	path := filepath.Join(dir, "vectors.db")

	db, err := openBackend(path, dim)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "opening vector index backend", err)
	}

	idx := &Index{db: db, dim: dim}
	logging.Vector("vector index opened at %s (dim=%d, backend=%s)", path, dim, backendName)
	return idx, nil
}

// Close releases the backing database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces the vector for id.
func (idx *Index) Upsert(id string, vector []float32, metadata map[string]interface{}, text string) error {
	if len(vector) == 0 {
		return apperr.New(apperr.InputInvalid, "vector must not be empty")
	}
	meta, err := json.Marshal(nonNilMap(metadata))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshaling vector metadata", err)
	}
	if err := upsertVector(idx.db, id, vector, string(meta), text); err != nil {
		return apperr.Wrap(apperr.Internal, "upserting vector", err)
	}
	return nil
}

// UpsertBatch upserts several vectors, continuing past individual failures
// and returning the count that succeeded.
func (idx *Index) UpsertBatch(ids []string, vectors [][]float32, metadatas []map[string]interface{}, texts []string) (int, error) {
	count := 0
	for i := range ids {
		if err := idx.Upsert(ids[i], vectors[i], metadatas[i], texts[i]); err != nil {
			logging.Vector("batch upsert failed for %s: %v", ids[i], err)
			continue
		}
		count++
	}
	return count, nil
}

// Delete removes the vector for id, if present.
func (idx *Index) Delete(id string) error {
	if err := deleteVector(idx.db, id); err != nil {
		return apperr.Wrap(apperr.Internal, "deleting vector", err)
	}
	return nil
}

// Query returns the k nearest vectors to the query vector by cosine
// similarity, descending. where restricts results to the ids it contains
// when non-empty; a nil or empty where applies no restriction.
func (idx *Index) Query(vector []float32, k int, where map[string]bool) ([]Match, error) {
	if len(vector) == 0 {
		return nil, apperr.New(apperr.InputInvalid, "query vector must not be empty")
	}
	if k <= 0 {
		k = 10
	}
	matches, err := queryVectors(idx.db, vector, k, where)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "querying vector index", err)
	}
	return matches, nil
}

// Get returns the stored vector for id, and whether it was found. Used by
// semantic edge discovery, which needs a repository's own vector before it
// can query for neighbors.
func (idx *Index) Get(id string) ([]float32, bool, error) {
	vector, ok, err := getVector(idx.db, id)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Internal, "reading vector", err)
	}
	return vector, ok, nil
}

// Count returns the number of indexed vectors.
func (idx *Index) Count() (int, error) {
	n, err := countVectors(idx.db)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "counting vector index", err)
	}
	return n, nil
}

// Clear removes every vector from the index.
func (idx *Index) Clear() error {
	if err := clearVectors(idx.db); err != nil {
		return apperr.Wrap(apperr.Internal, "clearing vector index", err)
	}
	return nil
}

func decodeMeta(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func nonNilMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// cosineSimilarity is shared by the nocgo backend's brute-force scan; kept
// here so both backend files can reference one implementation.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
}
