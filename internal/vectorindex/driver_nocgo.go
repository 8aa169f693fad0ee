//go:build !cgo

package vectorindex

import (
	"database/sql"
	"encoding/json"
	"sort"

	_ "modernc.org/sqlite"
)

const backendName = "brute-force"

// openBackend opens a pure-Go SQLite database storing vectors as JSON
// arrays; similarity search is a brute-force cosine scan in Go, grounded
// on the teacher's internal/embedding/engine.go CosineSimilarity/FindTopK.
// Used when cgo (and so sqlite-vec's ANN virtual table) is unavailable.
func openBackend(path string, dim int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vector_meta (
			id TEXT PRIMARY KEY,
			embedding TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			text TEXT NOT NULL DEFAULT ''
		)
	`)
	return db, err
}

func upsertVector(db *sql.DB, id string, vector []float32, metadata, text string) error {
	blob, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO vector_meta (id, embedding, metadata, text) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata, text = excluded.text
	`, id, string(blob), metadata, text)
	return err
}

func deleteVector(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM vector_meta WHERE id = ?`, id)
	return err
}

func queryVectors(db *sql.DB, vector []float32, k int, where map[string]bool) ([]Match, error) {
	rows, err := db.Query(`SELECT id, embedding, metadata, text FROM vector_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Match
	for rows.Next() {
		var id, embJSON, metaJSON, text string
		if err := rows.Scan(&id, &embJSON, &metaJSON, &text); err != nil {
			return nil, err
		}
		if len(where) > 0 && !where[id] {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		all = append(all, Match{
			ID:         id,
			Similarity: cosineSimilarity(vector, vec),
			Metadata:   decodeMeta(metaJSON),
			Text:       text,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

func getVector(db *sql.DB, id string) ([]float32, bool, error) {
	var embJSON string
	err := db.QueryRow(`SELECT embedding FROM vector_meta WHERE id = ?`, id).Scan(&embJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vector []float32
	if err := json.Unmarshal([]byte(embJSON), &vector); err != nil {
		return nil, false, err
	}
	return vector, true, nil
}

func countVectors(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM vector_meta`).Scan(&n)
	return n, err
}

func clearVectors(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM vector_meta`)
	return err
}
