//go:build cgo

package vectorindex

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

const backendName = "sqlite-vec"

func init() {
	vec.Auto()
}

// openBackend opens a SQLite database with the vec0 virtual table wired up
// for ANN cosine search, and a companion metadata table keyed by the
// caller-supplied string id. Grounded on the teacher's
// internal/store/init_vec.go registration plus its single-connection
// discipline from local_core.go.
func openBackend(path string, dim int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS vector_meta (
			id TEXT PRIMARY KEY,
			rowid_ref INTEGER UNIQUE,
			metadata TEXT NOT NULL DEFAULT '{}',
			text TEXT NOT NULL DEFAULT ''
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(
			embedding float[%d] distance_metric=cosine
		);
	`, dim)
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

func upsertVector(db *sql.DB, id string, vector []float32, metadata, text string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existingRowID sql.NullInt64
	err = tx.QueryRow(`SELECT rowid_ref FROM vector_meta WHERE id = ?`, id).Scan(&existingRowID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	blob, err := vec.SerializeFloat32(vector)
	if err != nil {
		return err
	}

	var rowID int64
	if existingRowID.Valid {
		rowID = existingRowID.Int64
		if _, err := tx.Exec(`DELETE FROM vec_items WHERE rowid = ?`, rowID); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO vec_items (rowid, embedding) VALUES (?, ?)`, rowID, blob); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE vector_meta SET metadata = ?, text = ? WHERE id = ?`, metadata, text, id); err != nil {
			return err
		}
	} else {
		res, err := tx.Exec(`INSERT INTO vec_items (embedding) VALUES (?)`, blob)
		if err != nil {
			return err
		}
		rowID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO vector_meta (id, rowid_ref, metadata, text) VALUES (?, ?, ?, ?)`, id, rowID, metadata, text); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func deleteVector(db *sql.DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var rowID int64
	err = tx.QueryRow(`SELECT rowid_ref FROM vector_meta WHERE id = ?`, id).Scan(&rowID)
	if err == sql.ErrNoRows {
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM vec_items WHERE rowid = ?`, rowID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM vector_meta WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func queryVectors(db *sql.DB, vector []float32, k int, where map[string]bool) ([]Match, error) {
	blob, err := vec.SerializeFloat32(vector)
	if err != nil {
		return nil, err
	}

	// Over-fetch when a where-set is supplied since vec0 can't filter by an
	// arbitrary id set directly; the surplus is trimmed in Go below.
	fetchK := k
	if len(where) > 0 {
		fetchK = k + len(where) + 10
	}

	rows, err := db.Query(`
		SELECT m.id, v.distance, m.metadata, m.text
		FROM vec_items v
		JOIN vector_meta m ON m.rowid_ref = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance ASC
	`, blob, fetchK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var id, metaJSON, text string
		var distance float64
		if err := rows.Scan(&id, &distance, &metaJSON, &text); err != nil {
			return nil, err
		}
		if len(where) > 0 && !where[id] {
			continue
		}
		out = append(out, Match{
			ID:         id,
			Similarity: 1 - distance,
			Metadata:   decodeMeta(metaJSON),
			Text:       text,
		})
		if len(out) >= k {
			break
		}
	}
	return out, rows.Err()
}

// getVector reads back a stored embedding by deserializing vec0's packed
// little-endian float32 blob, the format vec.SerializeFloat32 produces.
func getVector(db *sql.DB, id string) ([]float32, bool, error) {
	var blob []byte
	err := db.QueryRow(`
		SELECT v.embedding
		FROM vec_items v
		JOIN vector_meta m ON m.rowid_ref = v.rowid
		WHERE m.id = ?
	`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, true, nil
}

func countVectors(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM vector_meta`).Scan(&n)
	return n, err
}

func clearVectors(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM vec_items`); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM vector_meta`)
	return err
}
