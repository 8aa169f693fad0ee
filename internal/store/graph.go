package store

import (
	"encoding/json"
	"strings"

	"starbase/internal/apperr"
	"starbase/internal/model"
)

// PutEdges batch-writes edges inside a single transaction, replacing any
// edge sharing the same (source, target, kind) primary key. Used by C6's
// rebuild_all and refresh_semantic_for.
func (s *Store) PutEdges(edges []model.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "beginning edge batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO graph_edges (source, target, kind, weight, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, target, kind) DO UPDATE SET
			weight = excluded.weight,
			metadata = excluded.metadata
	`)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "preparing edge upsert", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		meta, err := json.Marshal(nonNilMeta(e.Metadata))
		if err != nil {
			return apperr.Wrap(apperr.Internal, "marshaling edge metadata", err)
		}
		weight := clip01(e.Weight)
		if _, err := stmt.Exec(e.Source, e.Target, string(e.Kind), weight, string(meta)); err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "writing edge", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "committing edge batch", err)
	}
	return nil
}

// DeleteEdgesByKind removes every edge of the given kinds, used before a
// non-semantic rebuild so stale author/ecosystem/collection edges don't
// linger once their source data has moved on.
func (s *Store) DeleteEdgesByKind(kinds ...model.EdgeKind) error {
	if len(kinds) == 0 {
		return nil
	}
	placeholders := make([]string, len(kinds))
	args := make([]interface{}, len(kinds))
	for i, k := range kinds {
		placeholders[i] = "?"
		args[i] = string(k)
	}
	query := `DELETE FROM graph_edges WHERE kind IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := s.db.Exec(query, args...); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "deleting edges by kind", err)
	}
	return nil
}

// DeleteSemanticEdgesFor removes every semantic edge touching fullName as
// either endpoint, ahead of refresh_semantic_for recomputing them.
func (s *Store) DeleteSemanticEdgesFor(fullName string) error {
	_, err := s.db.Exec(
		`DELETE FROM graph_edges WHERE kind = ? AND (source = ? OR target = ?)`,
		string(model.EdgeSemantic), fullName, fullName,
	)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "deleting semantic edges", err)
	}
	return nil
}

// EdgesFor returns every edge touching fullName as either endpoint,
// optionally restricted to the given kinds (all kinds when empty).
func (s *Store) EdgesFor(fullName string, kinds ...model.EdgeKind) ([]model.GraphEdge, error) {
	query := `SELECT source, target, kind, weight, metadata FROM graph_edges WHERE (source = ? OR target = ?)`
	args := []interface{}{fullName, fullName}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += ` AND kind IN (` + strings.Join(placeholders, ",") + `)`
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "querying edges", err)
	}
	defer rows.Close()

	var out []model.GraphEdge
	for rows.Next() {
		var e model.GraphEdge
		var kind, meta string
		if err := rows.Scan(&e.Source, &e.Target, &kind, &e.Weight, &meta); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning edge row", err)
		}
		e.Kind = model.EdgeKind(kind)
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, apperr.Wrap(apperr.Internal, "unmarshaling edge metadata", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TouchEdgesComputed records that edges for fullName were just (re)computed.
func (s *Store) TouchEdgesComputed(fullName string) error {
	_, err := s.db.Exec(`
		INSERT INTO graph_status (repo_full_name, edges_computed_at)
		VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(repo_full_name) DO UPDATE SET edges_computed_at = CURRENT_TIMESTAMP
	`, fullName)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "touching edges_computed_at", err)
	}
	return nil
}

func nonNilMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func clip01(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
