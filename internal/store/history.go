package store

import (
	"database/sql"
	"time"

	"starbase/internal/apperr"
	"starbase/internal/model"
)

// BeginHistory opens a new sync-history row with completed_at NULL and
// returns its id. The row is append-only: once closed by CompleteHistory it
// is never updated again (spec §4.7 history invariant).
func (s *Store) BeginHistory(kind model.SyncMode, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO sync_history (kind, started_at) VALUES (?, ?)`,
		string(kind), startedAt,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, "beginning sync history", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "reading sync history id", err)
	}
	return id, nil
}

// CompleteHistory closes a history row, freezing its counters. Called on
// both success and failure exits; errMsg is empty on success.
func (s *Store) CompleteHistory(id int64, added, updated, deleted, failed int, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE sync_history
		SET completed_at = CURRENT_TIMESTAMP, added = ?, updated = ?, deleted = ?, failed = ?, error_message = ?
		WHERE id = ?
	`, added, updated, deleted, failed, errMsg, id)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "completing sync history", err)
	}
	return nil
}

// ListHistory returns the most recent sync-history entries, newest first.
func (s *Store) ListHistory(limit int) ([]*model.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, started_at, completed_at, added, updated, deleted, failed, error_message
		FROM sync_history
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "listing sync history", err)
	}
	defer rows.Close()

	var out []*model.HistoryEntry
	for rows.Next() {
		var (
			h           model.HistoryEntry
			kind        string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&h.ID, &kind, &h.StartedAt, &completedAt, &h.Added, &h.Updated, &h.Deleted, &h.Failed, &h.ErrorMessage); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning sync history row", err)
		}
		h.Kind = model.SyncMode(kind)
		if completedAt.Valid {
			t := completedAt.Time
			h.CompletedAt = &t
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
