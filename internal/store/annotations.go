package store

import "starbase/internal/apperr"

// CollectionMemberships returns, for every user-curated collection, the
// full names of its live member repositories. Used by C6's collection-edge
// computation to find co-membership pairs.
func (s *Store) CollectionMemberships() (map[int64][]string, error) {
	rows, err := s.db.Query(`
		SELECT rc.collection_id, rc.repo_full_name
		FROM repo_collections rc
		JOIN repositories r ON r.owner || '/' || r.name = rc.repo_full_name
		WHERE r.is_deleted = 0
		ORDER BY rc.collection_id, rc.position
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "querying collection memberships", err)
	}
	defer rows.Close()

	memberships := map[int64][]string{}
	for rows.Next() {
		var collectionID int64
		var fullName string
		if err := rows.Scan(&collectionID, &fullName); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning collection membership row", err)
		}
		memberships[collectionID] = append(memberships[collectionID], fullName)
	}
	return memberships, rows.Err()
}
