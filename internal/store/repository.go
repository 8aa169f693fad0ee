package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"starbase/internal/apperr"
	"starbase/internal/model"
)

// row mirrors the repositories table column order used by scanRepository.
const repositoryColumns = `
	id, owner, name, description, readme_summary, primary_language, topics, homepage,
	stargazer_count, fork_count,
	created_at, pushed_at, starred_at, last_synced_at, last_analyzed_at,
	owner_type, archived, visibility, license,
	summary, categories, features, use_cases,
	is_deleted
`

// UpsertRepository inserts r by (owner, name), or updates every upstream and
// analysis field when the pair already exists. Grounded on the teacher's
// local_core.go upsert pattern (INSERT ... ON CONFLICT DO UPDATE).
func (s *Store) UpsertRepository(r *model.Repository) error {
	topics, err := marshalStrings(r.Topics)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshaling topics", err)
	}
	categories, err := marshalStrings(r.Categories)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshaling categories", err)
	}
	features, err := marshalStrings(r.Features)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshaling features", err)
	}
	useCases, err := marshalStrings(r.UseCases)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshaling use_cases", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO repositories (
			owner, name, description, readme_summary, primary_language, topics, homepage,
			stargazer_count, fork_count,
			created_at, pushed_at, starred_at, last_synced_at, last_analyzed_at,
			owner_type, archived, visibility, license,
			summary, categories, features, use_cases,
			is_deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, name) DO UPDATE SET
			description = excluded.description,
			readme_summary = excluded.readme_summary,
			primary_language = excluded.primary_language,
			topics = excluded.topics,
			homepage = excluded.homepage,
			stargazer_count = excluded.stargazer_count,
			fork_count = excluded.fork_count,
			created_at = excluded.created_at,
			pushed_at = excluded.pushed_at,
			starred_at = excluded.starred_at,
			last_synced_at = excluded.last_synced_at,
			last_analyzed_at = excluded.last_analyzed_at,
			owner_type = excluded.owner_type,
			archived = excluded.archived,
			visibility = excluded.visibility,
			license = excluded.license,
			summary = excluded.summary,
			categories = excluded.categories,
			features = excluded.features,
			use_cases = excluded.use_cases,
			is_deleted = excluded.is_deleted
	`,
		r.Owner, r.Name, r.Description, r.ReadmeSummary, r.PrimaryLanguage, topics, r.Homepage,
		r.StargazerCount, r.ForkCount,
		timeOrNil(r.CreatedAt), timeOrNil(r.PushedAt), timeOrNil(r.StarredAt), timeOrNil(r.LastSyncedAt), timeOrNil(r.LastAnalyzedAt),
		string(r.OwnerType), r.Archived, r.Visibility, r.License,
		r.Summary, categories, features, useCases,
		r.IsDeleted,
	)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "upserting repository", err)
	}
	return nil
}

// UpdateRepositoryFields overwrites only the named columns for the repository
// identified by fullName, used by light-A/light-B sync reconciliation so
// embeddings and analysis fields are left untouched. fields keys must be
// column names from repositoryColumns.
func (s *Store) UpdateRepositoryFields(fullName string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	owner, name, ok := splitFullName(fullName)
	if !ok {
		return apperr.New(apperr.InputInvalid, "fullName must be owner/name")
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+2)
	for col, val := range fields {
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}
	args = append(args, owner, name)

	query := fmt.Sprintf(`UPDATE repositories SET %s WHERE owner = ? AND name = ?`, strings.Join(setClauses, ", "))
	if _, err := s.db.Exec(query, args...); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "updating repository fields", err)
	}
	return nil
}

// SoftDelete marks a repository removed without touching its annotations.
func (s *Store) SoftDelete(fullName string) error {
	owner, name, ok := splitFullName(fullName)
	if !ok {
		return apperr.New(apperr.InputInvalid, "fullName must be owner/name")
	}
	_, err := s.db.Exec(`UPDATE repositories SET is_deleted = 1 WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "soft-deleting repository", err)
	}
	return nil
}

// Restore clears is_deleted for a repository that re-appeared upstream.
func (s *Store) Restore(fullName string) error {
	owner, name, ok := splitFullName(fullName)
	if !ok {
		return apperr.New(apperr.InputInvalid, "fullName must be owner/name")
	}
	_, err := s.db.Exec(`UPDATE repositories SET is_deleted = 0 WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "restoring repository", err)
	}
	return nil
}

// GetRepository looks up a single live-or-deleted repository by full name.
func (s *Store) GetRepository(fullName string) (*model.Repository, error) {
	owner, name, ok := splitFullName(fullName)
	if !ok {
		return nil, apperr.New(apperr.InputInvalid, "fullName must be owner/name")
	}
	row := s.db.QueryRow(`SELECT `+repositoryColumns+` FROM repositories WHERE owner = ? AND name = ?`, owner, name)
	r, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "repository not found: "+fullName)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "scanning repository", err)
	}
	return r, nil
}

// ListLive returns live repositories matching filters, ordered by
// starred_at descending, paginated via an opaque numeric cursor (the last
// seen repository id; 0 for the first page).
func (s *Store) ListLive(cursor int64, filters model.Filters, limit int) ([]*model.Repository, error) {
	where, args := filterClause(filters, true)
	where = append(where, "id > ?")
	args = append(args, cursor)

	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY starred_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	return s.queryRepositories(query, args...)
}

// AllLive returns every live repository, ordered by id. Used by edge
// discovery, which needs the full snapshot rather than a paginated page.
func (s *Store) AllLive() ([]*model.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE is_deleted = 0 ORDER BY id ASC`
	return s.queryRepositories(query)
}

// ListDeleted returns soft-deleted repositories, most recently starred first.
func (s *Store) ListDeleted(limit int) ([]*model.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE is_deleted = 1 ORDER BY starred_at DESC LIMIT ?`
	return s.queryRepositories(query, limit)
}

// FTSResult pairs a repository with its BM25-derived relevance score.
type FTSResult struct {
	Repository *model.Repository
	Relevance  float64
}

// FullTextSearch runs a lexical search over the repositories_fts virtual
// table and joins back to the live repositories table. SQLite's bm25()
// returns lower-is-better scores; callers normalize via hybrid search.
func (s *Store) FullTextSearch(query string, filters model.Filters, limit int) ([]FTSResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.InputInvalid, "full text search query must not be empty")
	}

	where, args := filterClause(filters, true)
	args = append([]interface{}{query}, args...)

	sqlQuery := `
		SELECT ` + prefixColumns("r", repositoryColumns) + `, bm25(repositories_fts) AS relevance
		FROM repositories_fts
		JOIN repositories r ON r.id = repositories_fts.rowid
		WHERE repositories_fts MATCH ? AND ` + strings.Join(where, " AND ") + `
		ORDER BY relevance ASC, r.starred_at DESC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "full text search", err)
	}
	defer rows.Close()

	var results []FTSResult
	for rows.Next() {
		r, relevance, err := scanRepositoryWithRelevance(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning fts row", err)
		}
		results = append(results, FTSResult{Repository: r, Relevance: relevance})
	}
	return results, rows.Err()
}

// CountLive returns the number of live (non-deleted) repositories.
func (s *Store) CountLive() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM repositories WHERE is_deleted = 0`).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, "counting live repositories", err)
	}
	return n, nil
}

// CountPendingUpdate counts live repositories whose last_synced_at is older
// than since, used to report sync backlog.
func (s *Store) CountPendingUpdate(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM repositories WHERE is_deleted = 0 AND (last_synced_at IS NULL OR last_synced_at < ?)`, since).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, "counting pending updates", err)
	}
	return n, nil
}

func (s *Store) queryRepositories(query string, args ...interface{}) ([]*model.Repository, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "querying repositories", err)
	}
	defer rows.Close()

	var out []*model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning repository row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows so scanRepository serves both.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row scanner) (*model.Repository, error) {
	r, _, err := scanRepositoryRaw(row, false)
	return r, err
}

func scanRepositoryWithRelevance(row scanner) (*model.Repository, float64, error) {
	return scanRepositoryRaw(row, true)
}

func scanRepositoryRaw(row scanner, withRelevance bool) (*model.Repository, float64, error) {
	var (
		r                                                            model.Repository
		topics, categories, features, useCases                      string
		ownerType                                                    string
		createdAt, pushedAt, starredAt, lastSyncedAt, lastAnalyzedAt sql.NullTime
		relevance                                                    float64
	)

	dest := []interface{}{
		&r.ID, &r.Owner, &r.Name, &r.Description, &r.ReadmeSummary, &r.PrimaryLanguage, &topics, &r.Homepage,
		&r.StargazerCount, &r.ForkCount,
		&createdAt, &pushedAt, &starredAt, &lastSyncedAt, &lastAnalyzedAt,
		&ownerType, &r.Archived, &r.Visibility, &r.License,
		&r.Summary, &categories, &features, &useCases,
		&r.IsDeleted,
	}
	if withRelevance {
		dest = append(dest, &relevance)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}

	r.OwnerType = model.OwnerType(ownerType)
	r.CreatedAt = createdAt.Time
	r.PushedAt = pushedAt.Time
	r.StarredAt = starredAt.Time
	r.LastSyncedAt = lastSyncedAt.Time
	r.LastAnalyzedAt = lastAnalyzedAt.Time

	var err error
	if r.Topics, err = unmarshalStrings(topics); err != nil {
		return nil, 0, err
	}
	if r.Categories, err = unmarshalStrings(categories); err != nil {
		return nil, 0, err
	}
	if r.Features, err = unmarshalStrings(features); err != nil {
		return nil, 0, err
	}
	if r.UseCases, err = unmarshalStrings(useCases); err != nil {
		return nil, 0, err
	}

	return &r, relevance, nil
}

// filterClause builds WHERE fragments (without the leading WHERE keyword)
// and matching args for model.Filters. defaultLive forces an explicit
// is_deleted predicate when the caller hasn't set one, since most callers
// want the live set.
func filterClause(f model.Filters, defaultLive bool) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if len(f.Languages) > 0 {
		placeholders := make([]string, len(f.Languages))
		for i, lang := range f.Languages {
			placeholders[i] = "?"
			args = append(args, lang)
		}
		clauses = append(clauses, "primary_language IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MinStars > 0 {
		clauses = append(clauses, "stargazer_count >= ?")
		args = append(args, f.MinStars)
	}
	if f.StarredAfter != nil {
		clauses = append(clauses, "starred_at >= ?")
		args = append(args, *f.StarredAfter)
	}
	if f.OwnerType != "" {
		clauses = append(clauses, "owner_type = ?")
		args = append(args, string(f.OwnerType))
	}
	if f.IsActive != nil {
		cutoff := time.Now().AddDate(0, 0, -7)
		if *f.IsActive {
			clauses = append(clauses, "pushed_at >= ?")
		} else {
			clauses = append(clauses, "pushed_at < ?")
		}
		args = append(args, cutoff)
	}
	if f.IsNew != nil {
		cutoff := time.Now().AddDate(0, -6, 0)
		if *f.IsNew {
			clauses = append(clauses, "created_at >= ?")
		} else {
			clauses = append(clauses, "created_at < ?")
		}
		args = append(args, cutoff)
	}
	if f.ExcludeArchived {
		clauses = append(clauses, "archived = 0")
	}
	if f.IsDeleted != nil {
		clauses = append(clauses, "is_deleted = ?")
		args = append(args, *f.IsDeleted)
	} else if defaultLive {
		clauses = append(clauses, "is_deleted = 0")
	}

	if len(clauses) == 0 {
		clauses = append(clauses, "1 = 1")
	}
	return clauses, args
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func splitFullName(fullName string) (owner, name string, ok bool) {
	idx := strings.IndexByte(fullName, '/')
	if idx < 0 || idx == 0 || idx == len(fullName)-1 {
		return "", "", false
	}
	return fullName[:idx], fullName[idx+1:], true
}

func marshalStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	return string(b), err
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, err
	}
	return vals, nil
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
