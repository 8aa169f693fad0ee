package store

import (
	"database/sql"
	"fmt"

	"starbase/internal/logging"
)

// migration is one numbered, ordered SQL step. Grounded on the teacher's
// versioned-migration approach (internal/store/migrations.go) but applied
// as whole SQL statements tracked in a dedicated table, per spec §4.1,
// rather than the teacher's column-existence-probing ALTERs.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations lists every schema migration in application order. A failing
// migration aborts startup and rolls back (spec §4.1).
var migrations = []migration{
	{1, "create_repositories", sqlCreateRepositories},
	{2, "create_repositories_fts", sqlCreateRepositoriesFTS},
	{3, "create_graph_tables", sqlCreateGraphTables},
	{4, "create_annotation_tables", sqlCreateAnnotationTables},
	{5, "create_sync_history", sqlCreateSyncHistory},
}

const sqlCreateRepositories = `
CREATE TABLE repositories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	readme_summary TEXT NOT NULL DEFAULT '',
	primary_language TEXT NOT NULL DEFAULT '',
	topics TEXT NOT NULL DEFAULT '[]',
	homepage TEXT NOT NULL DEFAULT '',

	stargazer_count INTEGER NOT NULL DEFAULT 0,
	fork_count INTEGER NOT NULL DEFAULT 0,

	created_at DATETIME,
	pushed_at DATETIME,
	starred_at DATETIME,
	last_synced_at DATETIME,
	last_analyzed_at DATETIME,

	owner_type TEXT NOT NULL DEFAULT 'user',
	archived BOOLEAN NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'public',
	license TEXT NOT NULL DEFAULT '',

	summary TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '[]',
	features TEXT NOT NULL DEFAULT '[]',
	use_cases TEXT NOT NULL DEFAULT '[]',

	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	edges_computed_at DATETIME,

	UNIQUE(owner, name)
);
CREATE INDEX idx_repositories_owner ON repositories(owner);
CREATE INDEX idx_repositories_is_deleted ON repositories(is_deleted);
CREATE INDEX idx_repositories_starred_at ON repositories(starred_at);
CREATE INDEX idx_repositories_primary_language ON repositories(primary_language);
CREATE INDEX idx_repositories_pushed_at ON repositories(pushed_at);
`

const sqlCreateRepositoriesFTS = `
CREATE VIRTUAL TABLE repositories_fts USING fts5(
	name,
	name_with_owner,
	description,
	summary,
	categories,
	content='repositories',
	content_rowid='id'
);

CREATE TRIGGER repositories_fts_ai AFTER INSERT ON repositories BEGIN
	INSERT INTO repositories_fts(rowid, name, name_with_owner, description, summary, categories)
	VALUES (new.id, new.name, new.owner || '/' || new.name, new.description, new.summary, new.categories);
END;

CREATE TRIGGER repositories_fts_ad AFTER DELETE ON repositories BEGIN
	INSERT INTO repositories_fts(repositories_fts, rowid, name, name_with_owner, description, summary, categories)
	VALUES ('delete', old.id, old.name, old.owner || '/' || old.name, old.description, old.summary, old.categories);
END;

CREATE TRIGGER repositories_fts_au AFTER UPDATE ON repositories BEGIN
	INSERT INTO repositories_fts(repositories_fts, rowid, name, name_with_owner, description, summary, categories)
	VALUES ('delete', old.id, old.name, old.owner || '/' || old.name, old.description, old.summary, old.categories);
	INSERT INTO repositories_fts(rowid, name, name_with_owner, description, summary, categories)
	VALUES (new.id, new.name, new.owner || '/' || new.name, new.description, new.summary, new.categories);
END;
`

const sqlCreateGraphTables = `
CREATE TABLE graph_edges (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	kind TEXT NOT NULL,
	weight REAL NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, target, kind)
);
CREATE INDEX idx_graph_edges_source ON graph_edges(source);
CREATE INDEX idx_graph_edges_target ON graph_edges(target);
CREATE INDEX idx_graph_edges_kind ON graph_edges(kind);

CREATE TABLE graph_status (
	repo_full_name TEXT PRIMARY KEY,
	edges_computed_at DATETIME
);
`

const sqlCreateAnnotationTables = `
CREATE TABLE collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	position INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE repo_collections (
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	repo_full_name TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (collection_id, repo_full_name)
);
CREATE INDEX idx_repo_collections_repo ON repo_collections(repo_full_name);

CREATE TABLE tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE repo_tags (
	tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	repo_full_name TEXT NOT NULL,
	PRIMARY KEY (tag_id, repo_full_name)
);
CREATE INDEX idx_repo_tags_repo ON repo_tags(repo_full_name);

CREATE TABLE repo_notes (
	repo_full_name TEXT PRIMARY KEY,
	note TEXT NOT NULL DEFAULT '',
	rating INTEGER,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const sqlCreateSyncHistory = `
CREATE TABLE sync_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	added INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_sync_history_started ON sync_history(started_at);
`

// migrate applies every pending migration inside its own transaction. A
// failing migration rolls back and aborts startup (spec §4.1).
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM _migrations`)
	if err != nil {
		return fmt.Errorf("reading migrations table: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scanning migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		logging.StoreDebug("applying migration %d: %s", m.version, m.name)
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		logging.Store("migration %d applied: %s", m.version, m.name)
	}
	return nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after Commit

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO _migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaVersion returns the highest applied migration version, or 0.
func schemaVersion(db *sql.DB) int {
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM _migrations`).Scan(&v); err != nil {
		return 0
	}
	return v
}
