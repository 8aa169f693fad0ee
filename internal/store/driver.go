package store

// Blank-imported so database/sql has the "sqlite3" driver registered before
// anyone calls sql.Open. mattn/go-sqlite3 is cgo-only but ships FTS5 support
// compiled in, which the repositories_fts virtual table below depends on.
import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"
