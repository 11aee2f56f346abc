package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the local cache schema.
// These run on startup to ensure tables exist.
//
// groups holds one JSON-encoded snapshot per group; dirty is the set of
// group ids with unsynced local edits; ops journals subtractive remote
// operations until the backend confirms them; device holds the handful of
// device-scoped values (opaque user id, joined-group list).
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dirty (
    group_id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS ops (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id TEXT NOT NULL,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS device (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
