package index

// schema is the Index's relational layout, grounded on the tables implied
// by original_source/src/database.rs's queries (tags, file_tags, inodes)
// plus the config key/value table its mountpoint()/source() accessors read
// from (the Rust original reads mountpoint from a table named "config" and
// source from one named "options"; tagsfs reconciles that inconsistency
// into a single config table).
//
// Declared as a const DDL string and applied with db.Exec, the same pattern
// other_examples/BeadsLog's internal/storage/sqlite schema.go and canopy's
// internal/store/store.go Migrate use.
const schema = `
CREATE TABLE IF NOT EXISTS tags (
	id  INTEGER PRIMARY KEY AUTOINCREMENT,
	tag TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS file_tags (
	file   TEXT    NOT NULL,
	tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	UNIQUE(file, tag_id)
);

CREATE TABLE IF NOT EXISTS inodes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	discriminant TEXT NOT NULL,
	data         TEXT NOT NULL,
	UNIQUE(discriminant, data)
);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT NOT NULL UNIQUE,
	value TEXT NOT NULL
);
`
