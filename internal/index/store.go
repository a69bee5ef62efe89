// Package index implements tagsfs's relational backing store: the tag
// vocabulary, the file-to-tag membership table, and the inode table that
// gives every Entry a stable numeric identity.
//
// Grounded on original_source/src/database.rs's TagsFsDb, translated from
// rusqlite's prepared/cached statements to database/sql, and on
// other_examples's canopy internal/store/store.go for the Go-idiomatic
// sqlite3 wrapper shape (WAL journal mode, foreign keys on, a busy
// timeout, schema applied as a const DDL string on open).
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cafce25/tagsfs/internal/kind"
	"github.com/cafce25/tagsfs/internal/tags"
)

// Store is a handle onto tagsfs's sqlite-backed Index. All of its methods
// are safe for concurrent use; writes serialize through the underlying
// *sql.DB connection pool, which Open restricts to a single connection so
// that inode_or_create's select-then-insert stays linearizable without an
// explicit application-level lock.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path, applies
// the schema, and returns a ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("opening index: %w", err))
	}
	// A single backing connection makes the read-then-write sequences in
	// InodeOrCreate and AddTagsToFile atomic with respect to other
	// goroutines without a separate mutex: sqlite already serializes
	// writers, and database/sql hands out exactly one *driver.Conn here.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("opening index: %w", err))
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("applying schema: %w", err))
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetConfig upserts a config key/value pair, such as the filesystem's
// mountpoint or source directory. The mount path in cmd does not call it.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("setting config %q: %w", key, err))
	}
	return nil
}

// Config reads a previously stored config value.
func (s *Store) Config(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", kind.Wrap(kind.UnknownInode, fmt.Errorf("config key %q not set", key))
	}
	if err != nil {
		return "", kind.Wrap(kind.StorageFailure, fmt.Errorf("reading config %q: %w", key, err))
	}
	return value, nil
}

// SubTags returns every tag in the vocabulary not already in the given
// set, irrespective of whether any file in the current projection carries
// it. Mirrors TagsFsDb::sub_tags's literal "tag NOT IN (given set)" query
// over the whole tags table: spec.md §3 invariant 4 and §9 both call for
// this un-pruned form over a "frugal" variant that would intersect with
// tags actually present on files of the current projection, so a tag
// freshly created by mkdir with zero files attached still appears as a
// sub-tag of the root.
func (s *Store) SubTags(ctx context.Context, given []string) ([]string, error) {
	var query string
	args := make([]any, 0, len(given))
	if len(given) == 0 {
		query = `SELECT tag FROM tags`
	} else {
		placeholders := make([]string, len(given))
		for i := range given {
			placeholders[i] = "?"
		}
		query = fmt.Sprintf(`SELECT tag FROM tags WHERE tag NOT IN (%s)`, strings.Join(placeholders, ", "))
		for _, g := range given {
			args = append(args, g)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("sub_tags: %w", err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("sub_tags: scanning row: %w", err))
		}
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("sub_tags: %w", err))
	}
	sort.Strings(out)
	return out, nil
}

// FileTags returns the tags currently attached to the given backing
// filename.
func (s *Store) FileTags(ctx context.Context, file string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tags.tag
		FROM file_tags
		JOIN tags ON file_tags.tag_id = tags.id
		WHERE file_tags.file = ?`, file)
	if err != nil {
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("file_tags(%q): %w", file, err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("file_tags(%q): scanning row: %w", file, err))
		}
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, kind.Wrap(kind.StorageFailure, fmt.Errorf("file_tags(%q): %w", file, err))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) tagID(ctx context.Context, tx *sql.Tx, tag string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag = ?`, tag).Scan(&id)
	return id, err
}

func (s *Store) createTag(ctx context.Context, tx *sql.Tx, tag string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tags (tag) VALUES (?)`, tag)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateTag inserts tag into the vocabulary, used by mkdir to bring a new
// tag into existence with no files attached to it yet. Returns
// kind.AlreadyExists if the tag is already known, mirroring
// TagsFsDb::create_tag's unique-constraint failure on a duplicate name.
func (s *Store) CreateTag(ctx context.Context, tag string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tags (tag) VALUES (?)`, tag)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return kind.Wrap(kind.AlreadyExists, fmt.Errorf("create_tag(%q): %w", tag, err))
		}
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("create_tag(%q): %w", tag, err))
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// AddTagsToFile attaches every tag in tags to file, creating any tag that
// does not already exist. Membership is idempotent: attaching a tag a file
// already carries is a no-op, not an error.
func (s *Store) AddTagsToFile(ctx context.Context, tagSet []string, file string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("add_tags_to_file(%q): %w", file, err))
	}
	defer tx.Rollback()

	for _, tag := range tagSet {
		id, err := s.tagID(ctx, tx, tag)
		if errors.Is(err, sql.ErrNoRows) {
			id, err = s.createTag(ctx, tx, tag)
		}
		if err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("add_tags_to_file(%q): resolving tag %q: %w", file, tag, err))
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_tags (file, tag_id) VALUES (?, ?) ON CONFLICT(file, tag_id) DO NOTHING`,
			file, id); err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("add_tags_to_file(%q): attaching tag %q: %w", file, tag, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("add_tags_to_file(%q): %w", file, err))
	}
	return nil
}

// RemoveTagsFromFile detaches every tag in tagSet from file. Removing a
// tag the file does not carry is a no-op.
func (s *Store) RemoveTagsFromFile(ctx context.Context, tagSet []string, file string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("remove_tags_from_file(%q): %w", file, err))
	}
	defer tx.Rollback()

	for _, tag := range tagSet {
		id, err := s.tagID(ctx, tx, tag)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("remove_tags_from_file(%q): resolving tag %q: %w", file, tag, err))
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM file_tags WHERE tag_id = ? AND file = ?`, id, file); err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("remove_tags_from_file(%q): detaching tag %q: %w", file, tag, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("remove_tags_from_file(%q): %w", file, err))
	}
	return nil
}

// DeleteTags removes every tag in tagSet from the vocabulary entirely,
// cascading to every file_tags row that referenced it (mirrors rmdir's
// global tag deletion).
func (s *Store) DeleteTags(ctx context.Context, tagSet []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("delete_tags: %w", err))
	}
	defer tx.Rollback()

	for _, tag := range tagSet {
		id, err := s.tagID(ctx, tx, tag)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("delete_tags(%q): %w", tag, err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE tag_id = ?`, id); err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("delete_tags(%q): %w", tag, err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id); err != nil {
			return kind.Wrap(kind.StorageFailure, fmt.Errorf("delete_tags(%q): %w", tag, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return kind.Wrap(kind.StorageFailure, fmt.Errorf("delete_tags: %w", err))
	}
	return nil
}

// CreateInode inserts a new inodes row for entry and returns its id.
func (s *Store) CreateInode(ctx context.Context, entry tags.Entry) (uint64, error) {
	discriminant, data := entry.Discriminant()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inodes (discriminant, data) VALUES (?, ?)`, discriminant, data)
	if err != nil {
		return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("create_inode: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("create_inode: %w", err))
	}
	return uint64(id), nil
}

// Inode looks up the inode id already assigned to entry.
func (s *Store) Inode(ctx context.Context, entry tags.Entry) (uint64, error) {
	discriminant, data := entry.Discriminant()
	var id uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM inodes WHERE discriminant = ? AND data = ?`, discriminant, data).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, kind.Wrap(kind.UnknownInode, fmt.Errorf("inode: no inode for entry"))
	}
	if err != nil {
		return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode: %w", err))
	}
	return id, nil
}

// InodeOrCreate returns the inode id for entry, creating one if none
// exists yet. The lookup and insert happen inside a single transaction on
// the Store's sole connection, so concurrent callers racing to create the
// same entry never both succeed in inserting: the later INSERT observes
// the UNIQUE(discriminant, data) conflict and the statement is retried as
// a plain lookup.
func (s *Store) InodeOrCreate(ctx context.Context, entry tags.Entry) (uint64, error) {
	discriminant, data := entry.Discriminant()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
	}
	defer tx.Rollback()

	var id uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM inodes WHERE discriminant = ? AND data = ?`, discriminant, data).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO inodes (discriminant, data) VALUES (?, ?)
			 ON CONFLICT(discriminant, data) DO NOTHING`, discriminant, data)
		if err != nil {
			return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
		}
		if n == 1 {
			newID, err := res.LastInsertId()
			if err != nil {
				return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
			}
			if err := tx.Commit(); err != nil {
				return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
			}
			return uint64(newID), nil
		}
		// Lost the race inside this same transaction boundary; re-select.
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM inodes WHERE discriminant = ? AND data = ?`, discriminant, data).Scan(&id); err != nil {
			return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
		}
		return id, nil
	default:
		return 0, kind.Wrap(kind.StorageFailure, fmt.Errorf("inode_or_create: %w", err))
	}
}

// Entry reconstructs the Entry stored for the given inode id.
func (s *Store) Entry(ctx context.Context, ino uint64) (tags.Entry, error) {
	var discriminant, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT discriminant, data FROM inodes WHERE id = ?`, ino).Scan(&discriminant, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return tags.Entry{}, kind.Wrap(kind.UnknownInode, fmt.Errorf("entry(%d): no such inode", ino))
	}
	if err != nil {
		return tags.Entry{}, kind.Wrap(kind.StorageFailure, fmt.Errorf("entry(%d): %w", ino, err))
	}
	return tags.FromRow(discriminant, data)
}
