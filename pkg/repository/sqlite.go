package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mattn/go-sqlite3"
)

const sqliteFileName = "index.db"

// sqliteIndex persists entries in <dir>/index.db. Search is brute force over all rows,
// which is fine for the size of one conversation.
type sqliteIndex struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the index database inside dir
func NewSQLite(dir string) (Index, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, goerr.Wrap(err, "failed to create index directory", goerr.V("dir", dir))
	}

	path := filepath.Join(dir, sqliteFileName)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open index database", goerr.V("path", path))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping index database", goerr.V("path", path))
	}

	x := &sqliteIndex{db: db, path: path}
	if err := x.initSchema(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to initialize index schema", goerr.V("path", path))
	}

	return x, nil
}

func (x *sqliteIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		document TEXT NOT NULL,
		embedding_json TEXT NOT NULL
	);
	`
	_, err := x.db.Exec(schema)
	return err
}

func (x *sqliteIndex) Put(ctx context.Context, id, document string, embedding []float32) error {
	if len(embedding) == 0 {
		return goerr.Wrap(ErrEmptyVector, "cannot index entry", goerr.V("id", id))
	}

	raw, err := json.Marshal(embedding)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal embedding", goerr.V("id", id))
	}

	_, err = x.db.ExecContext(ctx,
		"INSERT INTO entries (id, document, embedding_json) VALUES (?, ?, ?)",
		id, document, string(raw))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return goerr.Wrap(ErrDuplicateID, "cannot index entry", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to insert index entry", goerr.V("id", id))
	}

	return nil
}

func (x *sqliteIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*Match, error) {
	if len(embedding) == 0 {
		return nil, ErrEmptyVector
	}

	rows, err := x.db.QueryContext(ctx, "SELECT id, document, embedding_json FROM entries ORDER BY seq ASC")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query index entries", goerr.V("path", x.path))
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var (
			c   candidate
			raw string
		)
		if err := rows.Scan(&c.id, &c.document, &raw); err != nil {
			return nil, goerr.Wrap(err, "failed to scan index entry")
		}
		if err := json.Unmarshal([]byte(raw), &c.embedding); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal embedding", goerr.V("id", c.id))
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate index entries")
	}

	return rankCandidates(embedding, candidates, limit), nil
}

func (x *sqliteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count index entries")
	}
	return n, nil
}

func (x *sqliteIndex) Close() error {
	return x.db.Close()
}
