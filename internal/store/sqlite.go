package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"evrptw/internal/apperr"
)

// SQLite is the embedded run store for single-node deployments and the CLI.
type SQLite struct {
	sqlStore
	path string
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeDatabase, "create database directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabase, "open sqlite")
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, apperr.Wrap(err, apperr.CodeDatabase, fmt.Sprintf("set %s", pragma))
		}
	}
	s := &SQLite{sqlStore: sqlStore{db: db, d: dialect{name: "sqlite", blobType: "BLOB"}}, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}
