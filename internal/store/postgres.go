package store

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"evrptw/internal/apperr"
)

// Postgres stores runs through the pgx database/sql driver.
type Postgres struct {
	sqlStore
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabase, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(err, apperr.CodeDatabase, "ping postgres")
	}
	p := &Postgres{sqlStore{db: db, d: dialect{name: "postgres", numbered: true, blobType: "BYTEA"}}}
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}
