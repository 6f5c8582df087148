package importer

import (
	"context"
	"database/sql"

	"github.com/operis/record-ingestion/internal/database"
)

// sqlDB adapts *sql.DB to the DB seam used by the importer.
type sqlDB struct {
	db *sql.DB
}

// NewDB wraps an open connection pool so each imported document runs in its
// own transaction.
func NewDB(db *sql.DB) DB {
	return &sqlDB{db: db}
}

func (d *sqlDB) Begin(ctx context.Context) (Stores, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlStores{tx: tx}, nil
}

// sqlStores exposes the repositories bound to a single transaction.
type sqlStores struct {
	tx *sql.Tx
}

func (s *sqlStores) Files() database.FileStore {
	return database.NewFileRepository(s.tx)
}

func (s *sqlStores) Phones() database.PhoneStore {
	return database.NewPhoneRepository(s.tx)
}

func (s *sqlStores) IPs() database.IPStore {
	return database.NewIPRepository(s.tx)
}

func (s *sqlStores) Messages() database.MessageStore {
	return database.NewMessageRepository(s.tx)
}

func (s *sqlStores) Commit() error {
	return s.tx.Commit()
}

func (s *sqlStores) Rollback() error {
	return s.tx.Rollback()
}
