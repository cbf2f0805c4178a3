// Package db wires the metadata repositories to their backing store and owns
// schema migrations.
package db

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zkshare/internal/server/repositories/sharedfiles"
)

// MemoryDSN selects the in-memory manager instead of PostgreSQL.
const MemoryDSN = "memory"

type RepositoryManager interface {
	RunMigrations(context.Context) error
	// Conn is nil for the in-memory manager.
	Conn() *sql.DB
	SharedFiles() sharedfiles.MetadataRepository
	// Transactor is nil when the backend has no transactions.
	Transactor() sharedfiles.Transactor
	Close() error
}

// New returns the in-memory manager for MemoryDSN and a PostgreSQL manager
// for anything else.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == MemoryDSN {
		return NewInMemoryRepositoryManager(), nil
	}
	return NewPostgresRepositoryManager(ctx, dsn)
}
