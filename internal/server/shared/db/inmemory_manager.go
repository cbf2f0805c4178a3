package db

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zkshare/internal/server/repositories/sharedfiles"
)

type InMemoryRepositoryManager struct {
	sharedFiles *sharedfiles.MemoryRepository
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) SharedFiles() sharedfiles.MetadataRepository {
	return m.sharedFiles
}

func (m *InMemoryRepositoryManager) Transactor() sharedfiles.Transactor {
	return nil
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{sharedFiles: sharedfiles.NewMemoryRepository()}
}
