package client

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/zkshare/internal/client/migrations"
	"github.com/dmitrijs2005/zkshare/internal/client/repositories/shares"
	"github.com/dmitrijs2005/zkshare/internal/filex"

	_ "modernc.org/sqlite"
)

// gooseUpContext is a test seam.
var gooseUpContext = goose.UpContext

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return gooseUpContext(ctx, db, ".")
}

// InitDatabase opens the local history database at path, creating its
// directory, and applies migrations. The caller closes the returned DB.
func InitDatabase(ctx context.Context, path string) (*sql.DB, *shares.SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := filex.EnsureDir(dir); err != nil {
			return nil, nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, shares.NewSQLiteRepository(db), nil
}
