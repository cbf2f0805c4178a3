// Package shares is the client's local history of sent shares, kept in
// SQLite so manage tokens survive between CLI runs.
package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const shareColumns = `file_id, share_url, manage_token, expires_at, max_downloads, password_protected, created_at`

func (r *SQLiteRepository) Save(ctx context.Context, s Share) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shares (`+shareColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			share_url = excluded.share_url,
			manage_token = excluded.manage_token,
			expires_at = excluded.expires_at,
			max_downloads = excluded.max_downloads,
			password_protected = excluded.password_protected
	`, s.FileID, s.ShareURL, s.ManageToken, s.ExpiresAt.UTC(), s.MaxDownloads, s.PasswordProtected, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save share[%s]: %w", s.FileID, err)
	}
	return nil
}

func scanShare(row interface{ Scan(...any) error }) (*Share, error) {
	var s Share
	if err := row.Scan(&s.FileID, &s.ShareURL, &s.ManageToken, &s.ExpiresAt, &s.MaxDownloads, &s.PasswordProtected, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, fileID string) (*Share, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE file_id = ?`, fileID)
	s, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share[%s]: %w", fileID, err)
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Share, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+shareColumns+` FROM shares ORDER BY created_at, file_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var result []Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share row: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateExpiry(ctx context.Context, fileID string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE shares SET expires_at = ? WHERE file_id = ?`, expiresAt.UTC(), fileID)
	if err != nil {
		return fmt.Errorf("failed to update share[%s]: %w", fileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM shares WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete share[%s]: %w", fileID, err)
	}
	return nil
}
