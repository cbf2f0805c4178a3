package sharedfiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/dbx"
)

const columns = `file_id, storage_key, iv, salt, encrypted_size, checksum, uploaded_at, expires_at, max_downloads, download_count, is_deleted`

// PostgresRepository implements MetadataRepository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var r Record
	if err := s.Scan(&r.FileID, &r.StorageKey, &r.IV, &r.Salt, &r.EncryptedSize, &r.Checksum,
		&r.UploadedAt, &r.ExpiresAt, &r.MaxDownloads, &r.DownloadCount, &r.IsDeleted); err != nil {
		return nil, err
	}
	r.UploadedAt = r.UploadedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return &r, nil
}

func (r *PostgresRepository) selectMany(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select shared files: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *Record) error {
	query := `INSERT INTO shared_files (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		rec.FileID, rec.StorageKey, rec.IV, rec.Salt, rec.EncryptedSize, rec.Checksum,
		rec.UploadedAt, rec.ExpiresAt, rec.MaxDownloads, rec.DownloadCount, rec.IsDeleted)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + columns + ` FROM shared_files WHERE file_id=$1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select shared file: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rec *Record) error {
	query := `UPDATE shared_files SET expires_at=$2, is_deleted=(is_deleted OR $3) WHERE file_id=$1`

	res, err := r.db.ExecContext(ctx, query, rec.FileID, rec.ExpiresAt, rec.IsDeleted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE shared_files SET is_deleted=TRUE WHERE file_id=$1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) (*Record, bool, error) {
	query := `UPDATE shared_files SET expires_at = GREATEST(expires_at, $2)
		WHERE file_id=$1 AND NOT is_deleted
		RETURNING ` + columns

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id, expiresAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return rec, true, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shared_files WHERE file_id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shared file: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM shared_files WHERE file_id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) IncrementDownload(ctx context.Context, id string, now time.Time) (*Record, bool, error) {
	query := `UPDATE shared_files SET download_count = download_count + 1
		WHERE file_id=$1 AND NOT is_deleted AND expires_at > $2 AND download_count < max_downloads
		RETURNING ` + columns

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return rec, true, nil
}

func (r *PostgresRepository) FindExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	return r.selectMany(ctx, `SELECT `+columns+` FROM shared_files WHERE expires_at <= $1 ORDER BY expires_at`, now)
}

func (r *PostgresRepository) FindExhausted(ctx context.Context) ([]*Record, error) {
	return r.selectMany(ctx, `SELECT `+columns+` FROM shared_files WHERE download_count >= max_downloads ORDER BY uploaded_at`)
}

func (r *PostgresRepository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `DELETE FROM shared_files WHERE file_id IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete shared files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, now time.Time) ([]*Record, error) {
	query := `DELETE FROM shared_files
		WHERE is_deleted OR expires_at <= $1 OR download_count >= max_downloads
		RETURNING ` + columns
	return r.selectMany(ctx, query, now)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
