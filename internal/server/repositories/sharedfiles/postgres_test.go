package sharedfiles

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

var (
	colNames = []string{"file_id", "storage_key", "iv", "salt", "encrypted_size", "checksum",
		"uploaded_at", "expires_at", "max_downloads", "download_count", "is_deleted"}
	t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleRecord() *Record {
	return &Record{
		FileID:        "abcDEF123_",
		StorageKey:    "2026/10/18/key",
		IV:            []byte("123456789012"),
		EncryptedSize: 42,
		Checksum:      []byte("sum"),
		UploadedAt:    t0,
		ExpiresAt:     t0.Add(24 * time.Hour),
		MaxDownloads:  3,
	}
}

func recordRow(r *Record) *sqlmock.Rows {
	return sqlmock.NewRows(colNames).AddRow(r.FileID, r.StorageKey, r.IV, r.Salt, r.EncryptedSize, r.Checksum,
		r.UploadedAt, r.ExpiresAt, r.MaxDownloads, r.DownloadCount, r.IsDeleted)
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+shared_files\s*\(file_id,.*\)\s*VALUES`).
		WithArgs(r.FileID, r.StorageKey, r.IV, sqlmock.AnyArg(), r.EncryptedSize, r.Checksum,
			r.UploadedAt, r.ExpiresAt, r.MaxDownloads, 0, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectMet(t, mock)
}

func TestInsert_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+shared_files`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Insert(context.Background(), sampleRecord())
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want ErrorAlreadyExists, got %v", err)
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+shared_files`).WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), sampleRecord())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGet_FoundAndNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()

	mock.ExpectQuery(`(?s)^SELECT\s+file_id,.*FROM\s+shared_files\s+WHERE\s+file_id=\$1$`).
		WithArgs(r.FileID).
		WillReturnRows(recordRow(r))

	got, err := repo.Get(context.Background(), r.FileID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StorageKey != r.StorageKey || got.MaxDownloads != 3 || !got.ExpiresAt.Equal(r.ExpiresAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Salt != nil {
		t.Fatalf("salt should be nil, got %v", got.Salt)
	}

	mock.ExpectQuery(`FROM\s+shared_files\s+WHERE\s+file_id=\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestUpdate_RowsAffected(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()
	r.IsDeleted = true

	// download_count is never part of the statement.
	q := `^UPDATE\s+shared_files\s+SET\s+expires_at=\$2,\s*is_deleted=\(is_deleted\s+OR\s+\$3\)\s+WHERE\s+file_id=\$1$`
	mock.ExpectExec(q).WithArgs(r.FileID, r.ExpiresAt, true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(r.FileID, r.ExpiresAt, true).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs(r.FileID, r.ExpiresAt, true).WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	if err := repo.Update(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Update(context.Background(), r); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	err := repo.Update(context.Background(), r)
	if err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
	expectMet(t, mock)
}

func TestMarkDeleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^UPDATE\s+shared_files\s+SET\s+is_deleted=TRUE\s+WHERE\s+file_id=\$1$`
	mock.ExpectExec(q).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("c").WillReturnError(errors.New("db down"))

	if err := repo.MarkDeleted(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkDeleted(context.Background(), "b"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	if err := repo.MarkDeleted(context.Background(), "c"); err == nil {
		t.Fatalf("expected db error")
	}
	expectMet(t, mock)
}

func TestExtendExpiry(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()
	r.DownloadCount = 2
	until := r.ExpiresAt.Add(time.Hour)

	q := `(?s)^UPDATE\s+shared_files\s+SET\s+expires_at\s*=\s*GREATEST\(expires_at,\s*\$2\)\s+` +
		`WHERE\s+file_id=\$1\s+AND\s+NOT\s+is_deleted\s+RETURNING\s+file_id,`

	extended := *r
	extended.ExpiresAt = until
	mock.ExpectQuery(q).WithArgs(r.FileID, until).WillReturnRows(recordRow(&extended))
	mock.ExpectQuery(q).WithArgs(r.FileID, until).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs(r.FileID, until).WillReturnError(errors.New("db down"))

	got, ok, err := repo.ExtendExpiry(context.Background(), r.FileID, until)
	if err != nil || !ok || !got.ExpiresAt.Equal(until) || got.DownloadCount != 2 {
		t.Fatalf("want extended record, got %+v %v %v", got, ok, err)
	}
	if _, ok, err = repo.ExtendExpiry(context.Background(), r.FileID, until); err != nil || ok {
		t.Fatalf("want ok=false without error, got %v %v", ok, err)
	}
	if _, _, err = repo.ExtendExpiry(context.Background(), r.FileID, until); err == nil {
		t.Fatalf("expected db error")
	}
	expectMet(t, mock)
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+shared_files\s+WHERE\s+file_id=\$1$`).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+shared_files\s+WHERE\s+file_id=\$1$`).WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Delete(context.Background(), "b"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+EXISTS`).WithArgs("a").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "a")
	if err != nil || !ok {
		t.Fatalf("want true, got %v %v", ok, err)
	}
	expectMet(t, mock)
}

func TestIncrementDownload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()
	r.DownloadCount = 1
	now := t0.Add(time.Hour)

	q := `(?s)^UPDATE\s+shared_files\s+SET\s+download_count\s*=\s*download_count\s*\+\s*1\s+` +
		`WHERE\s+file_id=\$1\s+AND\s+NOT\s+is_deleted\s+AND\s+expires_at\s*>\s*\$2\s+AND\s+download_count\s*<\s*max_downloads\s+RETURNING\s+file_id,`

	mock.ExpectQuery(q).WithArgs(r.FileID, now).WillReturnRows(recordRow(r))
	mock.ExpectQuery(q).WithArgs(r.FileID, now).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs(r.FileID, now).WillReturnError(errors.New("db down"))

	got, ok, err := repo.IncrementDownload(context.Background(), r.FileID, now)
	if err != nil || !ok || got.DownloadCount != 1 {
		t.Fatalf("want incremented record, got %+v %v %v", got, ok, err)
	}

	got, ok, err = repo.IncrementDownload(context.Background(), r.FileID, now)
	if err != nil || ok || got != nil {
		t.Fatalf("want condition miss, got %+v %v %v", got, ok, err)
	}

	_, _, err = repo.IncrementDownload(context.Background(), r.FileID, now)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	expectMet(t, mock)
}

func TestFindExpiredAndExhausted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()

	mock.ExpectQuery(`FROM\s+shared_files\s+WHERE\s+expires_at\s*<=\s*\$1`).WithArgs(t0).
		WillReturnRows(recordRow(r))
	mock.ExpectQuery(`FROM\s+shared_files\s+WHERE\s+download_count\s*>=\s*max_downloads`).
		WillReturnRows(sqlmock.NewRows(colNames))

	expired, err := repo.FindExpired(context.Background(), t0)
	if err != nil || len(expired) != 1 {
		t.Fatalf("want 1 expired, got %d %v", len(expired), err)
	}
	exhausted, err := repo.FindExhausted(context.Background())
	if err != nil || len(exhausted) != 0 {
		t.Fatalf("want 0 exhausted, got %d %v", len(exhausted), err)
	}
	expectMet(t, mock)
}

func TestFindExpired_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+shared_files`).WillReturnError(errors.New("boom"))

	_, err := repo.FindExpired(context.Background(), t0)
	if err == nil || !regexp.MustCompile(`failed to select shared files: boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDeleteMany(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+shared_files\s+WHERE\s+file_id\s+IN\s+\(\$1, \$2, \$3\)$`).
		WithArgs("a", "b", "c").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteMany(context.Background(), []string{"a", "b", "c"})
	if err != nil || n != 2 {
		t.Fatalf("want 2, got %d %v", n, err)
	}

	n, err = repo.DeleteMany(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("empty ids must be a no-op, got %d %v", n, err)
	}
	expectMet(t, mock)
}

func TestDeleteStale(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	r := sampleRecord()
	r.IsDeleted = true

	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+shared_files\s+WHERE\s+is_deleted\s+OR\s+expires_at\s*<=\s*\$1\s+OR\s+download_count\s*>=\s*max_downloads\s+RETURNING`).
		WithArgs(t0).
		WillReturnRows(recordRow(r))

	recs, err := repo.DeleteStale(context.Background(), t0)
	if err != nil || len(recs) != 1 || !recs[0].IsDeleted {
		t.Fatalf("want one deleted record, got %v %v", recs, err)
	}
	expectMet(t, mock)
}

func TestPing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT 1$`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`^SELECT 1$`).WillReturnError(errors.New("down"))

	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Ping(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	expectMet(t, mock)
}
