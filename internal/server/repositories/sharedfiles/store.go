package sharedfiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/models"
	"github.com/dmitrijs2005/zkshare/internal/server/blobstore"
)

// ErrChecksumMismatch is returned when a stored blob no longer hashes to the
// checksum recorded at upload.
var ErrChecksumMismatch = errors.New("blob checksum mismatch")

// Transactor runs fn against a MetadataRepository bound to one database
// transaction. The transaction commits when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repo MetadataRepository) error) error
}

type StoreOptions struct {
	// Transactor makes Cleanup all-or-nothing. Without it a record whose blob
	// cannot be removed is written back so the next sweep retries it.
	Transactor Transactor
	Logger     logging.Logger
}

// Store is the Repository built from a metadata repository and a blob store.
type Store struct {
	meta   MetadataRepository
	blobs  blobstore.BlobStore
	tx     Transactor
	logger logging.Logger
}

var _ Repository = (*Store)(nil)

func NewStore(meta MetadataRepository, blobs blobstore.BlobStore, opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		meta:   meta,
		blobs:  blobs,
		tx:     opts.Transactor,
		logger: logger.With("module", "sharedfiles"),
	}
}

// Checksum is the BLAKE3-256 digest stored with every record.
func Checksum(blob []byte) []byte {
	sum := blake3.Sum256(blob)
	return sum[:]
}

func notFoundOrStorage(op string, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return common.WrapStorage(op, err)
}

func (s *Store) Store(ctx context.Context, rec *Record, blob []byte) error {
	if rec == nil || rec.FileID == "" || rec.StorageKey == "" {
		return common.NewValidationError("record", "file id and storage key are required")
	}
	if len(blob) == 0 {
		return common.NewValidationError("encryptedBlob", "must not be empty")
	}
	if rec.EncryptedSize != int64(len(blob)) {
		return common.NewValidationError("encryptedSize", "is %d, blob has %d bytes", rec.EncryptedSize, len(blob))
	}
	rec.Checksum = Checksum(blob)

	if err := s.blobs.Put(ctx, rec.StorageKey, blob); err != nil {
		return common.WrapStorage("put blob", err)
	}

	if err := s.meta.Insert(ctx, rec); err != nil {
		if derr := s.blobs.Delete(ctx, rec.StorageKey); derr != nil && !errors.Is(derr, blobstore.ErrBlobNotFound) {
			s.logger.Error(ctx, "orphan blob left after failed insert", "file_id", rec.FileID, "error", derr)
		}
		return common.WrapStorage("insert record", err)
	}

	s.logger.Debug(ctx, "file stored", "file_id", rec.FileID, "size", rec.EncryptedSize)
	return nil
}

func (s *Store) loadBlob(ctx context.Context, rec *Record) ([]byte, error) {
	blob, err := s.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		return nil, common.WrapStorage("get blob", err)
	}
	if len(rec.Checksum) > 0 && !bytes.Equal(Checksum(blob), rec.Checksum) {
		return nil, common.WrapStorage("verify blob", ErrChecksumMismatch)
	}
	return blob, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*File, error) {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, notFoundOrStorage("get record", err)
	}
	blob, err := s.loadBlob(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &File{Record: rec, Blob: blob}, nil
}

func (s *Store) Update(ctx context.Context, rec *Record) error {
	if err := s.meta.Update(ctx, rec); err != nil {
		return notFoundOrStorage("update record", err)
	}
	return nil
}

func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	if err := s.meta.MarkDeleted(ctx, id); err != nil {
		return notFoundOrStorage("mark deleted", err)
	}
	return nil
}

func (s *Store) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) (time.Time, error) {
	rec, ok, err := s.meta.ExtendExpiry(ctx, id, expiresAt)
	if err != nil {
		return time.Time{}, common.WrapStorage("extend expiry", err)
	}
	if ok {
		return rec.ExpiresAt, nil
	}

	rec, err = s.meta.Get(ctx, id)
	if err != nil {
		return time.Time{}, notFoundOrStorage("get record", err)
	}
	if rec.IsDeleted {
		return time.Time{}, &common.LifecycleError{FileID: id, Err: common.ErrCannotExtendDeletedFile}
	}
	return time.Time{}, common.WrapStorage("extend expiry", fmt.Errorf("record %s not updated", id))
}

func (s *Store) Delete(ctx context.Context, id string) error {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return notFoundOrStorage("get record", err)
	}
	if err := s.meta.Delete(ctx, id); err != nil {
		return notFoundOrStorage("delete record", err)
	}
	if err := s.deleteBlob(ctx, rec); err != nil {
		return err
	}
	return nil
}

func (s *Store) deleteBlob(ctx context.Context, rec *Record) error {
	err := s.blobs.Delete(ctx, rec.StorageKey)
	if err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		return common.WrapStorage("delete blob", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.meta.Exists(ctx, id)
	if err != nil {
		return false, common.WrapStorage("exists", err)
	}
	return ok, nil
}

func (s *Store) GetMetadata(ctx context.Context, id string) (*Record, error) {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, notFoundOrStorage("get record", err)
	}
	return rec, nil
}

func (s *Store) FindExpiredFiles(ctx context.Context, now time.Time) ([]*Record, error) {
	recs, err := s.meta.FindExpired(ctx, now)
	if err != nil {
		return nil, common.WrapStorage("find expired", err)
	}
	return recs, nil
}

func (s *Store) FindExhaustedFiles(ctx context.Context) ([]*Record, error) {
	recs, err := s.meta.FindExhausted(ctx)
	if err != nil {
		return nil, common.WrapStorage("find exhausted", err)
	}
	return recs, nil
}

// BulkDelete removes the given files. Unknown ids are skipped; the result is
// the number of records removed.
func (s *Store) BulkDelete(ctx context.Context, ids []string) (int, error) {
	var recs []*Record
	for _, id := range ids {
		rec, err := s.meta.Get(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return 0, common.WrapStorage("get record", err)
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	found := make([]string, len(recs))
	for i, r := range recs {
		found[i] = r.FileID
	}
	n, err := s.meta.DeleteMany(ctx, found)
	if err != nil {
		return 0, common.WrapStorage("delete records", err)
	}

	var errs []error
	for _, r := range recs {
		errs = append(errs, s.deleteBlob(ctx, r))
	}
	return n, errors.Join(errs...)
}

func (s *Store) Cleanup(ctx context.Context, now time.Time) (int, error) {
	if s.tx != nil {
		var removed int
		err := s.tx.InTx(ctx, func(ctx context.Context, repo MetadataRepository) error {
			recs, err := repo.DeleteStale(ctx, now)
			if err != nil {
				return common.WrapStorage("delete stale", err)
			}
			for _, r := range recs {
				if err := s.deleteBlob(ctx, r); err != nil {
					return fmt.Errorf("file %s: %w", r.FileID, err)
				}
			}
			removed = len(recs)
			return nil
		})
		if err != nil {
			return 0, err
		}
		return removed, nil
	}

	recs, err := s.meta.DeleteStale(ctx, now)
	if err != nil {
		return 0, common.WrapStorage("delete stale", err)
	}
	removed := 0
	var errs []error
	for _, r := range recs {
		if err := s.deleteBlob(ctx, r); err != nil {
			if ierr := s.meta.Insert(ctx, r); ierr != nil {
				s.logger.Error(ctx, "failed to restore record after blob error", "file_id", r.FileID, "error", ierr)
			}
			errs = append(errs, fmt.Errorf("file %s: %w", r.FileID, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// VerifyIntegrity checks that the blob exists, has the recorded size and
// still hashes to the recorded checksum.
func (s *Store) VerifyIntegrity(ctx context.Context, id string) error {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return notFoundOrStorage("get record", err)
	}
	blob, err := s.loadBlob(ctx, rec)
	if err != nil {
		return err
	}
	if int64(len(blob)) != rec.EncryptedSize {
		return common.WrapStorage("verify blob", fmt.Errorf("size %d, recorded %d", len(blob), rec.EncryptedSize))
	}
	return nil
}

func (s *Store) GetHealth(ctx context.Context) Health {
	h := Health{Healthy: true, Metadata: "ok", Blobs: "ok"}
	if err := s.meta.Ping(ctx); err != nil {
		h.Healthy = false
		h.Metadata = "unavailable"
		s.logger.Warn(ctx, "metadata store unhealthy", "error", err)
	}
	if err := s.blobs.Ping(ctx); err != nil {
		h.Healthy = false
		h.Blobs = "unavailable"
		s.logger.Warn(ctx, "blob store unhealthy", "error", err)
	}
	return h
}

// lifecycleCheck runs the record through the domain state machine at now and
// returns the lifecycle error it would raise, if any.
func lifecycleCheck(rec *Record, now time.Time) error {
	sf, err := models.RestoreSharedFile(rec.Snapshot(), clock.NewFake(now))
	if err != nil {
		return common.WrapStorage("restore record", err)
	}
	return sf.RecordDownload()
}

func (s *Store) RecordDownload(ctx context.Context, id string, now time.Time) (*Record, error) {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, notFoundOrStorage("get record", err)
	}
	if err := lifecycleCheck(rec, now); err != nil {
		return nil, err
	}

	updated, ok, err := s.meta.IncrementDownload(ctx, id, now)
	if err != nil {
		return nil, common.WrapStorage("increment download", err)
	}
	if ok {
		return updated, nil
	}

	// Lost a race with another download or a delete; explain from fresh state.
	rec, err = s.meta.Get(ctx, id)
	if err != nil {
		return nil, notFoundOrStorage("get record", err)
	}
	if err := lifecycleCheck(rec, now); err != nil {
		return nil, err
	}
	return nil, &common.LifecycleError{FileID: id, Err: common.ErrDownloadLimitExceeded}
}
