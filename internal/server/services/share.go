// Package services contains the server-side use cases. ShareService accepts
// ciphertext from anonymous senders, serves it back under the lifecycle
// rules and lets the holder of a manage token delete or extend a share.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/models"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
	"github.com/dmitrijs2005/zkshare/internal/server/auth"
	"github.com/dmitrijs2005/zkshare/internal/server/repositories/sharedfiles"
	"github.com/dmitrijs2005/zkshare/internal/sharelink"
)

// uploadAttempts bounds retries on a file id collision.
const uploadAttempts = 2

const (
	minSaltLen = 8
	maxSaltLen = 64
)

// Presigner hands out direct download URLs for stored blobs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type ShareOptions struct {
	// BaseURL is the public origin used to build share links.
	BaseURL   string
	SecretKey []byte
	// MaxUploadSize limits the plaintext; the blob may exceed it by
	// pipeline.Overhead.
	MaxUploadSize       int64
	ManageTokenValidity time.Duration
	// Presigner, when set, makes Download return a URL instead of the blob.
	Presigner  Presigner
	PresignTTL time.Duration
}

type ShareService struct {
	repo   sharedfiles.Repository
	clk    clock.Clock
	logger logging.Logger
	opts   ShareOptions
}

func NewShareService(repo sharedfiles.Repository, clk clock.Clock, logger logging.Logger, opts ShareOptions) *ShareService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = common.MaxUploadSize
	}
	if opts.ManageTokenValidity <= 0 {
		opts.ManageTokenValidity = common.MaxTTL
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 5 * time.Minute
	}
	return &ShareService{
		repo:   repo,
		clk:    clk,
		logger: logger.With("module", "share"),
		opts:   opts,
	}
}

type UploadRequest struct {
	EncryptedBlob []byte
	IV            []byte
	TTLHours      int
	MaxDownloads  int
	// Salt is present for password links.
	Salt []byte
}

type UploadResult struct {
	FileID string
	// ShareURL has no fragment; the client appends it.
	ShareURL    string
	ExpiresAt   time.Time
	ManageToken string
}

type DownloadResult struct {
	FileID        string
	EncryptedBlob []byte
	// BlobURL replaces EncryptedBlob when presigned downloads are on.
	BlobURL            string
	IV                 []byte
	Salt               []byte
	Size               int64
	ExpiresAt          time.Time
	RemainingDownloads int
	DownloadCount      int
}

type FileMetadata struct {
	FileID             string
	Size               int64
	UploadedAt         time.Time
	ExpiresAt          time.Time
	MaxDownloads       int
	DownloadCount      int
	RemainingDownloads int
	State              models.State
	PasswordProtected  bool
}

func (s *ShareService) validateUpload(req UploadRequest) error {
	if len(req.EncryptedBlob) == 0 {
		return common.NewValidationError("encryptedBlob", "must not be empty")
	}
	if limit := s.opts.MaxUploadSize + pipeline.Overhead; int64(len(req.EncryptedBlob)) > limit {
		return common.NewValidationError("encryptedBlob", "must not exceed %d bytes", limit)
	}
	if len(req.EncryptedBlob) < cryptox.TagSize {
		return common.NewValidationError("encryptedBlob", "shorter than the authentication tag")
	}
	if len(req.IV) != cryptox.IVSize {
		return common.NewValidationError("iv", "must be %d bytes, got %d", cryptox.IVSize, len(req.IV))
	}
	if err := models.ValidateTTLHours(req.TTLHours); err != nil {
		return err
	}
	if err := models.ValidateMaxDownloads(req.MaxDownloads); err != nil {
		return err
	}
	if req.Salt != nil && (len(req.Salt) < minSaltLen || len(req.Salt) > maxSaltLen) {
		return common.NewValidationError("salt", "must be between %d and %d bytes", minSaltLen, maxSaltLen)
	}
	return nil
}

func (s *ShareService) newStorageKey() string {
	d := s.clk.Now().UTC()
	return fmt.Sprintf("files/%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.NewString())
}

// Upload validates the request before touching storage, then stores the blob
// under a fresh file id.
func (s *ShareService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}

	var (
		sf  *models.SharedFile
		err error
	)
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		var file *models.EncryptedFile
		file, err = models.NewEncryptedFile(s.newStorageKey(), req.EncryptedBlob, req.IV, nil)
		if err != nil {
			return nil, err
		}
		sf, err = models.NewAnonymousSharedFile(file, req.TTLHours, req.MaxDownloads, s.clk)
		if err != nil {
			return nil, err
		}

		err = s.repo.Store(ctx, sharedfiles.NewRecord(sf, req.IV, req.Salt), req.EncryptedBlob)
		if err == nil {
			break
		}
		if !errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		s.logger.Warn(ctx, "file id collision, retrying", "attempt", attempt)
	}
	if err != nil {
		return nil, common.WrapStorage("store", err)
	}

	shareURL, err := sharelink.BaseURL(s.opts.BaseURL, sf.ID())
	if err != nil {
		return nil, err
	}
	token, err := auth.GenerateManageToken(sf.ID(), s.opts.SecretKey, s.opts.ManageTokenValidity)
	if err != nil {
		return nil, fmt.Errorf("manage token: %w", err)
	}

	s.logger.Info(ctx, "file uploaded",
		"file_id", sf.ID(),
		"size", sf.Size(),
		"ttl_hours", req.TTLHours,
		"max_downloads", req.MaxDownloads,
	)

	return &UploadResult{
		FileID:      sf.ID(),
		ShareURL:    shareURL,
		ExpiresAt:   sf.ExpiresAt(),
		ManageToken: token,
	}, nil
}

func checkFileID(id string) error {
	if !sharelink.ValidFileID(id) {
		return common.NewValidationError("fileId", "invalid")
	}
	return nil
}

// Download counts one download and returns the ciphertext. The blob is read
// and verified before the count is taken, so a storage failure never uses up
// a download.
func (s *ShareService) Download(ctx context.Context, id string) (*DownloadResult, error) {
	if err := checkFileID(id); err != nil {
		return nil, err
	}

	var (
		blob    []byte
		blobURL string
	)
	if s.opts.Presigner != nil {
		rec, err := s.repo.GetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		blobURL, err = s.opts.Presigner.PresignGet(ctx, rec.StorageKey, s.opts.PresignTTL)
		if err != nil {
			return nil, common.WrapStorage("presign", err)
		}
	} else {
		f, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		blob = f.Blob
	}

	rec, err := s.repo.RecordDownload(ctx, id, s.clk.Now().UTC())
	if err != nil {
		if common.IsLifecycle(err) {
			s.logger.Info(ctx, "download refused", "file_id", id, "reason", err)
		}
		return nil, err
	}

	s.logger.Info(ctx, "file downloaded", "file_id", id, "remaining", rec.RemainingDownloads())

	return &DownloadResult{
		FileID:             rec.FileID,
		EncryptedBlob:      blob,
		BlobURL:            blobURL,
		IV:                 rec.IV,
		Salt:               rec.Salt,
		Size:               rec.EncryptedSize,
		ExpiresAt:          rec.ExpiresAt,
		RemainingDownloads: rec.RemainingDownloads(),
		DownloadCount:      rec.DownloadCount,
	}, nil
}

func (s *ShareService) restore(rec *sharedfiles.Record) (*models.SharedFile, error) {
	sf, err := models.RestoreSharedFile(rec.Snapshot(), s.clk)
	if err != nil {
		return nil, common.WrapStorage("restore record", err)
	}
	return sf, nil
}

// Metadata describes a file without counting a download. Deleted files
// report FileDeleted; every other state is described.
func (s *ShareService) Metadata(ctx context.Context, id string) (*FileMetadata, error) {
	if err := checkFileID(id); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	sf, err := s.restore(rec)
	if err != nil {
		return nil, err
	}
	if sf.IsDeleted() {
		return nil, &common.LifecycleError{FileID: id, Err: common.ErrFileDeleted}
	}
	return &FileMetadata{
		FileID:             id,
		Size:               sf.Size(),
		UploadedAt:         sf.CreatedAt(),
		ExpiresAt:          sf.ExpiresAt(),
		MaxDownloads:       sf.MaxDownloads(),
		DownloadCount:      sf.DownloadCount(),
		RemainingDownloads: sf.RemainingDownloads(),
		State:              sf.State(),
		PasswordProtected:  len(rec.Salt) > 0,
	}, nil
}

func (s *ShareService) authorize(id, token string) error {
	if err := checkFileID(id); err != nil {
		return err
	}
	owner, err := auth.FileIDFromManageToken(token, s.opts.SecretKey)
	if err != nil {
		return err
	}
	if owner != id {
		return common.ErrInvalidToken
	}
	return nil
}

// Delete marks the file deleted. The sweeper removes the record and blob
// later. Deleting twice is not an error.
func (s *ShareService) Delete(ctx context.Context, id, token string) error {
	if err := s.authorize(id, token); err != nil {
		return err
	}
	rec, err := s.repo.GetMetadata(ctx, id)
	if err != nil {
		return err
	}
	sf, err := s.restore(rec)
	if err != nil {
		return err
	}
	if sf.IsDeleted() {
		return nil
	}
	if err := s.repo.MarkDeleted(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "file deleted", "file_id", id)
	return nil
}

// ExtendTTL pushes the expiry out by hours, capped at upload time plus the
// maximum TTL, and returns the new expiry.
func (s *ShareService) ExtendTTL(ctx context.Context, id, token string, hours int) (time.Time, error) {
	if err := models.ValidateTTLHours(hours); err != nil {
		return time.Time{}, err
	}
	if err := s.authorize(id, token); err != nil {
		return time.Time{}, err
	}
	rec, err := s.repo.GetMetadata(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	sf, err := s.restore(rec)
	if err != nil {
		return time.Time{}, err
	}
	expiresAt, err := sf.ExtendTTL(hours)
	if err != nil {
		return time.Time{}, err
	}
	// Only the expiry is written; downloads counted since GetMetadata stay.
	if expiresAt, err = s.repo.ExtendExpiry(ctx, id, expiresAt); err != nil {
		return time.Time{}, err
	}
	s.logger.Info(ctx, "ttl extended", "file_id", id, "expires_at", expiresAt)
	return expiresAt, nil
}

func (s *ShareService) Health(ctx context.Context) sharedfiles.Health {
	return s.repo.GetHealth(ctx)
}

func (s *ShareService) VerifyIntegrity(ctx context.Context, id string) error {
	if err := checkFileID(id); err != nil {
		return err
	}
	return s.repo.VerifyIntegrity(ctx, id)
}
