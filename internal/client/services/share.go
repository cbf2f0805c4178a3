// Package services contains application services for the zkshare client:
// encrypt and upload a file, download and decrypt a share link, and manage
// shares the user has sent.
//
// Keys are generated or derived here and never leave the process. The
// server only receives ciphertext, the IV and, for password links, the
// public salt.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/client/client"
	"github.com/dmitrijs2005/zkshare/internal/client/repositories/shares"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/models"
	"github.com/dmitrijs2005/zkshare/internal/netx"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
	"github.com/dmitrijs2005/zkshare/internal/sharelink"
)

// maxBlobSize bounds a blob fetched from a presigned URL.
const maxBlobSize = common.MaxUploadSize + pipeline.Overhead

// ShareService defines the client-side share operations.
//
// Delete and Extend take the manage token returned at upload time. An empty
// token is looked up in the local history when one is configured.
type ShareService interface {
	UploadFile(ctx context.Context, path string, opts UploadOptions) (*SentShare, error)
	UploadBytes(ctx context.Context, name, mimeType string, data []byte, opts UploadOptions) (*SentShare, error)
	Download(ctx context.Context, link, password string) (*ReceivedFile, error)
	Info(ctx context.Context, fileID string) (*client.MetadataResponse, error)
	Delete(ctx context.Context, fileID, manageToken string) error
	Extend(ctx context.Context, fileID, manageToken string, hours int) (time.Time, error)
	History(ctx context.Context) ([]shares.Share, error)
}

// UploadOptions zero values select 24 hours and a single download. A
// non-empty Password makes a password link.
type UploadOptions struct {
	TTLHours     int
	MaxDownloads int
	Password     string
}

// SentShare is the result of an upload. Link is the full link with the key
// fragment and must only be shown to the sender.
type SentShare struct {
	FileID      string
	Link        string
	ShareURL    string
	ExpiresAt   time.Time
	ManageToken string
}

type ReceivedFile struct {
	FileID             string
	Data               []byte
	ExpiresAt          time.Time
	RemainingDownloads int
}

type shareService struct {
	api       client.Client
	pipeline  *pipeline.Pipeline
	encryptor *models.ClientEncryptor
	history   shares.Repository
	logger    logging.Logger
	now       func() time.Time
}

// NewShareService builds the client service. history may be nil.
func NewShareService(api client.Client, p *pipeline.Pipeline, history shares.Repository, logger logging.Logger) ShareService {
	if logger == nil {
		logger = logging.Nop()
	}
	if p == nil {
		p = pipeline.New(pipeline.DefaultOptions(), nil, logger)
	}
	return &shareService{
		api:       api,
		pipeline:  p,
		encryptor: models.NewClientEncryptor(models.ClientCapability(), p),
		history:   history,
		logger:    logger.With("module", "share_client"),
		now:       time.Now,
	}
}

func (o UploadOptions) withDefaults() UploadOptions {
	if o.TTLHours == 0 {
		o.TTLHours = common.DefaultTTLHours
	}
	if o.MaxDownloads == 0 {
		o.MaxDownloads = common.MinDownloads
	}
	return o
}

func (o UploadOptions) validate() error {
	if err := models.ValidateTTLHours(o.TTLHours); err != nil {
		return err
	}
	if err := models.ValidateMaxDownloads(o.MaxDownloads); err != nil {
		return err
	}
	if o.Password != "" {
		return models.ValidatePassword(o.Password)
	}
	return nil
}

func (s *shareService) UploadFile(ctx context.Context, path string, opts UploadOptions) (*SentShare, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, common.NewValidationError("file", "is a directory")
	}
	if err := models.ValidateFileSize(info.Size()); err != nil {
		return nil, err
	}

	return s.upload(ctx, opts, func(key *cryptox.Key) (*models.EncryptedFile, error) {
		return s.encryptor.CreateFromFile(ctx, path, key)
	})
}

func (s *shareService) UploadBytes(ctx context.Context, name, mimeType string, data []byte, opts UploadOptions) (*SentShare, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := models.ValidateFileSize(int64(len(data))); err != nil {
		return nil, err
	}

	return s.upload(ctx, opts, func(key *cryptox.Key) (*models.EncryptedFile, error) {
		return s.encryptor.CreateFromBytes(ctx, name, mimeType, data, key)
	})
}

// newKey returns a random key with its link fragment, or a password key
// with the salt the server must store.
func (s *shareService) newKey(password string) (*cryptox.Key, string, []byte, error) {
	if password == "" {
		key := cryptox.GenerateKey()
		fragment, err := sharelink.KeyFragment(key)
		if err != nil {
			key.Dispose()
			return nil, "", nil, err
		}
		return key, fragment, nil, nil
	}

	salt := cryptox.GenerateSalt()
	key, err := s.pipeline.DeriveKey([]byte(password), salt)
	if err != nil {
		return nil, "", nil, err
	}
	return key, sharelink.PasswordFragment, salt, nil
}

func (s *shareService) upload(ctx context.Context, opts UploadOptions, encrypt func(*cryptox.Key) (*models.EncryptedFile, error)) (*SentShare, error) {
	key, fragment, salt, err := s.newKey(opts.Password)
	if err != nil {
		return nil, err
	}
	defer key.Dispose()

	ef, err := encrypt(key)
	if err != nil {
		return nil, err
	}

	resp, err := s.api.Upload(ctx, client.UploadRequest{
		EncryptedBlob: ef.Blob(),
		IV:            ef.IV(),
		TTLHours:      opts.TTLHours,
		MaxDownloads:  opts.MaxDownloads,
		Salt:          salt,
	})
	if err != nil {
		return nil, err
	}

	origin := strings.TrimSuffix(resp.ShareURL, "/s/"+resp.FileID)
	link, err := sharelink.Build(origin, resp.FileID, fragment)
	if err != nil {
		return nil, fmt.Errorf("server returned an unusable share url: %w", err)
	}

	sent := &SentShare{
		FileID:      resp.FileID,
		Link:        link,
		ShareURL:    resp.ShareURL,
		ExpiresAt:   resp.ExpiresAt,
		ManageToken: resp.ManageToken,
	}
	s.remember(ctx, sent, opts)

	s.logger.Info(ctx, "file shared",
		"file_id", sent.FileID,
		"encrypted_size", ef.EncryptedSize(),
		"password_protected", opts.Password != "",
		"expires_at", sent.ExpiresAt,
	)
	return sent, nil
}

// remember stores the share in the local history. A failure there does not
// undo a successful upload.
func (s *shareService) remember(ctx context.Context, sent *SentShare, opts UploadOptions) {
	if s.history == nil {
		return
	}
	err := s.history.Save(ctx, shares.Share{
		FileID:            sent.FileID,
		ShareURL:          sent.ShareURL,
		ManageToken:       sent.ManageToken,
		ExpiresAt:         sent.ExpiresAt,
		MaxDownloads:      opts.MaxDownloads,
		PasswordProtected: opts.Password != "",
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn(ctx, "could not save share to history", "file_id", sent.FileID, "error", err)
	}
}

func (s *shareService) Download(ctx context.Context, raw, password string) (*ReceivedFile, error) {
	link, err := sharelink.Parse(raw)
	if err != nil {
		return nil, err
	}

	var key *cryptox.Key
	if link.RequiresPassword() {
		if password == "" {
			return nil, common.NewValidationError("password", "link requires a password")
		}
	} else {
		if key, err = link.Key(); err != nil {
			return nil, err
		}
		defer key.Dispose()
	}

	resp, err := s.api.Download(ctx, link.FileID)
	if err != nil {
		return nil, err
	}

	blob := resp.EncryptedBlob
	if len(blob) == 0 && resp.BlobURL != "" {
		if blob, err = netx.DownloadFromPresignedURL(ctx, resp.BlobURL, maxBlobSize); err != nil {
			return nil, fmt.Errorf("%w: %v", client.ErrUnavailable, err)
		}
	}

	if key == nil {
		if len(resp.Salt) == 0 {
			return nil, common.NewValidationError("salt", "server returned no salt for a password link")
		}
		if key, err = s.pipeline.DeriveKey([]byte(password), resp.Salt); err != nil {
			return nil, err
		}
		defer key.Dispose()
	}

	ef, err := models.NewEncryptedFile(resp.FileID, blob, resp.IV, nil)
	if err != nil {
		return nil, err
	}
	data, err := ef.Decrypt(ctx, s.pipeline, key)
	if err != nil {
		if errors.Is(err, common.ErrAuthentication) {
			s.logger.Warn(ctx, "decryption failed", "file_id", link.FileID)
		}
		return nil, err
	}

	s.logger.Info(ctx, "file received", "file_id", link.FileID, "remaining_downloads", resp.RemainingDownloads)
	return &ReceivedFile{
		FileID:             resp.FileID,
		Data:               data,
		ExpiresAt:          resp.ExpiresAt,
		RemainingDownloads: resp.RemainingDownloads,
	}, nil
}

func (s *shareService) Info(ctx context.Context, fileID string) (*client.MetadataResponse, error) {
	if !sharelink.ValidFileID(fileID) {
		return nil, common.NewValidationError("fileId", "must be %d characters of [A-Za-z0-9_-]", sharelink.IDLength)
	}
	return s.api.Metadata(ctx, fileID)
}

// manageToken returns token, or the one remembered for fileID.
func (s *shareService) manageToken(ctx context.Context, fileID, token string) (string, error) {
	if token != "" {
		return token, nil
	}
	if s.history == nil {
		return "", common.NewValidationError("manageToken", "required")
	}
	sh, err := s.history.Get(ctx, fileID)
	if errors.Is(err, common.ErrorNotFound) {
		return "", common.NewValidationError("manageToken", "required, no local record for %s", fileID)
	}
	if err != nil {
		return "", err
	}
	return sh.ManageToken, nil
}

func (s *shareService) Delete(ctx context.Context, fileID, token string) error {
	token, err := s.manageToken(ctx, fileID, token)
	if err != nil {
		return err
	}
	if err := s.api.Delete(ctx, fileID, token); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.Delete(ctx, fileID); err != nil {
			s.logger.Warn(ctx, "could not remove share from history", "file_id", fileID, "error", err)
		}
	}
	return nil
}

func (s *shareService) Extend(ctx context.Context, fileID, token string, hours int) (time.Time, error) {
	if err := models.ValidateTTLHours(hours); err != nil {
		return time.Time{}, err
	}
	token, err := s.manageToken(ctx, fileID, token)
	if err != nil {
		return time.Time{}, err
	}
	expiresAt, err := s.api.Extend(ctx, fileID, token, hours)
	if err != nil {
		return time.Time{}, err
	}
	if s.history != nil {
		if err := s.history.UpdateExpiry(ctx, fileID, expiresAt); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "could not update share history", "file_id", fileID, "error", err)
		}
	}
	return expiresAt, nil
}

func (s *shareService) History(ctx context.Context) ([]shares.Share, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx)
}
