package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/sharelink"
)

// State of a SharedFile. Deleted is terminal.
type State int

const (
	StateActive State = iota
	StateExpired
	StateExhausted
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateExhausted:
		return "exhausted"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SharedFile applies TTL and download limits to one uploaded ciphertext. It
// only ever changes through RecordDownload, MarkAsDeleted and ExtendTTL, and
// never removes itself: ShouldAutoDelete is read by the sweeper.
//
// SharedFile is not safe for concurrent use. Concurrent downloads are
// serialized by the repository's conditional increment, not here.
type SharedFile struct {
	id            string
	fileRef       string
	size          int64
	createdAt     time.Time
	expiresAt     time.Time
	maxDownloads  int
	downloadCount int
	deleted       bool

	clk clock.Clock
}

// NewAnonymousSharedFile wraps an uploaded file under a fresh share id.
func NewAnonymousSharedFile(file *EncryptedFile, ttlHours, maxDownloads int, clk clock.Clock) (*SharedFile, error) {
	if file == nil {
		return nil, common.NewValidationError("file", "must not be nil")
	}
	if err := ValidateTTLHours(ttlHours); err != nil {
		return nil, err
	}
	if err := ValidateMaxDownloads(maxDownloads); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}

	now := clk.Now().UTC()
	return &SharedFile{
		id:           sharelink.NewFileID(),
		fileRef:      file.ID(),
		size:         int64(file.EncryptedSize()),
		createdAt:    now,
		expiresAt:    now.Add(time.Duration(ttlHours) * time.Hour),
		maxDownloads: maxDownloads,
		clk:          clk,
	}, nil
}

func (f *SharedFile) ID() string           { return f.id }
func (f *SharedFile) FileRef() string      { return f.fileRef }
func (f *SharedFile) Size() int64          { return f.size }
func (f *SharedFile) CreatedAt() time.Time { return f.createdAt }
func (f *SharedFile) ExpiresAt() time.Time { return f.expiresAt }
func (f *SharedFile) MaxDownloads() int    { return f.maxDownloads }
func (f *SharedFile) DownloadCount() int   { return f.downloadCount }
func (f *SharedFile) IsDeleted() bool      { return f.deleted }

// IsExpired is true once now >= expiresAt.
func (f *SharedFile) IsExpired() bool {
	return !f.clk.Now().Before(f.expiresAt)
}

func (f *SharedFile) IsExhausted() bool {
	return f.downloadCount >= f.maxDownloads
}

func (f *SharedFile) RemainingDownloads() int {
	return max(0, f.maxDownloads-f.downloadCount)
}

func (f *SharedFile) IsAvailable() bool {
	return !f.IsExpired() && !f.deleted && f.RemainingDownloads() > 0
}

// ShouldAutoDelete tells the sweeper the file can be removed for good.
func (f *SharedFile) ShouldAutoDelete() bool {
	return f.IsExpired() || f.IsExhausted()
}

// State reports Deleted over Expired over Exhausted.
func (f *SharedFile) State() State {
	switch {
	case f.deleted:
		return StateDeleted
	case f.IsExpired():
		return StateExpired
	case f.IsExhausted():
		return StateExhausted
	default:
		return StateActive
	}
}

func (f *SharedFile) lifecycleErr(err error) error {
	return &common.LifecycleError{FileID: f.id, Err: err}
}

// RecordDownload counts one download. It fails unless the file is Active.
func (f *SharedFile) RecordDownload() error {
	switch f.State() {
	case StateDeleted:
		return f.lifecycleErr(common.ErrFileDeleted)
	case StateExpired:
		return f.lifecycleErr(common.ErrFileExpired)
	case StateExhausted:
		return f.lifecycleErr(common.ErrDownloadLimitExceeded)
	}
	f.downloadCount++
	return nil
}

// MarkAsDeleted moves the file to Deleted. Repeated calls are no-ops.
func (f *SharedFile) MarkAsDeleted() {
	f.deleted = true
}

// ExtendTTL pushes expiresAt out by hours, counted from the later of now and
// the current expiry. The result never passes createdAt + MaxTTL.
func (f *SharedFile) ExtendTTL(hours int) (time.Time, error) {
	if f.deleted {
		return f.expiresAt, f.lifecycleErr(common.ErrCannotExtendDeletedFile)
	}
	if err := ValidateTTLHours(hours); err != nil {
		return f.expiresAt, err
	}

	base := f.clk.Now().UTC()
	if f.expiresAt.After(base) {
		base = f.expiresAt
	}
	next := base.Add(time.Duration(hours) * time.Hour)
	if ceiling := f.createdAt.Add(common.MaxTTL); next.After(ceiling) {
		next = ceiling
	}
	if next.After(f.expiresAt) {
		f.expiresAt = next
	}
	return f.expiresAt, nil
}

func (f *SharedFile) String() string {
	return fmt.Sprintf("SharedFile{id=%s, state=%s, downloads=%d/%d, expiresAt=%s}",
		f.id, f.State(), f.downloadCount, f.maxDownloads, f.expiresAt.Format(time.RFC3339))
}

// SharedFileSnapshot is the persisted form of a SharedFile.
type SharedFileSnapshot struct {
	ID            string    `json:"fileId"`
	FileRef       string    `json:"fileRef"`
	Size          int64     `json:"encryptedSize"`
	CreatedAt     time.Time `json:"uploadedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	MaxDownloads  int       `json:"maxDownloads"`
	DownloadCount int       `json:"downloadCount"`
	IsDeleted     bool      `json:"isDeleted"`
}

func (f *SharedFile) Snapshot() SharedFileSnapshot {
	return SharedFileSnapshot{
		ID:            f.id,
		FileRef:       f.fileRef,
		Size:          f.size,
		CreatedAt:     f.createdAt,
		ExpiresAt:     f.expiresAt,
		MaxDownloads:  f.maxDownloads,
		DownloadCount: f.downloadCount,
		IsDeleted:     f.deleted,
	}
}

// RestoreSharedFile rebuilds a SharedFile from storage, rejecting records that
// break the entity's invariants.
func RestoreSharedFile(s SharedFileSnapshot, clk clock.Clock) (*SharedFile, error) {
	if !sharelink.ValidFileID(s.ID) {
		return nil, common.NewValidationError("fileId", "invalid")
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return nil, common.NewValidationError("expiresAt", "must be after createdAt")
	}
	if s.ExpiresAt.Sub(s.CreatedAt) > common.MaxTTL {
		return nil, common.NewValidationError("expiresAt", "exceeds maximum TTL")
	}
	if err := ValidateMaxDownloads(s.MaxDownloads); err != nil {
		return nil, err
	}
	if s.DownloadCount < 0 || s.DownloadCount > s.MaxDownloads {
		return nil, common.NewValidationError("downloadCount", "must be between 0 and %d", s.MaxDownloads)
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &SharedFile{
		id:            s.ID,
		fileRef:       s.FileRef,
		size:          s.Size,
		createdAt:     s.CreatedAt,
		expiresAt:     s.ExpiresAt,
		maxDownloads:  s.MaxDownloads,
		downloadCount: s.DownloadCount,
		deleted:       s.IsDeleted,
		clk:           clk,
	}, nil
}
