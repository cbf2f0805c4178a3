package sharedfiles

import (
	"context"
	"time"
)

// MetadataRepository stores Records. Implementations return
// common.ErrorNotFound for unknown ids and common.ErrorAlreadyExists when an
// inserted id is taken.
type MetadataRepository interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Update writes expiry and the deleted flag. download_count is owned by
	// IncrementDownload and never written here, and a deleted record stays
	// deleted.
	Update(ctx context.Context, rec *Record) error
	// MarkDeleted sets the deleted flag without touching any other field.
	MarkDeleted(ctx context.Context, id string) error
	// ExtendExpiry moves expires_at forward to expiresAt unless it is already
	// later. Deleted records are left alone and ok is false.
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) (rec *Record, ok bool, err error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	// IncrementDownload adds one download if, at now, the file is not
	// deleted, not expired and below its limit. The check and the write are
	// a single atomic step. ok is false when the condition did not hold.
	IncrementDownload(ctx context.Context, id string, now time.Time) (rec *Record, ok bool, err error)
	FindExpired(ctx context.Context, now time.Time) ([]*Record, error)
	FindExhausted(ctx context.Context) ([]*Record, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
	// DeleteStale removes deleted, expired and exhausted records and returns
	// what it removed.
	DeleteStale(ctx context.Context, now time.Time) ([]*Record, error)
	Ping(ctx context.Context) error
}

// Health is the result of Repository.GetHealth.
type Health struct {
	Healthy  bool   `json:"healthy"`
	Metadata string `json:"metadata"`
	Blobs    string `json:"blobs"`
}

// Repository is the persistence port used by the share service.
type Repository interface {
	// Store writes blob then rec. If the record cannot be written the blob is
	// removed again.
	Store(ctx context.Context, rec *Record, blob []byte) error
	FindByID(ctx context.Context, id string) (*File, error)
	Update(ctx context.Context, rec *Record) error
	// MarkDeleted soft-deletes a file. Concurrent downloads keep their count.
	MarkDeleted(ctx context.Context, id string) error
	// ExtendExpiry moves the expiry forward and returns the stored value.
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) (time.Time, error)
	// Delete removes the record and its blob.
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	GetMetadata(ctx context.Context, id string) (*Record, error)
	FindExpiredFiles(ctx context.Context, now time.Time) ([]*Record, error)
	FindExhaustedFiles(ctx context.Context) ([]*Record, error)
	BulkDelete(ctx context.Context, ids []string) (int, error)
	// Cleanup hard-deletes every stale file and returns how many went.
	Cleanup(ctx context.Context, now time.Time) (int, error)
	VerifyIntegrity(ctx context.Context, id string) error
	GetHealth(ctx context.Context) Health
	// RecordDownload atomically counts one download or returns the
	// lifecycle error explaining why it is not allowed.
	RecordDownload(ctx context.Context, id string, now time.Time) (*Record, error)
}
