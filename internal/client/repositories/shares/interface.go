package shares

import (
	"context"
	"time"
)

// Share is what the sender keeps about an upload. It never holds the key or
// the link fragment, only the base link and the manage token.
type Share struct {
	FileID            string
	ShareURL          string
	ManageToken       string
	ExpiresAt         time.Time
	MaxDownloads      int
	PasswordProtected bool
	CreatedAt         time.Time
}

type Repository interface {
	Save(ctx context.Context, s Share) error
	Get(ctx context.Context, fileID string) (*Share, error)
	List(ctx context.Context) ([]Share, error)
	UpdateExpiry(ctx context.Context, fileID string, expiresAt time.Time) error
	Delete(ctx context.Context, fileID string) error
}
