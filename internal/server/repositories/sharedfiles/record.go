// Package sharedfiles persists shared files: a metadata record per file in
// a MetadataRepository plus the opaque ciphertext in a blob store. The record
// holds no filename, MIME type, identity or address of the uploader.
package sharedfiles

import (
	"encoding/base64"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/models"
)

// Record is the stored metadata of one shared file.
type Record struct {
	FileID     string
	StorageKey string
	IV         []byte
	// Salt is set only for password links. It is public.
	Salt          []byte
	EncryptedSize int64
	// Checksum is the BLAKE3-256 of the stored blob.
	Checksum      []byte
	UploadedAt    time.Time
	ExpiresAt     time.Time
	MaxDownloads  int
	DownloadCount int
	IsDeleted     bool
}

// File is a record together with its ciphertext.
type File struct {
	Record *Record
	Blob   []byte
}

func (r *Record) clone() *Record {
	c := *r
	c.IV = append([]byte(nil), r.IV...)
	c.Checksum = append([]byte(nil), r.Checksum...)
	if r.Salt != nil {
		c.Salt = append([]byte(nil), r.Salt...)
	}
	return &c
}

func (r *Record) RemainingDownloads() int {
	return max(0, r.MaxDownloads-r.DownloadCount)
}

func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Record) IsExhausted() bool {
	return r.DownloadCount >= r.MaxDownloads
}

func (r *Record) IsAvailable(now time.Time) bool {
	return !r.IsExpired(now) && !r.IsDeleted && r.RemainingDownloads() > 0
}

// isStale marks records the sweeper removes for good.
func (r *Record) isStale(now time.Time) bool {
	return r.IsDeleted || r.IsExpired(now) || r.IsExhausted()
}

// IVBase64 is the IV as stored in the public record.
func (r *Record) IVBase64() string {
	return base64.StdEncoding.EncodeToString(r.IV)
}

// Snapshot converts to the domain form.
func (r *Record) Snapshot() models.SharedFileSnapshot {
	return models.SharedFileSnapshot{
		ID:            r.FileID,
		FileRef:       r.StorageKey,
		Size:          r.EncryptedSize,
		CreatedAt:     r.UploadedAt,
		ExpiresAt:     r.ExpiresAt,
		MaxDownloads:  r.MaxDownloads,
		DownloadCount: r.DownloadCount,
		IsDeleted:     r.IsDeleted,
	}
}

// NewRecord builds the record for a freshly created SharedFile.
func NewRecord(sf *models.SharedFile, iv, salt []byte) *Record {
	s := sf.Snapshot()
	r := &Record{
		FileID:        s.ID,
		StorageKey:    s.FileRef,
		IV:            append([]byte(nil), iv...),
		EncryptedSize: s.Size,
		UploadedAt:    s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		MaxDownloads:  s.MaxDownloads,
		DownloadCount: s.DownloadCount,
		IsDeleted:     s.IsDeleted,
	}
	if len(salt) > 0 {
		r.Salt = append([]byte(nil), salt...)
	}
	return r
}
