package models

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
	"github.com/google/uuid"
)

// ClientMetadata describes the plaintext. It exists only on the client and is
// never part of ServerMetadata, String or JSON output.
type ClientMetadata struct {
	Filename     string
	MimeType     string
	OriginalSize int64
}

// ServerMetadata is everything about an EncryptedFile the server may know.
type ServerMetadata struct {
	ID            string    `json:"id"`
	IV            string    `json:"iv"`
	EncryptedSize int       `json:"encryptedSize"`
	Algorithm     string    `json:"algorithm"`
	Timestamp     time.Time `json:"timestamp"`
}

// EncryptedFile is an immutable ciphertext with its public parameters.
type EncryptedFile struct {
	id        string
	blob      []byte
	iv        []byte
	timestamp time.Time
	meta      *ClientMetadata
}

// NewEncryptedFile validates and copies its inputs. meta may be nil.
func NewEncryptedFile(id string, blob, iv []byte, meta *ClientMetadata) (*EncryptedFile, error) {
	return newEncryptedFile(id, blob, iv, meta, time.Now().UTC())
}

func newEncryptedFile(id string, blob, iv []byte, meta *ClientMetadata, ts time.Time) (*EncryptedFile, error) {
	if id == "" {
		return nil, common.NewValidationError("id", "must not be empty")
	}
	if len(iv) != cryptox.IVSize {
		return nil, common.NewValidationError("iv", "must be %d bytes, got %d", cryptox.IVSize, len(iv))
	}
	if len(blob) < cryptox.TagSize {
		return nil, common.NewValidationError("encryptedBlob", "must be at least %d bytes", cryptox.TagSize)
	}

	f := &EncryptedFile{
		id:        id,
		blob:      append([]byte(nil), blob...),
		iv:        append([]byte(nil), iv...),
		timestamp: ts,
	}
	if meta != nil {
		m := *meta
		f.meta = &m
	}
	return f, nil
}

func (f *EncryptedFile) ID() string           { return f.id }
func (f *EncryptedFile) Blob() []byte         { return append([]byte(nil), f.blob...) }
func (f *EncryptedFile) IV() []byte           { return append([]byte(nil), f.iv...) }
func (f *EncryptedFile) EncryptedSize() int   { return len(f.blob) }
func (f *EncryptedFile) Algorithm() string    { return cryptox.Algorithm }
func (f *EncryptedFile) Timestamp() time.Time { return f.timestamp }

// ClientMetadata returns a copy of the client-side metadata, if any.
func (f *EncryptedFile) ClientMetadata() (ClientMetadata, bool) {
	if f.meta == nil {
		return ClientMetadata{}, false
	}
	return *f.meta, true
}

func (f *EncryptedFile) ServerMetadata() ServerMetadata {
	return ServerMetadata{
		ID:            f.id,
		IV:            base64.StdEncoding.EncodeToString(f.iv),
		EncryptedSize: len(f.blob),
		Algorithm:     cryptox.Algorithm,
		Timestamp:     f.timestamp,
	}
}

// Decrypt opens the file with an explicit key. There is no way to get
// plaintext without one.
func (f *EncryptedFile) Decrypt(ctx context.Context, p *pipeline.Pipeline, key *cryptox.Key) ([]byte, error) {
	if key == nil {
		return nil, &common.PrivacyViolationError{Op: "decrypt", Reason: "a key is required"}
	}
	if p == nil {
		p = pipeline.New(pipeline.DefaultOptions(), nil, nil)
	}

	plain, err := p.Decrypt(ctx, f.blob, f.iv, key)
	if err != nil {
		return nil, err
	}
	if f.meta != nil && f.meta.OriginalSize != int64(len(plain)) {
		common.WipeByteArray(plain)
		return nil, fmt.Errorf("decrypted %d bytes, expected %d", len(plain), f.meta.OriginalSize)
	}
	return plain, nil
}

func (f *EncryptedFile) String() string {
	return fmt.Sprintf("EncryptedFile{id=%s, size=%d, algorithm=%s}", f.id, len(f.blob), cryptox.Algorithm)
}

func (f *EncryptedFile) GoString() string { return f.String() }

// MarshalJSON emits ServerMetadata only.
func (f *EncryptedFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ServerMetadata())
}

// ClientEncryptor creates EncryptedFiles from plaintext. It refuses to work
// unless built with ClientCapability.
type ClientEncryptor struct {
	cap Capability
	p   *pipeline.Pipeline
}

func NewClientEncryptor(cap Capability, p *pipeline.Pipeline) *ClientEncryptor {
	if p == nil {
		p = pipeline.New(pipeline.DefaultOptions(), nil, nil)
	}
	return &ClientEncryptor{cap: cap, p: p}
}

func (e *ClientEncryptor) checkClient(op string) error {
	if !e.cap.IsClient() {
		return &common.PrivacyViolationError{Op: op, Reason: "client-only operation invoked with " + e.cap.String() + " capability"}
	}
	return nil
}

// CreateFromFile reads path and encrypts its contents under key.
func (e *ClientEncryptor) CreateFromFile(ctx context.Context, path string, key *cryptox.Key) (*EncryptedFile, error) {
	if err := e.checkClient("createFromFile"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	defer common.WipeByteArray(data)

	return e.CreateFromBytes(ctx, filepath.Base(path), pipeline.DetectMIME(data), data, key)
}

// CreateFromBytes encrypts data under key. name and mimeType feed the
// compression decision and the client metadata only.
func (e *ClientEncryptor) CreateFromBytes(ctx context.Context, name, mimeType string, data []byte, key *cryptox.Key) (*EncryptedFile, error) {
	if err := e.checkClient("createFromBytes"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, common.NewValidationError("file", "must not be empty")
	}
	if key == nil {
		return nil, &common.PrivacyViolationError{Op: "createFromBytes", Reason: "no key supplied"}
	}

	res, err := e.p.Encrypt(ctx, data, key, pipeline.Hints{Filename: name, MimeType: mimeType})
	if err != nil {
		return nil, err
	}

	meta := &ClientMetadata{Filename: name, MimeType: mimeType, OriginalSize: int64(len(data))}
	return newEncryptedFile(uuid.NewString(), res.Blob, res.IV, meta, time.Now().UTC())
}
