// Package pipeline wraps the AEAD primitives in cryptox with size-based tiers,
// optional pre-encryption compression and a password key cache. Every tier
// produces the same wire format (ciphertext followed by a 16-byte GCM tag
// under a 12-byte IV), so a blob written by one tier opens with any other.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/keycache"
	"github.com/dmitrijs2005/zkshare/internal/logging"
)

const (
	DefaultStreamingThreshold   = 100 << 20
	DefaultChunkSize            = 1 << 20
	DefaultBatchThreshold       = 500 << 20
	DefaultBatchSize            = 16 << 20
	DefaultCompressionThreshold = 1 << 20
)

// Options tunes tier selection and compression. Start from DefaultOptions;
// zero sizes are replaced by defaults in New.
type Options struct {
	StreamingThreshold   int
	ChunkSize            int
	BatchThreshold       int
	BatchSize            int
	CompressionThreshold int
	Compression          Compression
	// Iterations is used by DeriveKey when New is given no key cache.
	Iterations int
}

func DefaultOptions() Options {
	return Options{
		StreamingThreshold:   DefaultStreamingThreshold,
		ChunkSize:            DefaultChunkSize,
		BatchThreshold:       DefaultBatchThreshold,
		BatchSize:            DefaultBatchSize,
		CompressionThreshold: DefaultCompressionThreshold,
		Compression:          CompressionZstd,
		Iterations:           cryptox.DefaultIterations,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StreamingThreshold <= 0 {
		o.StreamingThreshold = d.StreamingThreshold
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.BatchThreshold <= 0 {
		o.BatchThreshold = d.BatchThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.CompressionThreshold <= 0 {
		o.CompressionThreshold = d.CompressionThreshold
	}
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	return o
}

// Tier is the processing strategy chosen for a payload size.
type Tier int

const (
	TierStandard Tier = iota
	TierStreaming
	TierBatched
)

func (t Tier) String() string {
	switch t {
	case TierStandard:
		return "standard"
	case TierStreaming:
		return "streaming"
	case TierBatched:
		return "batched"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Hints describe the plaintext for the compression decision. Both fields are
// optional and never leave the client.
type Hints struct {
	Filename string
	MimeType string
}

// Result is the outcome of Encrypt.
type Result struct {
	Blob          []byte
	IV            []byte
	Tier          Tier
	Compression   Compression
	OriginalSize  int
	EncryptedSize int
}

type Pipeline struct {
	opts   Options
	cache  *keycache.Cache
	logger logging.Logger
}

// New builds a Pipeline. With a nil cache every DeriveKey runs the full
// derivation; callers that derive repeatedly should share a keycache.Cache.
// A nil logger discards output.
func New(opts Options, cache *keycache.Cache, logger logging.Logger) *Pipeline {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{opts: opts, cache: cache, logger: logger.With("module", "pipeline")}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// TierFor returns the tier used for an AEAD plaintext of n bytes.
func (p *Pipeline) TierFor(n int) Tier {
	switch {
	case n >= p.opts.BatchThreshold:
		return TierBatched
	case n >= p.opts.StreamingThreshold:
		return TierStreaming
	default:
		return TierStandard
	}
}

// DeriveKey returns the password key for salt, served from the key cache when
// possible.
func (p *Pipeline) DeriveKey(password, salt []byte) (*cryptox.Key, error) {
	if p.cache == nil {
		return cryptox.DeriveFromPassword(password, salt, p.opts.Iterations)
	}
	return p.cache.Derive(password, salt)
}

// CacheStats exposes the key cache counters. They are all zero without a
// cache.
func (p *Pipeline) CacheStats() keycache.Stats {
	if p.cache == nil {
		return keycache.Stats{}
	}
	return p.cache.Stats()
}

func (p *Pipeline) shouldCompress(plaintext []byte, h Hints) bool {
	if p.opts.Compression == CompressionNone {
		return false
	}
	if len(plaintext) <= p.opts.CompressionThreshold {
		return false
	}
	return !IsPrecompressed(h.Filename, h.MimeType, plaintext)
}

// Encrypt compresses (when worthwhile), wraps and encrypts plaintext under
// key with a fresh IV. On any error nothing is returned.
func (p *Pipeline) Encrypt(ctx context.Context, plaintext []byte, key *cryptox.Key, h Hints) (*Result, error) {
	if key == nil {
		return nil, &common.PrivacyViolationError{Op: "encrypt", Reason: "no key supplied"}
	}

	comp := CompressionNone
	payload := plaintext
	if p.shouldCompress(plaintext, h) {
		out, err := compress(plaintext, p.opts.Compression)
		switch {
		case err == nil:
			payload = out
			comp = p.opts.Compression
		case err == errIncompressible:
			// stored uncompressed
		default:
			return nil, fmt.Errorf("compress: %w", err)
		}
	}
	if comp != CompressionNone {
		defer common.WipeByteArray(payload)
	}

	header := envelopeHeader(comp, len(plaintext))
	tier := p.TierFor(len(header) + len(payload))

	var (
		blob, iv []byte
		err      error
	)
	switch tier {
	case TierStandard:
		env := sealEnvelope(comp, len(plaintext), payload)
		blob, iv, err = cryptox.Encrypt(env, key)
		common.WipeByteArray(env)
	case TierStreaming:
		blob, iv, err = p.encryptSequential(ctx, header, payload, key, p.opts.ChunkSize, false)
	case TierBatched:
		blob, iv, err = p.encryptSequential(ctx, header, payload, key, p.opts.BatchSize, true)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Debug(ctx, "encrypted",
		"tier", tier.String(),
		"compression", comp.String(),
		"original_size", len(plaintext),
		"encrypted_size", len(blob),
	)

	return &Result{
		Blob:          blob,
		IV:            iv,
		Tier:          tier,
		Compression:   comp,
		OriginalSize:  len(plaintext),
		EncryptedSize: len(blob),
	}, nil
}

// encryptSequential feeds header and then payload slices into one GCM stream.
// Slices are never processed concurrently; with yield set the scheduler gets
// a turn and ctx is checked between slices.
func (p *Pipeline) encryptSequential(ctx context.Context, header, payload []byte, key *cryptox.Key, size int, yield bool) ([]byte, []byte, error) {
	s, err := cryptox.NewEncryptStream(key)
	if err != nil {
		return nil, nil, err
	}

	out := make([]byte, 0, len(header)+len(payload)+cryptox.TagSize)
	if out, err = s.Update(out, header); err != nil {
		return nil, nil, err
	}

	for off := 0; off < len(payload); off += size {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if yield && off > 0 {
			runtime.Gosched()
		}
		end := min(off+size, len(payload))
		if out, err = s.Update(out, payload[off:end]); err != nil {
			return nil, nil, err
		}
	}

	if out, err = s.Finalize(out); err != nil {
		return nil, nil, err
	}
	return out, s.IV(), nil
}

// Decrypt authenticates and opens blob, then replays decompression. The tier
// is chosen from the ciphertext size the same way Encrypt chose it. Any
// failure returns no plaintext.
func (p *Pipeline) Decrypt(ctx context.Context, blob, iv []byte, key *cryptox.Key) ([]byte, error) {
	if len(iv) != cryptox.IVSize {
		return nil, common.NewValidationError("iv", "must be %d bytes, got %d", cryptox.IVSize, len(iv))
	}
	if key == nil {
		return nil, &common.PrivacyViolationError{Op: "decrypt", Reason: "no key supplied"}
	}
	if len(blob) < cryptox.TagSize {
		return nil, common.ErrAuthentication
	}

	n := len(blob) - cryptox.TagSize
	tier := p.TierFor(n)

	var (
		env []byte
		err error
	)
	switch tier {
	case TierStandard:
		env, err = cryptox.Decrypt(blob, key, iv)
	case TierStreaming:
		env, err = p.decryptSequential(ctx, blob, iv, key, p.opts.ChunkSize, false)
	case TierBatched:
		env, err = p.decryptSequential(ctx, blob, iv, key, p.opts.BatchSize, true)
	}
	if err != nil {
		return nil, err
	}

	plaintext, err := openEnvelope(env)
	if err != nil {
		common.WipeByteArray(env)
		return nil, err
	}
	if env[1] != byte(CompressionNone) {
		common.WipeByteArray(env)
	}

	p.logger.Debug(ctx, "decrypted", "tier", tier.String(), "size", len(plaintext))
	return plaintext, nil
}

func (p *Pipeline) decryptSequential(ctx context.Context, blob, iv []byte, key *cryptox.Key, size int, yield bool) ([]byte, error) {
	n := len(blob) - cryptox.TagSize
	s, err := cryptox.NewDecryptStream(key, iv, n)
	if err != nil {
		return nil, err
	}

	for off := 0; off < n; off += size {
		if err := ctx.Err(); err != nil {
			s.Abort()
			return nil, err
		}
		if yield && off > 0 {
			runtime.Gosched()
		}
		end := min(off+size, n)
		if err := s.Update(blob[off:end]); err != nil {
			s.Abort()
			return nil, err
		}
	}

	return s.Finalize(blob[n:])
}
