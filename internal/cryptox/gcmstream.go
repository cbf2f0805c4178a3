package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

// The stream types below implement AES-GCM (NIST SP 800-38D) for a 96-bit IV
// as a sequential context: AES-CTR starting at counter block IV||2, GHASH
// accumulated over the ciphertext as it is produced, and the tag masked with
// E(K, IV||1). For the same key, IV and plaintext the output is identical to
// cipher.NewGCM(...).Seal, so blobs from either path open with either path.
//
// Chunks must be applied in order. There is no way to encrypt two chunks of
// one stream concurrently.

const gcmBlockSize = 16

// maxStreamBytes is the GCM plaintext limit for a 32-bit block counter.
const maxStreamBytes = (1<<32 - 2) * gcmBlockSize

var (
	// ErrStreamFinalized is returned when a finalized stream is used again.
	ErrStreamFinalized = errors.New("stream already finalized")
	// ErrStreamTooLong is returned when a stream exceeds the GCM length limit.
	ErrStreamTooLong = errors.New("stream exceeds gcm length limit")
)

type gcmFieldElement struct {
	low, high uint64
}

var gcmReductionTable = []uint16{
	0x0000, 0x1c20, 0x3840, 0x2460, 0x7080, 0x6ca0, 0x48c0, 0x54e0,
	0xe100, 0xfd20, 0xd940, 0xc560, 0x9180, 0x8da0, 0xa9c0, 0xb5e0,
}

func reverseBits(i int) int {
	i = ((i << 2) & 0xc) | ((i >> 2) & 0x3)
	i = ((i << 1) & 0xa) | ((i >> 1) & 0x5)
	return i
}

func gcmAdd(x, y *gcmFieldElement) gcmFieldElement {
	return gcmFieldElement{x.low ^ y.low, x.high ^ y.high}
}

// gcmDouble multiplies x by the field generator. With GCM's reflected bit
// order this is a right shift.
func gcmDouble(x *gcmFieldElement) (double gcmFieldElement) {
	msbSet := x.high&1 == 1

	double.high = x.high >> 1
	double.high |= x.low << 63
	double.low = x.low >> 1

	if msbSet {
		double.low ^= 0xe100000000000000
	}
	return
}

// ghash is an incremental GHASH over ciphertext only (no associated data).
type ghash struct {
	productTable [16]gcmFieldElement
	y            gcmFieldElement
	buf          [gcmBlockSize]byte
	n            int
	length       uint64
}

func newGHash(h *[gcmBlockSize]byte) *ghash {
	g := &ghash{}
	x := gcmFieldElement{
		low:  binary.BigEndian.Uint64(h[:8]),
		high: binary.BigEndian.Uint64(h[8:]),
	}
	g.productTable[reverseBits(1)] = x
	for i := 2; i < 16; i += 2 {
		g.productTable[reverseBits(i)] = gcmDouble(&g.productTable[reverseBits(i/2)])
		g.productTable[reverseBits(i+1)] = gcmAdd(&g.productTable[reverseBits(i)], &x)
	}
	return g
}

// mul sets y to y*H.
func (g *ghash) mul(y *gcmFieldElement) {
	var z gcmFieldElement

	for i := 0; i < 2; i++ {
		word := y.high
		if i == 1 {
			word = y.low
		}

		for j := 0; j < 64; j += 4 {
			msw := z.high & 0xf
			z.high >>= 4
			z.high |= z.low << 60
			z.low >>= 4
			z.low ^= uint64(gcmReductionTable[msw]) << 48

			t := &g.productTable[word&0xf]

			z.low ^= t.low
			z.high ^= t.high
			word >>= 4
		}
	}

	*y = z
}

func (g *ghash) block(b []byte) {
	g.y.low ^= binary.BigEndian.Uint64(b)
	g.y.high ^= binary.BigEndian.Uint64(b[8:])
	g.mul(&g.y)
}

func (g *ghash) write(p []byte) {
	g.length += uint64(len(p))

	if g.n > 0 {
		c := copy(g.buf[g.n:], p)
		g.n += c
		p = p[c:]
		if g.n < gcmBlockSize {
			return
		}
		g.block(g.buf[:])
		g.n = 0
	}

	for len(p) >= gcmBlockSize {
		g.block(p[:gcmBlockSize])
		p = p[gcmBlockSize:]
	}

	if len(p) > 0 {
		g.n = copy(g.buf[:], p)
	}
}

// sum writes the GHASH of everything written so far into out.
func (g *ghash) sum(out *[gcmBlockSize]byte) {
	if g.n > 0 {
		for i := g.n; i < gcmBlockSize; i++ {
			g.buf[i] = 0
		}
		g.block(g.buf[:])
		g.n = 0
	}

	// length block: 64-bit AAD bit length (zero), 64-bit ciphertext bit length
	g.y.high ^= g.length * 8
	g.mul(&g.y)

	binary.BigEndian.PutUint64(out[:8], g.y.low)
	binary.BigEndian.PutUint64(out[8:], g.y.high)
}

// gcmState is shared by the encrypt and decrypt streams.
type gcmState struct {
	ctr       cipher.Stream
	hash      *ghash
	tagMask   [gcmBlockSize]byte
	iv        []byte
	processed uint64
	finalized bool
}

func newGCMState(key *Key, iv []byte) (*gcmState, error) {
	if key == nil {
		return nil, &common.PrivacyViolationError{Op: "stream", Reason: "no key supplied"}
	}
	if len(iv) != IVSize {
		return nil, common.NewValidationError("iv", "must be %d bytes, got %d", IVSize, len(iv))
	}

	var block cipher.Block
	err := key.use(func(b []byte) error {
		var err error
		block, err = aes.NewCipher(b)
		return err
	})
	if err != nil {
		return nil, err
	}

	var h [gcmBlockSize]byte
	block.Encrypt(h[:], h[:])

	var counter [gcmBlockSize]byte
	copy(counter[:], iv)
	counter[gcmBlockSize-1] = 1

	s := &gcmState{
		hash: newGHash(&h),
		iv:   append([]byte(nil), iv...),
	}
	block.Encrypt(s.tagMask[:], counter[:])

	counter[gcmBlockSize-1] = 2
	s.ctr = cipher.NewCTR(block, counter[:])

	return s, nil
}

func (s *gcmState) reserve(n int) error {
	if s.finalized {
		return ErrStreamFinalized
	}
	if s.processed+uint64(n) > maxStreamBytes {
		return ErrStreamTooLong
	}
	s.processed += uint64(n)
	return nil
}

func (s *gcmState) tag(out *[gcmBlockSize]byte) {
	s.hash.sum(out)
	for i := range out {
		out[i] ^= s.tagMask[i]
	}
	s.finalized = true
}

// EncryptStream is a stateful GCM encryption context fed with sequential
// plaintext chunks.
type EncryptStream struct {
	st *gcmState
}

// NewEncryptStream starts a stream under a freshly generated IV.
func NewEncryptStream(key *Key) (*EncryptStream, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, err
	}
	return newEncryptStreamWithIV(key, iv)
}

func newEncryptStreamWithIV(key *Key, iv []byte) (*EncryptStream, error) {
	st, err := newGCMState(key, iv)
	if err != nil {
		return nil, err
	}
	return &EncryptStream{st: st}, nil
}

// IV returns a copy of the stream's IV.
func (e *EncryptStream) IV() []byte {
	return append([]byte(nil), e.st.iv...)
}

// Update encrypts chunk and appends the ciphertext to dst.
func (e *EncryptStream) Update(dst, chunk []byte) ([]byte, error) {
	if err := e.st.reserve(len(chunk)); err != nil {
		return dst, err
	}
	start := len(dst)
	dst = append(dst, make([]byte, len(chunk))...)
	out := dst[start:]
	e.st.ctr.XORKeyStream(out, chunk)
	e.st.hash.write(out)
	return dst, nil
}

// Finalize appends the authentication tag to dst. The stream cannot be used
// afterwards.
func (e *EncryptStream) Finalize(dst []byte) ([]byte, error) {
	if e.st.finalized {
		return dst, ErrStreamFinalized
	}
	var tag [gcmBlockSize]byte
	e.st.tag(&tag)
	return append(dst, tag[:]...), nil
}

// DecryptStream is a stateful GCM decryption context. Plaintext is held
// internally and only released by Finalize once the tag has verified.
type DecryptStream struct {
	st  *gcmState
	buf []byte
}

// NewDecryptStream starts a decryption stream. sizeHint preallocates the
// plaintext buffer and may be zero.
func NewDecryptStream(key *Key, iv []byte, sizeHint int) (*DecryptStream, error) {
	st, err := newGCMState(key, iv)
	if err != nil {
		return nil, err
	}
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &DecryptStream{st: st, buf: make([]byte, 0, sizeHint)}, nil
}

// Update feeds the next ciphertext chunk (without the tag).
func (d *DecryptStream) Update(chunk []byte) error {
	if err := d.st.reserve(len(chunk)); err != nil {
		return err
	}
	d.st.hash.write(chunk)
	start := len(d.buf)
	d.buf = append(d.buf, make([]byte, len(chunk))...)
	d.st.ctr.XORKeyStream(d.buf[start:], chunk)
	return nil
}

// Finalize checks tag and returns the plaintext. On mismatch the buffered
// plaintext is zeroed and common.ErrAuthentication is returned.
func (d *DecryptStream) Finalize(tag []byte) ([]byte, error) {
	if d.st.finalized {
		return nil, ErrStreamFinalized
	}
	var expected [gcmBlockSize]byte
	d.st.tag(&expected)

	if len(tag) != TagSize || !ConstantTimeEqual(expected[:], tag) {
		common.WipeByteArray(d.buf)
		d.buf = nil
		return nil, common.ErrAuthentication
	}

	out := d.buf
	d.buf = nil
	return out, nil
}

// Abort zeroes any buffered plaintext. It is safe to call after Finalize.
func (d *DecryptStream) Abort() {
	common.WipeByteArray(d.buf)
	d.buf = nil
	d.st.finalized = true
}
