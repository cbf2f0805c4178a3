package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
)

// The envelope is the AEAD plaintext:
//
//	[version:1][compression:1][original size:8 BE][payload]
//
// Keeping the compression flag and original size inside the ciphertext means
// they are authenticated by the tag and never visible to the server.
const (
	envelopeVersion = 1
	headerLen       = 10
)

// Overhead is how many bytes the envelope and tag add to the plaintext of
// an uncompressed upload.
const Overhead = headerLen + cryptox.TagSize

var errMalformedEnvelope = errors.New("malformed envelope")

func envelopeHeader(c Compression, originalSize int) []byte {
	h := make([]byte, headerLen)
	h[0] = envelopeVersion
	h[1] = byte(c)
	binary.BigEndian.PutUint64(h[2:], uint64(originalSize))
	return h
}

func sealEnvelope(c Compression, originalSize int, payload []byte) []byte {
	out := make([]byte, 0, headerLen+len(payload))
	out = append(out, envelopeHeader(c, originalSize)...)
	return append(out, payload...)
}

func openEnvelope(env []byte) ([]byte, error) {
	if len(env) < headerLen {
		return nil, errMalformedEnvelope
	}
	if env[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: version %d", errMalformedEnvelope, env[0])
	}
	c := Compression(env[1])
	size := binary.BigEndian.Uint64(env[2:headerLen])
	// the header is untrusted; bound it before it sizes any allocation
	if size > maxOriginalSize {
		return nil, fmt.Errorf("%w: size %d", errMalformedEnvelope, size)
	}
	out, err := decompress(env[headerLen:], c, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedEnvelope, err)
	}
	return out, nil
}

// maxOriginalSize is the largest plaintext an envelope may declare.
const maxOriginalSize = uint64(common.MaxUploadSize)
