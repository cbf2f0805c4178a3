package cryptox

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey_SizeAndEntropy(t *testing.T) {
	a := GenerateKey()
	b := GenerateKey()
	defer a.Dispose()
	defer b.Dispose()

	ab, err := a.Bytes()
	require.NoError(t, err)
	assert.Len(t, ab, KeySize)
	assert.False(t, a.Equal(b))
}

func TestKeyFromBytes(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, KeySize)
	k, err := KeyFromBytes(raw)
	require.NoError(t, err)

	// the key owns a copy
	raw[0] = 0
	kb, err := k.Bytes()
	require.NoError(t, err)
	assert.Equal(t, byte(7), kb[0])

	_, err = KeyFromBytes(make([]byte, 16))
	assert.Error(t, err)
}

func TestKey_DisposeZeroesAndIsIdempotent(t *testing.T) {
	k := GenerateKey()
	internal := k.b

	k.Dispose()
	k.Dispose()

	assert.True(t, k.Disposed())
	for i, v := range internal {
		require.Zero(t, v, "byte %d not wiped", i)
	}

	_, err := k.Bytes()
	assert.ErrorIs(t, err, ErrKeyDisposed)
	_, err = k.Clone()
	assert.ErrorIs(t, err, ErrKeyDisposed)
	assert.False(t, k.Equal(k))
}

func TestKey_CloneIsIndependent(t *testing.T) {
	k := GenerateKey()
	c, err := k.Clone()
	require.NoError(t, err)

	assert.True(t, k.Equal(c))
	k.Dispose()
	assert.False(t, c.Disposed())

	_, err = c.Bytes()
	assert.NoError(t, err)
}

func TestKey_NeverFormatsBytes(t *testing.T) {
	k := GenerateKey()
	defer k.Dispose()
	kb, err := k.Bytes()
	require.NoError(t, err)

	var sb strings.Builder
	l := slog.New(slog.NewTextHandler(&sb, nil))
	l.Info("key", "key", k)

	for _, s := range []string{
		fmt.Sprintf("%v", k), fmt.Sprintf("%s", k), fmt.Sprintf("%#v", k), sb.String(),
	} {
		assert.NotContains(t, s, hex.EncodeToString(kb))
		assert.Contains(t, s, "REDACTED")
	}
	assert.NotContains(t, fmt.Sprintf("%x", k), hex.EncodeToString(kb))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte{1, 2, 3}, []byte{1, 2, 3}))
	assert.False(t, ConstantTimeEqual([]byte{1, 2, 3}, []byte{1, 2, 4}))
	assert.False(t, ConstantTimeEqual([]byte{1, 2, 3}, []byte{1, 2}))
	assert.True(t, ConstantTimeEqual(nil, []byte{}))
}

func TestConstantTimeEqual_LengthMismatch(t *testing.T) {
	// zero padding must not make a prefix look equal
	assert.False(t, ConstantTimeEqual([]byte{1, 2}, []byte{1, 2, 0}))
	assert.False(t, ConstantTimeEqual([]byte{1, 2, 0}, []byte{1, 2}))
	assert.False(t, ConstantTimeEqual(nil, []byte{0}))
	assert.False(t, ConstantTimeEqual([]byte{9, 9, 9, 9}, []byte{9}))
}
