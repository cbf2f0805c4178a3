package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/sharelink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEncryptedFile(t *testing.T) *EncryptedFile {
	t.Helper()
	f, err := NewEncryptedFile("storage-key-1", make([]byte, 64), make([]byte, cryptox.IVSize), nil)
	require.NoError(t, err)
	return f
}

func newShared(t *testing.T, ttl, maxDownloads int) (*SharedFile, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFake(t0)
	sf, err := NewAnonymousSharedFile(testEncryptedFile(t), ttl, maxDownloads, clk)
	require.NoError(t, err)
	return sf, clk
}

func TestNewAnonymousSharedFile(t *testing.T) {
	sf, _ := newShared(t, 24, 5)

	assert.True(t, sharelink.ValidFileID(sf.ID()))
	assert.Equal(t, "storage-key-1", sf.FileRef())
	assert.Equal(t, int64(64), sf.Size())
	assert.Equal(t, t0, sf.CreatedAt())
	assert.Equal(t, 5, sf.MaxDownloads())
	assert.Equal(t, 0, sf.DownloadCount())
	assert.Equal(t, StateActive, sf.State())
	assert.True(t, sf.IsAvailable())
	assert.False(t, sf.ShouldAutoDelete())
}

func TestNewAnonymousSharedFile_Validation(t *testing.T) {
	f := testEncryptedFile(t)
	clk := clock.NewFake(t0)

	tests := []struct {
		name     string
		ttl, max int
	}{
		{"ttl zero", 0, 1},
		{"ttl too long", 169, 1},
		{"downloads zero", 1, 0},
		{"downloads too many", 1, 1001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnonymousSharedFile(f, tt.ttl, tt.max, clk)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}

	_, err := NewAnonymousSharedFile(nil, 1, 1, clk)
	assert.ErrorIs(t, err, common.ErrValidation)

	sf, err := NewAnonymousSharedFile(f, 168, 1000, clk)
	require.NoError(t, err)
	assert.Equal(t, common.MaxTTL, sf.ExpiresAt().Sub(sf.CreatedAt()))
}

func TestRecordDownload_LimitTwo(t *testing.T) {
	sf, _ := newShared(t, 24, 2)

	require.NoError(t, sf.RecordDownload())
	assert.Equal(t, 1, sf.RemainingDownloads())

	require.NoError(t, sf.RecordDownload())
	assert.Equal(t, 0, sf.RemainingDownloads())
	assert.Equal(t, StateExhausted, sf.State())

	err := sf.RecordDownload()
	assert.ErrorIs(t, err, common.ErrDownloadLimitExceeded)
	var le *common.LifecycleError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, sf.ID(), le.FileID)

	assert.Equal(t, 2, sf.DownloadCount())
	assert.False(t, sf.IsAvailable())
	assert.True(t, sf.ShouldAutoDelete())
}

func TestRecordDownload_NeverExceedsMax(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		sf, _ := newShared(t, 1, n)
		for i := 0; i < n+5; i++ {
			_ = sf.RecordDownload()
		}
		assert.Equal(t, n, sf.DownloadCount())
	}
}

func TestTTL_TwentyFourHours(t *testing.T) {
	sf, clk := newShared(t, 24, 10)

	d := sf.ExpiresAt().Sub(sf.CreatedAt())
	assert.InDelta(t, float64(24*time.Hour), float64(d), float64(time.Second))

	clk.Advance(24*time.Hour - time.Second)
	assert.True(t, sf.IsAvailable())

	clk.Advance(time.Second)
	assert.False(t, sf.IsAvailable())
	assert.True(t, sf.IsExpired())
	assert.Equal(t, StateExpired, sf.State())
	assert.ErrorIs(t, sf.RecordDownload(), common.ErrFileExpired)
}

func TestTTL_UnavailableRegardlessOfDownloads(t *testing.T) {
	for _, used := range []int{0, 1, 4} {
		sf, clk := newShared(t, 1, 5)
		for i := 0; i < used; i++ {
			require.NoError(t, sf.RecordDownload())
		}
		clk.Advance(2 * time.Hour)
		assert.False(t, sf.IsAvailable())
		assert.True(t, sf.ShouldAutoDelete())
	}
}

func TestMarkAsDeleted(t *testing.T) {
	sf, _ := newShared(t, 24, 5)

	sf.MarkAsDeleted()
	sf.MarkAsDeleted()

	assert.Equal(t, StateDeleted, sf.State())
	assert.False(t, sf.IsAvailable())
	assert.ErrorIs(t, sf.RecordDownload(), common.ErrFileDeleted)

	_, err := sf.ExtendTTL(1)
	assert.ErrorIs(t, err, common.ErrCannotExtendDeletedFile)
}

func TestMarkAsDeleted_WinsOverExpiry(t *testing.T) {
	sf, clk := newShared(t, 1, 5)
	clk.Advance(3 * time.Hour)
	sf.MarkAsDeleted()

	assert.Equal(t, StateDeleted, sf.State())
	assert.ErrorIs(t, sf.RecordDownload(), common.ErrFileDeleted)
}

func TestExtendTTL(t *testing.T) {
	t.Run("extends from current expiry", func(t *testing.T) {
		sf, _ := newShared(t, 24, 1)
		got, err := sf.ExtendTTL(24)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(48*time.Hour), got)
	})

	t.Run("capped at creation plus max ttl", func(t *testing.T) {
		sf, _ := newShared(t, 100, 1)
		got, err := sf.ExtendTTL(100)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(common.MaxTTL), got)
	})

	t.Run("expired file restarts from now", func(t *testing.T) {
		sf, clk := newShared(t, 1, 1)
		clk.Advance(5 * time.Hour)
		got, err := sf.ExtendTTL(2)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(7*time.Hour), got)
		assert.True(t, sf.IsAvailable())
	})

	t.Run("invalid hours", func(t *testing.T) {
		sf, _ := newShared(t, 1, 1)
		_, err := sf.ExtendTTL(0)
		assert.ErrorIs(t, err, common.ErrValidation)
		_, err = sf.ExtendTTL(200)
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("never shortens", func(t *testing.T) {
		sf, clk := newShared(t, 168, 1)
		clk.Advance(10 * time.Hour)
		got, err := sf.ExtendTTL(1)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(common.MaxTTL), got)
	})
}

func TestSnapshotRestore(t *testing.T) {
	sf, clk := newShared(t, 24, 3)
	require.NoError(t, sf.RecordDownload())

	snap := sf.Snapshot()
	restored, err := RestoreSharedFile(snap, clk)
	require.NoError(t, err)

	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, 2, restored.RemainingDownloads())
}

func TestRestoreSharedFile_RejectsBrokenRecords(t *testing.T) {
	sf, clk := newShared(t, 24, 3)
	good := sf.Snapshot()

	tests := []struct {
		name   string
		mutate func(*SharedFileSnapshot)
	}{
		{"bad id", func(s *SharedFileSnapshot) { s.ID = "nope" }},
		{"expiry before creation", func(s *SharedFileSnapshot) { s.ExpiresAt = s.CreatedAt }},
		{"ttl too long", func(s *SharedFileSnapshot) { s.ExpiresAt = s.CreatedAt.Add(200 * time.Hour) }},
		{"count above max", func(s *SharedFileSnapshot) { s.DownloadCount = 4 }},
		{"negative count", func(s *SharedFileSnapshot) { s.DownloadCount = -1 }},
		{"max too high", func(s *SharedFileSnapshot) { s.MaxDownloads = 1001 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mutate(&s)
			_, err := RestoreSharedFile(s, clk)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestSharedFile_SerializedFormHasNoKey(t *testing.T) {
	key := cryptox.GenerateKey()
	frag, err := sharelink.KeyFragment(key)
	require.NoError(t, err)

	sf, _ := newShared(t, 24, 3)
	link, err := sharelink.Build("https://share.example", sf.ID(), frag)
	require.NoError(t, err)
	require.Contains(t, link, frag)

	b, err := json.Marshal(sf.Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(b), frag)
	assert.NotContains(t, sf.String(), frag)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "expired", StateExpired.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "deleted", StateDeleted.String())
}
