package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"http_addr":             "www.example:9000",
		"base_url":              "https://share.example",
		"database_dsn":          "memory",
		"secret_key":            "my_secret_key",
		"manage_token_validity": "24h",
		"storage":               "fs",
		"storage_dir":           "blobs",
		"s3_root_user":          "user",
		"s3_root_password":      "password",
		"s3_bucket":             "bucket",
		"s3_region":             "region",
		"s3_base_endpoint":      "base_endpoint",
		"presign_downloads":     false,
		"presign_ttl":           int64(time.Minute),
		"cleanup_interval":      "30s",
		"max_upload_size":       1024,
		"rate_limit_rps":        1.5,
		"rate_burst":            2,
		"log_level":             "debug",
		"log_json":              false,
	})

	t.Run("loads every key", func(t *testing.T) {
		got := defaults()
		require.NoError(t, parseJson(got, []string{"--config", path}))

		want := &Config{
			HTTPAddr:            "www.example:9000",
			BaseURL:             "https://share.example",
			DatabaseDSN:         "memory",
			SecretKey:           "my_secret_key",
			ManageTokenValidity: 24 * time.Hour,
			Storage:             StorageFS,
			StorageDir:          "blobs",
			S3RootUser:          "user",
			S3RootPassword:      "password",
			S3Bucket:            "bucket",
			S3Region:            "region",
			S3BaseEndpoint:      "base_endpoint",
			PresignDownloads:    false,
			PresignTTL:          time.Minute,
			CleanupInterval:     30 * time.Second,
			MaxUploadSize:       1024,
			RateLimitRPS:        1.5,
			RateBurst:           2,
			LogLevel:            "debug",
			LogJSON:             false,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no config flag leaves values alone", func(t *testing.T) {
		got := defaults()
		require.NoError(t, parseJson(got, []string{"-a", ":1"}))
		assert.Empty(t, cmp.Diff(defaults(), got))
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		partial := writeTempJSON(t, "", "partial.json", map[string]any{"s3_bucket": "other"})
		got := defaults()
		require.NoError(t, parseJson(got, []string{"-c", partial}))

		want := defaults()
		want.S3Bucket = "other"
		assert.Empty(t, cmp.Diff(want, got))
	})
}

func Test_parseJson_Errors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o600))

	badDuration := writeTempJSON(t, dir, "dur.json", map[string]any{"cleanup_interval": "soon"})

	for _, args := range [][]string{
		{"-c", filepath.Join(dir, "absent.json")},
		{"-c", broken},
		{"-c", badDuration},
	} {
		assert.Error(t, parseJson(defaults(), args), "%v", args)
	}
}
