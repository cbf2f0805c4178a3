package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/flagx"
	"github.com/dmitrijs2005/zkshare/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations go through
// timex.Duration so both "10m" and integer nanoseconds are accepted. Pointer
// fields tell an explicit false or zero apart from a missing key.
type JsonConfig struct {
	HTTPAddr            string         `json:"http_addr"`
	BaseURL             string         `json:"base_url"`
	DatabaseDSN         string         `json:"database_dsn"`
	SecretKey           string         `json:"secret_key"`
	ManageTokenValidity timex.Duration `json:"manage_token_validity"`

	Storage          string         `json:"storage"`
	StorageDir       string         `json:"storage_dir"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	PresignDownloads *bool          `json:"presign_downloads"`
	PresignTTL       timex.Duration `json:"presign_ttl"`

	CleanupInterval timex.Duration `json:"cleanup_interval"`
	MaxUploadSize   int64          `json:"max_upload_size"`
	RateLimitRPS    float64        `json:"rate_limit_rps"`
	RateBurst       int            `json:"rate_burst"`

	LogLevel string `json:"log_level"`
	LogJSON  *bool  `json:"log_json"`
}

// parseJson loads the file named by -c/--config, if any, and copies every
// key present in it onto config.
func parseJson(config *Config, args []string) error {
	path, err := flagx.ConfigPath(args)
	if err != nil {
		return err
	}

	// nothing to load
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.BaseURL, c.BaseURL)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.ManageTokenValidity, c.ManageTokenValidity)

	setString(&config.Storage, c.Storage)
	setString(&config.StorageDir, c.StorageDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.PresignDownloads != nil {
		config.PresignDownloads = *c.PresignDownloads
	}
	setDuration(&config.PresignTTL, c.PresignTTL)

	setDuration(&config.CleanupInterval, c.CleanupInterval)
	if c.MaxUploadSize != 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	if c.RateLimitRPS != 0 {
		config.RateLimitRPS = c.RateLimitRPS
	}
	if c.RateBurst != 0 {
		config.RateBurst = c.RateBurst
	}

	setString(&config.LogLevel, c.LogLevel)
	if c.LogJSON != nil {
		config.LogJSON = *c.LogJSON
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
