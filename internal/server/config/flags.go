package config

import (
	"github.com/spf13/pflag"

	"github.com/dmitrijs2005/zkshare/internal/flagx"
)

// newFlagSet binds every server flag to config. Short forms follow the old
// gRPC server where a flag kept its meaning.
func newFlagSet(config *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("zkshare-server", pflag.ContinueOnError)
	flagx.AddConfigFlag(fs)

	fs.StringVarP(&config.HTTPAddr, "address", "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.BaseURL, "base-url", config.BaseURL, "public base URL used in share links")
	fs.StringVarP(&config.DatabaseDSN, "database-dsn", "d", config.DatabaseDSN, `database DSN, "memory" for in-process storage`)
	fs.StringVarP(&config.SecretKey, "secret-key", "s", config.SecretKey, "manage token signing key")
	fs.DurationVarP(&config.ManageTokenValidity, "manage-token-validity", "t", config.ManageTokenValidity, "manage token lifetime")

	fs.StringVar(&config.Storage, "storage", config.Storage, "blob storage backend: s3, fs or memory")
	fs.StringVar(&config.StorageDir, "storage-dir", config.StorageDir, "directory for the fs backend")
	fs.StringVarP(&config.S3RootUser, "s3-user", "u", config.S3RootUser, "S3 root user")
	fs.StringVarP(&config.S3RootPassword, "s3-password", "p", config.S3RootPassword, "S3 root password")
	fs.StringVarP(&config.S3Bucket, "s3-bucket", "b", config.S3Bucket, "S3 bucket")
	fs.StringVarP(&config.S3Region, "s3-region", "g", config.S3Region, "S3 region")
	fs.StringVarP(&config.S3BaseEndpoint, "s3-endpoint", "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.PresignDownloads, "presign", config.PresignDownloads, "serve downloads through presigned S3 URLs")
	fs.DurationVar(&config.PresignTTL, "presign-ttl", config.PresignTTL, "presigned URL lifetime")

	fs.DurationVarP(&config.CleanupInterval, "cleanup-interval", "i", config.CleanupInterval, "interval between cleanup sweeps")
	fs.Int64Var(&config.MaxUploadSize, "max-upload-size", config.MaxUploadSize, "maximum plaintext size in bytes")
	fs.Float64Var(&config.RateLimitRPS, "rate-limit", config.RateLimitRPS, "requests per second per client IP")
	fs.IntVar(&config.RateBurst, "rate-burst", config.RateBurst, "rate limiter burst")

	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&config.LogJSON, "log-json", config.LogJSON, "log as JSON")
	return fs
}

// parseFlags overlays command-line flags on config. Arguments owned by other
// components are ignored.
func parseFlags(config *Config, args []string) error {
	return flagx.ParseKnown(newFlagSet(config), args)
}
