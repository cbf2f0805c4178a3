package config

import (
	"github.com/spf13/pflag"

	"github.com/dmitrijs2005/zkshare/internal/flagx"
)

// bindFlags registers the client settings on fs with the current values as
// defaults.
func bindFlags(fs *pflag.FlagSet, cfg *Config) {
	if fs.Lookup(flagx.ConfigFlag) == nil {
		flagx.AddConfigFlag(fs)
	}

	fs.StringVarP(&cfg.ServerURL, "server", "a", cfg.ServerURL, "base URL of the zkshare server")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, `local share history database, "" to disable`)

	fs.IntVar(&cfg.StreamingThreshold, "streaming-threshold", cfg.StreamingThreshold, "size from which data is encrypted in chunks")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size for streaming encryption")
	fs.IntVar(&cfg.BatchThreshold, "batch-threshold", cfg.BatchThreshold, "size from which data is encrypted in batches")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "batch size for batched encryption")
	fs.IntVar(&cfg.CompressionThreshold, "compression-threshold", cfg.CompressionThreshold, "minimum size to try compression")
	fs.StringVar(&cfg.Compression, "compression", cfg.Compression, "none, lz4 or zstd")
	fs.IntVar(&cfg.Iterations, "kdf-iterations", cfg.Iterations, "PBKDF2 iterations for password links")

	fs.DurationVar(&cfg.KeyCacheTTL, "key-cache-ttl", cfg.KeyCacheTTL, "lifetime of derived keys in memory")
	fs.IntVar(&cfg.KeyCacheCapacity, "key-cache-size", cfg.KeyCacheCapacity, "maximum number of cached derived keys")
}
