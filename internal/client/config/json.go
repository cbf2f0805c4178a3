package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/zkshare/internal/flagx"
	"github.com/dmitrijs2005/zkshare/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL string         `json:"server_url"`
	Timeout   timex.Duration `json:"timeout"`
	HistoryDB *string        `json:"history_db"`

	StreamingThreshold   int    `json:"streaming_threshold"`
	ChunkSize            int    `json:"chunk_size"`
	BatchThreshold       int    `json:"batch_threshold"`
	BatchSize            int    `json:"batch_size"`
	CompressionThreshold int    `json:"compression_threshold"`
	Compression          string `json:"compression"`
	Iterations           int    `json:"kdf_iterations"`

	KeyCacheTTL      timex.Duration `json:"key_cache_ttl"`
	KeyCacheCapacity int            `json:"key_cache_capacity"`
}

// parseJson overlays cfg with the keys present in the -c/--config file.
func parseJson(cfg *Config, args []string) error {
	path, err := flagx.ConfigPath(args)
	if err != nil {
		return err
	}
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

	if c.ServerURL != "" {
		cfg.ServerURL = c.ServerURL
	}
	if c.HistoryDB != nil {
		cfg.HistoryDB = *c.HistoryDB
	}
	if c.Timeout.Duration != 0 {
		cfg.Timeout = c.Timeout.Duration
	}
	for dst, v := range map[*int]int{
		&cfg.StreamingThreshold:   c.StreamingThreshold,
		&cfg.ChunkSize:            c.ChunkSize,
		&cfg.BatchThreshold:       c.BatchThreshold,
		&cfg.BatchSize:            c.BatchSize,
		&cfg.CompressionThreshold: c.CompressionThreshold,
		&cfg.Iterations:           c.Iterations,
		&cfg.KeyCacheCapacity:     c.KeyCacheCapacity,
	} {
		if v != 0 {
			*dst = v
		}
	}
	if c.Compression != "" {
		cfg.Compression = c.Compression
	}
	if c.KeyCacheTTL.Duration != 0 {
		cfg.KeyCacheTTL = c.KeyCacheTTL.Duration
	}
	return nil
}
