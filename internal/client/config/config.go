// Package config loads runtime configuration for the zkshare client.
//
// Sources, later ones win:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or --config.
//  3. Command-line flags.
//
// Durations in JSON are either strings like "30m" or integer nanoseconds.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/keycache"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
)

// Config holds runtime settings for the zkshare CLI. Sizes are in bytes.
type Config struct {
	ServerURL string
	Timeout   time.Duration
	// HistoryDB is the SQLite file remembering sent shares; "" disables it.
	HistoryDB string

	StreamingThreshold   int
	ChunkSize            int
	BatchThreshold       int
	BatchSize            int
	CompressionThreshold int
	Compression          string
	Iterations           int

	KeyCacheTTL      time.Duration
	KeyCacheCapacity int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8080"
	c.Timeout = 5 * time.Minute
	c.HistoryDB = "zkshare-history.db"

	c.StreamingThreshold = pipeline.DefaultStreamingThreshold
	c.ChunkSize = pipeline.DefaultChunkSize
	c.BatchThreshold = pipeline.DefaultBatchThreshold
	c.BatchSize = pipeline.DefaultBatchSize
	c.CompressionThreshold = pipeline.DefaultCompressionThreshold
	c.Compression = pipeline.CompressionZstd.String()
	c.Iterations = cryptox.DefaultIterations

	c.KeyCacheTTL = keycache.DefaultTTL
	c.KeyCacheCapacity = keycache.DefaultCapacity
}

// PipelineOptions converts the pipeline settings.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	comp, err := pipeline.ParseCompression(c.Compression)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		StreamingThreshold:   c.StreamingThreshold,
		ChunkSize:            c.ChunkSize,
		BatchThreshold:       c.BatchThreshold,
		BatchSize:            c.BatchSize,
		CompressionThreshold: c.CompressionThreshold,
		Compression:          comp,
		Iterations:           c.Iterations,
	}, nil
}

func (c *Config) KeyCacheOptions() keycache.Options {
	return keycache.Options{
		TTL:        c.KeyCacheTTL,
		Capacity:   c.KeyCacheCapacity,
		Iterations: c.Iterations,
	}
}

// LoadConfig applies defaults and the JSON file, then binds the client flags
// to fs and parses args with it. The caller registers its own command flags
// on fs beforehand and reads positional arguments from fs.Args().
func LoadConfig(fs *pflag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if _, err := cfg.PipelineOptions(); err != nil {
		return nil, err
	}
	return cfg, nil
}
