// Package config loads server configuration from TOML files.
//
// Configuration is only needed by the long-running server; CLI commands
// take everything from flags. A missing config file yields the defaults.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/partforge/partforge/pkg/cache"
	"github.com/partforge/partforge/pkg/pipeline"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Cache  CacheConfig  `toml:"cache"`
	Jobs   JobsConfig   `toml:"jobs"`
}

// ServerConfig configures the HTTP listener and upload storage.
type ServerConfig struct {
	// Listen is the listen address (e.g. ":8080").
	Listen string `toml:"listen"`

	// UploadDir is where uploaded files and converted outputs are kept.
	UploadDir string `toml:"upload_dir"`

	// MaxUploadBytes caps multipart upload size. Zero means the
	// pipeline's input cap.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// CacheConfig selects and configures the artifact cache backend.
type CacheConfig struct {
	// Backend is one of "file", "redis", "mongo", or "none".
	Backend string `toml:"backend"`

	// Dir is the cache directory for the file backend.
	Dir string `toml:"dir"`

	// RedisURL is the connection URL for the redis backend.
	RedisURL string `toml:"redis_url"`

	// MongoURI, MongoDatabase and MongoCollection configure the mongo backend.
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`

	// KeyPrefix namespaces cache keys, useful when one backend serves
	// several deployments.
	KeyPrefix string `toml:"key_prefix"`
}

// JobsConfig bounds the conversion worker pool.
type JobsConfig struct {
	// Workers is the worker pool size.
	Workers int `toml:"workers"`

	// TimeoutSeconds is the per-job time budget in seconds.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:         ":8080",
			UploadDir:      "uploads",
			MaxUploadBytes: pipeline.MaxInputBytes,
		},
		Cache: CacheConfig{
			Backend:         "file",
			MongoDatabase:   "partforge",
			MongoCollection: "cache",
		},
		Jobs: JobsConfig{
			Workers:        pipeline.DefaultWorkers,
			TimeoutSeconds: int(pipeline.DefaultJobTimeout / time.Second),
		},
	}
}

// Load reads a TOML config file and applies defaults for unset fields.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "", "file", "redis", "mongo", "none":
	default:
		return fmt.Errorf("unknown cache backend %q (must be file, redis, mongo, or none)", c.Cache.Backend)
	}
	if c.Jobs.Workers < 0 {
		return fmt.Errorf("jobs.workers must not be negative")
	}
	if c.Jobs.TimeoutSeconds < 0 {
		return fmt.Errorf("jobs.timeout_seconds must not be negative")
	}
	return nil
}

// JobTimeout returns the per-job time budget as a duration.
func (c *Config) JobTimeout() time.Duration {
	if c.Jobs.TimeoutSeconds <= 0 {
		return pipeline.DefaultJobTimeout
	}
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}

// OpenCache constructs the configured cache backend.
func (c *Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		if c.Cache.RedisURL == "" {
			return nil, fmt.Errorf("cache.redis_url is required for the redis backend")
		}
		return cache.NewRedisCache(ctx, c.Cache.RedisURL)
	case "mongo":
		if c.Cache.MongoURI == "" {
			return nil, fmt.Errorf("cache.mongo_uri is required for the mongo backend")
		}
		return cache.NewMongoCache(ctx, c.Cache.MongoURI, c.Cache.MongoDatabase, c.Cache.MongoCollection)
	default:
		dir := c.Cache.Dir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(home, ".cache", "partforge")
		}
		return cache.NewFileCache(dir)
	}
}

// Keyer constructs the configured cache keyer, applying the key prefix
// when set.
func (c *Config) Keyer() cache.Keyer {
	if c.Cache.KeyPrefix != "" {
		return cache.NewScopedKeyer(nil, c.Cache.KeyPrefix)
	}
	return cache.NewDefaultKeyer()
}
