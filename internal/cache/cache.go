package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gmcstatus/internal/config"
)

var ErrNotFound = errors.New("cache entry not found")

// Cache is a flat key/value store. Keys may contain slashes.
type Cache interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys under prefix with the prefix trimmed.
	List(ctx context.Context, prefix string) ([]string, error)
}

func MakeCache(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "file":
		slog.InfoContext(ctx, "using file cache", "dir", cfg.Dir)
		return NewFileCache(cfg.Dir), nil
	case "memory":
		slog.InfoContext(ctx, "using in-memory cache")
		return NewInMemoryCache(), nil
	case "blob":
		if _, ok := os.LookupEnv("AZURE_STORAGE_ACCOUNT_NAME"); !ok {
			return nil, fmt.Errorf("AZURE_STORAGE_ACCOUNT_NAME could not be found")
		}
		slog.InfoContext(ctx, "using Azure Blob Storage for cache", "container", cfg.Container)
		return NewBlobCache(ctx, cfg.Container)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis cache")
		}
		slog.InfoContext(ctx, "using Redis for cache")
		return NewRedisCache(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
