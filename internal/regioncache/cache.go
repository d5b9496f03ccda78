package regioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"gmcstatus/internal/cache"
	"gmcstatus/internal/merchants"
)

const (
	keyPrefix = "regions/"
	keySuffix = ".json"

	// MaxAge bounds an entry's life regardless of the daily boundary.
	MaxAge = 24 * time.Hour
)

// Entry is the shaped records of one region at the time they were fetched.
type Entry struct {
	Region    string
	Records   []merchants.Status
	FetchedAt time.Time
}

type entryJSON struct {
	Region    string             `json:"region"`
	Records   []merchants.Status `json:"records"`
	FetchedAt int64              `json:"fetchedAt"` // epoch millis
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Region:    e.Region,
		Records:   e.Records,
		FetchedAt: e.FetchedAt.UnixMilli(),
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Region = raw.Region
	e.Records = raw.Records
	e.FetchedAt = time.UnixMilli(raw.FetchedAt)
	return nil
}

// Cache persists one Entry per region in a key/value store.
type Cache struct {
	store    cache.Cache
	schedule Schedule
	now      func() time.Time
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store cache.Cache, schedule Schedule, opts ...Option) *Cache {
	c := &Cache{store: store, schedule: schedule, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Schedule() Schedule { return c.schedule }

func (c *Cache) Now() time.Time { return c.now() }

func key(region string) string {
	return keyPrefix + url.PathEscape(region) + keySuffix
}

// Get returns the cached entry for region or cache.ErrNotFound.
func (c *Cache) Get(ctx context.Context, region string) (*Entry, error) {
	rc, err := c.store.Get(ctx, key(region))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	var e Entry
	if err := json.NewDecoder(rc).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode cached region %s: %w", region, err)
	}
	return &e, nil
}

// Put overwrites the entry for region, stamped with the current time.
func (c *Cache) Put(ctx context.Context, region string, records []merchants.Status) (*Entry, error) {
	if records == nil {
		records = []merchants.Status{}
	}
	e := &Entry{Region: region, Records: records, FetchedAt: c.now()}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode region %s: %w", region, err)
	}
	if err := c.store.Put(ctx, key(region), string(data)); err != nil {
		return nil, fmt.Errorf("store region %s: %w", region, err)
	}
	return e, nil
}

// Stale reports whether e is at least MaxAge old or predates the most recent
// daily boundary.
func (c *Cache) Stale(e *Entry) bool {
	if e == nil {
		return true
	}
	now := c.now()
	if now.Sub(e.FetchedAt) >= MaxAge {
		return true
	}
	return e.FetchedAt.Before(c.schedule.Previous(now))
}

// IsStale is true for missing or unreadable entries too.
func (c *Cache) IsStale(ctx context.Context, region string) bool {
	e, err := c.Get(ctx, region)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.WarnContext(ctx, "treating unreadable cache entry as stale", "region", region, "error", err)
		}
		return true
	}
	return c.Stale(e)
}

// Regions lists every region with a cached entry.
func (c *Cache) Regions(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list cached regions: %w", err)
	}
	regions := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, keySuffix) {
			continue
		}
		region, err := url.PathUnescape(strings.TrimSuffix(k, keySuffix))
		if err != nil {
			continue
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// Clear evicts every region.
func (c *Cache) Clear(ctx context.Context) error {
	regions, err := c.Regions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, region := range regions {
		if err := c.store.Delete(ctx, key(region)); err != nil {
			errs = append(errs, fmt.Errorf("evict region %s: %w", region, err))
		}
	}
	return errors.Join(errs...)
}
