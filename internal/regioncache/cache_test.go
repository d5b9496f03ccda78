package regioncache

import (
	"context"
	"errors"
	"testing"
	"time"

	"gmcstatus/internal/cache"
	"gmcstatus/internal/merchants"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestCache(t *testing.T, start time.Time) (*Cache, *clock) {
	t.Helper()
	clk := &clock{now: start}
	c := New(cache.NewInMemoryCache(), Schedule{Hour: 3, Location: time.UTC}, WithClock(clk.Now))
	return c, clk
}

func TestScheduleBoundaries(t *testing.T) {
	t.Parallel()
	s := Schedule{Hour: 3, Location: time.UTC}

	before := time.Date(2026, 10, 19, 2, 59, 0, 0, time.UTC)
	if got, want := s.Previous(before), time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("previous before boundary = %v, want %v", got, want)
	}
	if got, want := s.Next(before), time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("next before boundary = %v, want %v", got, want)
	}

	at := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	if got := s.Previous(at); !got.Equal(at) {
		t.Fatalf("previous at boundary = %v, want %v", got, at)
	}
	if got, want := s.Next(at), time.Date(2026, 10, 20, 3, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("next at boundary = %v, want %v", got, want)
	}
}

func TestScheduleHonoursLocation(t *testing.T) {
	t.Parallel()
	cph := mustLocation(t, "Europe/Copenhagen")
	s := Schedule{Hour: 3, Location: cph}

	// 01:30 UTC in October is 03:30 CEST.
	now := time.Date(2026, 10, 19, 1, 30, 0, 0, time.UTC)
	want := time.Date(2026, 10, 19, 3, 0, 0, 0, cph)
	if got := s.Previous(now); !got.Equal(want) {
		t.Fatalf("previous = %v, want %v", got, want)
	}
}

func TestGetMissingRegion(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	if _, err := c.Get(context.Background(), "global"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !c.IsStale(context.Background(), "global") {
		t.Fatal("missing region should be stale")
	}
}

func TestPutGetRoundTripsFetchedAt(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 19, 12, 0, 0, 123_000_000, time.UTC)
	c, _ := newTestCache(t, start)
	ctx := context.Background()

	records := []merchants.Status{{Name: "ECCO GB", AccountID: "115079344", Approved: 10}}
	if _, err := c.Put(ctx, "europe", records); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, err := c.Get(ctx, "europe")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !e.FetchedAt.Equal(start) {
		t.Fatalf("fetchedAt = %v, want %v", e.FetchedAt, start)
	}
	if len(e.Records) != 1 || e.Records[0].Name != "ECCO GB" || e.Records[0].Approved != 10 {
		t.Fatalf("unexpected records: %+v", e.Records)
	}
}

func TestStaleAfterMaxAge(t *testing.T) {
	t.Parallel()
	// Boundary at 23:00 so the 24h rule is what trips first.
	clk := &clock{now: time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)}
	c := New(cache.NewInMemoryCache(), Schedule{Hour: 23, Location: time.UTC}, WithClock(clk.Now))
	ctx := context.Background()
	if _, err := c.Put(ctx, "global", nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	clk.now = clk.now.Add(23 * time.Hour)
	if c.IsStale(ctx, "global") {
		t.Fatal("entry should be fresh after 23h")
	}
	clk.now = clk.now.Add(time.Hour)
	if !c.IsStale(ctx, "global") {
		t.Fatal("entry should be stale after 24h")
	}
}

func TestStaleAfterDailyBoundary(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC))
	ctx := context.Background()
	if _, err := c.Put(ctx, "global", nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	clk.now = time.Date(2026, 10, 19, 2, 59, 0, 0, time.UTC)
	if c.IsStale(ctx, "global") {
		t.Fatal("entry should be fresh before the boundary")
	}
	clk.now = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	if !c.IsStale(ctx, "global") {
		t.Fatal("entry fetched before 03:00 should be stale after it")
	}
}

func TestFreshJustAfterBoundary(t *testing.T) {
	t.Parallel()
	c, clk := newTestCache(t, time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC))
	ctx := context.Background()
	if _, err := c.Put(ctx, "global", nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	clk.now = time.Date(2026, 10, 20, 2, 59, 0, 0, time.UTC)
	if c.IsStale(ctx, "global") {
		t.Fatal("entry fetched at the boundary should stay fresh until the next one")
	}
}

func TestClearEvictsEveryRegion(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	for _, region := range []string{"global", "europe", "asia pacific"} {
		if _, err := c.Put(ctx, region, nil); err != nil {
			t.Fatalf("put %s: %v", region, err)
		}
	}
	regions, err := c.Regions(ctx)
	if err != nil {
		t.Fatalf("regions: %v", err)
	}
	if len(regions) != 3 {
		t.Fatalf("expected 3 cached regions, got %v", regions)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	regions, err = c.Regions(ctx)
	if err != nil {
		t.Fatalf("regions: %v", err)
	}
	if len(regions) != 0 {
		t.Fatalf("expected no regions after clear, got %v", regions)
	}
	if _, err := c.Get(ctx, "asia pacific"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}
