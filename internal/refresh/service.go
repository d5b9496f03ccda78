package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gmcstatus/internal/cache"
	"gmcstatus/internal/merchants"
	"gmcstatus/internal/regioncache"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Phase of a region's dashboard panel.
type Phase int

const (
	Loading Phase = iota
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is a snapshot of one region. Seq increases every time a new fetch is
// started for the region; results of older fetches are discarded.
type State struct {
	Region    string
	Phase     Phase
	Records   []merchants.Status
	FetchedAt time.Time
	Err       error
	Seq       uint64
}

type fetcher interface {
	Fetch(ctx context.Context, region string) (json.RawMessage, error)
}

type Service struct {
	fetcher fetcher
	cache   *regioncache.Cache
	dir     merchants.Directory
	regions []string
	after   func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	states map[string]*State
	seq    uint64

	// serialises cache writes so an older result can never overwrite a newer one
	writeMu sync.Mutex

	group singleflight.Group
	wg    sync.WaitGroup
}

type Option func(*Service)

// WithAfter replaces time.After in the scheduler, for tests.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Service) { s.after = after }
}

func New(f fetcher, c *regioncache.Cache, dir merchants.Directory, regions []string, opts ...Option) *Service {
	s := &Service{
		fetcher: f,
		cache:   c,
		dir:     dir,
		regions: regions,
		after:   time.After,
		states:  make(map[string]*State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Regions is the configured regions followed by any other region found in the cache.
func (s *Service) Regions(ctx context.Context) []string {
	cached, err := s.cache.Regions(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to list cached regions", "error", err)
	}
	return lo.Uniq(append(append([]string{}, s.regions...), cached...))
}

func (s *Service) snapshot(region string) (State, bool) {
	st, ok := s.states[region]
	if !ok {
		return State{Region: region}, false
	}
	return *st, true
}

// Status returns the current state without starting anything, unless the
// region has never been selected.
func (s *Service) Status(ctx context.Context, region string) State {
	s.mu.Lock()
	st, ok := s.snapshot(region)
	s.mu.Unlock()
	if ok {
		return st
	}
	return s.Select(ctx, region)
}

// Select serves region from memory or the cache when fresh, and otherwise
// moves it to Loading and fetches in the background.
func (s *Service) Select(ctx context.Context, region string) State {
	s.mu.Lock()
	st, ok := s.snapshot(region)
	s.mu.Unlock()
	if ok && st.Phase == Loading {
		return st
	}
	if ok && st.Phase == Loaded && !s.cache.Stale(&regioncache.Entry{FetchedAt: st.FetchedAt}) {
		return st
	}

	if entry, ok := s.fresh(ctx, region); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur := s.states[region]
		if cur != nil && cur.Phase == Loading {
			return *cur
		}
		seq := s.seq
		if cur != nil {
			seq = cur.Seq
		}
		s.states[region] = &State{
			Region:    region,
			Phase:     Loaded,
			Records:   entry.Records,
			FetchedAt: entry.FetchedAt,
			Seq:       seq,
		}
		return *s.states[region]
	}

	seq, started := s.begin(region, false)
	if started {
		s.launch(ctx, region, seq)
	}
	return State{Region: region, Phase: Loading, Seq: seq}
}

// Refresh moves the region to Loading under a new seq whatever its state. A
// fetch already in flight is joined rather than duplicated, and its result is
// settled under the new seq.
func (s *Service) Refresh(ctx context.Context, region string) State {
	seq, _ := s.begin(region, true)
	s.launch(ctx, region, seq)
	return State{Region: region, Phase: Loading, Seq: seq}
}

// Load is the synchronous Select: it returns fresh cached records or waits
// for a fetch, joining one already in flight.
func (s *Service) Load(ctx context.Context, region string) (State, error) {
	if entry, ok := s.fresh(ctx, region); ok {
		return State{Region: region, Phase: Loaded, Records: entry.Records, FetchedAt: entry.FetchedAt}, nil
	}
	seq, _ := s.begin(region, false)
	return s.wait(ctx, s.launch(ctx, region, seq))
}

// RefreshAll force-refreshes every known region and waits for the results.
func (s *Service) RefreshAll(ctx context.Context) error {
	return s.refreshRegions(ctx, s.Regions(ctx))
}

func (s *Service) refreshRegions(ctx context.Context, regions []string) error {
	var g errgroup.Group
	g.SetLimit(4)
	for _, region := range regions {
		g.Go(func() error {
			seq, _ := s.begin(region, true)
			_, err := s.wait(ctx, s.launch(ctx, region, seq))
			return err
		})
	}
	return g.Wait()
}

// Run refreshes every region at each daily boundary until ctx is done.
func (s *Service) Run(ctx context.Context) {
	schedule := s.cache.Schedule()
	for {
		now := s.cache.Now()
		next := schedule.Next(now)
		slog.InfoContext(ctx, "next scheduled refresh", "at", next)
		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(now)):
		}

		regions := s.Regions(ctx)
		if err := s.cache.Clear(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to clear region cache", "error", err)
		}
		if err := s.refreshRegions(ctx, regions); err != nil {
			slog.ErrorContext(ctx, "scheduled refresh failed", "error", err)
		}
	}
}

// Wait blocks until background fetches finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) fresh(ctx context.Context, region string) (*regioncache.Entry, bool) {
	entry, err := s.cache.Get(ctx, region)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read region cache", "region", region, "error", err)
		}
		return nil, false
	}
	if s.cache.Stale(entry) {
		return nil, false
	}
	return entry, true
}

// begin moves region to Loading. Without force an existing fetch is reused
// and started is false. With force the seq moves on so only the joining
// launch settles the flight; the flight itself is never forgotten, so at most
// one fetch per region runs.
func (s *Service) begin(region string, force bool) (seq uint64, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.states[region]; cur != nil && cur.Phase == Loading && !force {
		return cur.Seq, false
	}
	s.seq++
	s.states[region] = &State{Region: region, Phase: Loading, Seq: s.seq}
	return s.seq, true
}

// launch joins or starts the region's flight. A tracked goroutine settles the
// result against seq even if the caller stops waiting; launches holding an
// older seq are discarded.
func (s *Service) launch(ctx context.Context, region string, seq uint64) <-chan State {
	// the request that triggered this may end long before the fetch does
	ctx = context.WithoutCancel(ctx)
	ch := s.group.DoChan(region, func() (any, error) {
		return s.fetch(ctx, region, seq)
	})
	done := make(chan State, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := <-ch
		if res.Err != nil {
			done <- s.fail(ctx, region, seq, res.Err)
			return
		}
		done <- s.succeed(ctx, region, seq, res.Val.([]merchants.Status))
	}()
	return done
}

func (s *Service) wait(ctx context.Context, done <-chan State) (State, error) {
	select {
	case st := <-done:
		return st, st.Err
	case <-ctx.Done():
		return State{Phase: Loading}, ctx.Err()
	}
}

func (s *Service) fetch(ctx context.Context, region string, seq uint64) ([]merchants.Status, error) {
	slog.InfoContext(ctx, "fetching merchant status", "region", region, "seq", seq)
	raw, err := s.fetcher.Fetch(ctx, region)
	if err != nil {
		return nil, err
	}
	return s.dir.Classify(region, merchants.ShapeResponse(raw, s.dir)), nil
}

func (s *Service) current(region string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.states[region]
	return cur != nil && cur.Seq == seq && cur.Phase == Loading
}

func (s *Service) succeed(ctx context.Context, region string, seq uint64, records []merchants.Status) State {
	result := State{Region: region, Phase: Loaded, Records: records, FetchedAt: s.cache.Now(), Seq: seq}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.current(region, seq) {
		slog.InfoContext(ctx, "discarding superseded fetch", "region", region, "seq", seq)
		return result
	}
	entry, err := s.cache.Put(ctx, region, records)
	if err != nil {
		slog.ErrorContext(ctx, "failed to cache region", "region", region, "error", err)
	} else {
		result.FetchedAt = entry.FetchedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.states[region]; cur != nil && cur.Seq == seq {
		s.states[region] = &result
	}
	slog.InfoContext(ctx, "region loaded", "region", region, "seq", seq, "merchants", len(records))
	return result
}

func (s *Service) fail(ctx context.Context, region string, seq uint64, err error) State {
	result := State{Region: region, Phase: Failed, Err: err, Seq: seq}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.states[region]
	if cur == nil || cur.Seq != seq || cur.Phase != Loading {
		slog.InfoContext(ctx, "discarding superseded fetch error", "region", region, "seq", seq, "error", err)
		return result
	}
	slog.ErrorContext(ctx, "failed to fetch region", "region", region, "seq", seq, "error", err)
	s.states[region] = &result
	return result
}

// Normalize maps a path segment to the key regions are stored under.
func Normalize(region string) string {
	return strings.ToLower(strings.TrimSpace(region))
}
