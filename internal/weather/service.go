// Package weather supplies current conditions and a short forecast for a
// location. Live sources are consulted when configured; any failure degrades
// to deterministic mock data so callers always get a usable answer.
package weather

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single live-source call.
const DefaultTimeout = 5 * time.Second

// Service fronts the live sources with a cache and a mock fallback.
type Service struct {
	sources []Source
	cache   *Cache
	group   singleflight.Group
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-call deadline for live sources.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the clock used to stamp mock data.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. Sources are tried in order; nil entries are
// ignored and an empty list means mock-only operation. A nil cache gets a
// fresh one with the default TTL.
func NewService(cache *Cache, sources []Source, opts ...Option) *Service {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL, nil)
	}

	live := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			live = append(live, src)
		}
	}

	s := &Service{
		sources: live,
		cache:   cache,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Live reports whether at least one live source is configured.
func (s *Service) Live() bool {
	return len(s.sources) > 0
}

// Current returns current conditions for q. It never fails: cached live data
// is preferred, then a fresh live lookup, then mock data. Mock data is never
// cached.
func (s *Service) Current(ctx context.Context, q Query) Snapshot {
	key := q.Key()

	if snap, ok := s.cache.Get(key); ok {
		s.logger.Debug("weather cache hit", "key", key)
		return snap
	}

	if !s.Live() {
		s.logger.Debug("no live weather source configured, using mock", "key", key)
		return MockSnapshot(q, s.now())
	}

	// Concurrent misses for one key share a single upstream call. The call
	// is detached from the caller that started it, so its cancellation does
	// not fail the others; only the per-source timeout bounds it.
	flight := s.group.DoChan("current:"+key, func() (interface{}, error) {
		snap, err := s.fetchCurrent(context.WithoutCancel(ctx), q)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, snap)
		return snap, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			s.logFallback("current", key, res.Err)
			return MockSnapshot(q, s.now())
		}
		return res.Val.(Snapshot)
	case <-ctx.Done():
		s.logFallback("current", key, ctx.Err())
		return MockSnapshot(q, s.now())
	}
}

// Forecast returns up to MaxForecastPoints points for q in chronological
// order. It never fails and is not cached.
func (s *Service) Forecast(ctx context.Context, q Query) []ForecastPoint {
	key := q.Key()

	if !s.Live() {
		return MockForecast(q, s.now())
	}

	var lastErr error
	for _, src := range s.sources {
		points, err := s.callForecast(ctx, src, q)
		if err != nil {
			s.logger.Warn("weather forecast source failed", "source", src.Name(), "key", key, "error", err)
			lastErr = err
			continue
		}
		if len(points) > MaxForecastPoints {
			points = points[:MaxForecastPoints]
		}
		return points
	}

	s.logFallback("forecast", key, lastErr)
	return MockForecast(q, s.now())
}

func (s *Service) fetchCurrent(ctx context.Context, q Query) (Snapshot, error) {
	var errs []error
	for _, src := range s.sources {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		snap, err := src.Current(cctx, q)
		cancel()

		if err != nil {
			s.logger.Warn("weather source failed", "source", src.Name(), "key", q.Key(), "error", err)
			errs = append(errs, err)
			continue
		}
		if snap.ObservedAt.IsZero() {
			snap.ObservedAt = s.now().UTC()
		}
		if snap.Provider == "" {
			snap.Provider = src.Name()
		}
		return snap, nil
	}
	return Snapshot{}, errors.Join(errs...)
}

func (s *Service) callForecast(ctx context.Context, src Source, q Query) ([]ForecastPoint, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return src.Forecast(cctx, q, MaxForecastPoints)
}

func (s *Service) logFallback(kind, key string, err error) {
	if errors.Is(err, ErrUnauthorized) {
		s.logger.Warn("weather API key invalid or not active, using mock", "kind", kind, "key", key)
		return
	}
	s.logger.Warn("weather lookup failed, using mock", "kind", kind, "key", key, "error", err)
}
