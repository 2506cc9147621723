package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/smart-irrigation/internal/pump"
	"github.com/i474232898/smart-irrigation/internal/sensor"
)

// MemoryStore is a concurrency-safe in-memory implementation of the pump log
// and sensor reading repositories. Data is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex

	logs     []pump.LogRecord
	readings []sensor.Reading

	// retention configuration
	maxAge time.Duration // optional max age for stored records (0 = unlimited)
	now    func() time.Time
}

// NewMemoryStore creates a new MemoryStore. If maxAge is <= 0, records are
// kept until restart.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxAge: maxAge,
		now:    time.Now,
	}
}

// InsertLog appends an audit record.
func (s *MemoryStore) InsertLog(ctx context.Context, rec pump.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, rec)
	s.logs = pruneOlder(s.logs, s.cutoff(), func(r pump.LogRecord) time.Time { return r.At })
	return nil
}

// LatestLog returns the newest record for deviceID, or nil.
func (s *MemoryStore) LatestLog(ctx context.Context, deviceID string) (*pump.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *pump.LogRecord
	for i := range s.logs {
		r := s.logs[i]
		if r.DeviceID != deviceID {
			continue
		}
		// Later inserts win ties so the newest append is authoritative.
		if latest == nil || !r.At.Before(latest.At) {
			latest = &r
		}
	}
	return latest, nil
}

// FindLogs filters by device set and lower time bound, sorted by time.
func (s *MemoryStore) FindLogs(ctx context.Context, f pump.LogFilter) ([]pump.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := toSet(f.DeviceIDs)

	s.mu.RLock()
	var result []pump.LogRecord
	for _, r := range s.logs {
		if devices != nil && !devices[r.DeviceID] {
			continue
		}
		if !f.Since.IsZero() && r.At.Before(f.Since) {
			continue
		}
		result = append(result, r)
	}
	s.mu.RUnlock()

	sortByTime(result, f.Ascending, func(r pump.LogRecord) time.Time { return r.At })
	return limit(result, f.Limit), nil
}

// InsertReading appends a sensor reading.
func (s *MemoryStore) InsertReading(ctx context.Context, r sensor.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings = append(s.readings, r)
	s.readings = pruneOlder(s.readings, s.cutoff(), func(r sensor.Reading) time.Time { return r.At })
	return nil
}

// LatestReading returns the newest reading for deviceID, or nil.
func (s *MemoryStore) LatestReading(ctx context.Context, deviceID string) (*sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *sensor.Reading
	for i := range s.readings {
		r := s.readings[i]
		if r.DeviceID != deviceID {
			continue
		}
		if latest == nil || !r.At.Before(latest.At) {
			latest = &r
		}
	}
	return latest, nil
}

// FindReadings filters by device set and time bounds (inclusive).
func (s *MemoryStore) FindReadings(ctx context.Context, f sensor.Filter) ([]sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := toSet(f.DeviceIDs)

	s.mu.RLock()
	var result []sensor.Reading
	for _, r := range s.readings {
		if devices != nil && !devices[r.DeviceID] {
			continue
		}
		if !f.Since.IsZero() && r.At.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && r.At.After(f.Until) {
			continue
		}
		result = append(result, r)
	}
	s.mu.RUnlock()

	sortByTime(result, f.Ascending, func(r sensor.Reading) time.Time { return r.At })
	return limit(result, f.Limit), nil
}

func (s *MemoryStore) cutoff() time.Time {
	if s.maxAge <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.maxAge)
}

// pruneOlder drops items stamped before cutoff. A zero cutoff keeps everything.
func pruneOlder[T any](items []T, cutoff time.Time, at func(T) time.Time) []T {
	if cutoff.IsZero() {
		return items
	}
	kept := items[:0]
	for _, it := range items {
		if !at(it).Before(cutoff) {
			kept = append(kept, it)
		}
	}
	return kept
}

// sortByTime orders items by timestamp. Among equal timestamps the most
// recently inserted item comes first when sorting newest first.
func sortByTime[T any](items []T, ascending bool, at func(T) time.Time) {
	if !ascending {
		slices.Reverse(items)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if ascending {
			return at(items[i]).Before(at(items[j]))
		}
		return at(items[i]).After(at(items[j]))
	})
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
