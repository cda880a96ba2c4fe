package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the latest report per service in a map.
// It is safe for concurrent use.
//
// With a TTL, a background goroutine drops reports older than the TTL; call
// Stop when done with such a store.
type MemoryStore struct {
	mu            sync.RWMutex
	reports       map[string]Report
	ttl           time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates a store that keeps reports until overwritten.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]Report),
		now:     time.Now,
	}
}

// NewMemoryStoreWithTTL creates a store that expires reports older than ttl,
// checking every cleanupInterval (one minute when zero).
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		reports:       make(map[string]Report),
		ttl:           ttl,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop ends the cleanup goroutine. It is safe to call more than once, and on
// stores without TTL.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := s.now()
	for service, report := range s.reports {
		if now.Sub(report.ReportedAt) > s.ttl {
			delete(s.reports, service)
		}
	}
}

// Put stores a report, replacing the previous one for the same service.
// A zero ReportedAt is set to the current time.
func (s *MemoryStore) Put(ctx context.Context, report Report) error {
	if err := ValidateService(report.Service); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if report.ReportedAt.IsZero() {
		report.ReportedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.Service] = report
	return nil
}

// GetLatest returns the report of service; found is false when there is none.
func (s *MemoryStore) GetLatest(ctx context.Context, service string) (Report, bool, error) {
	select {
	case <-ctx.Done():
		return Report{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	report, found := s.reports[service]
	return report, found, nil
}

// Len returns the number of reports held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Delete removes the report of service and reports whether one existed.
func (s *MemoryStore) Delete(service string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.reports[service]
	delete(s.reports, service)
	return existed
}
