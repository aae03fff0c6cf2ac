// Package memorystore provides an in-memory implementation of the
// sessions.Store interface, suitable for tests and single-process
// deployments.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/httpkit-go/sessions"
)

const sweepInterval = time.Minute

// Store implements sessions.Store with a locked map and a background
// sweep of expired records.
type Store struct {
	mu        sync.RWMutex
	records   map[string]*sessions.Record
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new in-memory store and starts its expiry sweeper.
func New() *Store {
	s := &Store{
		records: make(map[string]*sessions.Record),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Load retrieves the record for a session id.
func (s *Store) Load(ctx context.Context, id string) (*sessions.Record, error) {
	s.mu.RLock()
	rec, exists := s.records[id]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	if rec.IsExpired() {
		s.mu.Lock()
		delete(s.records, id)
		s.mu.Unlock()
		return nil, nil
	}

	out := &sessions.Record{
		Data:      make([]byte, len(rec.Data)),
		CreatedAt: rec.CreatedAt,
	}
	copy(out.Data, rec.Data)
	if rec.ExpiresAt != nil {
		exp := *rec.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out, nil
}

// Save stores the record data for a session id.
func (s *Store) Save(ctx context.Context, id string, data []byte, opts ...sessions.Option) error {
	options := sessions.ApplyOptions(opts)

	now := time.Now()
	rec := &sessions.Record{
		Data:      make([]byte, len(data)),
		CreatedAt: now,
	}
	copy(rec.Data, data)
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		rec.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return nil
}

// Delete removes the record for a session id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper and drops all records.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	s.records = make(map[string]*sessions.Record)
	s.mu.Unlock()
	return nil
}

// sweep periodically removes expired records so abandoned sessions don't
// accumulate between loads.
func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, rec := range s.records {
				if rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
					delete(s.records, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Compile-time interface check
var _ sessions.Store = (*Store)(nil)
