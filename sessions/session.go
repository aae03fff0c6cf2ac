package sessions

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// Session is the per-request view of one session's values. It is safe for
// concurrent use, though a session normally belongs to a single request.
type Session struct {
	id string

	mu        sync.Mutex
	values    map[string]any
	fresh     bool
	dirty     bool
	destroyed bool
}

func newSession(id string, values map[string]any, fresh bool) *Session {
	if values == nil {
		values = make(map[string]any)
	}
	return &Session{id: id, values: values, fresh: fresh}
}

// ID returns the session id carried in the signed cookie.
func (s *Session) ID() string { return s.id }

// Fresh reports whether the session was created during this request.
func (s *Session) Fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fresh
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value under key and marks the session dirty. Values must
// survive a JSON round trip.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes the value stored under key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Values returns a copy of the session's values.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Destroy marks the session for deletion. The manager removes the record
// and expires the cookie when the request completes.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

// state snapshots the flags the manager acts on at save time.
func (s *Session) state() (fresh, dirty, destroyed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fresh, s.dirty, s.destroyed
}

func (s *Session) encode() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(s.values)
	if err != nil {
		return nil, fmt.Errorf("sessions: encode values: %w", err)
	}
	return b, nil
}

func decodeValues(data []byte) (map[string]any, error) {
	values := make(map[string]any)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("sessions: decode values: %w", err)
	}
	return values, nil
}
