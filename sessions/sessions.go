// Package sessions provides cookie-backed server sessions on top of a
// pluggable Store. The Manager owns the cookie lifecycle; stores own
// persistence and expiry.
package sessions

import (
	"context"
	"errors"
	"time"
)

// Store defines the persistence contract for session records.
type Store interface {
	// Load retrieves the record for a session id.
	// Returns nil Record if the id doesn't exist or has expired.
	// Returns error only for legitimate storage system failures.
	Load(ctx context.Context, id string) (*Record, error)

	// Save stores the record data for a session id, replacing any
	// existing record.
	Save(ctx context.Context, id string, data []byte, opts ...Option) error

	// Delete removes the record for a session id. Deleting an absent id
	// is not an error.
	Delete(ctx context.Context, id string) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// Record represents a stored session with metadata.
type Record struct {
	Data      []byte     // The stored session payload
	CreatedAt time.Time  // When the record was written
	ExpiresAt *time.Time // When the record expires (nil = no expiration)
}

// IsExpired checks if the record has expired.
func (r *Record) IsExpired() bool {
	return r.ExpiresAt != nil && time.Now().After(*r.ExpiresAt)
}

// Option configures store operations.
type Option func(*Options)

// Options contains configuration for store operations.
type Options struct {
	TTL *time.Duration // Optional: time-to-live for the record
}

// WithTTL sets a time-to-live for the stored record.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// ApplyOptions collects opts into an Options value. Store implementations
// call this at the top of each operation.
func ApplyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// ErrNoSession is returned by Manager.Load when the request carries no
// usable session cookie.
var ErrNoSession = errors.New("sessions: no session")
