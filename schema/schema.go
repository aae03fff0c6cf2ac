// Package schema is the pluggable validation surface between decoded
// request values and the middleware's error handling. It defines the
// validate contract and ships two schema producers of its own: reflection
// over struct types and a programmatic builder.
//
// A Schema declares which vendor's issue shape its failures take, so the
// sanitizer in package issues knows how to redact them. The built-in
// producers can emit either recognized shape; which one is a constructor
// option. Validation never coerces: a "42" submitted for a number property
// is a failure, not a conversion.
package schema

import (
	"github.com/ggoodman/httpkit-go/issues"
)

// Result is the outcome of a Validate call. Issues nil or empty means the
// value passed and Value carries it; otherwise Issues carries one entry per
// failure in the vendor's shape and Value is unspecified.
type Result struct {
	Value  any
	Issues []issues.Issue
}

// OK reports whether validation passed.
func (r Result) OK() bool { return len(r.Issues) == 0 }

// Schema validates decoded request values.
type Schema interface {
	// Vendor identifies the issue shape Validate emits on failure.
	Vendor() issues.Vendor

	// Validate checks value and returns it on success, or the failures in
	// the vendor's issue shape. It must not mutate value.
	Validate(value any) Result
}

// Func adapts a plain function into a Schema whose failures are shaped per
// vendor.
func Func(vendor issues.Vendor, fn func(value any) Result) Schema {
	return &funcSchema{vendor: vendor, fn: fn}
}

type funcSchema struct {
	vendor issues.Vendor
	fn     func(value any) Result
}

func (s *funcSchema) Vendor() issues.Vendor     { return s.vendor }
func (s *funcSchema) Validate(value any) Result { return s.fn(value) }

// Option configures the built-in schema producers.
type Option func(*config)

type config struct {
	vendor issues.Vendor
	strict bool
}

func newConfig(opts []Option) config {
	cfg := config{vendor: issues.VendorArkType}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithVendor selects the issue shape emitted on failure. The default is
// issues.VendorArkType.
func WithVendor(v issues.Vendor) Option {
	return func(cfg *config) { cfg.vendor = v }
}

// WithStrictKeys makes object validation reject keys the schema does not
// declare. By default unknown keys are ignored.
func WithStrictKeys() Option {
	return func(cfg *config) { cfg.strict = true }
}
