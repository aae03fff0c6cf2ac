// Package metrics exposes Prometheus instrumentation for the validation
// middleware. A nil *Metrics is a valid no-op recorder, so callers opt in
// by passing one and skip the dependency otherwise.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "httpkit"

// Validation outcomes recorded per request.
const (
	OutcomeOK        = "ok"
	OutcomeInvalid   = "invalid"
	OutcomeConflict  = "conflict"
	OutcomeMalformed = "malformed"
)

// Metrics tracks validation middleware activity.
//
// Metrics:
//   - httpkit_validations_total: validation runs by target and outcome
//   - httpkit_issues_sanitized_total: issues passed through sanitization by target and vendor
//   - httpkit_request_body_bytes: request body size histogram by target
type Metrics struct {
	validationsTotal *prometheus.CounterVec
	sanitizedTotal   *prometheus.CounterVec
	bodyBytes        *prometheus.HistogramVec
}

// New creates and registers the collectors with reg. A nil reg registers
// with the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Validation middleware runs by target and outcome",
			},
			[]string{"target", "outcome"},
		),

		sanitizedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_sanitized_total",
				Help:      "Validation issues passed through sanitization",
			},
			[]string{"target", "vendor"},
		),

		bodyBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_body_bytes",
				Help:      "Request body sizes seen by body-reading targets",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B to 4MB
			},
			[]string{"target"},
		),
	}

	reg.MustRegister(
		m.validationsTotal,
		m.sanitizedTotal,
		m.bodyBytes,
	)

	return m
}

// RecordValidation counts one validation run for target with the given
// outcome.
func (m *Metrics) RecordValidation(target, outcome string) {
	if m == nil {
		return
	}
	m.validationsTotal.WithLabelValues(target, outcome).Inc()
}

// RecordSanitized counts n issues handed to the sanitizer for target.
func (m *Metrics) RecordSanitized(target, vendor string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sanitizedTotal.WithLabelValues(target, vendor).Add(float64(n))
}

// RecordBodySize observes the byte size of a request body.
func (m *Metrics) RecordBodySize(target string, size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.bodyBytes.WithLabelValues(target).Observe(float64(size))
}
