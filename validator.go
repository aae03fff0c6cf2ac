// Package httpkit validates one surface of an incoming HTTP request
// against a schema before the handler runs. A Validator is bound to a
// target (the JSON body, a form body, the query string, headers, cookies
// or route parameters), extracts that surface into a plain nested value,
// runs the schema over it and either stashes the validated value in the
// request context or answers with a 400 carrying the vendor-shaped,
// sanitized issues.
//
// Form and query surfaces arrive flat and are rebuilt into nested values
// by package formtree, so "user.email" and "tags[0]" address into objects
// and arrays the schema can see. Header, cookie and param surfaces stay
// flat single-level maps.
package httpkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/httpkit-go/formtree"
	"github.com/ggoodman/httpkit-go/internal/logctx"
	"github.com/ggoodman/httpkit-go/issues"
	"github.com/ggoodman/httpkit-go/metrics"
	"github.com/ggoodman/httpkit-go/schema"
)

// DefaultMaxBodyBytes caps how much request body the json and form
// targets will read when WithMaxBodyBytes is not given.
const DefaultMaxBodyBytes = 1 << 20

var (
	jsonMediaType      = contenttype.NewMediaType("application/json")
	formMediaType      = contenttype.NewMediaType("application/x-www-form-urlencoded")
	multipartMediaType = contenttype.NewMediaType("multipart/form-data")
)

// Validator extracts and validates one request surface. It is stateless
// per request and safe for concurrent use.
type Validator struct {
	target    issues.Target
	schema    schema.Schema
	sanitizer *issues.Sanitizer
	maxBody   int64
	params    []string
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// ValidatorOption adjusts Validator construction.
type ValidatorOption func(*Validator)

// WithLogHandler routes the middleware's log output. When unset, logs
// are discarded.
func WithLogHandler(h slog.Handler) ValidatorOption {
	return func(v *Validator) {
		if h != nil {
			v.log = slog.New(logctx.Handler{Handler: h})
		}
	}
}

// WithSanitizer replaces the default issue sanitizer, which redacts the
// stock restricted-field table. Pass one backed by an issues.Ruleset to
// make the redaction table reloadable.
func WithSanitizer(s *issues.Sanitizer) ValidatorOption {
	return func(v *Validator) {
		if s != nil {
			v.sanitizer = s
		}
	}
}

// WithMaxBodyBytes caps the request body size for body-reading targets.
func WithMaxBodyBytes(n int64) ValidatorOption {
	return func(v *Validator) {
		if n > 0 {
			v.maxBody = n
		}
	}
}

// WithPathParams declares the route parameter names the param target
// reads via Request.PathValue. Required for that target, ignored by the
// others.
func WithPathParams(names ...string) ValidatorOption {
	return func(v *Validator) { v.params = names }
}

// WithMetrics attaches Prometheus instrumentation to the middleware.
func WithMetrics(m *metrics.Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator returns a Validator checking target against s.
func NewValidator(target issues.Target, s schema.Schema, opts ...ValidatorOption) (*Validator, error) {
	if s == nil {
		return nil, errors.New("httpkit: schema is required")
	}
	switch target {
	case issues.TargetJSON, issues.TargetForm, issues.TargetQuery, issues.TargetHeader, issues.TargetCookie, issues.TargetParam:
	default:
		return nil, fmt.Errorf("httpkit: unknown target %q", target)
	}

	v := &Validator{
		target:    target,
		schema:    s,
		sanitizer: issues.NewSanitizer(nil),
		maxBody:   DefaultMaxBodyBytes,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		if o != nil {
			o(v)
		}
	}

	if target == issues.TargetParam && len(v.params) == 0 {
		return nil, errors.New("httpkit: the param target requires WithPathParams")
	}

	return v, nil
}

// Middleware validates the configured surface and invokes next only when
// it passes. Handlers read the validated value with Validated.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := logctx.RequestDataFrom(ctx); !ok {
			ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
				RequestID:  uuid.NewString(),
				Method:     r.Method,
				UserAgent:  r.UserAgent(),
				RemoteAddr: r.RemoteAddr,
				Path:       r.URL.Path,
			})
		}
		ctx = logctx.WithValidationData(ctx, &logctx.ValidationData{
			Target: string(v.target),
			Vendor: string(v.schema.Vendor()),
		})
		r = r.WithContext(ctx)

		value, err := v.extract(w, r)
		if err != nil {
			v.fail(w, r, err)
			return
		}

		res := v.schema.Validate(value)
		if !res.OK() {
			v.metrics.RecordValidation(string(v.target), metrics.OutcomeInvalid)
			sanitized := v.sanitizer.Sanitize(res.Issues, v.schema.Vendor(), v.target)
			v.metrics.RecordSanitized(string(v.target), string(v.schema.Vendor()), len(sanitized))
			v.log.DebugContext(ctx, "validation.invalid", slog.Int("issues", len(sanitized)))
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"data":    value,
				"error":   sanitized,
				"success": false,
			})
			return
		}

		v.metrics.RecordValidation(string(v.target), metrics.OutcomeOK)
		next.ServeHTTP(w, r.WithContext(withValidated(ctx, v.target, res.Value)))
	})
}

// fail translates extraction failures into client responses. Every error
// here stems from client-submitted input, so the message is safe to echo.
func (v *Validator) fail(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *formtree.ConflictError
	if errors.As(err, &conflict) {
		v.metrics.RecordValidation(string(v.target), metrics.OutcomeConflict)
		v.log.DebugContext(r.Context(), "validation.conflict",
			slog.String("key", conflict.Key),
			slog.String("path", conflict.Path),
		)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error": map[string]any{
				"name":    "ConflictError",
				"message": conflict.Error(),
				"key":     conflict.Key,
				"path":    conflict.Path,
			},
		})
		return
	}

	v.metrics.RecordValidation(string(v.target), metrics.OutcomeMalformed)

	var media *unsupportedMediaTypeError
	if errors.As(err, &media) {
		v.log.DebugContext(r.Context(), "validation.mediatype", slog.String("err", media.Error()))
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{
			"success": false,
			"error":   map[string]any{"name": "UnsupportedMediaTypeError", "message": media.Error()},
		})
		return
	}

	msg := err.Error()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		msg = "request body too large"
	}
	v.log.DebugContext(r.Context(), "validation.malformed", slog.String("err", msg))
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"error":   map[string]any{"name": "MalformedRequestError", "message": msg},
	})
}

// extract reads the configured surface into the plain value handed to the
// schema.
func (v *Validator) extract(w http.ResponseWriter, r *http.Request) (any, error) {
	switch v.target {
	case issues.TargetJSON:
		return v.extractJSON(w, r)

	case issues.TargetForm:
		return v.extractForm(w, r)

	case issues.TargetQuery:
		return formtree.DecodeMap(flattenValues(r.URL.Query()))

	case issues.TargetHeader:
		flat := make(map[string]any, len(r.Header))
		for name, vals := range r.Header {
			flat[strings.ToLower(name)] = strings.Join(vals, ", ")
		}
		return flat, nil

	case issues.TargetCookie:
		cs := r.Cookies()
		flat := make(map[string]any, len(cs))
		for _, c := range cs {
			// First occurrence wins when a name repeats, matching how
			// Request.Cookie resolves duplicates.
			if _, ok := flat[c.Name]; !ok {
				flat[c.Name] = c.Value
			}
		}
		return flat, nil

	case issues.TargetParam:
		flat := make(map[string]any, len(v.params))
		for _, name := range v.params {
			flat[name] = r.PathValue(name)
		}
		return flat, nil
	}

	return nil, fmt.Errorf("httpkit: unknown target %q", v.target)
}

func (v *Validator) extractJSON(w http.ResponseWriter, r *http.Request) (any, error) {
	ct, err := contenttype.GetMediaType(r)
	if err != nil || !ct.Matches(jsonMediaType) {
		return nil, &unsupportedMediaTypeError{got: r.Header.Get("Content-Type")}
	}

	body := http.MaxBytesReader(w, r.Body, v.maxBody)
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	v.metrics.RecordBodySize(string(v.target), int64(len(raw)))

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return value, nil
}

func (v *Validator) extractForm(w http.ResponseWriter, r *http.Request) (any, error) {
	ct, err := contenttype.GetMediaType(r)
	if err != nil || (!ct.Matches(formMediaType) && !ct.Matches(multipartMediaType)) {
		return nil, &unsupportedMediaTypeError{got: r.Header.Get("Content-Type")}
	}

	r.Body = http.MaxBytesReader(w, r.Body, v.maxBody)
	if ct.Matches(multipartMediaType) {
		if err := r.ParseMultipartForm(v.maxBody); err != nil {
			return nil, wrapParseError("invalid multipart form", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, wrapParseError("invalid form encoding", err)
		}
	}
	if r.ContentLength > 0 {
		v.metrics.RecordBodySize(string(v.target), r.ContentLength)
	}

	return formtree.DecodeMap(flattenValues(r.PostForm))
}

// wrapParseError keeps body-limit errors unwrapped so they classify
// cleanly, and labels everything else with the parse stage.
func wrapParseError(stage string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return tooLarge
	}
	return fmt.Errorf("%s: %v", stage, err)
}

// flattenValues lowers url.Values into the shape the decoder takes: a
// single value stays a string, a repeated key becomes a []any.
func flattenValues(vals url.Values) map[string]any {
	flat := make(map[string]any, len(vals))
	for k, vs := range vals {
		if len(vs) == 1 {
			flat[k] = vs[0]
			continue
		}
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		flat[k] = out
	}
	return flat
}

type unsupportedMediaTypeError struct {
	got string
}

func (e *unsupportedMediaTypeError) Error() string {
	if e.got == "" {
		return "missing content type"
	}
	return fmt.Sprintf("unsupported content type %q", e.got)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type validatedKey struct{ target issues.Target }

type validatedValue struct{ value any }

func withValidated(ctx context.Context, target issues.Target, value any) context.Context {
	return context.WithValue(ctx, validatedKey{target}, validatedValue{value})
}

// Validated returns the value the middleware validated for target on this
// request.
func Validated(ctx context.Context, target issues.Target) (any, bool) {
	v, ok := ctx.Value(validatedKey{target}).(validatedValue)
	return v.value, ok
}
