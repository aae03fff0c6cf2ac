// Package csrf implements double-submit CSRF protection. The token lives
// in a signed cookie; state-changing requests must echo it in a header or
// form field, and the two copies are compared in constant time. Handlers
// surface the expected token to clients via TokenFromContext, so the
// cookie itself can stay HttpOnly.
package csrf

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ggoodman/httpkit-go/cookies"
	"github.com/ggoodman/httpkit-go/internal/logctx"
)

const (
	defaultCookieName = "csrf"
	defaultHeaderName = "X-CSRF-Token"
	defaultFieldName  = "_csrf"
)

// Protection issues and checks double-submit tokens. It is safe for
// concurrent use.
type Protection struct {
	signer     *cookies.Signer
	cookieName string
	headerName string
	fieldName  string
	log        *slog.Logger
}

// Option adjusts Protection construction.
type Option func(*Protection)

// WithCookieName sets the token cookie name.
func WithCookieName(name string) Option {
	return func(p *Protection) { p.cookieName = name }
}

// WithHeaderName sets the request header checked for the submitted token.
func WithHeaderName(name string) Option {
	return func(p *Protection) { p.headerName = name }
}

// WithFieldName sets the form field checked when the header is absent.
func WithFieldName(name string) Option {
	return func(p *Protection) { p.fieldName = name }
}

// WithLogHandler routes the middleware's log output. When unset, logs are
// discarded.
func WithLogHandler(h slog.Handler) Option {
	return func(p *Protection) {
		if h != nil {
			p.log = slog.New(logctx.Handler{Handler: h})
		}
	}
}

// NewProtection returns a Protection minting token cookies with signer.
func NewProtection(signer *cookies.Signer, opts ...Option) (*Protection, error) {
	if signer == nil {
		return nil, errors.New("csrf: signer is required")
	}
	p := &Protection{
		signer:     signer,
		cookieName: defaultCookieName,
		headerName: defaultHeaderName,
		fieldName:  defaultFieldName,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		if o != nil {
			o(p)
		}
	}
	return p, nil
}

// Middleware enforces the double-submit check on state-changing methods
// and keeps a token cookie present on all others. The expected token is
// available downstream via TokenFromContext.
func (p *Protection) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := p.cookieToken(r)

		if safeMethod(r.Method) {
			if !ok {
				token = uuid.NewString()
				c, err := p.signer.Issue(p.cookieName, token)
				if err != nil {
					p.log.ErrorContext(r.Context(), "csrf.cookie.fail", slog.String("err", err.Error()))
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, c)
			}
			next.ServeHTTP(w, r.WithContext(withToken(r.Context(), token)))
			return
		}

		if !ok {
			p.reject(w, r, "missing csrf cookie")
			return
		}
		submitted := p.submittedToken(r)
		if submitted == "" {
			p.reject(w, r, "missing csrf token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(submitted)) != 1 {
			p.reject(w, r, "csrf token mismatch")
			return
		}
		next.ServeHTTP(w, r.WithContext(withToken(r.Context(), token)))
	})
}

// cookieToken verifies the request's token cookie.
func (p *Protection) cookieToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(p.cookieName)
	if err != nil {
		return "", false
	}
	token, err := p.signer.Verify(c)
	if err != nil {
		return "", false
	}
	return token, true
}

// submittedToken reads the client's copy of the token from the header or,
// for form posts, the configured field.
func (p *Protection) submittedToken(r *http.Request) string {
	if v := r.Header.Get(p.headerName); v != "" {
		return v
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return r.PostFormValue(p.fieldName)
	}
	return ""
}

func (p *Protection) reject(w http.ResponseWriter, r *http.Request, msg string) {
	p.log.WarnContext(r.Context(), "csrf.reject", slog.String("reason", msg))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]any{"name": "CSRFError", "message": msg},
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

type tokenKey struct{}

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token the Middleware attached to the
// request, for embedding in forms or API bootstrap payloads.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok
}
