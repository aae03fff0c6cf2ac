// Package cookies signs and verifies cookie values as compact HS256 JWTs.
// A Signer carries the signing secret plus the cookie attributes it stamps
// onto every cookie it issues, so call sites only deal in names and values.
package cookies

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSignature indicates the cookie value failed parsing or
// signature verification under every configured secret.
var ErrInvalidSignature = errors.New("cookies: invalid signature")

// ErrExpired indicates the cookie carried a well-signed token whose
// expiry has passed.
var ErrExpired = errors.New("cookies: token expired")

const (
	defaultTTL    = 24 * time.Hour
	defaultLeeway = 60 * time.Second
)

// Signer issues and verifies signed cookies. It is safe for concurrent use.
type Signer struct {
	secret   []byte
	previous [][]byte
	issuer   string
	ttl      time.Duration
	leeway   time.Duration

	path     string
	domain   string
	secure   bool
	httpOnly bool
	sameSite http.SameSite
}

// Option adjusts Signer construction.
type Option func(*Signer)

// WithIssuer sets the iss claim minted into tokens and enforced on verify.
func WithIssuer(iss string) Option { return func(s *Signer) { s.issuer = iss } }

// WithTTL sets how long issued cookies stay valid.
func WithTTL(d time.Duration) Option { return func(s *Signer) { s.ttl = d } }

// WithLeeway sets the clock-skew allowance applied during verification.
func WithLeeway(d time.Duration) Option { return func(s *Signer) { s.leeway = d } }

// WithPreviousSecrets adds verify-only secrets so cookies minted before a
// secret rotation keep verifying until they expire.
func WithPreviousSecrets(secrets ...[]byte) Option {
	return func(s *Signer) { s.previous = append(s.previous, secrets...) }
}

// WithPath sets the cookie Path attribute.
func WithPath(p string) Option { return func(s *Signer) { s.path = p } }

// WithDomain sets the cookie Domain attribute.
func WithDomain(d string) Option { return func(s *Signer) { s.domain = d } }

// WithSecure toggles the cookie Secure attribute.
func WithSecure(v bool) Option { return func(s *Signer) { s.secure = v } }

// WithHTTPOnly toggles the cookie HttpOnly attribute.
func WithHTTPOnly(v bool) Option { return func(s *Signer) { s.httpOnly = v } }

// WithSameSite sets the cookie SameSite attribute.
func WithSameSite(m http.SameSite) Option { return func(s *Signer) { s.sameSite = m } }

// NewSigner returns a Signer using secret for both signing and
// verification. Defaults: 24h TTL, 60s leeway, Path "/", Secure, HttpOnly,
// SameSite Lax.
func NewSigner(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("cookies: secret is required")
	}
	s := &Signer{
		secret:   secret,
		ttl:      defaultTTL,
		leeway:   defaultLeeway,
		path:     "/",
		secure:   true,
		httpOnly: true,
		sameSite: http.SameSiteLaxMode,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s, nil
}

// Issue signs value into a cookie named name, stamped with the Signer's
// attributes and expiry.
func (s *Signer) Issue(name, value string) (*http.Cookie, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"val": value,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("cookies: sign %s: %w", name, err)
	}
	c := s.attributed(name)
	c.Value = signed
	c.MaxAge = int(s.ttl / time.Second)
	c.Expires = now.Add(s.ttl)
	return c, nil
}

// Verify checks the cookie's token against the current secret, then any
// rotation fallbacks, and returns the embedded value. Expiry is reported
// as ErrExpired, every other failure as ErrInvalidSignature.
func (s *Signer) Verify(c *http.Cookie) (string, error) {
	if c == nil || c.Value == "" {
		return "", fmt.Errorf("%w: empty cookie", ErrInvalidSignature)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parser := jwt.NewParser(opts...)

	var lastErr error
	for _, secret := range append([][]byte{s.secret}, s.previous...) {
		parsed, err := parser.Parse(c.Value, func(*jwt.Token) (any, error) { return secret, nil })
		if err != nil {
			// Expiry only surfaces once the signature checked out under
			// this secret, so trying further secrets cannot help.
			if errors.Is(err, jwt.ErrTokenExpired) {
				return "", fmt.Errorf("%w: %v", ErrExpired, err)
			}
			lastErr = err
			continue
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return "", fmt.Errorf("%w: unexpected claims type", ErrInvalidSignature)
		}
		val, _ := claims["val"].(string)
		if val == "" {
			return "", fmt.Errorf("%w: missing value claim", ErrInvalidSignature)
		}
		return val, nil
	}
	return "", fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

// Clear returns an expired cookie that instructs the client to drop name.
func (s *Signer) Clear(name string) *http.Cookie {
	c := s.attributed(name)
	c.MaxAge = -1
	c.Expires = time.Unix(1, 0)
	return c
}

func (s *Signer) attributed(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     s.path,
		Domain:   s.domain,
		Secure:   s.secure,
		HttpOnly: s.httpOnly,
		SameSite: s.sameSite,
	}
}
