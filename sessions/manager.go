package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/httpkit-go/cookies"
	"github.com/ggoodman/httpkit-go/internal/logctx"
)

const (
	defaultCookieName = "sid"
	defaultTTL        = 24 * time.Hour
)

// Manager ties session records in a Store to signed cookies on the wire.
// It is safe for concurrent use.
type Manager struct {
	store  Store
	signer *cookies.Signer
	name   string
	ttl    time.Duration
	log    *slog.Logger
}

// ManagerOption adjusts Manager construction.
type ManagerOption func(*Manager)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) { m.name = name }
}

// WithSessionTTL sets how long saved records live in the store.
func WithSessionTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = d }
}

// WithLogHandler routes the manager's log output. When unset, logs are
// discarded.
func WithLogHandler(h slog.Handler) ManagerOption {
	return func(m *Manager) {
		if h != nil {
			m.log = slog.New(logctx.Handler{Handler: h})
		}
	}
}

// NewManager returns a Manager persisting to store with cookies minted by
// signer.
func NewManager(store Store, signer *cookies.Signer, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("sessions: store is required")
	}
	if signer == nil {
		return nil, errors.New("sessions: signer is required")
	}
	m := &Manager{
		store:  store,
		signer: signer,
		name:   defaultCookieName,
		ttl:    defaultTTL,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	return m, nil
}

// New mints a fresh session. Its cookie and record are written when the
// session is saved.
func (m *Manager) New() *Session {
	return newSession(uuid.NewString(), nil, true)
}

// Load resolves the request's session cookie to a stored session. A
// missing, unverifiable, or expired cookie and an absent record all report
// ErrNoSession; other errors are storage failures.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.name)
	if err != nil {
		return nil, fmt.Errorf("%w: no cookie", ErrNoSession)
	}
	id, err := m.signer.Verify(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sessions: load %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: no record", ErrNoSession)
	}
	values, err := decodeValues(rec.Data)
	if err != nil {
		return nil, err
	}
	return newSession(id, values, false), nil
}

// Save writes the session's cookie and record. Call it before writing the
// response body; the Middleware handles the ordering automatically.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	m.writeCookie(w, sess)
	return m.persist(ctx, sess)
}

// Middleware loads the request's session or creates a fresh one, makes it
// available via FromContext, and saves it when the handler completes. The
// session cookie is emitted just before the first response write.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := m.Load(ctx, r)
		if errors.Is(err, ErrNoSession) {
			sess = m.New()
		} else if err != nil {
			m.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		ctx = withSession(ctx, sess)
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID()})

		sw := &sessionWriter{ResponseWriter: w, m: m, sess: sess}
		next.ServeHTTP(sw, r.WithContext(ctx))

		if !sw.wroteHeader {
			m.writeCookie(w, sess)
		}
		if err := m.persist(ctx, sess); err != nil {
			m.log.ErrorContext(ctx, "session.persist.fail",
				slog.String("session_id", sess.ID()),
				slog.String("err", err.Error()))
		}
	})
}

// writeCookie emits the Set-Cookie header a session's state calls for:
// a signed cookie for fresh sessions, an expired one for destroyed
// sessions, nothing for an unchanged established session.
func (m *Manager) writeCookie(w http.ResponseWriter, sess *Session) {
	fresh, _, destroyed := sess.state()
	switch {
	case destroyed:
		http.SetCookie(w, m.signer.Clear(m.name))
	case fresh:
		c, err := m.signer.Issue(m.name, sess.ID())
		if err != nil {
			m.log.Error("session.cookie.fail", slog.String("err", err.Error()))
			return
		}
		http.SetCookie(w, c)
	}
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	fresh, dirty, destroyed := sess.state()
	if destroyed {
		if err := m.store.Delete(ctx, sess.ID()); err != nil {
			return fmt.Errorf("sessions: delete %s: %w", sess.ID(), err)
		}
		return nil
	}
	if !fresh && !dirty {
		return nil
	}
	data, err := sess.encode()
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, sess.ID(), data, WithTTL(m.ttl)); err != nil {
		return fmt.Errorf("sessions: save %s: %w", sess.ID(), err)
	}
	return nil
}

// Destroy deletes the request's session record and expires its cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	sess.Destroy()
	return m.Save(ctx, w, sess)
}

type sessionKey struct{}

func withSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the session the Middleware attached to the request.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok
}

// sessionWriter defers the session cookie until the response commits so
// handlers can destroy or replace the session up to the first write.
type sessionWriter struct {
	http.ResponseWriter
	m           *Manager
	sess        *Session
	wroteHeader bool
}

func (w *sessionWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.m.writeCookie(w.ResponseWriter, w.sess)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
