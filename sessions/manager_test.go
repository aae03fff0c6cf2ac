package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ggoodman/httpkit-go/cookies"
)

// mapStore is a minimal Store for manager tests; expiry handling lives in
// the real stores and their conformance suite.
type mapStore struct {
	mu      sync.Mutex
	recs    map[string][]byte
	loadErr error
	saveErr error
}

func newMapStore() *mapStore { return &mapStore{recs: make(map[string][]byte)} }

func (s *mapStore) Load(ctx context.Context, id string) (*Record, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	return &Record{Data: data}, nil
}

func (s *mapStore) Save(ctx context.Context, id string, data []byte, opts ...Option) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[id] = data
	return nil
}

func (s *mapStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *mapStore) Close() error { return nil }

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	signer, err := cookies.NewSigner([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	m, err := NewManager(store, signer)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func sessionCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestManager_MiddlewareCreatesSession(t *testing.T) {
	store := newMapStore()
	m := newTestManager(t, store)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok {
			t.Fatalf("no session in context")
		}
		if !sess.Fresh() {
			t.Fatalf("expected fresh session")
		}
		sess.Set("user", "alice")
		fmt.Fprint(w, "ok")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	c := sessionCookie(t, rr.Result(), "sid")
	if c == nil || c.Value == "" {
		t.Fatalf("missing session cookie: %v", rr.Result().Cookies())
	}
	if len(store.recs) != 1 {
		t.Fatalf("store records = %d", len(store.recs))
	}
}

func TestManager_MiddlewareRoundTrip(t *testing.T) {
	store := newMapStore()
	m := newTestManager(t, store)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		if sess.Fresh() {
			sess.Set("user", "alice")
		} else {
			v, _ := sess.Get("user")
			fmt.Fprintf(w, "user=%v", v)
		}
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	c := sessionCookie(t, first.Result(), "sid")
	if c == nil {
		t.Fatalf("missing session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	if got := second.Body.String(); got != "user=alice" {
		t.Fatalf("body = %q", got)
	}
	if reissued := sessionCookie(t, second.Result(), "sid"); reissued != nil {
		t.Fatalf("established session must not re-issue its cookie: %v", reissued)
	}
}

func TestManager_MiddlewareDestroy(t *testing.T) {
	store := newMapStore()
	m := newTestManager(t, store)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		if sess.Fresh() {
			sess.Set("user", "alice")
			return
		}
		sess.Destroy()
		fmt.Fprint(w, "bye")
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	c := sessionCookie(t, first.Result(), "sid")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	cleared := sessionCookie(t, second.Result(), "sid")
	if cleared == nil || cleared.MaxAge != -1 {
		t.Fatalf("expected clearing cookie, got %+v", cleared)
	}
	if len(store.recs) != 0 {
		t.Fatalf("store records = %d", len(store.recs))
	}
}

func TestManager_CookieOnSilentHandler(t *testing.T) {
	m := newTestManager(t, newMapStore())

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Writes nothing; the middleware epilogue must still emit the
		// cookie before the server commits an implicit 200.
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if c := sessionCookie(t, rr.Result(), "sid"); c == nil {
		t.Fatalf("missing session cookie")
	}
}

func TestManager_ForgedCookieStartsFresh(t *testing.T) {
	store := newMapStore()
	m := newTestManager(t, store)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "forged"})

	if _, err := m.Load(req.Context(), req); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load err = %v", err)
	}

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		if !sess.Fresh() {
			t.Fatalf("forged cookie must yield a fresh session")
		}
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestManager_StoreFailureIs500(t *testing.T) {
	store := newMapStore()
	store.loadErr = errors.New("backend down")
	m := newTestManager(t, store)

	// A verifiable cookie forces the load path into the store.
	signer, _ := cookies.NewSigner([]byte("0123456789abcdef"))
	c, _ := signer.Issue("sid", "sess-1")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSession_ValuesIsolated(t *testing.T) {
	sess := newSession("id", map[string]any{"k": "v"}, false)
	vals := sess.Values()
	vals["k"] = "mutated"
	if got, _ := sess.Get("k"); got != "v" {
		t.Fatalf("session values aliased: %v", got)
	}
}
