// Package storetest provides a conformance suite every sessions.Store
// implementation runs against.
package storetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ggoodman/httpkit-go/sessions"
)

// StoreFactory creates a new Store instance for testing. Cleanup belongs
// to the factory (t.Cleanup).
type StoreFactory func(t *testing.T) sessions.Store

// RunStoreTests runs the complete Store test suite against the provided
// factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("LoadMissingReturnsNil", func(t *testing.T) { testLoadMissing(t, factory) })
	t.Run("SaveAndLoadRoundTrip", func(t *testing.T) { testSaveAndLoad(t, factory) })
	t.Run("SaveOverwrites", func(t *testing.T) { testSaveOverwrites(t, factory) })
	t.Run("TTLExpiry", func(t *testing.T) { testTTLExpiry(t, factory) })
	t.Run("NoTTLMeansNoExpiry", func(t *testing.T) { testNoTTL(t, factory) })
	t.Run("DeleteRemovesRecord", func(t *testing.T) { testDelete(t, factory) })
	t.Run("DeleteMissingIsNoop", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("LoadedDataIsIsolated", func(t *testing.T) { testDataIsolation(t, factory) })
}

func testLoadMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	rec, err := s.Load(ctx, "absent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func testSaveAndLoad(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sess-1", []byte(`{"user":"alice"}`), sessions.WithTTL(time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record")
	}
	if !bytes.Equal(rec.Data, []byte(`{"user":"alice"}`)) {
		t.Fatalf("data = %q", rec.Data)
	}
	if rec.ExpiresAt == nil {
		t.Fatalf("expected expiry to be set")
	}
	if d := time.Until(rec.CreatedAt); d > 2*time.Second || d < -2*time.Second {
		t.Fatalf("created_at off by %v", d)
	}
}

func testSaveOverwrites(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sess-1", []byte("one")); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := s.Save(ctx, "sess-1", []byte("two")); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	rec, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(rec.Data) != "two" {
		t.Fatalf("data = %q", rec.Data)
	}
}

func testTTLExpiry(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sess-1", []byte("v"), sessions.WithTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	rec, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected expired record to read as nil, got %+v", rec)
	}
}

func testNoTTL(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sess-1", []byte("v")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec == nil || rec.ExpiresAt != nil {
		t.Fatalf("record = %+v", rec)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sess-1", []byte("v")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	rec, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record after delete")
	}
}

func testDeleteMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)
	if err := s.Delete(context.Background(), "absent"); err != nil {
		t.Fatalf("Delete of absent id failed: %v", err)
	}
}

func testDataIsolation(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	payload := []byte("original")
	if err := s.Save(ctx, "sess-1", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	payload[0] = 'X'

	rec, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(rec.Data) != "original" {
		t.Fatalf("stored data aliased caller's buffer: %q", rec.Data)
	}

	rec.Data[0] = 'Y'
	again, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if string(again.Data) != "original" {
		t.Fatalf("loaded data aliased store's buffer: %q", again.Data)
	}
}
