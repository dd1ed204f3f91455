package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestSession_Values(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	s := New("abc", time.Minute, time.Now())

	if err := s.Set(ctx, store, "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = s.Set(ctx, store, "b", "2")
	if s.Get("a") != "1" {
		t.Errorf("a = %q", s.Get("a"))
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Error("missing key found")
	}

	vals := s.Values()
	vals["a"] = "mutated"
	if s.Get("a") != "1" {
		t.Error("Values() leaked internal map")
	}

	_ = s.Delete(ctx, store, "a")
	if _, ok := s.Lookup("a"); ok {
		t.Error("a not deleted")
	}
	_ = s.Clear(ctx, store)
	if len(s.Values()) != 0 {
		t.Errorf("values after Clear = %v", s.Values())
	}
}

func TestSession_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New("abc", time.Minute, now)

	if s.Expired(now.Add(time.Minute)) {
		t.Error("expired exactly at expiry time")
	}
	if !s.Expired(now.Add(time.Minute + time.Nanosecond)) {
		t.Error("not expired after max age")
	}
	s.Refresh(now.Add(50 * time.Second))
	if s.Expired(now.Add(90 * time.Second)) {
		t.Error("refresh did not extend expiry")
	}
}

func TestSession_SetPersistsThroughStore(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	defer st.Close()

	s := New("persisted", time.Hour, time.Now())
	if err := s.Set(ctx, st, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	loaded, err := st.Load(ctx, "persisted")
	if err != nil || loaded == nil {
		t.Fatalf("Load = %v, %v", loaded, err)
	}
	if loaded.Get("k") != "v" {
		t.Errorf("k = %q", loaded.Get("k"))
	}
	if loaded.MaxAge() != time.Hour {
		t.Errorf("max age = %v", loaded.MaxAge())
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := New("shared", time.Hour, time.Now())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			for range 100 {
				_ = s.Set(ctx, storage, key, "v")
				_ = s.Get(key)
				_ = s.Values()
			}
		}()
	}
	wg.Wait()
	if len(s.Values()) != 8 {
		t.Errorf("values = %d, want 8", len(s.Values()))
	}
}

func TestSweeper(t *testing.T) {
	storage := NewMemoryStorage()
	m := NewManager(storage, Config{MaxAge: time.Millisecond})
	ctx := context.Background()
	_ = storage.Save(ctx, New("old", time.Millisecond, time.Now().Add(-time.Second)))
	_ = storage.Save(ctx, New("live", time.Hour, time.Now()))

	sw := NewSweeper(m, "@every 1h", slog.New(slog.DiscardHandler))
	sw.Sweep(ctx)
	if storage.Len() != 1 {
		t.Errorf("sessions after sweep = %d, want 1", storage.Len())
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := sw.Start(runCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sw.IsRunning() {
		t.Error("sweeper not running after Start")
	}
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for sw.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sw.IsRunning() {
		t.Error("sweeper still running after context cancel")
	}
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	sw := NewSweeper(NewManager(NewMemoryStorage(), Config{}), "every minute", nil)
	if err := sw.Start(context.Background()); err == nil {
		t.Error("expected error for bad schedule")
	}

	sw = NewSweeper(NewManager(NewMemoryStorage(), Config{}), "", nil)
	if err := sw.Start(context.Background()); err != nil {
		t.Errorf("empty schedule: %v", err)
	}
	if sw.IsRunning() {
		t.Error("empty schedule should not run")
	}
}
