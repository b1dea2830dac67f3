package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/scalimax/attendtrack/internal/storage"
	"github.com/scalimax/attendtrack/internal/storage/bolt"
	"github.com/scalimax/attendtrack/internal/tracker"
)

func setupScheduler(t *testing.T, now time.Time) (*Scheduler, storage.Store) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "attendtrack.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	trk := tracker.New(store, tracker.Options{
		Clock: &tracker.TestClock{CurrentTime: now},
	}, zerolog.Nop())

	return New(store, trk, time.Minute, zerolog.Nop()), store
}

func TestRunOnceUpdatesRegisters(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	sched, store := setupScheduler(t, base.Add(24*time.Hour))
	ctx := context.Background()

	if err := store.Registers().Upsert(ctx, storage.Register{
		ID: "reg-a", Type: storage.RegisterTypeGlobal, SessionTimeoutMinutes: 5,
	}); err != nil {
		t.Fatalf("seed register: %v", err)
	}
	if err := store.Users().Upsert(ctx, storage.User{
		ID: "user-a", LastAccess: base.Add(200 * time.Second), Tracked: true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	for _, offset := range []time.Duration{0, 100 * time.Second, 200 * time.Second} {
		if err := store.Activity().Append(ctx, storage.ActivityEntry{
			UserID: "user-a", CourseID: "course-a", Timestamp: base.Add(offset),
		}); err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}

	sched.RunOnce(ctx)

	sessions, err := store.Sessions().ListByUser(ctx, "reg-a", "user-a")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 derived session after pass, got %d", len(sessions))
	}
}

func TestRunOnceConsumesPendingRecalcFlag(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	sched, store := setupScheduler(t, base.Add(24*time.Hour))
	ctx := context.Background()

	if err := store.Registers().Upsert(ctx, storage.Register{
		ID: "reg-a", Type: storage.RegisterTypeGlobal, SessionTimeoutMinutes: 5, PendingRecalc: true,
	}); err != nil {
		t.Fatalf("seed register: %v", err)
	}
	if err := store.Users().Upsert(ctx, storage.User{
		ID: "user-a", LastAccess: base, Tracked: true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sched.RunOnce(ctx)

	register, err := store.Registers().Get(ctx, "reg-a")
	if err != nil {
		t.Fatalf("get register: %v", err)
	}
	if register.PendingRecalc {
		t.Fatal("expected pending recalc flag cleared after pass")
	}
}

func TestRunOncePurgesOrphanedLocks(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	sched, store := setupScheduler(t, now)
	ctx := context.Background()

	if _, err := store.Locks().Acquire(ctx, storage.Lock{
		RegisterID: "reg-a", UserID: "user-a", Owner: "crashed", AcquiredAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	sched.RunOnce(ctx)

	held, err := store.Locks().Exists(ctx, "reg-a", "user-a")
	if err != nil {
		t.Fatalf("lock exists: %v", err)
	}
	if held {
		t.Fatal("expected orphaned lock purged by the pass")
	}
}
