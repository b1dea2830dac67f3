package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
)

func TestLockStore_AcquireIsAtomic(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now()

	acquired, err := store.Locks().Acquire(ctx, storage.Lock{
		RegisterID: "reg-a", UserID: "user-a", Owner: "owner-1", AcquiredAt: now,
	})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !acquired {
		t.Fatal("Expected first acquire to succeed")
	}

	acquired, err = store.Locks().Acquire(ctx, storage.Lock{
		RegisterID: "reg-a", UserID: "user-a", Owner: "owner-2", AcquiredAt: now,
	})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if acquired {
		t.Fatal("Expected second acquire to fail while held")
	}

	// The losing owner must not have overwritten the holder.
	exists, err := store.Locks().Exists(ctx, "reg-a", "user-a")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("Expected lock still held")
	}

	if err := store.Locks().Release(ctx, "reg-a", "user-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	acquired, err = store.Locks().Acquire(ctx, storage.Lock{
		RegisterID: "reg-a", UserID: "user-a", Owner: "owner-2", AcquiredAt: now,
	})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !acquired {
		t.Fatal("Expected acquire to succeed after release")
	}
}

func TestLockStore_PurgeOlderThan(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now()

	locks := []storage.Lock{
		{RegisterID: "reg-a", UserID: "user-a", Owner: "owner-1", AcquiredAt: now.Add(-time.Hour)},
		{RegisterID: "reg-a", UserID: "user-b", Owner: "owner-1", AcquiredAt: now},
	}
	for _, lock := range locks {
		if _, err := store.Locks().Acquire(ctx, lock); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}

	purged, err := store.Locks().PurgeOlderThan(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged lock, got %d", purged)
	}

	exists, err := store.Locks().Exists(ctx, "reg-a", "user-b")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Expected fresh lock to survive purge")
	}
}

func TestAggregateStore_ReplaceForUser(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	lastLogout := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := []storage.Aggregate{
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOfflineRefCourse, RefCourseID: "course-b", DurationSeconds: 600},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOfflineTotal, DurationSeconds: 600},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOnlineTotal, DurationSeconds: 1200},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindGrandTotal, DurationSeconds: 1800, LastOnlineLogout: lastLogout},
	}
	if err := store.Aggregates().ReplaceForUser(ctx, "reg-a", "user-a", first); err != nil {
		t.Fatalf("ReplaceForUser failed: %v", err)
	}

	grand, err := store.Aggregates().GetGrandTotal(ctx, "reg-a", "user-a")
	if err != nil {
		t.Fatalf("GetGrandTotal failed: %v", err)
	}
	if grand.DurationSeconds != 1800 {
		t.Errorf("Expected grand total 1800, got %d", grand.DurationSeconds)
	}
	if !grand.LastOnlineLogout.Equal(lastLogout) {
		t.Errorf("Expected last online logout %v, got %v", lastLogout, grand.LastOnlineLogout)
	}

	second := []storage.Aggregate{
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOnlineTotal, DurationSeconds: 2400},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindGrandTotal, DurationSeconds: 2400},
	}
	if err := store.Aggregates().ReplaceForUser(ctx, "reg-a", "user-a", second); err != nil {
		t.Fatalf("ReplaceForUser failed: %v", err)
	}

	rows, err := store.Aggregates().ListByUser(ctx, "reg-a", "user-a")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected replacement to drop stale rows, got %d rows", len(rows))
	}
	for _, row := range rows {
		if row.Kind == storage.KindOfflineRefCourse || row.Kind == storage.KindOfflineTotal {
			t.Errorf("Stale row survived replacement: %+v", row)
		}
	}
}

func TestAggregateStore_ListSummaries(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, userID := range []string{"user-a", "user-b"} {
		rows := []storage.Aggregate{
			{RegisterID: "reg-a", UserID: userID, Kind: storage.KindOfflineRefCourse, RefCourseID: "course-b", DurationSeconds: 300},
			{RegisterID: "reg-a", UserID: userID, Kind: storage.KindOfflineTotal, DurationSeconds: 300},
			{RegisterID: "reg-a", UserID: userID, Kind: storage.KindOnlineTotal, DurationSeconds: 900},
			{RegisterID: "reg-a", UserID: userID, Kind: storage.KindGrandTotal, DurationSeconds: 1200},
		}
		if err := store.Aggregates().ReplaceForUser(ctx, "reg-a", userID, rows); err != nil {
			t.Fatalf("ReplaceForUser failed: %v", err)
		}
	}

	summaries, err := store.Aggregates().ListSummaries(ctx, "reg-a")
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(summaries) != 6 {
		t.Errorf("Expected 6 summary rows, got %d", len(summaries))
	}
	for _, row := range summaries {
		if row.Kind == storage.KindOfflineRefCourse {
			t.Errorf("Per-refcourse row leaked into summaries: %+v", row)
		}
	}
}

func TestAggregateStore_DeleteByUser(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rows := []storage.Aggregate{
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOnlineTotal, DurationSeconds: 900},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindGrandTotal, DurationSeconds: 900},
	}
	if err := store.Aggregates().ReplaceForUser(ctx, "reg-a", "user-a", rows); err != nil {
		t.Fatalf("ReplaceForUser failed: %v", err)
	}

	if err := store.Aggregates().DeleteByUser(ctx, "reg-a", "user-a"); err != nil {
		t.Fatalf("DeleteByUser failed: %v", err)
	}

	if _, err := store.Aggregates().GetGrandTotal(ctx, "reg-a", "user-a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	summaries, err := store.Aggregates().ListSummaries(ctx, "reg-a")
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("Expected no summaries after delete, got %d", len(summaries))
	}
}
