package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
)

func TestRegisterStorePendingRecalc(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	register := storage.Register{
		ID:                    "reg-a",
		Name:                  "Course Attendance",
		CourseID:              "course-a",
		Type:                  storage.RegisterTypeCourse,
		SessionTimeoutMinutes: 30,
	}
	if err := store.Registers().Upsert(context.Background(), register); err != nil {
		t.Fatalf("upsert register: %v", err)
	}

	if err := store.Registers().SetPendingRecalc(context.Background(), "reg-a", true); err != nil {
		t.Fatalf("set pending recalc: %v", err)
	}

	got, err := store.Registers().Get(context.Background(), "reg-a")
	if err != nil {
		t.Fatalf("get register: %v", err)
	}
	if !got.PendingRecalc {
		t.Fatal("expected pending recalc flag set")
	}
	if got.SessionTimeoutMinutes != 30 {
		t.Fatalf("expected timeout preserved, got %d", got.SessionTimeoutMinutes)
	}
}

func TestActivityStoreListTimestamps(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []storage.ActivityEntry{
		{UserID: "user-a", CourseID: "course-a", Timestamp: base},
		{UserID: "user-a", CourseID: "course-b", Timestamp: base.Add(5 * time.Minute)},
		{UserID: "user-a", CourseID: "course-a", Timestamp: base.Add(10 * time.Minute)},
		{UserID: "user-b", CourseID: "course-a", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if err := store.Activity().Append(context.Background(), entry); err != nil {
			t.Fatalf("append activity: %v", err)
		}
	}

	all, err := store.Activity().ListTimestamps(context.Background(), "user-a", time.Time{}, nil)
	if err != nil {
		t.Fatalf("list timestamps: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 timestamps, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Before(all[i-1]) {
			t.Fatalf("timestamps out of order: %v before %v", all[i], all[i-1])
		}
	}

	// Strictly after fromTime: the entry at base itself is excluded.
	after, err := store.Activity().ListTimestamps(context.Background(), "user-a", base, nil)
	if err != nil {
		t.Fatalf("list timestamps after: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 timestamps strictly after base, got %d", len(after))
	}

	filtered, err := store.Activity().ListTimestamps(context.Background(), "user-a", time.Time{}, []string{"course-a"})
	if err != nil {
		t.Fatalf("list timestamps filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 course-a timestamps, got %d", len(filtered))
	}

	oldest, err := store.Activity().OldestTimestamp(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("oldest timestamp: %v", err)
	}
	if !oldest.Equal(base) {
		t.Fatalf("expected oldest %v, got %v", base, oldest)
	}

	if _, err := store.Activity().OldestTimestamp(context.Background(), "user-z"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestSessionStoreDeleteOnlineByUser(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := []storage.Session{
		{ID: "s1", RegisterID: "reg-a", UserID: "user-a", Login: base, Logout: base.Add(time.Hour), DurationSeconds: 3600, Online: true},
		{ID: "s2", RegisterID: "reg-a", UserID: "user-a", Login: base.Add(2 * time.Hour), Logout: base.Add(3 * time.Hour), DurationSeconds: 3600, Online: true},
		{ID: "s3", RegisterID: "reg-a", UserID: "user-a", Login: base.Add(4 * time.Hour), Logout: base.Add(5 * time.Hour), DurationSeconds: 3600, Online: false},
		{ID: "s4", RegisterID: "reg-a", UserID: "user-b", Login: base, Logout: base.Add(time.Hour), DurationSeconds: 3600, Online: true},
	}
	for _, session := range sessions {
		if err := store.Sessions().Insert(context.Background(), session); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	deleted, err := store.Sessions().DeleteOnlineByUser(context.Background(), "reg-a", "user-a", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete online sessions: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}

	remaining, err := store.Sessions().ListByUser(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining sessions, got %d", len(remaining))
	}
	if remaining[0].ID != "s1" {
		t.Fatalf("expected s1 first by login, got %s", remaining[0].ID)
	}
}

func TestSessionStoreLastOnlineLogout(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	last, err := store.Sessions().LastOnlineLogout(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("last online logout: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero time for no sessions, got %v", last)
	}

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := []storage.Session{
		{ID: "s1", RegisterID: "reg-a", UserID: "user-a", Login: base, Logout: base.Add(time.Hour), Online: true},
		{ID: "s2", RegisterID: "reg-a", UserID: "user-a", Login: base.Add(2 * time.Hour), Logout: base.Add(3 * time.Hour), Online: true},
		{ID: "s3", RegisterID: "reg-a", UserID: "user-a", Login: base.Add(5 * time.Hour), Logout: base.Add(6 * time.Hour), Online: false},
	}
	for _, session := range sessions {
		if err := store.Sessions().Insert(context.Background(), session); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	last, err = store.Sessions().LastOnlineLogout(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("last online logout: %v", err)
	}
	if !last.Equal(base.Add(3 * time.Hour)) {
		t.Fatalf("expected last logout %v, got %v", base.Add(3*time.Hour), last)
	}
}

func TestSessionStoreHasOverlapping(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	stored := storage.Session{
		ID: "s1", RegisterID: "reg-a", UserID: "user-a",
		Login: base, Logout: base.Add(time.Hour), Online: false,
	}
	if err := store.Sessions().Insert(context.Background(), stored); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	cases := []struct {
		name    string
		login   time.Time
		logout  time.Time
		overlap bool
	}{
		{"inside", base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"touching end", base.Add(time.Hour), base.Add(2 * time.Hour), true},
		{"touching start", base.Add(-time.Hour), base, true},
		{"disjoint after", base.Add(time.Hour + time.Second), base.Add(2 * time.Hour), false},
		{"disjoint before", base.Add(-2 * time.Hour), base.Add(-time.Second), false},
	}
	for _, tc := range cases {
		got, err := store.Sessions().HasOverlapping(context.Background(), "reg-a", "user-a", tc.login, tc.logout)
		if err != nil {
			t.Fatalf("%s: has overlapping: %v", tc.name, err)
		}
		if got != tc.overlap {
			t.Fatalf("%s: expected overlap=%v, got %v", tc.name, tc.overlap, got)
		}
	}
}

func TestAggregateStoreReplaceForUser(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	first := []storage.Aggregate{
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOfflineRefCourse, RefCourseID: "course-b", DurationSeconds: 600},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOfflineTotal, DurationSeconds: 600},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOnlineTotal, DurationSeconds: 1200},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindGrandTotal, DurationSeconds: 1800},
	}
	if err := store.Aggregates().ReplaceForUser(context.Background(), "reg-a", "user-a", first); err != nil {
		t.Fatalf("replace aggregates: %v", err)
	}

	second := []storage.Aggregate{
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOnlineTotal, DurationSeconds: 2400},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindGrandTotal, DurationSeconds: 2400},
	}
	if err := store.Aggregates().ReplaceForUser(context.Background(), "reg-a", "user-a", second); err != nil {
		t.Fatalf("replace aggregates: %v", err)
	}

	rows, err := store.Aggregates().ListByUser(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("list aggregates: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected replacement to drop stale rows, got %d rows", len(rows))
	}

	grand, err := store.Aggregates().GetGrandTotal(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("get grand total: %v", err)
	}
	if grand.DurationSeconds != 2400 {
		t.Fatalf("expected grand total 2400, got %d", grand.DurationSeconds)
	}

	if _, err := store.Aggregates().GetGrandTotal(context.Background(), "reg-a", "user-z"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestAggregateStoreListSummaries(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	rows := []storage.Aggregate{
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOfflineRefCourse, RefCourseID: "course-b", DurationSeconds: 600},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOfflineTotal, DurationSeconds: 600},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindOnlineTotal, DurationSeconds: 1200},
		{RegisterID: "reg-a", UserID: "user-a", Kind: storage.KindGrandTotal, DurationSeconds: 1800},
	}
	if err := store.Aggregates().ReplaceForUser(context.Background(), "reg-a", "user-a", rows); err != nil {
		t.Fatalf("replace aggregates: %v", err)
	}

	summaries, err := store.Aggregates().ListSummaries(context.Background(), "reg-a")
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summary rows, got %d", len(summaries))
	}
	for _, row := range summaries {
		if row.Kind == storage.KindOfflineRefCourse {
			t.Fatal("per-refcourse rows must not appear in summaries")
		}
	}
}

func TestLockStoreAcquireRelease(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Now()
	lock := storage.Lock{RegisterID: "reg-a", UserID: "user-a", Owner: "owner-1", AcquiredAt: now}

	acquired, err := store.Locks().Acquire(context.Background(), lock)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	contender := storage.Lock{RegisterID: "reg-a", UserID: "user-a", Owner: "owner-2", AcquiredAt: now}
	acquired, err = store.Locks().Acquire(context.Background(), contender)
	if err != nil {
		t.Fatalf("acquire contended lock: %v", err)
	}
	if acquired {
		t.Fatal("expected second acquire to fail while held")
	}

	if err := store.Locks().Release(context.Background(), "reg-a", "user-a"); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	exists, err := store.Locks().Exists(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("lock exists: %v", err)
	}
	if exists {
		t.Fatal("expected lock gone after release")
	}
}

func TestLockStorePurgeOlderThan(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Now()
	locks := []storage.Lock{
		{RegisterID: "reg-a", UserID: "user-a", Owner: "owner-1", AcquiredAt: now.Add(-time.Hour)},
		{RegisterID: "reg-a", UserID: "user-b", Owner: "owner-1", AcquiredAt: now},
	}
	for _, lock := range locks {
		if _, err := store.Locks().Acquire(context.Background(), lock); err != nil {
			t.Fatalf("acquire lock: %v", err)
		}
	}

	purged, err := store.Locks().PurgeOlderThan(context.Background(), now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("purge locks: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged lock, got %d", purged)
	}

	exists, err := store.Locks().Exists(context.Background(), "reg-a", "user-b")
	if err != nil {
		t.Fatalf("lock exists: %v", err)
	}
	if !exists {
		t.Fatal("expected fresh lock to survive purge")
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "attendtrack.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
