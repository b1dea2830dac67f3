package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
)

func offlineRegister() storage.Register {
	return storage.Register{
		ID:                    "reg-a",
		SessionTimeoutMinutes: 5,
		OfflineSessions:       true,
		OfflineComments:       true,
		DaysCertifiable:       7,
	}
}

func TestAddOfflineSession(t *testing.T) {
	tracker, store, _ := newTestTracker(t, at(100000))
	seedRegister(t, store, offlineRegister())
	seedUser(t, store, storage.User{ID: "user-a", Tracked: true})

	session, err := tracker.AddOfflineSession(context.Background(), OfflineSessionRequest{
		RegisterID: "reg-a",
		UserID:     "user-a",
		Login:      at(1000),
		Logout:     at(4600),
		Comments:   "lab work",
	})
	if err != nil {
		t.Fatalf("add offline session: %v", err)
	}
	if session.Online {
		t.Error("expected offline session")
	}
	if session.DurationSeconds != 3600 {
		t.Errorf("expected duration 3600, got %d", session.DurationSeconds)
	}

	// Aggregates are rebuilt immediately.
	grand, err := store.Aggregates().GetGrandTotal(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("get grand total: %v", err)
	}
	if grand.DurationSeconds != 3600 {
		t.Errorf("expected grand total 3600, got %d", grand.DurationSeconds)
	}
}

func TestAddOfflineSessionOnBehalfOfAnotherUser(t *testing.T) {
	tracker, store, _ := newTestTracker(t, at(100000))
	seedRegister(t, store, offlineRegister())
	// Subject's last access is well over a timeout old, so the live-window
	// check is skipped for a proxy submission.
	seedUser(t, store, storage.User{ID: "user-a", LastAccess: at(0), CurrentLogin: at(0), Tracked: true})

	session, err := tracker.AddOfflineSession(context.Background(), OfflineSessionRequest{
		RegisterID:  "reg-a",
		UserID:      "user-a",
		Login:       at(1000),
		Logout:      at(2000),
		SubmittedBy: "teacher-1",
	})
	if err != nil {
		t.Fatalf("add offline session: %v", err)
	}
	if session.AddedByUserID != "teacher-1" {
		t.Errorf("expected submitter recorded, got %q", session.AddedByUserID)
	}
}

func TestAddOfflineSessionValidation(t *testing.T) {
	now := at(100000)
	tracker, store, _ := newTestTracker(t, now)

	register := offlineRegister()
	register.MandatoryComments = true
	register.OfflineSpecifyCourse = true
	register.MandatoryRefCourse = true
	seedRegister(t, store, register)

	disabled := offlineRegister()
	disabled.ID = "reg-disabled"
	disabled.OfflineSessions = false
	seedRegister(t, store, disabled)

	// CurrentLogin at 95000 means a live session window from there on.
	seedUser(t, store, storage.User{ID: "user-a", LastAccess: now, CurrentLogin: at(95000), Tracked: true})

	stored := storage.Session{
		ID: "existing", RegisterID: "reg-a", UserID: "user-a",
		Login: at(10000), Logout: at(11000), DurationSeconds: 1000, Online: false,
	}
	if err := store.Sessions().Insert(context.Background(), stored); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	valid := OfflineSessionRequest{
		RegisterID:  "reg-a",
		UserID:      "user-a",
		Login:       at(20000),
		Logout:      at(23600),
		RefCourseID: "course-b",
		Comments:    "supervised exercise",
	}

	cases := []struct {
		name   string
		mutate func(*OfflineSessionRequest)
		field  string
	}{
		{"offline disabled", func(r *OfflineSessionRequest) { r.RegisterID = "reg-disabled" }, "register"},
		{"logout before login", func(r *OfflineSessionRequest) { r.Logout = r.Login.Add(-time.Second) }, "logout"},
		{"logout equals login", func(r *OfflineSessionRequest) { r.Logout = r.Login }, "logout"},
		{"longer than the cap", func(r *OfflineSessionRequest) { r.Logout = r.Login.Add(13 * time.Hour) }, "logout"},
		{"logout in the future", func(r *OfflineSessionRequest) {
			r.Login = at(99000)
			r.Logout = at(101000)
		}, "logout"},
		{"older than certifiable window", func(r *OfflineSessionRequest) {
			r.Login = at(100000 - 8*86400)
			r.Logout = r.Login.Add(time.Hour)
		}, "login"},
		{"missing comment", func(r *OfflineSessionRequest) { r.Comments = "" }, "comments"},
		{"comment too long", func(r *OfflineSessionRequest) { r.Comments = strings.Repeat("x", 256) }, "comments"},
		{"missing ref course", func(r *OfflineSessionRequest) { r.RefCourseID = "" }, "ref_course_id"},
		{"overlaps stored session", func(r *OfflineSessionRequest) {
			r.Login = at(10500)
			r.Logout = at(11500)
		}, "login"},
		{"overlaps live online window", func(r *OfflineSessionRequest) {
			r.Login = at(94000)
			r.Logout = at(96000)
		}, "logout"},
	}

	for _, tc := range cases {
		req := valid
		tc.mutate(&req)

		_, err := tracker.AddOfflineSession(context.Background(), req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
			continue
		}
		if ve.Field != tc.field {
			t.Errorf("%s: expected field %q, got %q (%s)", tc.name, tc.field, ve.Field, ve.Reason)
		}
	}

	// The valid request itself must pass.
	if _, err := tracker.AddOfflineSession(context.Background(), valid); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestDeleteOfflineSession(t *testing.T) {
	tracker, store, _ := newTestTracker(t, at(100000))
	seedRegister(t, store, offlineRegister())
	seedUser(t, store, storage.User{ID: "user-a", Tracked: true})

	session, err := tracker.AddOfflineSession(context.Background(), OfflineSessionRequest{
		RegisterID: "reg-a",
		UserID:     "user-a",
		Login:      at(1000),
		Logout:     at(2000),
	})
	if err != nil {
		t.Fatalf("add offline session: %v", err)
	}

	if err := tracker.DeleteOfflineSession(context.Background(), "reg-a", "user-a", session.ID); err != nil {
		t.Fatalf("delete offline session: %v", err)
	}

	grand, err := store.Aggregates().GetGrandTotal(context.Background(), "reg-a", "user-a")
	if err != nil {
		t.Fatalf("get grand total: %v", err)
	}
	if grand.DurationSeconds != 0 {
		t.Errorf("expected grand total reset to 0, got %d", grand.DurationSeconds)
	}

	// Deleting twice reports NotFound.
	if err := tracker.DeleteOfflineSession(context.Background(), "reg-a", "user-a", session.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
