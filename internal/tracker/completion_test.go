package tracker

import (
	"context"
	"testing"

	"github.com/scalimax/attendtrack/internal/storage"
)

func TestMeetsCompletionThreshold(t *testing.T) {
	cases := []struct {
		name             string
		thresholdMinutes int
		totalSeconds     int64
		want             bool
	}{
		{"exactly at threshold", 60, 3600, true},
		{"one second short", 60, 3599, false},
		{"well past threshold", 60, 7200, true},
		{"zero total never completes", 0, 0, false},
		{"zero total with threshold", 60, 0, false},
	}
	for _, tc := range cases {
		if got := MeetsCompletionThreshold(tc.thresholdMinutes, tc.totalSeconds); got != tc.want {
			t.Errorf("%s: MeetsCompletionThreshold(%d, %d) = %v, want %v",
				tc.name, tc.thresholdMinutes, tc.totalSeconds, got, tc.want)
		}
	}
}

type recordingSink struct {
	calls []sinkCall
}

type sinkCall struct {
	registerID string
	userID     string
	complete   bool
}

func (s *recordingSink) Notify(_ context.Context, registerID, userID string, complete bool) error {
	s.calls = append(s.calls, sinkCall{registerID, userID, complete})
	return nil
}

func TestCompletionSinkNotifiedAfterAggregation(t *testing.T) {
	tracker, store, _ := newTestTracker(t, at(100000))
	sink := &recordingSink{}
	tracker.completion = sink

	seedRegister(t, store, storage.Register{
		ID: "reg-a", SessionTimeoutMinutes: 5, CompletionTotalMinutes: 3,
	})
	seedUser(t, store, storage.User{ID: "user-a", LastAccess: at(2100), Tracked: true})
	seedActivity(t, store, "user-a", "course-a", at(0), at(100), at(200), at(2000), at(2100))

	// Derived sessions total 300s = 5 minutes, past the 3 minute threshold.
	if _, err := tracker.UpdateUserSessions(context.Background(), "reg-a", "user-a", nil); err != nil {
		t.Fatalf("update user sessions: %v", err)
	}

	if len(sink.calls) != 1 {
		t.Fatalf("expected 1 completion notification, got %d", len(sink.calls))
	}
	call := sink.calls[0]
	if call.registerID != "reg-a" || call.userID != "user-a" || !call.complete {
		t.Errorf("unexpected notification: %+v", call)
	}
}

func TestCompletionSinkNotInvokedWithoutThreshold(t *testing.T) {
	tracker, store, _ := newTestTracker(t, at(100000))
	sink := &recordingSink{}
	tracker.completion = sink

	seedRegister(t, store, storage.Register{ID: "reg-a", SessionTimeoutMinutes: 5})
	seedUser(t, store, storage.User{ID: "user-a", LastAccess: at(100), Tracked: true})
	seedActivity(t, store, "user-a", "course-a", at(0), at(100))

	if _, err := tracker.UpdateUserSessions(context.Background(), "reg-a", "user-a", nil); err != nil {
		t.Fatalf("update user sessions: %v", err)
	}

	if len(sink.calls) != 0 {
		t.Fatalf("expected no notifications for a register without threshold, got %d", len(sink.calls))
	}
}
