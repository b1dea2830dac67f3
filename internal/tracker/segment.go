package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scalimax/attendtrack/internal/metrics"
	"github.com/scalimax/attendtrack/internal/storage"
)

// segmentUser derives online sessions from the user's raw activity after
// fromTime and persists them, returning the count created.
//
// Timestamps are split into sessions wherever the gap between consecutive
// events strictly exceeds the register's timeout; a gap exactly equal to the
// timeout does not split. A session's logout is the exact last pre-gap
// timestamp, with no padding. The trailing run is only emitted once it has
// gone cold (its last event is more than one timeout before now); a hot
// trailing run is deferred to a future incremental pass.
func (t *Tracker) segmentUser(ctx context.Context, register *storage.Register, userID string, fromTime time.Time, observer ProgressObserver) (int, error) {
	courseIDs, err := t.trackedCourseIDs(ctx, register)
	if err != nil {
		return 0, fmt.Errorf("resolve tracked courses: %w", err)
	}

	timestamps, err := t.store.Activity().ListTimestamps(ctx, userID, fromTime, courseIDs)
	if err != nil {
		return 0, fmt.Errorf("list activity: %w", err)
	}
	if len(timestamps) == 0 {
		return 0, nil
	}

	timeout := register.SessionTimeout()
	now := t.clock.Now()
	total := len(timestamps)
	created := 0

	sessionStart := timestamps[0]
	prev := timestamps[0]
	for i := 1; i < total; i++ {
		curr := timestamps[i]
		if curr.Sub(prev) > timeout {
			if err := t.insertOnlineSession(ctx, register, userID, sessionStart, prev); err != nil {
				return created, err
			}
			created++
			if observer != nil {
				observer.Update(i, total, fmt.Sprintf("derived session ending %s", prev.Format(time.RFC3339)))
			}
			sessionStart = curr
		}
		prev = curr
	}

	// A single isolated cold timestamp yields a zero-duration session.
	if now.Sub(prev) > timeout {
		if err := t.insertOnlineSession(ctx, register, userID, sessionStart, prev); err != nil {
			return created, err
		}
		created++
		if observer != nil {
			observer.Update(total, total, fmt.Sprintf("derived session ending %s", prev.Format(time.RFC3339)))
		}
	} else {
		t.logger.Debug().
			Str("register_id", register.ID).
			Str("user_id", userID).
			Time("last_activity", prev).
			Msg("Trailing activity still hot, session deferred")
	}

	return created, nil
}

func (t *Tracker) insertOnlineSession(ctx context.Context, register *storage.Register, userID string, login, logout time.Time) error {
	session := storage.Session{
		ID:              uuid.NewString(),
		RegisterID:      register.ID,
		UserID:          userID,
		Login:           login,
		Logout:          logout,
		DurationSeconds: int64(logout.Sub(login) / time.Second),
		Online:          true,
	}
	if err := t.store.Sessions().Insert(ctx, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	metrics.SessionsCreated.WithLabelValues(register.ID, "online").Inc()

	t.logger.Debug().
		Str("register_id", register.ID).
		Str("user_id", userID).
		Time("login", login).
		Time("logout", logout).
		Int64("duration_seconds", session.DurationSeconds).
		Msg("Derived online session")

	return nil
}
