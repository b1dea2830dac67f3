package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
)

// recomputeAggregates fully rebuilds the user's aggregate rows from the
// stored session set and notifies the completion sink when the register
// tracks a completion threshold.
func (t *Tracker) recomputeAggregates(ctx context.Context, register *storage.Register, userID string) error {
	sessions, err := t.store.Sessions().ListByUser(ctx, register.ID, userID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	rows := t.dropInconsistentAggregates(buildAggregates(register, userID, sessions))

	if err := t.store.Aggregates().ReplaceForUser(ctx, register.ID, userID, rows); err != nil {
		return fmt.Errorf("replace aggregates: %w", err)
	}

	if register.CompletionEnabled() && t.completion != nil {
		var grandTotal int64
		for _, row := range rows {
			if row.Kind == storage.KindGrandTotal {
				grandTotal = row.DurationSeconds
				break
			}
		}
		complete := MeetsCompletionThreshold(register.CompletionTotalMinutes, grandTotal)
		if err := t.completion.Notify(ctx, register.ID, userID, complete); err != nil {
			return fmt.Errorf("notify completion: %w", err)
		}
	}

	return nil
}

// dropInconsistentAggregates filters out rows that match none of the known
// kinds before they reach storage. buildAggregates cannot produce such a
// row, so hitting this path indicates a bug worth a loud warning.
func (t *Tracker) dropInconsistentAggregates(rows []storage.Aggregate) []storage.Aggregate {
	kept := rows[:0]
	for _, row := range rows {
		if !row.Kind.Valid() {
			t.logger.Warn().
				Str("register_id", row.RegisterID).
				Str("user_id", row.UserID).
				Str("kind", string(row.Kind)).
				Msg("Skipping inconsistent aggregate row")
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// buildAggregates derives the aggregate row set from a user's sessions. It
// is a pure function of its inputs: the same session set always yields the
// same rows in the same order.
//
// The row set always contains one online total and one grand total. Offline
// rows (one per distinct reference course plus one combined total) appear
// only when the register accepts offline sessions and at least one exists.
func buildAggregates(register *storage.Register, userID string, sessions []storage.Session) []storage.Aggregate {
	var (
		onlineTotal      int64
		offlineTotal     int64
		offlineCount     int
		lastOnlineLogout time.Time
	)
	perRefCourse := make(map[string]int64)

	for _, session := range sessions {
		if session.Online {
			onlineTotal += session.DurationSeconds
			if session.Logout.After(lastOnlineLogout) {
				lastOnlineLogout = session.Logout
			}
			continue
		}
		offlineTotal += session.DurationSeconds
		offlineCount++
		perRefCourse[session.RefCourseID] += session.DurationSeconds
	}

	rows := make([]storage.Aggregate, 0, len(perRefCourse)+3)

	if register.OfflineSessions && offlineCount > 0 {
		// Deterministic row order; the empty key is the unspecified bucket.
		refCourseIDs := make([]string, 0, len(perRefCourse))
		for refCourseID := range perRefCourse {
			refCourseIDs = append(refCourseIDs, refCourseID)
		}
		sort.Strings(refCourseIDs)

		for _, refCourseID := range refCourseIDs {
			rows = append(rows, storage.Aggregate{
				RegisterID:      register.ID,
				UserID:          userID,
				Kind:            storage.KindOfflineRefCourse,
				RefCourseID:     refCourseID,
				DurationSeconds: perRefCourse[refCourseID],
			})
		}
		rows = append(rows, storage.Aggregate{
			RegisterID:      register.ID,
			UserID:          userID,
			Kind:            storage.KindOfflineTotal,
			DurationSeconds: offlineTotal,
		})
	}

	rows = append(rows, storage.Aggregate{
		RegisterID:      register.ID,
		UserID:          userID,
		Kind:            storage.KindOnlineTotal,
		DurationSeconds: onlineTotal,
	})

	rows = append(rows, storage.Aggregate{
		RegisterID:       register.ID,
		UserID:           userID,
		Kind:             storage.KindGrandTotal,
		DurationSeconds:  onlineTotal + offlineTotal,
		LastOnlineLogout: lastOnlineLogout,
	})

	return rows
}
