package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scalimax/attendtrack/internal/metrics"
	"github.com/scalimax/attendtrack/internal/storage"
)

// UpdateUserSessions performs an incremental session update for one user.
// It returns true when new sessions were derived. If another worker holds
// the user's lock the update is skipped silently and false is returned.
func (t *Tracker) UpdateUserSessions(ctx context.Context, registerID, userID string, observer ProgressObserver) (bool, error) {
	register, err := t.store.Registers().Get(ctx, registerID)
	if err != nil {
		return false, err
	}
	return t.updateUser(ctx, register, userID, false, false, observer)
}

// ForceRecalcUser rebuilds one user's sessions and aggregates from scratch.
// When deleteOld is set, prior online sessions and all aggregates are
// removed first so the result is a clean rebuild rather than a patch.
// Returns ErrLocked if another worker holds the user's lock.
func (t *Tracker) ForceRecalcUser(ctx context.Context, registerID, userID string, deleteOld bool, observer ProgressObserver) error {
	register, err := t.store.Registers().Get(ctx, registerID)
	if err != nil {
		return err
	}
	_, err = t.updateUser(ctx, register, userID, true, deleteOld, observer)
	return err
}

// ForceRecalcAll rebuilds every tracked user of the register. A failure for
// one user is logged and counted but does not abort the rest of the batch.
// Returns the number of users successfully recalculated.
func (t *Tracker) ForceRecalcAll(ctx context.Context, registerID string, observer ProgressObserver) (int, error) {
	register, err := t.store.Registers().Get(ctx, registerID)
	if err != nil {
		return 0, err
	}

	users, err := t.store.Users().ListTracked(ctx)
	if err != nil {
		return 0, err
	}

	recalculated := 0
	for i, user := range users {
		if observer != nil {
			observer.Update(i, len(users), fmt.Sprintf("recalculating %s", user.DisplayName))
		}
		if _, err := t.updateUser(ctx, register, user.ID, true, true, nil); err != nil {
			metrics.RecalcErrors.WithLabelValues(register.ID).Inc()
			t.logger.Error().Err(err).
				Str("register_id", register.ID).
				Str("user_id", user.ID).
				Msg("Forced recalculation failed for user, continuing")
			continue
		}
		recalculated++
	}
	if observer != nil {
		observer.Finish("recalculation complete")
	}
	return recalculated, nil
}

// UpdateAllNeedingRecalculation runs the incremental update for every
// tracked user of the register and returns how many users gained sessions.
// Per-user failures are logged and skipped.
func (t *Tracker) UpdateAllNeedingRecalculation(ctx context.Context, registerID string, observer ProgressObserver) (int, error) {
	register, err := t.store.Registers().Get(ctx, registerID)
	if err != nil {
		return 0, err
	}

	users, err := t.store.Users().ListTracked(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i, user := range users {
		if observer != nil {
			observer.Update(i, len(users), fmt.Sprintf("updating %s", user.DisplayName))
		}
		found, err := t.updateUser(ctx, register, user.ID, false, false, nil)
		if err != nil {
			metrics.RecalcErrors.WithLabelValues(register.ID).Inc()
			t.logger.Error().Err(err).
				Str("register_id", register.ID).
				Str("user_id", user.ID).
				Msg("Incremental update failed for user, continuing")
			continue
		}
		if found {
			updated++
		}
	}
	if observer != nil {
		observer.Finish("update complete")
	}
	return updated, nil
}

// SetPendingRecalc flags the register for a full rebuild on the scheduler's
// next pass, or clears the flag.
func (t *Tracker) SetPendingRecalc(ctx context.Context, registerID string, pending bool) error {
	return t.store.Registers().SetPendingRecalc(ctx, registerID, pending)
}

// UpsertRegister stores a register configuration. Changing the session
// timeout invalidates every derived session, so the register is flagged for
// a full rebuild when an existing register's timeout differs.
func (t *Tracker) UpsertRegister(ctx context.Context, register storage.Register) error {
	existing, err := t.store.Registers().Get(ctx, register.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if existing != nil && existing.SessionTimeoutMinutes != register.SessionTimeoutMinutes {
		register.PendingRecalc = true
		t.logger.Info().
			Str("register_id", register.ID).
			Int("old_timeout_minutes", existing.SessionTimeoutMinutes).
			Int("new_timeout_minutes", register.SessionTimeoutMinutes).
			Msg("Session timeout changed, register flagged for full recalculation")
	}
	register.UpdatedAt = t.clock.Now()

	if err := t.store.Registers().Upsert(ctx, register); err != nil {
		return err
	}
	t.InvalidateCourseCache(register.ID)
	return nil
}

// PurgeOrphanLocks removes locks older than the configured orphan age and
// returns how many were purged.
func (t *Tracker) PurgeOrphanLocks(ctx context.Context) (int, error) {
	cutoff := t.clock.Now().Add(-t.opts.LockOrphanAge)
	purged, err := t.store.Locks().PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		metrics.OrphanLocksPurged.Add(float64(purged))
		t.logger.Warn().Int("purged", purged).Msg("Purged orphaned locks")
	}
	return purged, nil
}

// DeleteRegister removes a register and everything derived from it:
// sessions, aggregates and any live locks.
func (t *Tracker) DeleteRegister(ctx context.Context, registerID string) error {
	users, err := t.store.Users().List(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := t.store.Locks().Release(ctx, registerID, user.ID); err != nil {
			return err
		}
		if err := t.store.Aggregates().DeleteByUser(ctx, registerID, user.ID); err != nil {
			return err
		}
	}
	if _, err := t.store.Sessions().DeleteByRegister(ctx, registerID, false); err != nil {
		return err
	}
	if err := t.store.Aggregates().DeleteByRegister(ctx, registerID); err != nil {
		return err
	}
	t.trackedCourses.Remove(registerID)
	return t.store.Registers().Delete(ctx, registerID)
}

// updateUser is the per-user recalculation state machine: lock check,
// needs-update check, lock claim, segmentation, aggregation, release.
func (t *Tracker) updateUser(ctx context.Context, register *storage.Register, userID string, forced, deleteOld bool, observer ProgressObserver) (bool, error) {
	user, err := t.store.Users().Get(ctx, userID)
	if err != nil {
		return false, err
	}

	mode := "incremental"
	if forced {
		mode = "forced"
	}

	var fromTime time.Time
	if !forced {
		held, err := t.store.Locks().Exists(ctx, register.ID, userID)
		if err != nil {
			return false, err
		}
		if held {
			metrics.LockContentionSkips.WithLabelValues(register.ID).Inc()
			if observer != nil {
				observer.Finish("already up to date")
			}
			return false, nil
		}

		needed, resolvedFrom, err := t.needsUpdate(ctx, register, user)
		if err != nil {
			return false, err
		}
		if !needed {
			if observer != nil {
				observer.Finish("already up to date")
			}
			return false, nil
		}
		fromTime = resolvedFrom
	}

	acquired, err := t.store.Locks().Acquire(ctx, storage.Lock{
		RegisterID: register.ID,
		UserID:     userID,
		Owner:      t.owner,
		AcquiredAt: t.clock.Now(),
	})
	if err != nil {
		return false, err
	}
	if !acquired {
		// Lost the race between the check and the claim.
		metrics.LockContentionSkips.WithLabelValues(register.ID).Inc()
		if forced {
			return false, ErrLocked
		}
		return false, nil
	}
	defer func() {
		if err := t.store.Locks().Release(ctx, register.ID, userID); err != nil {
			t.logger.Error().Err(err).
				Str("register_id", register.ID).
				Str("user_id", userID).
				Msg("Failed to release recalculation lock")
		}
	}()

	timer := prometheus.NewTimer(metrics.RecalcDuration.WithLabelValues(register.ID))
	defer timer.ObserveDuration()

	if forced && deleteOld {
		if err := t.deleteDerivedState(ctx, register, userID); err != nil {
			return false, err
		}
		fromTime = time.Time{}
	}

	created, err := t.segmentUser(ctx, register, userID, fromTime, observer)
	if err != nil {
		return false, err
	}

	if err := t.recomputeAggregates(ctx, register, userID); err != nil {
		return false, err
	}

	metrics.UsersUpdated.WithLabelValues(register.ID, mode).Inc()
	t.logger.Info().
		Str("register_id", register.ID).
		Str("user_id", userID).
		Str("mode", mode).
		Int("sessions_created", created).
		Msg("User sessions updated")

	if observer != nil {
		observer.Finish(fmt.Sprintf("%d sessions created", created))
	}
	return created > 0, nil
}

// needsUpdate decides whether an incremental pass would find anything,
// resolving the fromTime to resume from.
func (t *Tracker) needsUpdate(ctx context.Context, register *storage.Register, user *storage.User) (bool, time.Time, error) {
	// A user who never accessed the site has nothing to segment.
	if user.LastAccess.IsZero() {
		return false, time.Time{}, nil
	}

	grand, err := t.store.Aggregates().GetGrandTotal(ctx, register.ID, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Never aggregated: process the full history.
		return true, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}

	if user.LastAccess.After(grand.LastOnlineLogout) {
		return true, grand.LastOnlineLogout, nil
	}
	return false, time.Time{}, nil
}

// deleteDerivedState clears a user's online sessions and aggregates before
// a clean rebuild. Online sessions older than the user's oldest surviving
// log entry are kept, since they can no longer be re-derived.
func (t *Tracker) deleteDerivedState(ctx context.Context, register *storage.Register, userID string) error {
	var onlyAfter time.Time
	oldest, err := t.store.Activity().OldestTimestamp(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// No surviving activity at all: every online session is stale.
	case err != nil:
		return err
	default:
		onlyAfter = oldest
	}

	deleted, err := t.store.Sessions().DeleteOnlineByUser(ctx, register.ID, userID, onlyAfter)
	if err != nil {
		return err
	}
	if deleted > 0 {
		metrics.SessionsDeleted.WithLabelValues(register.ID).Add(float64(deleted))
	}

	return t.store.Aggregates().DeleteByUser(ctx, register.ID, userID)
}
