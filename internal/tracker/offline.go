package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scalimax/attendtrack/internal/metrics"
	"github.com/scalimax/attendtrack/internal/storage"
)

// OfflineSessionRequest is a self-certified session submission. SubmittedBy
// is empty when the subject user submits for themselves.
type OfflineSessionRequest struct {
	RegisterID  string
	UserID      string
	Login       time.Time
	Logout      time.Time
	RefCourseID string
	Comments    string
	SubmittedBy string
}

// AddOfflineSession validates and stores a self-certified session, then
// rebuilds the user's aggregates. Admission failures are returned as
// ValidationError without writing anything.
func (t *Tracker) AddOfflineSession(ctx context.Context, req OfflineSessionRequest) (*storage.Session, error) {
	register, err := t.store.Registers().Get(ctx, req.RegisterID)
	if err != nil {
		return nil, err
	}
	user, err := t.store.Users().Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if err := t.validateOfflineSession(ctx, register, user, req); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			metrics.OfflineSessionsRejected.WithLabelValues(register.ID, ve.Field).Inc()
		}
		return nil, err
	}

	session := storage.Session{
		ID:              uuid.NewString(),
		RegisterID:      req.RegisterID,
		UserID:          req.UserID,
		Login:           req.Login,
		Logout:          req.Logout,
		DurationSeconds: int64(req.Logout.Sub(req.Login) / time.Second),
		Online:          false,
		RefCourseID:     req.RefCourseID,
		Comments:        req.Comments,
	}
	if req.SubmittedBy != "" && req.SubmittedBy != req.UserID {
		session.AddedByUserID = req.SubmittedBy
	}

	if err := t.store.Sessions().Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("insert offline session: %w", err)
	}

	metrics.SessionsCreated.WithLabelValues(register.ID, "offline").Inc()
	metrics.OfflineSessionsAdded.WithLabelValues(register.ID).Inc()
	t.logger.Info().
		Str("register_id", register.ID).
		Str("user_id", req.UserID).
		Time("login", req.Login).
		Time("logout", req.Logout).
		Msg("Offline session certified")

	if err := t.recomputeAggregates(ctx, register, req.UserID); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteOfflineSession removes one self-certified session owned by the user
// and rebuilds the aggregates.
func (t *Tracker) DeleteOfflineSession(ctx context.Context, registerID, userID, sessionID string) error {
	register, err := t.store.Registers().Get(ctx, registerID)
	if err != nil {
		return err
	}
	if err := t.store.Sessions().DeleteOffline(ctx, registerID, userID, sessionID); err != nil {
		return err
	}
	return t.recomputeAggregates(ctx, register, userID)
}

func (t *Tracker) validateOfflineSession(ctx context.Context, register *storage.Register, user *storage.User, req OfflineSessionRequest) error {
	if !register.OfflineSessions {
		return &ValidationError{Field: "register", Reason: "offline sessions are not accepted"}
	}

	if !req.Logout.After(req.Login) {
		return &ValidationError{Field: "logout", Reason: "must be after login"}
	}

	if req.Logout.Sub(req.Login) > t.opts.MaxOfflineSessionDuration {
		return &ValidationError{
			Field:  "logout",
			Reason: fmt.Sprintf("session longer than %s", t.opts.MaxOfflineSessionDuration),
		}
	}

	now := t.clock.Now()
	if req.Logout.After(now) {
		return &ValidationError{Field: "logout", Reason: "must not be in the future"}
	}

	if register.DaysCertifiable > 0 {
		oldest := now.Add(-time.Duration(register.DaysCertifiable) * 24 * time.Hour)
		if req.Login.Before(oldest) {
			return &ValidationError{
				Field:  "login",
				Reason: fmt.Sprintf("older than the certifiable window of %d days", register.DaysCertifiable),
			}
		}
	}

	if register.OfflineComments {
		if register.MandatoryComments && req.Comments == "" {
			return &ValidationError{Field: "comments", Reason: "required"}
		}
		if len(req.Comments) > MaxCommentLength {
			return &ValidationError{
				Field:  "comments",
				Reason: fmt.Sprintf("longer than %d characters", MaxCommentLength),
			}
		}
	}

	if register.OfflineSpecifyCourse && register.MandatoryRefCourse && req.RefCourseID == "" {
		return &ValidationError{Field: "ref_course_id", Reason: "required"}
	}

	overlap, err := t.store.Sessions().HasOverlapping(ctx, register.ID, req.UserID, req.Login, req.Logout)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if overlap {
		return &ValidationError{Field: "login", Reason: "overlaps an existing session"}
	}

	return t.checkLiveSessionOverlap(register, user, req, now)
}

// checkLiveSessionOverlap rejects submissions reaching into the subject
// user's live online window. When submitting on behalf of another user the
// check is skipped if their last access is more than one timeout old, since
// they are presumed logged out.
func (t *Tracker) checkLiveSessionOverlap(register *storage.Register, user *storage.User, req OfflineSessionRequest, now time.Time) error {
	onBehalf := req.SubmittedBy != "" && req.SubmittedBy != req.UserID
	if onBehalf && now.Sub(user.LastAccess) > register.SessionTimeout() {
		return nil
	}

	if !user.CurrentLogin.IsZero() && req.Logout.After(user.CurrentLogin) {
		return &ValidationError{Field: "logout", Reason: "overlaps the current online session"}
	}
	return nil
}
