package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
)

// formatTime encodes a timestamp for a hash field; the zero time encodes as
// an empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimeField(data map[string]string, field string) (time.Time, error) {
	value := data[field]
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return t, nil
}

// parseSession converts a Redis hash to Session
func parseSession(data map[string]string) (*storage.Session, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	login, err := parseTimeField(data, "login")
	if err != nil {
		return nil, err
	}

	logout, err := parseTimeField(data, "logout")
	if err != nil {
		return nil, err
	}

	duration, err := strconv.ParseInt(data["duration_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration_seconds: %w", err)
	}

	online, err := strconv.ParseBool(data["online"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse online: %w", err)
	}

	return &storage.Session{
		ID:              data["id"],
		RegisterID:      data["register_id"],
		UserID:          data["user_id"],
		Login:           login,
		Logout:          logout,
		DurationSeconds: duration,
		Online:          online,
		RefCourseID:     data["ref_course_id"],
		Comments:        data["comments"],
		AddedByUserID:   data["added_by_user_id"],
	}, nil
}

// sessionFields flattens a Session into hash field/value pairs.
func sessionFields(session storage.Session) []interface{} {
	return []interface{}{
		"id", session.ID,
		"register_id", session.RegisterID,
		"user_id", session.UserID,
		"login", formatTime(session.Login),
		"logout", formatTime(session.Logout),
		"duration_seconds", session.DurationSeconds,
		"online", strconv.FormatBool(session.Online),
		"ref_course_id", session.RefCourseID,
		"comments", session.Comments,
		"added_by_user_id", session.AddedByUserID,
	}
}

// parseAggregate converts a Redis hash to Aggregate
func parseAggregate(data map[string]string) (*storage.Aggregate, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	duration, err := strconv.ParseInt(data["duration_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration_seconds: %w", err)
	}

	lastOnlineLogout, err := parseTimeField(data, "last_online_logout")
	if err != nil {
		return nil, err
	}

	kind := storage.AggregateKind(data["kind"])
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown aggregate kind: %s", data["kind"])
	}

	return &storage.Aggregate{
		RegisterID:       data["register_id"],
		UserID:           data["user_id"],
		Kind:             kind,
		RefCourseID:      data["ref_course_id"],
		DurationSeconds:  duration,
		LastOnlineLogout: lastOnlineLogout,
	}, nil
}

// parseLock converts a Redis hash to Lock
func parseLock(data map[string]string) (*storage.Lock, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	acquiredAt, err := parseTimeField(data, "acquired_at")
	if err != nil {
		return nil, err
	}

	return &storage.Lock{
		RegisterID: data["register_id"],
		UserID:     data["user_id"],
		Owner:      data["owner"],
		AcquiredAt: acquiredAt,
	}, nil
}
