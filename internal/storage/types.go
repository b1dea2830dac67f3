package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RegisterType selects which courses a register tracks.
type RegisterType string

const (
	RegisterTypeCourse   RegisterType = "course"   // the register's own course only
	RegisterTypeCategory RegisterType = "category" // every course in the same category
	RegisterTypeMeta     RegisterType = "meta"     // own course plus meta-linked courses
	RegisterTypeGlobal   RegisterType = "global"   // every course on the site
)

// UnmarshalJSON implements json.Unmarshaler to normalize the type to lowercase.
func (t *RegisterType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := RegisterType(strings.ToLower(s))

	switch normalized {
	case RegisterTypeCourse, RegisterTypeCategory, RegisterTypeMeta, RegisterTypeGlobal:
		*t = normalized
		return nil
	default:
		return fmt.Errorf("invalid register type: %s (must be course, category, meta, or global)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure lowercase output.
func (t RegisterType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// Register is a tracked attendance configuration unit. It defines which
// courses' activity counts toward sessions and under what rules.
type Register struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name"`
	CourseID               string       `json:"course_id"`
	Type                   RegisterType `json:"type"`
	SessionTimeoutMinutes  int          `json:"session_timeout_minutes"`
	OfflineSessions        bool         `json:"offline_sessions"`
	OfflineComments        bool         `json:"offline_comments"`
	MandatoryComments      bool         `json:"mandatory_comments"`
	OfflineSpecifyCourse   bool         `json:"offline_specify_course"`
	MandatoryRefCourse     bool         `json:"mandatory_ref_course"`
	DaysCertifiable        int          `json:"days_certifiable"`
	CompletionTotalMinutes int          `json:"completion_total_minutes"`
	PendingRecalc          bool         `json:"pending_recalc"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// SessionTimeout returns the register's inactivity timeout as a duration.
func (r *Register) SessionTimeout() time.Duration {
	return time.Duration(r.SessionTimeoutMinutes) * time.Minute
}

// CompletionEnabled reports whether a completion threshold is configured.
func (r *Register) CompletionEnabled() bool {
	return r.CompletionTotalMinutes > 0
}

// Course is a minimal course record, enough to resolve tracked course sets.
type Course struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	CategoryID    string   `json:"category_id"`
	MetaLinkedIDs []string `json:"meta_linked_ids,omitempty"`
}

// User is a directory record for a trackable user.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	LastAccess   time.Time `json:"last_access"`
	CurrentLogin time.Time `json:"current_login"`
	Tracked      bool      `json:"tracked"`
}

// ActivityEntry is one raw activity-log event: the user touched the given
// course at the given time. The log is append-only.
type ActivityEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a derived or self-certified interval of user activity.
// Online sessions are engine-derived; offline sessions are self-certified
// and may carry a reference course, a comment, and the submitter's id when
// submitted on behalf of another user.
type Session struct {
	ID              string    `json:"id"`
	RegisterID      string    `json:"register_id"`
	UserID          string    `json:"user_id"`
	Login           time.Time `json:"login"`
	Logout          time.Time `json:"logout"`
	DurationSeconds int64     `json:"duration_seconds"`
	Online          bool      `json:"online"`
	RefCourseID     string    `json:"ref_course_id,omitempty"`
	Comments        string    `json:"comments,omitempty"`
	AddedByUserID   string    `json:"added_by_user_id,omitempty"`
}

// AggregateKind identifies which of the four mutually exclusive summary rows
// an Aggregate is.
type AggregateKind string

const (
	// KindOfflineRefCourse is a per-reference-course offline subtotal.
	KindOfflineRefCourse AggregateKind = "offline_refcourse"
	// KindOfflineTotal is the combined offline subtotal across all reference courses.
	KindOfflineTotal AggregateKind = "offline_total"
	// KindOnlineTotal is the combined online subtotal. Exactly one exists per
	// (register, user) after every recomputation, even when zero.
	KindOnlineTotal AggregateKind = "online_total"
	// KindGrandTotal sums all sessions and caches the last online logout.
	KindGrandTotal AggregateKind = "grand_total"
)

// Valid reports whether k is one of the four known kinds.
func (k AggregateKind) Valid() bool {
	switch k {
	case KindOfflineRefCourse, KindOfflineTotal, KindOnlineTotal, KindGrandTotal:
		return true
	}
	return false
}

// Aggregate is a precomputed summary duration row for a (register, user)
// pair. Aggregates are always deleted and rewritten as a set, never patched.
type Aggregate struct {
	RegisterID       string        `json:"register_id"`
	UserID           string        `json:"user_id"`
	Kind             AggregateKind `json:"kind"`
	RefCourseID      string        `json:"ref_course_id,omitempty"`
	DurationSeconds  int64         `json:"duration_seconds"`
	LastOnlineLogout time.Time     `json:"last_online_logout,omitzero"`
}

// Lock is a per (register, user) advisory recalculation lock.
type Lock struct {
	RegisterID string    `json:"register_id"`
	UserID     string    `json:"user_id"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}
