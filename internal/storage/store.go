package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Registers() RegisterStore
	Courses() CourseStore
	Users() UserStore
	Activity() ActivityStore
	Sessions() SessionStore
	Aggregates() AggregateStore
	Locks() LockStore
}

// RegisterStore manages register configurations.
type RegisterStore interface {
	Get(ctx context.Context, id string) (*Register, error)
	List(ctx context.Context) ([]Register, error)
	Upsert(ctx context.Context, register Register) error
	// Delete removes the register. Cascading deletion of sessions,
	// aggregates and locks is the caller's responsibility (see tracker).
	Delete(ctx context.Context, id string) error
	SetPendingRecalc(ctx context.Context, id string, pending bool) error
}

// CourseStore manages course records used to resolve tracked course sets.
type CourseStore interface {
	Get(ctx context.Context, id string) (*Course, error)
	List(ctx context.Context) ([]Course, error)
	ListByCategory(ctx context.Context, categoryID string) ([]Course, error)
	Upsert(ctx context.Context, course Course) error
	Delete(ctx context.Context, id string) error
}

// UserStore manages directory records of trackable users.
type UserStore interface {
	// Get returns ErrNotFound when the user does not exist.
	Get(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	ListTracked(ctx context.Context) ([]User, error)
	Upsert(ctx context.Context, user User) error
	Delete(ctx context.Context, id string) error
}

// ActivityStore is the append-only raw activity log.
type ActivityStore interface {
	Append(ctx context.Context, entry ActivityEntry) error
	// ListTimestamps returns the user's activity timestamps in ascending
	// order, restricted to the given courses and strictly after fromTime.
	// A zero fromTime means from the beginning.
	ListTimestamps(ctx context.Context, userID string, fromTime time.Time, courseIDs []string) ([]time.Time, error)
	// OldestTimestamp returns the user's earliest activity anywhere on the
	// site, or ErrNotFound if the user has no activity at all.
	OldestTimestamp(ctx context.Context, userID string) (time.Time, error)
}

// SessionStore manages derived and self-certified session intervals.
type SessionStore interface {
	Insert(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// ListByUser returns all the user's sessions in the register, ordered by
	// login ascending.
	ListByUser(ctx context.Context, registerID, userID string) ([]Session, error)
	// DeleteOnlineByUser deletes the user's online sessions. When onlyAfter
	// is non-zero only sessions with login >= onlyAfter are deleted, so
	// sessions older than the first surviving log entry are kept.
	DeleteOnlineByUser(ctx context.Context, registerID, userID string, onlyAfter time.Time) (int, error)
	// DeleteOffline deletes one offline session owned by the user.
	DeleteOffline(ctx context.Context, registerID, userID, sessionID string) error
	// DeleteByRegister deletes sessions of the register; when onlineOnly is
	// set, offline self-certifications survive.
	DeleteByRegister(ctx context.Context, registerID string, onlineOnly bool) (int, error)
	// LastOnlineLogout returns the max logout over the user's online
	// sessions, or the zero time when none exist.
	LastOnlineLogout(ctx context.Context, registerID, userID string) (time.Time, error)
	// HasOverlapping reports whether [login, logout] intersects any stored
	// session of the user, bounds inclusive.
	HasOverlapping(ctx context.Context, registerID, userID string, login, logout time.Time) (bool, error)
}

// AggregateStore manages precomputed summary rows.
type AggregateStore interface {
	// ReplaceForUser atomically deletes the user's rows and inserts the new
	// set: either all rows land or none do.
	ReplaceForUser(ctx context.Context, registerID, userID string, rows []Aggregate) error
	ListByUser(ctx context.Context, registerID, userID string) ([]Aggregate, error)
	// GetGrandTotal returns the cached grand-total row, or ErrNotFound when
	// the user has never been aggregated.
	GetGrandTotal(ctx context.Context, registerID, userID string) (*Aggregate, error)
	// ListSummaries returns only total and grand-total rows for the whole
	// register, for reporting.
	ListSummaries(ctx context.Context, registerID string) ([]Aggregate, error)
	DeleteByUser(ctx context.Context, registerID, userID string) error
	DeleteByRegister(ctx context.Context, registerID string) error
}

// LockStore manages per (register, user) advisory recalculation locks.
type LockStore interface {
	// Acquire atomically claims the lock. It returns false when another
	// owner already holds it; two concurrent callers can never both succeed.
	Acquire(ctx context.Context, lock Lock) (bool, error)
	// Release removes all locks for the pair, tolerating duplicates.
	Release(ctx context.Context, registerID, userID string) error
	Exists(ctx context.Context, registerID, userID string) (bool, error)
	// PurgeOlderThan removes orphaned locks acquired before the cutoff and
	// returns how many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
