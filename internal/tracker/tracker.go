package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/scalimax/attendtrack/internal/storage"
)

const (
	// DefaultMaxOfflineSessionDuration caps a single self-certified session.
	DefaultMaxOfflineSessionDuration = 12 * time.Hour

	// DefaultLockOrphanAge is how old a lock must be before the scheduler
	// treats it as abandoned by a crashed worker.
	DefaultLockOrphanAge = 30 * time.Minute

	// DefaultCourseCacheSize bounds the tracked-course-set cache.
	DefaultCourseCacheSize = 256

	// DefaultCourseCacheTTL bounds how long a resolved course set is reused.
	DefaultCourseCacheTTL = 5 * time.Minute

	// MaxCommentLength caps offline session comments.
	MaxCommentLength = 255
)

// ProgressObserver receives advisory progress updates during long
// recalculations. A nil observer is a no-op.
type ProgressObserver interface {
	Update(done, total int, message string)
	Finish(message string)
}

// CompletionSink records completion state for a (register, user) pair after
// an aggregate recomputation. Implementations must be idempotent.
type CompletionSink interface {
	Notify(ctx context.Context, registerID, userID string, complete bool) error
}

// Options holds tracker configuration
type Options struct {
	Clock                     Clock
	Completion                CompletionSink
	MaxOfflineSessionDuration time.Duration
	LockOrphanAge             time.Duration
	CourseCacheSize           int
	CourseCacheTTL            time.Duration
}

// Tracker derives attendance sessions from the raw activity log and keeps
// the per-user aggregate rows current. All mutating entry points take the
// per (register, user) advisory lock.
type Tracker struct {
	store      storage.Store
	clock      Clock
	completion CompletionSink
	opts       Options
	owner      string
	logger     zerolog.Logger

	// Resolved tracked-course sets, keyed by register id.
	trackedCourses *expirable.LRU[string, []string]
}

// New creates a tracker on top of the given store.
func New(store storage.Store, opts Options, logger zerolog.Logger) *Tracker {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.MaxOfflineSessionDuration == 0 {
		opts.MaxOfflineSessionDuration = DefaultMaxOfflineSessionDuration
	}
	if opts.LockOrphanAge == 0 {
		opts.LockOrphanAge = DefaultLockOrphanAge
	}
	if opts.CourseCacheSize == 0 {
		opts.CourseCacheSize = DefaultCourseCacheSize
	}
	if opts.CourseCacheTTL == 0 {
		opts.CourseCacheTTL = DefaultCourseCacheTTL
	}

	return &Tracker{
		store:          store,
		clock:          opts.Clock,
		completion:     opts.Completion,
		opts:           opts,
		owner:          uuid.NewString(),
		logger:         logger.With().Str("component", "tracker").Logger(),
		trackedCourses: expirable.NewLRU[string, []string](opts.CourseCacheSize, nil, opts.CourseCacheTTL),
	}
}

// trackedCourseIDs resolves which courses' activity counts toward the
// register. A nil result means no filtering (global registers).
func (t *Tracker) trackedCourseIDs(ctx context.Context, register *storage.Register) ([]string, error) {
	if register.Type == storage.RegisterTypeGlobal {
		return nil, nil
	}

	if cached, ok := t.trackedCourses.Get(register.ID); ok {
		return cached, nil
	}

	var courseIDs []string
	switch register.Type {
	case storage.RegisterTypeCourse:
		courseIDs = []string{register.CourseID}

	case storage.RegisterTypeCategory:
		course, err := t.store.Courses().Get(ctx, register.CourseID)
		if err != nil {
			return nil, err
		}
		siblings, err := t.store.Courses().ListByCategory(ctx, course.CategoryID)
		if err != nil {
			return nil, err
		}
		courseIDs = make([]string, 0, len(siblings))
		for _, sibling := range siblings {
			courseIDs = append(courseIDs, sibling.ID)
		}

	case storage.RegisterTypeMeta:
		course, err := t.store.Courses().Get(ctx, register.CourseID)
		if err != nil {
			return nil, err
		}
		courseIDs = append([]string{course.ID}, course.MetaLinkedIDs...)
	}

	t.trackedCourses.Add(register.ID, courseIDs)
	return courseIDs, nil
}

// InvalidateCourseCache drops the cached course set for a register, for use
// after course or register edits.
func (t *Tracker) InvalidateCourseCache(registerID string) {
	t.trackedCourses.Remove(registerID)
}
