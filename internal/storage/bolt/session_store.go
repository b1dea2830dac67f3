package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) Insert(ctx context.Context, session storage.Session) error {
	return putBucketValue(ctx, s.db, bucketSessions, session.ID, session)
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	return getBucketValue[storage.Session](ctx, s.db, bucketSessions, id)
}

func (s *sessionStore) ListByUser(ctx context.Context, registerID, userID string) ([]storage.Session, error) {
	all, err := listBucket[storage.Session](ctx, s.db, bucketSessions)
	if err != nil {
		return nil, err
	}
	sessions := make([]storage.Session, 0)
	for _, session := range all {
		if session.RegisterID == registerID && session.UserID == userID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Login.Before(sessions[j].Login)
	})
	return sessions, nil
}

func (s *sessionStore) DeleteOnlineByUser(ctx context.Context, registerID, userID string, onlyAfter time.Time) (int, error) {
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.Session
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			if !session.Online || session.RegisterID != registerID || session.UserID != userID {
				continue
			}
			if !onlyAfter.IsZero() && session.Login.Before(onlyAfter) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
}

func (s *sessionStore) DeleteOffline(ctx context.Context, registerID, userID, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(sessionID))
		if value == nil {
			return storage.ErrNotFound
		}
		var session storage.Session
		if err := unmarshal(value, &session); err != nil {
			return err
		}
		if session.Online || session.RegisterID != registerID || session.UserID != userID {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(sessionID))
	})
}

func (s *sessionStore) DeleteByRegister(ctx context.Context, registerID string, onlineOnly bool) (int, error) {
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.Session
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			if session.RegisterID != registerID {
				continue
			}
			if onlineOnly && !session.Online {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
}

func (s *sessionStore) LastOnlineLogout(ctx context.Context, registerID, userID string) (time.Time, error) {
	sessions, err := s.ListByUser(ctx, registerID, userID)
	if err != nil {
		return time.Time{}, err
	}
	var last time.Time
	for _, session := range sessions {
		if session.Online && session.Logout.After(last) {
			last = session.Logout
		}
	}
	return last, nil
}

func (s *sessionStore) HasOverlapping(ctx context.Context, registerID, userID string, login, logout time.Time) (bool, error) {
	sessions, err := s.ListByUser(ctx, registerID, userID)
	if err != nil {
		return false, err
	}
	for _, session := range sessions {
		if overlaps(login, logout, session.Login, session.Logout) {
			return true, nil
		}
	}
	return false, nil
}

// overlaps reports whether either end of [login, logout] falls inside the
// stored interval, bounds inclusive.
func overlaps(login, logout, storedLogin, storedLogout time.Time) bool {
	return between(login, storedLogin, storedLogout) || between(logout, storedLogin, storedLogout)
}

func between(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}
