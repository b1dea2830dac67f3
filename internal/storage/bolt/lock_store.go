package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type lockStore struct {
	db *bbolt.DB
}

func lockKey(registerID, userID string) string {
	return fmt.Sprintf("%s/%s", registerID, userID)
}

func (s *lockStore) Acquire(ctx context.Context, lock storage.Lock) (bool, error) {
	acquired := false
	// bbolt serializes update transactions, so check-then-put is atomic here.
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketLocks))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketLocks)
		}
		key := []byte(lockKey(lock.RegisterID, lock.UserID))
		if b.Get(key) != nil {
			return nil
		}
		data, err := marshal(lock)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *lockStore) Release(ctx context.Context, registerID, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketLocks))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(lockKey(registerID, userID)))
	})
}

func (s *lockStore) Exists(ctx context.Context, registerID, userID string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketLocks))
		if b == nil {
			return nil
		}
		exists = b.Get([]byte(lockKey(registerID, userID))) != nil
		return nil
	})
	return exists, err
}

func (s *lockStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketLocks))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var lock storage.Lock
			if err := unmarshal(v, &lock); err != nil {
				return err
			}
			if !lock.AcquiredAt.Before(cutoff) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
