package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type activityStore struct {
	db *bbolt.DB
}

// Keys are "<userID>/<zero-padded unixnano>-<suffix>" so a prefix scan over
// one user yields entries in timestamp order.
func (s *activityStore) Append(ctx context.Context, entry storage.ActivityEntry) error {
	key, err := timeKey(entry.UserID, entry.Timestamp)
	if err != nil {
		return err
	}
	return putBucketValue(ctx, s.db, bucketActivity, key, entry)
}

func (s *activityStore) ListTimestamps(ctx context.Context, userID string, fromTime time.Time, courseIDs []string) ([]time.Time, error) {
	wanted := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		wanted[id] = true
	}

	timestamps := make([]time.Time, 0)
	prefix := []byte(userID + "/")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketActivity))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry storage.ActivityEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			if !entry.Timestamp.After(fromTime) {
				continue
			}
			if len(wanted) > 0 && !wanted[entry.CourseID] {
				continue
			}
			timestamps = append(timestamps, entry.Timestamp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return timestamps, nil
}

func (s *activityStore) OldestTimestamp(ctx context.Context, userID string) (time.Time, error) {
	var oldest time.Time
	prefix := []byte(userID + "/")
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketActivity))
		if b == nil {
			return storage.ErrNotFound
		}
		c := b.Cursor()
		k, v := c.Seek(prefix)
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return storage.ErrNotFound
		}
		var entry storage.ActivityEntry
		if err := unmarshal(v, &entry); err != nil {
			return fmt.Errorf("oldest activity entry: %w", err)
		}
		oldest = entry.Timestamp
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return oldest, nil
}
