package bolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type aggregateStore struct {
	db *bbolt.DB
}

// Keys are "<registerID>/<userID>/<kind>[/<refcourse>]" so one user's rows
// share a prefix and can be replaced with a single prefix sweep.
func aggregateKey(row storage.Aggregate) string {
	key := fmt.Sprintf("%s/%s/%s", row.RegisterID, row.UserID, row.Kind)
	if row.Kind == storage.KindOfflineRefCourse {
		key = fmt.Sprintf("%s/%s", key, row.RefCourseID)
	}
	return key
}

func (s *aggregateStore) ReplaceForUser(ctx context.Context, registerID, userID string, rows []storage.Aggregate) error {
	// Single update transaction: the delete and all inserts land together
	// or not at all.
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketAggregates))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketAggregates)
		}
		if err := deletePrefix(b, registerID+"/"+userID+"/"); err != nil {
			return err
		}
		for _, row := range rows {
			data, err := marshal(row)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(aggregateKey(row)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *aggregateStore) ListByUser(ctx context.Context, registerID, userID string) ([]storage.Aggregate, error) {
	return s.listPrefix(ctx, registerID+"/"+userID+"/", nil)
}

func (s *aggregateStore) GetGrandTotal(ctx context.Context, registerID, userID string) (*storage.Aggregate, error) {
	key := fmt.Sprintf("%s/%s/%s", registerID, userID, storage.KindGrandTotal)
	return getBucketValue[storage.Aggregate](ctx, s.db, bucketAggregates, key)
}

func (s *aggregateStore) ListSummaries(ctx context.Context, registerID string) ([]storage.Aggregate, error) {
	return s.listPrefix(ctx, registerID+"/", func(row storage.Aggregate) bool {
		switch row.Kind {
		case storage.KindOfflineTotal, storage.KindOnlineTotal, storage.KindGrandTotal:
			return true
		}
		return false
	})
}

func (s *aggregateStore) DeleteByUser(ctx context.Context, registerID, userID string) error {
	return s.deleteWithPrefix(ctx, registerID+"/"+userID+"/")
}

func (s *aggregateStore) DeleteByRegister(ctx context.Context, registerID string) error {
	return s.deleteWithPrefix(ctx, registerID+"/")
}

func (s *aggregateStore) listPrefix(ctx context.Context, prefix string, keep func(storage.Aggregate) bool) ([]storage.Aggregate, error) {
	rows := make([]storage.Aggregate, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketAggregates))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var row storage.Aggregate
			if err := unmarshal(v, &row); err != nil {
				return err
			}
			if keep != nil && !keep(row) {
				continue
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *aggregateStore) deleteWithPrefix(ctx context.Context, prefix string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketAggregates))
		if b == nil {
			return nil
		}
		return deletePrefix(b, prefix)
	})
}

func deletePrefix(b *bbolt.Bucket, prefix string) error {
	c := b.Cursor()
	p := []byte(prefix)
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}
