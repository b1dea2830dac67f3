package bolt

import (
	"context"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type registerStore struct {
	db *bbolt.DB
}

func (s *registerStore) Get(ctx context.Context, id string) (*storage.Register, error) {
	return getBucketValue[storage.Register](ctx, s.db, bucketRegisters, id)
}

func (s *registerStore) List(ctx context.Context) ([]storage.Register, error) {
	return listBucket[storage.Register](ctx, s.db, bucketRegisters)
}

func (s *registerStore) Upsert(ctx context.Context, register storage.Register) error {
	return putBucketValue(ctx, s.db, bucketRegisters, register.ID, register)
}

func (s *registerStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketRegisters, id)
}

func (s *registerStore) SetPendingRecalc(ctx context.Context, id string, pending bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketRegisters))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var register storage.Register
		if err := unmarshal(value, &register); err != nil {
			return err
		}
		register.PendingRecalc = pending
		data, err := marshal(register)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}
