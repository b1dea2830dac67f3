package bolt

import (
	"context"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type userStore struct {
	db *bbolt.DB
}

func (s *userStore) Get(ctx context.Context, id string) (*storage.User, error) {
	return getBucketValue[storage.User](ctx, s.db, bucketUsers, id)
}

func (s *userStore) List(ctx context.Context) ([]storage.User, error) {
	return listBucket[storage.User](ctx, s.db, bucketUsers)
}

func (s *userStore) ListTracked(ctx context.Context) ([]storage.User, error) {
	all, err := listBucket[storage.User](ctx, s.db, bucketUsers)
	if err != nil {
		return nil, err
	}
	users := make([]storage.User, 0, len(all))
	for _, user := range all {
		if user.Tracked {
			users = append(users, user)
		}
	}
	return users, nil
}

func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	return putBucketValue(ctx, s.db, bucketUsers, user.ID, user)
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketUsers, id)
}
