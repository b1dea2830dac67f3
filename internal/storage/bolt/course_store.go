package bolt

import (
	"context"

	"github.com/scalimax/attendtrack/internal/storage"
	"go.etcd.io/bbolt"
)

type courseStore struct {
	db *bbolt.DB
}

func (s *courseStore) Get(ctx context.Context, id string) (*storage.Course, error) {
	return getBucketValue[storage.Course](ctx, s.db, bucketCourses, id)
}

func (s *courseStore) List(ctx context.Context) ([]storage.Course, error) {
	return listBucket[storage.Course](ctx, s.db, bucketCourses)
}

func (s *courseStore) ListByCategory(ctx context.Context, categoryID string) ([]storage.Course, error) {
	all, err := listBucket[storage.Course](ctx, s.db, bucketCourses)
	if err != nil {
		return nil, err
	}
	courses := make([]storage.Course, 0, len(all))
	for _, course := range all {
		if course.CategoryID == categoryID {
			courses = append(courses, course)
		}
	}
	return courses, nil
}

func (s *courseStore) Upsert(ctx context.Context, course storage.Course) error {
	return putBucketValue(ctx, s.db, bucketCourses, course.ID, course)
}

func (s *courseStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketCourses, id)
}
