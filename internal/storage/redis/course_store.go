package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

const courseKind = "course"

type courseStore struct {
	client *redis.Client
}

func (s *courseStore) Get(ctx context.Context, id string) (*storage.Course, error) {
	return getRecord[storage.Course](ctx, s.client, courseKind, id)
}

func (s *courseStore) List(ctx context.Context) ([]storage.Course, error) {
	return listRecords[storage.Course](ctx, s.client, courseKind)
}

func (s *courseStore) ListByCategory(ctx context.Context, categoryID string) ([]storage.Course, error) {
	courses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]storage.Course, 0, len(courses))
	for _, course := range courses {
		if course.CategoryID == categoryID {
			matched = append(matched, course)
		}
	}
	return matched, nil
}

func (s *courseStore) Upsert(ctx context.Context, course storage.Course) error {
	return upsertRecord(ctx, s.client, courseKind, course.ID, course)
}

func (s *courseStore) Delete(ctx context.Context, id string) error {
	return deleteRecord(ctx, s.client, courseKind, id)
}
