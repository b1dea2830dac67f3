package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

const userKind = "user"

type userStore struct {
	client *redis.Client
}

func (s *userStore) Get(ctx context.Context, id string) (*storage.User, error) {
	return getRecord[storage.User](ctx, s.client, userKind, id)
}

func (s *userStore) List(ctx context.Context) ([]storage.User, error) {
	return listRecords[storage.User](ctx, s.client, userKind)
}

func (s *userStore) ListTracked(ctx context.Context) ([]storage.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make([]storage.User, 0, len(users))
	for _, user := range users {
		if user.Tracked {
			tracked = append(tracked, user)
		}
	}
	return tracked, nil
}

func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	return upsertRecord(ctx, s.client, userKind, user.ID, user)
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	return deleteRecord(ctx, s.client, userKind, id)
}
