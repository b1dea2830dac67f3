package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

const registerKind = "register"

type registerStore struct {
	client *redis.Client
}

func (s *registerStore) Get(ctx context.Context, id string) (*storage.Register, error) {
	return getRecord[storage.Register](ctx, s.client, registerKind, id)
}

func (s *registerStore) List(ctx context.Context) ([]storage.Register, error) {
	return listRecords[storage.Register](ctx, s.client, registerKind)
}

func (s *registerStore) Upsert(ctx context.Context, register storage.Register) error {
	return upsertRecord(ctx, s.client, registerKind, register.ID, register)
}

func (s *registerStore) Delete(ctx context.Context, id string) error {
	return deleteRecord(ctx, s.client, registerKind, id)
}

func (s *registerStore) SetPendingRecalc(ctx context.Context, id string, pending bool) error {
	register, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	register.PendingRecalc = pending
	return s.Upsert(ctx, *register)
}
