package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

type lockStore struct {
	client *redis.Client
}

func lockKey(registerID, userID string) string {
	return fmt.Sprintf("%s:lock:%s:%s", keyPrefix, registerID, userID)
}

func locksSetKey() string {
	return fmt.Sprintf("%s:locks", keyPrefix)
}

func (s *lockStore) Acquire(ctx context.Context, lock storage.Lock) (bool, error) {
	script := redis.NewScript(acquireLockScript)

	keys := []string{lockKey(lock.RegisterID, lock.UserID), locksSetKey()}
	args := []interface{}{
		lock.RegisterID,
		lock.UserID,
		lock.Owner,
		formatTime(lock.AcquiredAt),
	}

	claimed, err := script.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, err
	}
	return claimed == 1, nil
}

func (s *lockStore) Release(ctx context.Context, registerID, userID string) error {
	key := lockKey(registerID, userID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, locksSetKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *lockStore) Exists(ctx context.Context, registerID, userID string) (bool, error) {
	count, err := s.client.Exists(ctx, lockKey(registerID, userID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *lockStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := s.client.SMembers(ctx, locksSetKey()).Result()
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, key := range keys {
		data, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return purged, err
		}
		if len(data) == 0 {
			// Stale index entry; drop it.
			if err := s.client.SRem(ctx, locksSetKey(), key).Err(); err != nil {
				return purged, err
			}
			continue
		}

		lock, err := parseLock(data)
		if err != nil {
			return purged, err
		}
		if !lock.AcquiredAt.Before(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.SRem(ctx, locksSetKey(), key)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
