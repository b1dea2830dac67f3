package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

// Registers, courses and users are small configuration records. They are
// stored as JSON strings with a set index per record type.

func recordKey(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, id)
}

func recordIndexKey(kind string) string {
	return fmt.Sprintf("%s:%ss", keyPrefix, kind)
}

func getRecord[T any](ctx context.Context, client *redis.Client, kind, id string) (*T, error) {
	data, err := client.Get(ctx, recordKey(kind, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record T
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return &record, nil
}

func listRecords[T any](ctx context.Context, client *redis.Client, kind string) ([]T, error) {
	ids, err := client.SMembers(ctx, recordIndexKey(kind)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]T, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	pipe := client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, recordKey(kind, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	for _, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			// Index entry outlived the record; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		var record T
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", kind, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func upsertRecord(ctx context.Context, client *redis.Client, kind, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, recordKey(kind, id), data, 0)
	pipe.SAdd(ctx, recordIndexKey(kind), id)
	_, err = pipe.Exec(ctx)
	return err
}

func deleteRecord(ctx context.Context, client *redis.Client, kind, id string) error {
	deleted, err := client.Del(ctx, recordKey(kind, id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return client.SRem(ctx, recordIndexKey(kind), id).Err()
}
