package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

type aggregateStore struct {
	client *redis.Client
}

func aggregateKey(row storage.Aggregate) string {
	key := fmt.Sprintf("%s:aggregate:%s:%s:%s", keyPrefix, row.RegisterID, row.UserID, row.Kind)
	if row.Kind == storage.KindOfflineRefCourse {
		key = fmt.Sprintf("%s:%s", key, row.RefCourseID)
	}
	return key
}

func aggregateUserSetKey(registerID, userID string) string {
	return fmt.Sprintf("%s:aggregates:%s:%s", keyPrefix, registerID, userID)
}

func aggregateRegisterSetKey(registerID string) string {
	return fmt.Sprintf("%s:aggregates:register:%s", keyPrefix, registerID)
}

func aggregateFields(row storage.Aggregate) []string {
	return []string{
		"register_id", row.RegisterID,
		"user_id", row.UserID,
		"kind", string(row.Kind),
		"ref_course_id", row.RefCourseID,
		"duration_seconds", strconv.FormatInt(row.DurationSeconds, 10),
		"last_online_logout", formatTime(row.LastOnlineLogout),
	}
}

func (s *aggregateStore) ReplaceForUser(ctx context.Context, registerID, userID string, rows []storage.Aggregate) error {
	script := redis.NewScript(replaceAggregatesScript)

	keys := []string{
		aggregateUserSetKey(registerID, userID),
		aggregateRegisterSetKey(registerID),
	}

	args := []interface{}{len(rows)}
	for _, row := range rows {
		fields := aggregateFields(row)
		args = append(args, aggregateKey(row), len(fields)/2)
		for _, field := range fields {
			args = append(args, field)
		}
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

func (s *aggregateStore) ListByUser(ctx context.Context, registerID, userID string) ([]storage.Aggregate, error) {
	return s.fetchSet(ctx, aggregateUserSetKey(registerID, userID), nil)
}

func (s *aggregateStore) GetGrandTotal(ctx context.Context, registerID, userID string) (*storage.Aggregate, error) {
	key := aggregateKey(storage.Aggregate{RegisterID: registerID, UserID: userID, Kind: storage.KindGrandTotal})
	data, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return parseAggregate(data)
}

func (s *aggregateStore) ListSummaries(ctx context.Context, registerID string) ([]storage.Aggregate, error) {
	return s.fetchSet(ctx, aggregateRegisterSetKey(registerID), func(row storage.Aggregate) bool {
		switch row.Kind {
		case storage.KindOfflineTotal, storage.KindOnlineTotal, storage.KindGrandTotal:
			return true
		}
		return false
	})
}

func (s *aggregateStore) DeleteByUser(ctx context.Context, registerID, userID string) error {
	userSet := aggregateUserSetKey(registerID, userID)
	keys, err := s.client.SMembers(ctx, userSet).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, aggregateRegisterSetKey(registerID), key)
	}
	pipe.Del(ctx, userSet)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *aggregateStore) DeleteByRegister(ctx context.Context, registerID string) error {
	registerSet := aggregateRegisterSetKey(registerID)
	keys, err := s.client.SMembers(ctx, registerSet).Result()
	if err != nil {
		return err
	}

	// User index sets are found through the rows themselves.
	userSets := make(map[string]struct{})
	rows, err := s.fetchSet(ctx, registerSet, nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		userSets[aggregateUserSetKey(row.RegisterID, row.UserID)] = struct{}{}
	}

	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	for userSet := range userSets {
		pipe.Del(ctx, userSet)
	}
	pipe.Del(ctx, registerSet)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *aggregateStore) fetchSet(ctx context.Context, setKey string, keep func(storage.Aggregate) bool) ([]storage.Aggregate, error) {
	keys, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []storage.Aggregate{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	rows := make([]storage.Aggregate, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		row, err := parseAggregate(data)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(*row) {
			continue
		}
		rows = append(rows, *row)
	}
	return rows, nil
}
