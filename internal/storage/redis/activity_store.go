package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

// The activity log is one sorted set per user, scored by the event time.
// Members carry the nanosecond timestamp and the course so range reads can
// filter without extra lookups.
type activityStore struct {
	client *redis.Client
}

func activityLogKey(userID string) string {
	return fmt.Sprintf("%s:activity:%s", keyPrefix, userID)
}

func activityMember(entry storage.ActivityEntry) string {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	return fmt.Sprintf("%d|%s|%s", entry.Timestamp.UnixNano(), entry.CourseID, id)
}

func (s *activityStore) Append(ctx context.Context, entry storage.ActivityEntry) error {
	member := redis.Z{
		Score:  float64(entry.Timestamp.UnixNano()),
		Member: activityMember(entry),
	}
	return s.client.ZAdd(ctx, activityLogKey(entry.UserID), member).Err()
}

func (s *activityStore) ListTimestamps(ctx context.Context, userID string, fromTime time.Time, courseIDs []string) ([]time.Time, error) {
	min := "-inf"
	if !fromTime.IsZero() {
		// Exclusive bound: entries at fromTime itself are already consumed.
		min = fmt.Sprintf("(%d", fromTime.UnixNano())
	}

	members, err := s.client.ZRangeByScore(ctx, activityLogKey(userID), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	var allowed map[string]struct{}
	if len(courseIDs) > 0 {
		allowed = make(map[string]struct{}, len(courseIDs))
		for _, id := range courseIDs {
			allowed[id] = struct{}{}
		}
	}

	timestamps := make([]time.Time, 0, len(members))
	for _, member := range members {
		nano, courseID, err := parseActivityMember(member)
		if err != nil {
			return nil, err
		}
		if allowed != nil {
			if _, ok := allowed[courseID]; !ok {
				continue
			}
		}
		timestamps = append(timestamps, time.Unix(0, nano))
	}
	return timestamps, nil
}

func (s *activityStore) OldestTimestamp(ctx context.Context, userID string) (time.Time, error) {
	members, err := s.client.ZRange(ctx, activityLogKey(userID), 0, 0).Result()
	if err != nil {
		return time.Time{}, err
	}
	if len(members) == 0 {
		return time.Time{}, storage.ErrNotFound
	}

	nano, _, err := parseActivityMember(members[0])
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nano), nil
}

func parseActivityMember(member string) (int64, string, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return 0, "", fmt.Errorf("malformed activity member: %s", member)
	}
	nano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed activity timestamp: %w", err)
	}
	return nano, parts[1], nil
}
