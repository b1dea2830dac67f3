package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/storage"
)

// Sessions live in one hash per row, indexed by a per (register, user) set
// and a per register set.
type sessionStore struct {
	client *redis.Client
}

func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

func sessionUserSetKey(registerID, userID string) string {
	return fmt.Sprintf("%s:sessions:%s:%s", keyPrefix, registerID, userID)
}

func sessionRegisterSetKey(registerID string) string {
	return fmt.Sprintf("%s:sessions:register:%s", keyPrefix, registerID)
}

func (s *sessionStore) Insert(ctx context.Context, session storage.Session) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(session.ID), sessionFields(session)...)
	pipe.SAdd(ctx, sessionUserSetKey(session.RegisterID, session.UserID), session.ID)
	pipe.SAdd(ctx, sessionRegisterSetKey(session.RegisterID), session.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseSession(data)
}

func (s *sessionStore) ListByUser(ctx context.Context, registerID, userID string) ([]storage.Session, error) {
	sessions, err := s.fetchSet(ctx, sessionUserSetKey(registerID, userID))
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Login.Before(sessions[j].Login)
	})
	return sessions, nil
}

func (s *sessionStore) DeleteOnlineByUser(ctx context.Context, registerID, userID string, onlyAfter time.Time) (int, error) {
	sessions, err := s.fetchSet(ctx, sessionUserSetKey(registerID, userID))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, session := range sessions {
		if !session.Online {
			continue
		}
		if !onlyAfter.IsZero() && session.Login.Before(onlyAfter) {
			continue
		}
		if err := s.remove(ctx, session); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *sessionStore) DeleteOffline(ctx context.Context, registerID, userID, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.RegisterID != registerID || session.UserID != userID || session.Online {
		return storage.ErrNotFound
	}
	return s.remove(ctx, *session)
}

func (s *sessionStore) DeleteByRegister(ctx context.Context, registerID string, onlineOnly bool) (int, error) {
	sessions, err := s.fetchSet(ctx, sessionRegisterSetKey(registerID))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, session := range sessions {
		if onlineOnly && !session.Online {
			continue
		}
		if err := s.remove(ctx, session); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *sessionStore) LastOnlineLogout(ctx context.Context, registerID, userID string) (time.Time, error) {
	sessions, err := s.fetchSet(ctx, sessionUserSetKey(registerID, userID))
	if err != nil {
		return time.Time{}, err
	}

	var last time.Time
	for _, session := range sessions {
		if session.Online && session.Logout.After(last) {
			last = session.Logout
		}
	}
	return last, nil
}

func (s *sessionStore) HasOverlapping(ctx context.Context, registerID, userID string, login, logout time.Time) (bool, error) {
	sessions, err := s.fetchSet(ctx, sessionUserSetKey(registerID, userID))
	if err != nil {
		return false, err
	}

	for _, session := range sessions {
		if between(login, session.Login, session.Logout) || between(logout, session.Login, session.Logout) {
			return true, nil
		}
	}
	return false, nil
}

// between reports lo <= t <= hi, bounds inclusive.
func between(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}

func (s *sessionStore) fetchSet(ctx context.Context, setKey string) ([]storage.Session, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.Session{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	sessions := make([]storage.Session, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		session, err := parseSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

func (s *sessionStore) remove(ctx context.Context, session storage.Session) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(session.ID))
	pipe.SRem(ctx, sessionUserSetKey(session.RegisterID, session.UserID), session.ID)
	pipe.SRem(ctx, sessionRegisterSetKey(session.RegisterID), session.ID)
	_, err := pipe.Exec(ctx)
	return err
}
