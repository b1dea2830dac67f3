package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scalimax/attendtrack/internal/config"
	"github.com/scalimax/attendtrack/internal/storage"
)

// keyPrefix namespaces every key this store writes.
const keyPrefix = "attendtrack"

// Store implements the storage.Store interface using Redis
type Store struct {
	client     *redis.Client
	registers  *registerStore
	courses    *courseStore
	users      *userStore
	activity   *activityStore
	sessions   *sessionStore
	aggregates *aggregateStore
	locks      *lockStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &Store{
		client:     client,
		registers:  &registerStore{client: client},
		courses:    &courseStore{client: client},
		users:      &userStore{client: client},
		activity:   &activityStore{client: client},
		sessions:   &sessionStore{client: client},
		aggregates: &aggregateStore{client: client},
		locks:      &lockStore{client: client},
	}

	return store, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Registers returns the RegisterStore implementation
func (s *Store) Registers() storage.RegisterStore { return s.registers }

// Courses returns the CourseStore implementation
func (s *Store) Courses() storage.CourseStore { return s.courses }

// Users returns the UserStore implementation
func (s *Store) Users() storage.UserStore { return s.users }

// Activity returns the ActivityStore implementation
func (s *Store) Activity() storage.ActivityStore { return s.activity }

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore { return s.sessions }

// Aggregates returns the AggregateStore implementation
func (s *Store) Aggregates() storage.AggregateStore { return s.aggregates }

// Locks returns the LockStore implementation
func (s *Store) Locks() storage.LockStore { return s.locks }
