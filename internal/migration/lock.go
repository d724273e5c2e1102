package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pharmacare-backend/internal/config"
)

// ErrLockHeld is returned when another process holds the migration lock.
var ErrLockHeld = errors.New("migration lock is held by another run")

// RunLock serializes migration runs across processes with a Redis
// lease. The migration assumes a single operator; the lock turns that
// assumption into an enforced invariant.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRunLock creates a run lock using Redis connection settings from
// the environment (REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB).
// Returns nil when REDIS_HOST is unset; callers treat a nil lock as
// no locking configured.
func NewRunLock(migrationName string) *RunLock {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + config.GetEnv("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       config.GetEnvInt("REDIS_DB", 0),
	})

	return &RunLock{
		client: client,
		key:    "pharmacare:migration-lock:" + migrationName,
		ttl:    2 * time.Hour,
	}
}

// Acquire takes the lock or returns ErrLockHeld.
func (l *RunLock) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	l.token = token
	return nil
}

// Release frees the lock if this process still holds it.
func (l *RunLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	// Only delete our own lease.
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	if err := l.client.Eval(ctx, script, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release migration lock: %w", err)
	}
	l.token = ""
	return nil
}
