// Package rediscache puts a Redis read-through cache in front of a subject
// directory.  Only display names are cached; credential validity never is.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

const (
	DefaultTTL = 5 * time.Minute
	keyPrefix  = "gymgate:subject_name:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis.  An unreachable server is logged, not fatal:
// the cache degrades to pass-through.
func NewClient(cfg Config, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}
	return client
}

// Directory implements store.SubjectDirectory.
type Directory struct {
	inner  store.SubjectDirectory
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewDirectory(inner store.SubjectDirectory, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{inner: inner, client: client, ttl: ttl, logger: logger}
}

// DisplayName serves from Redis when it can and falls back to the wrapped
// directory on a miss or any Redis error.  Misses in the wrapped directory
// are not cached.
func (d *Directory) DisplayName(ctx context.Context, subjectID string) (string, error) {
	key := keyPrefix + subjectID

	name, err := d.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return name, nil
	case errors.Is(err, redis.Nil):
	default:
		d.logger.Debug("name cache read failed", zap.String("subject_id", subjectID), zap.Error(err))
	}

	name, err = d.inner.DisplayName(ctx, subjectID)
	if err != nil {
		return "", err
	}

	if err := d.client.Set(ctx, key, name, d.ttl).Err(); err != nil {
		d.logger.Debug("name cache write failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
	return name, nil
}

// Forget drops a cached name, e.g. after a member renames.
func (d *Directory) Forget(ctx context.Context, subjectID string) error {
	return d.client.Del(ctx, keyPrefix+subjectID).Err()
}
