// Package redisstore backs the token blacklist and job state with Redis
// keys that expire on their own.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/example/record-service/internal/domain"
)

const blacklistPrefix = "blacklisted:"

type Store struct {
	client     redis.UniversalClient
	maxElapsed time.Duration
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client, maxElapsed: 2 * time.Second}
}

func (s *Store) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.retry(ctx, func() error {
		return s.client.Set(ctx, blacklistPrefix+jti, "true", ttl).Err()
	})
}

func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := s.retry(ctx, func() error {
		var err error
		n, err = s.client.Exists(ctx, blacklistPrefix+jti).Result()
		return err
	})
	return n > 0, err
}

// SetState stores the job status under the bare job id.
func (s *Store) SetState(ctx context.Context, jobID string, status domain.JobStatus, ttl time.Duration) error {
	return s.retry(ctx, func() error {
		return s.client.Set(ctx, jobID, string(status), ttl).Err()
	})
}

func (s *Store) GetState(ctx context.Context, jobID string) (domain.JobStatus, bool, error) {
	var val string
	err := s.retry(ctx, func() error {
		var err error
		val, err = s.client.Get(ctx, jobID).Result()
		if errors.Is(err, redis.Nil) {
			return backoff.Permanent(err)
		}
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.JobStatus(val), true, nil
}

func (s *Store) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
