// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "verification:"

// consumeScript compares and deletes in one step.
// Returns 1 on success, 0 when absent, -1 when expired, -2 on mismatch.
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'code', 'expires_at')
if not v[1] then
  return 0
end
if tonumber(ARGV[2]) > tonumber(v[2]) then
  redis.call('DEL', KEYS[1])
  return -1
end
if v[1] ~= ARGV[1] then
  return -2
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore keeps codes in Redis hashes that expire ExpiredRetention
// after the code does.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis parses url and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func key(email string) string {
	return keyPrefix + NormalizeEmail(email)
}

func (s *RedisStore) PutCode(ctx context.Context, code *models.VerificationCode) error {
	k := key(code.Email)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"code", code.Code,
			"issued_at", code.IssuedAt.UnixMilli(),
			"expires_at", code.ExpiresAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, k, code.ExpiresAt.Add(ExpiredRetention))
		return nil
	})
	return err
}

func (s *RedisStore) GetCode(ctx context.Context, email string) (*models.VerificationCode, error) {
	vals, err := s.client.HGetAll(ctx, key(email)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNoPendingCode
	}

	issued, err := strconv.ParseInt(vals["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding expires_at: %w", err)
	}

	return &models.VerificationCode{
		Email:     NormalizeEmail(email),
		Code:      vals["code"],
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}, nil
}

func (s *RedisStore) ConsumeCode(ctx context.Context, email, code string, now time.Time) error {
	res, err := consumeScript.Run(ctx, s.client, []string{key(email)}, code, now.UnixMilli()).Int()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrNoPendingCode
	case -1:
		return ErrCodeExpired
	case -2:
		return ErrCodeMismatch
	}
	return errors.New("unexpected consume result " + strconv.Itoa(res))
}

func (s *RedisStore) DeleteCode(ctx context.Context, email string) error {
	return s.client.Del(ctx, key(email)).Err()
}
