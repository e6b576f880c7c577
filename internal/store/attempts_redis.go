package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginAttemptKeyPrefix = "login_attempt:"

// RedisLoginAttemptRepository は LoginAttemptRepository の Redis 実装です。
// 複数インスタンスでロックアウト状態を共有しつつ、RDBにテーブルを
// 持ちたくない構成向けの選択肢です（ATTEMPTS_BACKEND=redis）。
type RedisLoginAttemptRepository struct {
	client *redis.Client
}

// NewRedisLoginAttemptRepository はクライアントに紐づいたリポジトリを返します。
func NewRedisLoginAttemptRepository(client *redis.Client) *RedisLoginAttemptRepository {
	return &RedisLoginAttemptRepository{client: client}
}

func (r *RedisLoginAttemptRepository) key(ip string) string {
	return loginAttemptKeyPrefix + ip
}

func (r *RedisLoginAttemptRepository) Find(ctx context.Context, ip string) (*LoginAttempt, error) {
	fields, err := r.client.HGetAll(ctx, r.key(ip)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeAttempt(ip, fields)
}

func (r *RedisLoginAttemptRepository) Create(ctx context.Context, attempt *LoginAttempt) error {
	return r.write(ctx, attempt)
}

func (r *RedisLoginAttemptRepository) Update(ctx context.Context, attempt *LoginAttempt) error {
	return r.write(ctx, attempt)
}

func (r *RedisLoginAttemptRepository) write(ctx context.Context, attempt *LoginAttempt) error {
	lockedUntil := int64(0)
	if attempt.LockedUntil != nil {
		lockedUntil = attempt.LockedUntil.Unix()
	}
	err := r.client.HSet(ctx, r.key(attempt.IPAddress), map[string]interface{}{
		"failed_attempts": attempt.FailedAttempts,
		"locked_until":    lockedUntil,
		"last_attempt_at": attempt.LastAttemptAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisLoginAttemptRepository) Delete(ctx context.Context, ip string) error {
	if err := r.client.Del(ctx, r.key(ip)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisLoginAttemptRepository) List(ctx context.Context) ([]*LoginAttempt, error) {
	var attempts []*LoginAttempt
	iter := r.client.Scan(ctx, 0, loginAttemptKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		attempt, err := decodeAttempt(key[len(loginAttemptKeyPrefix):], fields)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return attempts, nil
}

func decodeAttempt(ip string, fields map[string]string) (*LoginAttempt, error) {
	count, err := strconv.Atoi(fields["failed_attempts"])
	if err != nil {
		return nil, fmt.Errorf("broken login attempt record for %s: %w", ip, err)
	}
	lastAttempt, err := strconv.ParseInt(fields["last_attempt_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("broken login attempt record for %s: %w", ip, err)
	}

	attempt := &LoginAttempt{
		IPAddress:      ip,
		FailedAttempts: count,
		LastAttemptAt:  time.Unix(lastAttempt, 0),
	}

	if raw, ok := fields["locked_until"]; ok {
		lockedUntil, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("broken login attempt record for %s: %w", ip, err)
		}
		if lockedUntil > 0 {
			t := time.Unix(lockedUntil, 0)
			attempt.LockedUntil = &t
		}
	}
	return attempt, nil
}
