package auth

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/letter-box/internal/store"
)

const (
	// MaxLoginAttempts はロックまでの失敗許容回数です。
	MaxLoginAttempts = 5
	// LockDuration はロックの継続時間です。
	LockDuration = 15 * time.Minute
)

// RateLimitResult は CheckAllowed の判定結果です。
type RateLimitResult struct {
	Allowed           bool
	LockedUntil       *time.Time
	RemainingAttempts int
}

// LoginLimiter はIP単位のログイン試行制限を担当します。
// ログインエンドポイントはパスワードのみを受け取り、どのアカウントかは
// 照合で決まるため、制限はアカウント単位ではなくIP単位です。
//
// CheckAllowed と RecordFailure はトランザクションで括っていないので、
// 同一IPからの同時リクエストは閾値チェックをすり抜けて数回多く
// 試行できる場合があります。実害の小さい既知の緩さとしてそのままに
// しています。
type LoginLimiter struct {
	attempts store.LoginAttemptRepository
	now      func() time.Time
}

// NewLoginLimiter はリポジトリに紐づいたリミッターを返します。
func NewLoginLimiter(attempts store.LoginAttemptRepository) *LoginLimiter {
	return &LoginLimiter{attempts: attempts, now: time.Now}
}

// CheckAllowed はそのIPからのログイン試行を許可するか判定します。
// 期限切れのロックはここでは削除せず、許可扱いにするだけです
// （次の成功または失敗の記帳で上書きされます）。
func (l *LoginLimiter) CheckAllowed(ctx context.Context, ip string) (*RateLimitResult, error) {
	attempt, err := l.attempts.Find(ctx, ip)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &RateLimitResult{Allowed: true, RemainingAttempts: MaxLoginAttempts}, nil
		}
		return nil, err
	}

	now := l.now()

	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		lockedUntil := *attempt.LockedUntil
		return &RateLimitResult{Allowed: false, LockedUntil: &lockedUntil}, nil
	}

	if attempt.LockedUntil != nil {
		// ロックは切れている。満額の予算で再開できる。
		return &RateLimitResult{Allowed: true, RemainingAttempts: MaxLoginAttempts}, nil
	}

	remaining := MaxLoginAttempts - attempt.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:           attempt.FailedAttempts < MaxLoginAttempts,
		RemainingAttempts: remaining,
	}, nil
}

// RecordFailure は失敗を記帳します。閾値に達した時点でロック期限を
// 設定します。有効なロックが既にある場合は延長しません（期限切れの
// ロックだけが新しい期限で上書きされます）。
func (l *LoginLimiter) RecordFailure(ctx context.Context, ip string) error {
	now := l.now()

	attempt, err := l.attempts.Find(ctx, ip)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return l.attempts.Create(ctx, &store.LoginAttempt{
				IPAddress:      ip,
				FailedAttempts: 1,
				LastAttemptAt:  now,
			})
		}
		return err
	}

	attempt.FailedAttempts++
	attempt.LastAttemptAt = now

	if attempt.FailedAttempts >= MaxLoginAttempts {
		if attempt.LockedUntil == nil || !now.Before(*attempt.LockedUntil) {
			lockedUntil := now.Add(LockDuration)
			attempt.LockedUntil = &lockedUntil
		}
	}

	return l.attempts.Update(ctx, attempt)
}

// RecordSuccess は成功時にそのIPの失敗履歴を全消去します。
func (l *LoginLimiter) RecordSuccess(ctx context.Context, ip string) error {
	return l.attempts.Delete(ctx, ip)
}
