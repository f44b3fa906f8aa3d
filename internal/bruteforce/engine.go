package bruteforce

import (
	"context"
	"log/slog"
	"time"

	"github.com/realmgate/realmgate/internal/users"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
)

// PermanentLockSentinel is the far-future LockedUntil value used for
// permanent locks.
var PermanentLockSentinel = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Engine implements the lockout state machine. Every decision derives
// from durable failure rows so concurrent server instances agree; no
// counter lives in process memory.
type Engine struct {
	failureRepo FailureRepository
	userRepo    users.UserRepository
}

// CheckLocked reports whether the user is currently locked out. The
// check is a no-op for realms without brute-force protection.
func (e *Engine) CheckLocked(realm *model.Realm, user *model.User) error {
	if !realm.BruteForceProtected {
		return nil
	}
	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		return &LockedError{Until: *user.LockedUntil}
	}
	return nil
}

// RecordFailure appends a failure row and escalates to a temporary or
// permanent lock when the rolling-window count reaches the realm
// threshold.
func (e *Engine) RecordFailure(ctx context.Context, realm *model.Realm, userID uint, ip string) error {
	if !realm.BruteForceProtected {
		return nil
	}
	failure := &model.LoginFailure{
		RealmID:   realm.ID,
		UserID:    userID,
		IPAddress: ip,
	}
	if err := e.failureRepo.Create(ctx, failure); err != nil {
		return err
	}

	windowStart := time.Now().Add(-realm.FailureResetTime)
	recent, err := e.failureRepo.CountSince(ctx, realm.ID, userID, windowStart)
	if err != nil {
		return err
	}
	if recent < int64(realm.MaxLoginFailures) {
		return nil
	}

	if realm.PermanentLockoutAfter > 0 {
		total, err := e.failureRepo.CountAll(ctx, realm.ID, userID)
		if err != nil {
			return err
		}
		lockoutCount := total / int64(realm.MaxLoginFailures)
		if lockoutCount >= int64(realm.PermanentLockoutAfter) {
			return e.userRepo.Updates(ctx, userID, map[string]interface{}{
				"locked_until": PermanentLockSentinel,
				"enabled":      false,
			})
		}
	}

	lockedUntil := time.Now().Add(realm.LockoutDuration)
	return e.userRepo.Updates(ctx, userID, map[string]interface{}{
		"locked_until": lockedUntil,
	})
}

// ResetFailures clears failure history and any temporary lock after a
// successful authentication.
func (e *Engine) ResetFailures(ctx context.Context, realm *model.Realm, userID uint) error {
	if err := e.failureRepo.DeleteByUser(ctx, realm.ID, userID); err != nil {
		return err
	}
	return e.userRepo.Updates(ctx, userID, map[string]interface{}{
		"locked_until": nil,
	})
}

// PurgeStale deletes failure rows past the retention window. The
// retention window is far longer than any realm's rolling window; the
// sweep bounds storage growth, it does not participate in lockout
// decisions.
func (e *Engine) PurgeStale(ctx context.Context) error {
	cutoff := time.Now().Add(-params.FailureRetentionPeriod)
	deleted, err := e.failureRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		slog.Debug("Purged stale login failures", "count", deleted)
	}
	return nil
}

func NewEngine(failureRepo FailureRepository, userRepo users.UserRepository) *Engine {
	return &Engine{
		failureRepo: failureRepo,
		userRepo:    userRepo,
	}
}
