package authcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// IsAccountLocked reports whether the account is currently locked. A lock
// whose expiry has passed is cleared in place, so accounts recover without a
// background job. Store failures answer false: an unreachable database must
// not lock every user out.
func (e *Engine) IsAccountLocked(ctx context.Context, userID string) bool {
	if e == nil {
		return false
	}

	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("security status unavailable, treating account as unlocked",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return false
	}

	if !status.Locked {
		return false
	}
	if status.LockedUntil != nil && e.now().After(*status.LockedUntil) {
		// Lazy expiry: clear the lapsed lock and reset the counter.
		status.Locked = false
		status.LockedUntil = nil
		status.FailedAttempts = 0
		if err := e.store.SaveSecurityStatus(ctx, status); err != nil {
			e.logger.Warn("expired lock not cleared",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return false
	}
	return true
}

// RecordFailedLogin bumps the account's failure counter and trips a lock at
// the configured threshold. It returns whether this failure locked the
// account. Counter errors are logged and swallowed; a failed login must not
// surface an infrastructure error to the caller.
func (e *Engine) RecordFailedLogin(ctx context.Context, userID, email string) bool {
	if e == nil {
		return false
	}
	now := e.now()

	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("security status unavailable, failed login not counted",
				zap.String("user_id", userID),
				zap.Error(err))
			return false
		}
		status = &SecurityStatus{UserID: userID, Email: email}
	}

	status.Email = email
	status.FailedAttempts++
	status.LastFailedLogin = &now

	locked := false
	if status.FailedAttempts >= e.config.Lockout.Threshold && !status.Locked {
		until := now.Add(e.config.Lockout.Duration)
		status.Locked = true
		status.LockedUntil = &until
		locked = true
	}

	if err := e.store.SaveSecurityStatus(ctx, status); err != nil {
		e.logger.Warn("failed login not counted",
			zap.String("user_id", userID),
			zap.Error(err))
		return false
	}

	if locked {
		e.metrics.Inc(MetricAccountLocked)
		e.recordSecurityEvent(ctx, &SecurityEvent{
			UserID:    userID,
			Email:     email,
			EventType: "account_locked",
			Severity:  SeverityHigh,
			Details: map[string]string{
				"failed_attempts": strconv.Itoa(status.FailedAttempts),
				"duration":        e.config.Lockout.Duration.String(),
			},
		})
		e.logger.Info("account locked after repeated failures",
			zap.String("user_id", userID),
			zap.Int("failed_attempts", status.FailedAttempts))
	}
	return locked
}

// ResetFailedLogins clears the failure counter after a successful login.
func (e *Engine) ResetFailedLogins(ctx context.Context, userID string) {
	if e == nil {
		return
	}
	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("security status unavailable, counters not reset",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return
	}
	if status.FailedAttempts == 0 && !status.Locked {
		return
	}
	status.FailedAttempts = 0
	status.Locked = false
	status.LockedUntil = nil
	if err := e.store.SaveSecurityStatus(ctx, status); err != nil {
		e.logger.Warn("failure counters not reset",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// LockAccount locks the account for the given duration, regardless of its
// counter state.
func (e *Engine) LockAccount(ctx context.Context, userID, email string, d time.Duration, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.now()

	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		status = &SecurityStatus{UserID: userID, Email: email}
	}

	until := now.Add(d)
	status.Email = email
	status.Locked = true
	status.LockedUntil = &until
	if err := e.store.SaveSecurityStatus(ctx, status); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricAccountLocked)
	e.recordSecurityEvent(ctx, &SecurityEvent{
		UserID:    userID,
		Email:     email,
		EventType: "account_locked",
		Severity:  SeverityHigh,
		Details: map[string]string{
			"reason":   reason,
			"duration": d.String(),
		},
	})
	return nil
}

// UnlockAccount clears a lock and the failure counter.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	status.Locked = false
	status.LockedUntil = nil
	status.FailedAttempts = 0
	if err := e.store.SaveSecurityStatus(ctx, status); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.logger.Info("account unlocked", zap.String("user_id", userID))
	return nil
}

// TrackSuspiciousIPActivity appends one row to the suspicious-activity trail
// and correlates the distinct source IPs seen for the account inside the
// configured window. Reaching the distinct-IP threshold classifies the
// traffic as a distributed attack.
func (e *Engine) TrackSuspiciousIPActivity(ctx context.Context, userID, email, ip, activity, requestPath string) (AttackReport, error) {
	if e == nil {
		return AttackReport{}, ErrEngineNotReady
	}
	now := e.now()

	row := &SuspiciousActivity{
		ID:          e.newID(),
		IP:          ip,
		UserID:      userID,
		Email:       email,
		Activity:    activity,
		RequestPath: requestPath,
		CreatedAt:   now,
	}
	if err := e.store.AppendSuspiciousActivity(ctx, row); err != nil {
		return AttackReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	since := now.Add(-e.config.Lockout.DistributedWindow)
	ips, err := e.store.DistinctSuspiciousIPs(ctx, userID, since)
	if err != nil {
		return AttackReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			return AttackReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		status = &SecurityStatus{UserID: userID, Email: email}
	}
	status.Email = email
	status.SuspiciousIPCount = len(ips)
	status.LastSuspiciousActivity = &now
	if err := e.store.SaveSecurityStatus(ctx, status); err != nil {
		return AttackReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return AttackReport{
		IsDistributedAttack: len(ips) >= e.config.Lockout.DistributedThreshold,
		UniqueIPCount:       len(ips),
	}, nil
}

// UniqueIPsForAccount returns the distinct IPs recorded for the account
// within the distributed-attack window.
func (e *Engine) UniqueIPsForAccount(ctx context.Context, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	since := e.now().Add(-e.config.Lockout.DistributedWindow)
	ips, err := e.store.DistinctSuspiciousIPs(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ips, nil
}

// SecurityStatusFor returns the stored threat state for an account, or a
// zero-value status when none exists yet.
func (e *Engine) SecurityStatusFor(ctx context.Context, userID string) (*SecurityStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	status, err := e.store.GetSecurityStatus(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return &SecurityStatus{UserID: userID}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return status, nil
}
