package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/internal/limiters"
)

// CleanupReport counts the rows each retention sweep removed.
type CleanupReport struct {
	RefreshTokens      int
	PhoneOTPs          int
	PasswordResets     int
	EmailVerifications int
	IPBlocks           int
	SecurityEvents     int
	SuspiciousActivity int
	Sessions           int
}

// RunCleanup sweeps expired challenges and prunes the trails past their
// retention windows. Each sweep runs independently; one failing store call
// does not stop the others, and every failure is reported together.
func (e *Engine) RunCleanup(ctx context.Context) (CleanupReport, error) {
	if e == nil {
		return CleanupReport{}, ErrEngineNotReady
	}
	now := e.now()
	cfg := e.config.Cleanup

	var report CleanupReport
	var errs []error

	sweep := func(name string, dst *int, run func() (int, error)) {
		n, err := run()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}

	sweep("refresh tokens", &report.RefreshTokens, func() (int, error) {
		return e.store.DeleteExpiredRefreshTokens(ctx, now)
	})
	sweep("phone otps", &report.PhoneOTPs, func() (int, error) {
		return e.store.DeleteExpiredPhoneOTPs(ctx, now)
	})
	sweep("password resets", &report.PasswordResets, func() (int, error) {
		return e.store.DeleteExpiredPasswordResets(ctx, now)
	})
	sweep("email verifications", &report.EmailVerifications, func() (int, error) {
		return e.store.DeleteExpiredEmailVerifications(ctx, now)
	})
	sweep("ip blocks", &report.IPBlocks, func() (int, error) {
		return e.store.DeleteExpiredIPBlocks(ctx, now.Add(-cfg.IPBlockRetention))
	})
	sweep("security events", &report.SecurityEvents, func() (int, error) {
		return e.store.PruneSecurityEvents(ctx, now.Add(-cfg.SecurityEventRetention))
	})
	sweep("suspicious activity", &report.SuspiciousActivity, func() (int, error) {
		return e.store.PruneSuspiciousActivity(ctx, now.Add(-cfg.SuspiciousActivityRetention))
	})
	sweep("sessions", &report.Sessions, func() (int, error) {
		return e.store.DeleteSessionsBefore(ctx, now.Add(-cfg.SessionRetention))
	})

	e.metrics.Inc(MetricCleanupRun)
	e.logger.Info("cleanup completed",
		zap.Int("refresh_tokens", report.RefreshTokens),
		zap.Int("phone_otps", report.PhoneOTPs),
		zap.Int("password_resets", report.PasswordResets),
		zap.Int("email_verifications", report.EmailVerifications),
		zap.Int("ip_blocks", report.IPBlocks),
		zap.Int("security_events", report.SecurityEvents),
		zap.Int("suspicious_activity", report.SuspiciousActivity),
		zap.Int("sessions", report.Sessions),
		zap.Int("errors", len(errs)))

	return report, errors.Join(errs...)
}

// StartCleanup launches the periodic retention sweeper. Instances coordinate
// through a Redis lease so only one of them sweeps per interval; losing the
// race, or failing to reach Redis, just skips the round. Stop it with Close.
func (e *Engine) StartCleanup(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.cleanupStop != nil {
		e.mu.Unlock()
		return errors.New("cleanup already running")
	}
	stop := make(chan struct{})
	e.cleanupStop = stop
	e.mu.Unlock()

	lease := limiters.NewLease(
		e.redis,
		e.config.RedisPrefix+":cleanup_lease",
		e.newID(),
		e.config.Cleanup.LeaseTTL,
	)

	e.cleanupWG.Add(1)
	go func() {
		defer e.cleanupWG.Done()
		ticker := time.NewTicker(e.config.Cleanup.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.cleanupRound(ctx, lease)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (e *Engine) cleanupRound(ctx context.Context, lease *limiters.Lease) {
	ok, err := lease.TryAcquire(ctx)
	if err != nil {
		e.logger.Warn("cleanup lease unavailable, skipping round", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			e.logger.Warn("cleanup lease not released", zap.Error(err))
		}
	}()

	if _, err := e.RunCleanup(ctx); err != nil {
		e.logger.Warn("cleanup finished with errors", zap.Error(err))
	}
}
