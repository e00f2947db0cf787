package authcore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BlockDuration returns how long a block for the given reason lasts.
func (e *Engine) BlockDuration(reason string) time.Duration {
	if e == nil {
		return 0
	}
	return e.config.IPBlock.durationFor(reason)
}

// IsIPBlocked reports whether the IP has an active denylist entry. Store
// failures answer false and are logged: a broken denylist must not take the
// whole service down.
func (e *Engine) IsIPBlocked(ctx context.Context, ip string) bool {
	if e == nil || ip == "" {
		return false
	}

	_, err := e.store.ActiveIPBlock(ctx, ip, e.now())
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("ip denylist unavailable, allowing request",
				zap.String("ip", ip),
				zap.Error(err))
		}
		return false
	}
	return true
}

// BlockIP inserts or extends a denylist entry for the IP. An existing block
// is only ever lengthened: re-blocking with a shorter duration keeps the
// later expiry, so overlapping detections cannot shrink a standing block.
func (e *Engine) BlockIP(ctx context.Context, ip, reason string) (*IPBlock, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if ip == "" {
		return nil, fmt.Errorf("%w: empty ip", ErrRequestBlocked)
	}
	now := e.now()
	until := now.Add(e.BlockDuration(reason))

	block, err := e.store.GetIPBlock(ctx, ip)
	switch {
	case err == nil:
		block.Reason = reason
		if until.After(block.BlockedUntil) {
			block.BlockedUntil = until
		}
	case isNotFound(err):
		block = &IPBlock{
			ID:           e.newID(),
			IP:           ip,
			Reason:       reason,
			BlockedUntil: until,
			CreatedAt:    now,
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.store.SaveIPBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricIPBlocked)
	e.recordSecurityEvent(ctx, &SecurityEvent{
		IP:        ip,
		EventType: "ip_blocked",
		Severity:  SeverityHigh,
		Details: map[string]string{
			"reason":        reason,
			"blocked_until": block.BlockedUntil.Format(time.RFC3339),
		},
	})
	e.logger.Info("ip blocked",
		zap.String("ip", ip),
		zap.String("reason", reason),
		zap.Time("blocked_until", block.BlockedUntil))
	return block, nil
}

// UnblockIP removes every denylist entry for the IP. Unblocking an IP that
// was never blocked succeeds.
func (e *Engine) UnblockIP(ctx context.Context, ip string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteIPBlocks(ctx, ip); err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.logger.Info("ip unblocked", zap.String("ip", ip))
	return nil
}
