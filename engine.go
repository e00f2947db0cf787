package authcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/internal/limiters"
	"github.com/ivan-varabyou/workix-sub001/jwt"
	"github.com/ivan-varabyou/workix-sub001/password"
)

func defaultNow() time.Time { return time.Now().UTC() }

// Engine is the authentication and adaptive-security core. Construct one with
// a Builder; all methods are safe for concurrent use.
type Engine struct {
	config   Config
	store    Store
	redis    redis.UniversalClient
	logger   *zap.Logger
	notifier Notifier
	geo      GeoLocator

	hasher  *password.Hasher
	policy  password.Policy
	tokens  *jwt.Manager
	totp    *totpManager
	window  *limiters.Window
	metrics *Metrics
	audit   *auditDispatcher

	// now is swapped in tests to pin the clock.
	now func() time.Time

	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup
	closeOnce   sync.Once
	mu          sync.Mutex
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Metrics exposes the engine's counter set for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies every counter at a point in time.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded due to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close stops the cleanup loop, drains the audit dispatcher, and releases
// background resources. The Store and Redis client belong to the caller and
// are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.mu.Lock()
		stop := e.cleanupStop
		e.cleanupStop = nil
		e.mu.Unlock()
		if stop != nil {
			close(stop)
			e.cleanupWG.Wait()
		}
		e.audit.Close()
	})
}

func (e *Engine) newID() string {
	return uuid.NewString()
}

// emit queues an audit event, stamping the engine clock.
func (e *Engine) emit(ctx context.Context, ev AuditEvent) {
	if e.audit == nil {
		return
	}
	ev.Timestamp = e.now()
	e.audit.Emit(ctx, ev)
}

// recordSecurityEvent appends to the persistent event trail and mirrors the
// event to the audit dispatcher. Persistence failures are logged, not
// propagated; losing an audit row must never fail the calling operation.
func (e *Engine) recordSecurityEvent(ctx context.Context, ev *SecurityEvent) {
	ev.ID = e.newID()
	ev.CreatedAt = e.now()
	if err := e.store.AppendSecurityEvent(ctx, ev); err != nil {
		e.logger.Warn("security event not persisted",
			zap.String("event_type", ev.EventType),
			zap.Error(err))
	}
	e.emit(ctx, AuditEvent{
		EventType: ev.EventType,
		Severity:  ev.Severity,
		UserID:    ev.UserID,
		Email:     ev.Email,
		IP:        ev.IP,
		Success:   true,
		Metadata:  ev.Details,
	})
}

// notifyAsync fires a notifier call without blocking the caller. Delivery
// failures are logged and dropped.
func (e *Engine) notifyAsync(kind string, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			e.logger.Warn("notification delivery failed",
				zap.String("kind", kind),
				zap.Error(err))
		}
	}()
}
