package authcore

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/detect"
)

// ThreatAction is the disposition AnalyzeRequest hands back.
type ThreatAction string

const (
	// ActionAllow lets the request proceed.
	ActionAllow ThreatAction = "allow"
	// ActionBlockIP rejects the request on account of its source IP, whether
	// a standing denylist entry or a fresh injection block.
	ActionBlockIP ThreatAction = "block_ip"
	// ActionLockAccount rejects the request because the acting account is
	// locked.
	ActionLockAccount ThreatAction = "lock_account"
)

// RequestContext is what a transport layer hands to AnalyzeRequest. UserID
// and Email are empty for unauthenticated traffic.
type RequestContext struct {
	IP      string
	UserID  string
	Email   string
	Method  string
	Path    string
	Query   string
	Body    string
	Headers map[string]string
}

// ThreatVerdict is the outcome of request analysis. When Allowed is false,
// Err carries the sentinel the transport should map to a status code.
type ThreatVerdict struct {
	Allowed bool
	Action  ThreatAction
	Reason  string
	Match   *detect.Match
	Err     error
}

var categoryReasons = map[detect.Category]string{
	detect.CategorySQL:           ReasonSQLInjection,
	detect.CategoryXSS:           ReasonXSS,
	detect.CategoryCommand:       ReasonCommandInjection,
	detect.CategoryPathTraversal: ReasonPathTraversal,
}

// AnalyzeRequest runs the checks in escalation order: standing IP block,
// account lock, then injection scanning. The first hit decides the verdict,
// so a denylisted IP never gets its payload pattern-matched.
func (e *Engine) AnalyzeRequest(ctx context.Context, req RequestContext) ThreatVerdict {
	if e == nil {
		return ThreatVerdict{Allowed: false, Err: ErrEngineNotReady}
	}

	if e.IsIPBlocked(ctx, req.IP) {
		e.metrics.Inc(MetricRequestBlocked)
		e.recordSecurityEvent(ctx, &SecurityEvent{
			UserID:    req.UserID,
			Email:     req.Email,
			IP:        req.IP,
			EventType: "blocked_ip_request",
			Severity:  SeverityHigh,
			Details:   map[string]string{"path": req.Path},
		})
		return ThreatVerdict{
			Action: ActionBlockIP,
			Reason: "ip_blocked",
			Err:    ErrRequestBlocked,
		}
	}

	if req.UserID != "" && e.IsAccountLocked(ctx, req.UserID) {
		e.metrics.Inc(MetricRequestBlocked)
		e.recordSecurityEvent(ctx, &SecurityEvent{
			UserID:    req.UserID,
			Email:     req.Email,
			IP:        req.IP,
			EventType: "locked_account_request",
			Severity:  SeverityMedium,
			Details:   map[string]string{"path": req.Path},
		})
		return ThreatVerdict{
			Action: ActionLockAccount,
			Reason: "account_locked",
			Err:    ErrRequestBlocked,
		}
	}

	if match := e.scanRequest(req); match != nil {
		reason := categoryReasons[match.Category]
		e.metrics.Inc(MetricInjectionDetected)
		e.metrics.Inc(MetricRequestBlocked)

		if _, err := e.BlockIP(ctx, req.IP, reason); err != nil {
			e.logger.Warn("injection source not blocked",
				zap.String("ip", req.IP),
				zap.Error(err))
		}
		e.recordSecurityEvent(ctx, &SecurityEvent{
			UserID:    req.UserID,
			Email:     req.Email,
			IP:        req.IP,
			EventType: "injection_attempt",
			Severity:  SeverityCritical,
			Details: map[string]string{
				"category": string(match.Category),
				"pattern":  match.Pattern,
				"path":     req.Path,
				"payload":  detect.SanitizeForLogging(req.Body),
			},
		})
		if req.UserID != "" {
			if _, err := e.TrackSuspiciousIPActivity(ctx, req.UserID, req.Email, req.IP, "injection_attempt", req.Path); err != nil {
				e.logger.Warn("suspicious activity not recorded", zap.Error(err))
			}
		}

		return ThreatVerdict{
			Action: ActionBlockIP,
			Reason: reason,
			Match:  match,
			Err:    ErrRequestBlocked,
		}
	}

	return ThreatVerdict{Allowed: true, Action: ActionAllow}
}

// scanRequest picks the first non-empty request surface in priority order
// (body, query, path, header values) and runs the injection detector over
// that surface only.
func (e *Engine) scanRequest(req RequestContext) *detect.Match {
	if req.Body != "" {
		return detect.Scan(req.Body)
	}
	if req.Query != "" {
		return detect.Scan(req.Query)
	}
	if req.Path != "" {
		return detect.Scan(req.Path)
	}
	for _, v := range req.Headers {
		if m := detect.Scan(v); m != nil {
			return m
		}
	}
	return nil
}

// HandleFailedLogin is the post-failure hook the credential service fires.
// It counts the failure against the account, records the source IP, and when
// the distinct-IP threshold trips, responds to the coordinated attack: a long
// account lock plus a denylist entry for every IP seen in the window.
func (e *Engine) HandleFailedLogin(ctx context.Context, userID, email, ip string) {
	if e == nil || userID == "" {
		return
	}

	e.recordSecurityEvent(ctx, &SecurityEvent{
		UserID:    userID,
		Email:     email,
		IP:        ip,
		EventType: "failed_login",
		Severity:  SeverityMedium,
	})

	e.RecordFailedLogin(ctx, userID, email)

	report, err := e.TrackSuspiciousIPActivity(ctx, userID, email, ip, "failed_login", "")
	if err != nil {
		e.logger.Warn("failed login not correlated",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	if !report.IsDistributedAttack {
		return
	}

	e.metrics.Inc(MetricDistributedAttack)
	e.logger.Info("distributed attack detected",
		zap.String("user_id", userID),
		zap.Int("unique_ips", report.UniqueIPCount))

	if err := e.LockAccount(ctx, userID, email, e.config.Lockout.DistributedLockDuration, ReasonDistributedAttack); err != nil {
		e.logger.Warn("attacked account not locked",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	ips, err := e.UniqueIPsForAccount(ctx, userID)
	if err != nil {
		e.logger.Warn("attack window ips unavailable", zap.Error(err))
		ips = []string{ip}
	}
	for _, attackIP := range ips {
		if _, err := e.BlockIP(ctx, attackIP, ReasonDistributedAttack); err != nil {
			e.logger.Warn("attack ip not blocked",
				zap.String("ip", attackIP),
				zap.Error(err))
		}
	}

	e.recordSecurityEvent(ctx, &SecurityEvent{
		UserID:    userID,
		Email:     email,
		IP:        ip,
		EventType: "distributed_attack",
		Severity:  SeverityCritical,
		Details: map[string]string{
			"unique_ips": strconv.Itoa(report.UniqueIPCount),
		},
	})
}
