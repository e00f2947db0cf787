package authcore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPasswordPolicy returns ErrPasswordPolicy carrying every violated rule.
func (e *Engine) checkPasswordPolicy(candidate string) error {
	if violations := e.policy.Check(candidate); len(violations) > 0 {
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(violations, "; "))
	}
	return nil
}

// Register creates an account with a verified-strength password. The email is
// lowercased and trimmed before the uniqueness check so case variants of one
// address cannot become distinct accounts.
func (e *Engine) Register(ctx context.Context, email, plainPassword, name string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if err := e.checkPasswordPolicy(plainPassword); err != nil {
		return nil, err
	}

	_, err := e.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		e.metrics.Inc(MetricRegisterDuplicate)
		return nil, ErrEmailExists
	case isNotFound(err):
		// Email is free.
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	now := e.now()
	user := &User{
		ID:           e.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		PasswordSet:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emit(ctx, AuditEvent{
		EventType: "user_registered",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return user, nil
}

// Login verifies credentials and issues a token pair. Unknown email, wrong
// password, and locked account all return ErrInvalidCredentials so responses
// never reveal which guess was close. Failures feed the threat pipeline:
// counters, lockout, and distributed-attack correlation.
//
// A non-nil device additionally creates a session, records the device, and
// runs the login anomaly heuristics.
func (e *Engine) Login(ctx context.Context, email, plainPassword string, device *DeviceInfo) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			e.metrics.Inc(MetricLoginFailure)
			e.recordSecurityEvent(ctx, &SecurityEvent{
				Email:     email,
				IP:        deviceIP(device),
				EventType: "failed_login",
				Severity:  SeverityLow,
				Details:   map[string]string{"reason": "unknown_email"},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.IsAccountLocked(ctx, user.ID) {
		e.metrics.Inc(MetricLoginFailure)
		e.recordSecurityEvent(ctx, &SecurityEvent{
			UserID:    user.ID,
			Email:     user.Email,
			IP:        deviceIP(device),
			EventType: "locked_account_login",
			Severity:  SeverityMedium,
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.Inc(MetricLoginFailure)
		e.HandleFailedLogin(ctx, user.ID, user.Email, deviceIP(device))
		return nil, ErrInvalidCredentials
	}

	e.ResetFailedLogins(ctx, user.ID)
	e.maybeRehash(ctx, user, plainPassword)

	tokens, err := e.IssueTokens(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Tokens: tokens, User: user}
	if device != nil {
		// Heuristics must see the state as it was before this login: tracking
		// the device or creating the session first would mask both signals.
		if report, err := e.DetectSuspiciousActivity(ctx, user.ID, *device); err == nil && report.Suspicious {
			e.metrics.Inc(MetricSuspiciousLogin)
			e.recordSecurityEvent(ctx, &SecurityEvent{
				UserID:    user.ID,
				Email:     user.Email,
				IP:        device.IPAddress,
				EventType: "suspicious_login",
				Severity:  SeverityMedium,
				Details:   map[string]string{"reason": report.Reason},
			})
		}

		session, err := e.CreateSession(ctx, user.ID, *device)
		if err != nil {
			e.logger.Warn("session not created on login",
				zap.String("user_id", user.ID),
				zap.Error(err))
		} else {
			result.Session = session
		}

		if _, err := e.TrackDevice(ctx, user.ID, *device); err != nil {
			e.logger.Warn("device not tracked on login",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		Email:     user.Email,
		IP:        deviceIP(device),
		Success:   true,
	})
	return result, nil
}

// Logout revokes the refresh token and, when a session id is supplied, the
// session. Revocation problems are logged and swallowed: a logout that leaves
// a stale ledger row behind is still a logout.
func (e *Engine) Logout(ctx context.Context, refreshToken, sessionID string) {
	if e == nil {
		return
	}
	if refreshToken != "" {
		if err := e.RevokeRefreshToken(ctx, refreshToken); err != nil {
			e.logger.Warn("refresh token not revoked on logout", zap.Error(err))
		}
	}
	if sessionID != "" {
		if err := e.RevokeSession(ctx, sessionID); err != nil && !isNotFound(err) {
			e.logger.Warn("session not revoked on logout",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	e.emit(ctx, AuditEvent{
		EventType: "logout",
		SessionID: sessionID,
		Success:   true,
	})
}

// ChangePassword replaces the password after verifying the current one. All
// other sessions and the failure counters survive; refresh tokens issued
// before the change remain valid until expiry or explicit revocation.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordSet = true
	user.UpdatedAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emit(ctx, AuditEvent{
		EventType: "password_changed",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return nil
}

// maybeRehash upgrades the stored hash when the configured cost parameters
// outgrew the ones it was created with. Best effort; login already succeeded.
func (e *Engine) maybeRehash(ctx context.Context, user *User, plainPassword string) {
	needs, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		e.logger.Warn("password hash not upgraded",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}
}

func deviceIP(device *DeviceInfo) string {
	if device == nil {
		return ""
	}
	return device.IPAddress
}
