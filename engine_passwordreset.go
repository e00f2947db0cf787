package authcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/internal"
)

const resetRequestKeyPrefix = "reset_req"

// RequestPasswordReset issues a single-use reset challenge and mails it
// through the notifier. The call is enumeration-safe: an unknown email
// returns success without sending anything, so responses never confirm
// whether an address has an account. Only the token's hash is stored.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	count, err := e.window.Hit(ctx, resetRequestKeyPrefix+":"+email, e.config.Reset.RequestWindow)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count > int64(e.config.Reset.MaxRequests) {
		return ErrResetRateLimited
	}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			// Deliberately indistinguishable from the success path.
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token, err := internal.NewToken()
	if err != nil {
		return err
	}
	now := e.now()
	reset := &PasswordReset{
		ID:        e.newID(),
		UserID:    user.ID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: now.Add(e.config.Reset.TokenTTL),
		CreatedAt: now,
	}
	if err := e.store.SavePasswordReset(ctx, reset); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.notifyAsync("password_reset", func(ctx context.Context) error {
		return e.notifier.SendPasswordReset(ctx, email, token)
	})

	e.metrics.Inc(MetricPasswordResetRequest)
	e.emit(ctx, AuditEvent{
		EventType: "password_reset_requested",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})
	return nil
}

// ResetPassword redeems a reset token and installs a new password. Unknown,
// expired, and spent tokens all map to the same error. A successful reset
// revokes every active session and clears the account's failure counters,
// since the legitimate owner just proved control of the mailbox.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	reset, err := e.store.GetPasswordResetByHash(ctx, internal.HashToken(token))
	if err != nil {
		if isNotFound(err) {
			return ErrResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := e.now()
	if reset.UsedAt != nil || now.After(reset.ExpiresAt) {
		return ErrResetInvalid
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	user, err := e.store.GetUserByID(ctx, reset.UserID)
	if err != nil {
		if isNotFound(err) {
			return ErrResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordSet = true
	user.UpdatedAt = now
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	reset.UsedAt = &now
	if err := e.store.SavePasswordReset(ctx, reset); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.RevokeAllSessions(ctx, user.ID); err != nil {
		e.logger.Warn("sessions not revoked after password reset",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}
	e.ResetFailedLogins(ctx, user.ID)

	e.metrics.Inc(MetricPasswordResetSuccess)
	e.emit(ctx, AuditEvent{
		EventType: "password_reset",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return nil
}

// RequestEmailVerification issues a verification challenge for the user's
// address. Already-verified accounts are a no-op.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) error {
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
	if user.EmailVerified {
		return nil
	}

	token, err := internal.NewToken()
	if err != nil {
		return err
	}
	now := e.now()
	verification := &EmailVerification{
		ID:        e.newID(),
		UserID:    user.ID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: now.Add(e.config.Verification.TokenTTL),
		CreatedAt: now,
	}
	if err := e.store.SaveEmailVerification(ctx, verification); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.notifyAsync("email_verification", func(ctx context.Context) error {
		return e.notifier.SendVerificationEmail(ctx, user.Email, token)
	})
	return nil
}

// ConfirmEmailVerification redeems a verification token and marks the address
// verified. Like resets, the token is single use and its failure modes are
// indistinguishable.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	verification, err := e.store.GetEmailVerificationByHash(ctx, internal.HashToken(token))
	if err != nil {
		if isNotFound(err) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := e.now()
	if verification.VerifiedAt != nil || now.After(verification.ExpiresAt) {
		return ErrVerificationInvalid
	}

	user, err := e.store.GetUserByID(ctx, verification.UserID)
	if err != nil {
		if isNotFound(err) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	verification.VerifiedAt = &now
	if err := e.store.SaveEmailVerification(ctx, verification); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !user.EmailVerified {
		user.EmailVerified = true
		user.UpdatedAt = now
		if err := e.store.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metrics.Inc(MetricEmailVerified)
	e.emit(ctx, AuditEvent{
		EventType: "email_verified",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return nil
}
