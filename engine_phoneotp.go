package authcore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/ivan-varabyou/workix-sub001/internal"
)

const otpSendKeyPrefix = "otp_send"

// SendPhoneOTP issues a verification code to the phone, subject to the
// per-phone send window. Replacing a still-pending code resets its attempt
// counter; the old code stops working immediately. Delivery through the
// notifier is fire-and-forget.
func (e *Engine) SendPhoneOTP(ctx context.Context, phone string) (*OTPSendResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrPhoneRequired
	}

	count, err := e.window.Hit(ctx, otpSendKeyPrefix+":"+phone, e.config.PhoneOTP.SendWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count > int64(e.config.PhoneOTP.MaxSends) {
		e.metrics.Inc(MetricPhoneOTPRateLimited)
		return nil, ErrOTPRateLimited
	}

	code, err := internal.NewOTPCode(6)
	if err != nil {
		return nil, err
	}

	now := e.now()
	otp, err := e.store.ActivePhoneOTP(ctx, phone)
	switch {
	case err == nil && now.Before(otp.ExpiresAt):
		// Replace the pending code in place.
		otp.Code = code
		otp.ExpiresAt = now.Add(e.config.PhoneOTP.Expiry)
		otp.Attempts = 0
		otp.LockedUntil = nil
	case err == nil || isNotFound(err):
		otp = &PhoneOTP{
			ID:          e.newID(),
			Phone:       phone,
			Code:        code,
			ExpiresAt:   now.Add(e.config.PhoneOTP.Expiry),
			MaxAttempts: e.config.PhoneOTP.MaxAttempts,
			CreatedAt:   now,
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.store.SavePhoneOTP(ctx, otp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.notifyAsync("phone_otp", func(ctx context.Context) error {
		return e.notifier.SendSecurityCode(ctx, phone, code)
	})

	e.metrics.Inc(MetricPhoneOTPSent)
	return &OTPSendResult{ID: otp.ID, ExpiresAt: otp.ExpiresAt}, nil
}

// VerifyPhoneOTP redeems a code and logs the phone's owner in, registering an
// account on first contact. Auto-registration needs an email; without one the
// code is left unredeemed so the caller can retry with an email attached.
// Five wrong codes lock the phone out for the configured window.
func (e *Engine) VerifyPhoneOTP(ctx context.Context, phone, code, email, name string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrPhoneRequired
	}

	otp, err := e.store.ActivePhoneOTP(ctx, phone)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := e.now()

	if otp.LockedUntil != nil {
		if now.Before(*otp.LockedUntil) {
			return nil, ErrOTPLocked
		}
		otp.LockedUntil = nil
		otp.Attempts = 0
	}

	if now.After(otp.ExpiresAt) {
		return nil, ErrOTPExpired
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(strings.TrimSpace(code))) != 1 {
		otp.Attempts++
		if otp.Attempts >= otp.MaxAttempts {
			until := now.Add(e.config.PhoneOTP.Lockout)
			otp.LockedUntil = &until
		}
		if err := e.store.SavePhoneOTP(ctx, otp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metrics.Inc(MetricPhoneOTPFailure)
		if otp.LockedUntil != nil {
			return nil, ErrOTPLocked
		}
		return nil, &AttemptsError{Err: ErrOTPInvalid, Remaining: otp.MaxAttempts - otp.Attempts}
	}

	user, err := e.userForVerifiedPhone(ctx, phone, email, name)
	if err != nil {
		return nil, err
	}

	// Single use: a verified code is never accepted again.
	otp.VerifiedAt = &now
	if err := e.store.SavePhoneOTP(ctx, otp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	tokens, err := e.IssueTokens(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricPhoneOTPSuccess)
	e.emit(ctx, AuditEvent{
		EventType: "phone_otp_login",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return &LoginResult{Tokens: tokens, User: user}, nil
}

// userForVerifiedPhone resolves the account a verified phone belongs to:
// by phone first, then by the supplied email, creating a password-less
// account as the last resort.
func (e *Engine) userForVerifiedPhone(ctx context.Context, phone, email, name string) (*User, error) {
	now := e.now()

	user, err := e.store.GetUserByPhone(ctx, phone)
	switch {
	case err == nil:
		if !user.PhoneVerified {
			user.PhoneVerified = true
			user.UpdatedAt = now
			if err := e.store.UpdateUser(ctx, user); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		return user, nil
	case isNotFound(err):
		// Fall through to the email path.
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	user, err = e.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		user.Phone = phone
		user.PhoneVerified = true
		user.UpdatedAt = now
		if err := e.store.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return user, nil
	case isNotFound(err):
		// Fall through to auto-registration.
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.randomPasswordHash()
	if err != nil {
		return nil, err
	}
	user = &User{
		ID:            e.newID(),
		Email:         email,
		Name:          name,
		PasswordHash:  hash,
		PasswordSet:   false,
		Phone:         phone,
		PhoneVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}

// randomPasswordHash makes an auto-created account unusable for password
// login until the owner sets one through the reset flow.
func (e *Engine) randomPasswordHash() (string, error) {
	random, err := internal.NewToken()
	if err != nil {
		return "", err
	}
	return e.hasher.Hash(random)
}
