package authcore

import "errors"

// Sentinel errors returned across the public Engine boundary. Callers match
// them with errors.Is; Kind collapses them into coarse categories suitable
// for transport-layer status mapping.
var (
	// ErrEngineNotReady is returned when an Engine method is called before Build.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrInvalidCredentials is the uniform login failure. It deliberately does
	// not distinguish unknown email, wrong password, or locked account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned by non-login surfaces that check lockout.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailExists is returned on registration with an already-used email.
	ErrEmailExists = errors.New("email already exists")
	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordPolicy is returned when a password fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrTokenInvalid covers malformed, badly signed, or expired access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid covers revoked, expired, or badly signed refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrTwoFactorNotEnabled is returned when verifying 2FA for a user without it.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorInvalid covers a TOTP code that is wrong in the accepted
	// window and matches no remaining backup code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")

	// ErrOTPNotFound is returned when no active code exists for a phone number.
	ErrOTPNotFound = errors.New("no active otp")
	// ErrOTPExpired is returned for a correct-phone, out-of-date code record.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPInvalid is returned on a code mismatch below the attempt threshold.
	ErrOTPInvalid = errors.New("invalid otp code")
	// ErrOTPLocked is returned while a phone is locked out after repeated
	// failed verifications.
	ErrOTPLocked = errors.New("otp attempts exceeded")
	// ErrOTPRateLimited is returned when the per-phone send window is exhausted.
	ErrOTPRateLimited = errors.New("otp requests rate limited")
	// ErrEmailRequired is returned when OTP auto-registration lacks an email.
	ErrEmailRequired = errors.New("email required")
	// ErrPhoneRequired is returned when an OTP operation lacks a phone number.
	ErrPhoneRequired = errors.New("phone required")

	// ErrBiometricType is returned for an unsupported biometric type.
	ErrBiometricType = errors.New("invalid biometric type")
	// ErrBiometricDuplicate is returned when the exact template is already enrolled.
	ErrBiometricDuplicate = errors.New("biometric already registered")
	// ErrBiometricNotEnrolled is returned when no template of the requested
	// type exists for the user.
	ErrBiometricNotEnrolled = errors.New("no biometric registered")
	// ErrBiometricMismatch is returned when the best match score is below threshold.
	ErrBiometricMismatch = errors.New("biometric verification failed")
	// ErrBiometricRateLimited is returned after too many failed match attempts.
	ErrBiometricRateLimited = errors.New("biometric attempts exceeded")
	// ErrBiometricNotFound is returned when a biometric id does not resolve.
	ErrBiometricNotFound = errors.New("biometric not found")

	// ErrOAuthProfileInvalid is returned for provider profiles missing the
	// provider-assigned id or email.
	ErrOAuthProfileInvalid = errors.New("invalid oauth profile")
	// ErrSocialAccountClaimed is returned when a (provider, account id) pair
	// is already linked to some user.
	ErrSocialAccountClaimed = errors.New("social account already linked")
	// ErrSocialAccountNotFound is returned when unlinking a provider the user
	// never linked.
	ErrSocialAccountNotFound = errors.New("social account not found")
	// ErrPasswordRequired is returned when unlinking would leave the account
	// with no usable credential.
	ErrPasswordRequired = errors.New("password must be set before unlinking")

	// ErrSessionNotFound is returned when a session id does not resolve or the
	// session is revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDeviceNotFound is returned when a device id does not resolve.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrResetInvalid covers unknown, expired, and already-used reset tokens.
	ErrResetInvalid = errors.New("password reset challenge invalid")
	// ErrResetRateLimited is returned when the per-email reset request window
	// is exhausted.
	ErrResetRateLimited = errors.New("password reset rate limited")
	// ErrVerificationInvalid covers unknown, expired, and already-used email
	// verification tokens.
	ErrVerificationInvalid = errors.New("email verification challenge invalid")

	// ErrRequestBlocked is the verdict error for requests rejected by threat
	// detection (blocked IP, locked account, injection attempt).
	ErrRequestBlocked = errors.New("request blocked")

	// ErrRecordNotFound is the contract error Store implementations return for
	// missing rows. Engine methods translate it; callers normally never see it.
	ErrRecordNotFound = errors.New("record not found")
	// ErrStoreUnavailable wraps infrastructure failures from the Store or Redis.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ErrorKind is the coarse classification of an Engine error.
type ErrorKind int

const (
	// KindInternal covers infrastructure failures and unknown errors.
	KindInternal ErrorKind = iota
	// KindInvalidInput covers malformed or missing caller input.
	KindInvalidInput
	// KindUnauthorized covers credential, token, and factor failures. Messages
	// in this kind are intentionally generic to prevent account enumeration.
	KindUnauthorized
	// KindConflict covers duplicate-resource failures.
	KindConflict
	// KindNotFound covers unresolvable resource ids.
	KindNotFound
	// KindRateLimited covers exhausted attempt or send budgets.
	KindRateLimited
	// KindForbidden covers threat-detection blocks.
	KindForbidden
)

// Kind classifies err into an ErrorKind. Unrecognized errors are KindInternal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrPhoneRequired),
		errors.Is(err, ErrBiometricType),
		errors.Is(err, ErrOAuthProfileInvalid):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrTwoFactorInvalid),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrOTPInvalid),
		errors.Is(err, ErrBiometricMismatch),
		errors.Is(err, ErrBiometricNotEnrolled),
		errors.Is(err, ErrResetInvalid),
		errors.Is(err, ErrVerificationInvalid),
		errors.Is(err, ErrPasswordRequired):
		return KindUnauthorized
	case errors.Is(err, ErrEmailExists),
		errors.Is(err, ErrBiometricDuplicate),
		errors.Is(err, ErrSocialAccountClaimed):
		return KindConflict
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrOTPNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrBiometricNotFound),
		errors.Is(err, ErrSocialAccountNotFound),
		errors.Is(err, ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, ErrOTPLocked),
		errors.Is(err, ErrOTPRateLimited),
		errors.Is(err, ErrBiometricRateLimited),
		errors.Is(err, ErrResetRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrRequestBlocked):
		return KindForbidden
	default:
		return KindInternal
	}
}

// isNotFound matches the Store's missing-row contract error.
func isNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// AttemptsError decorates a verification failure with the number of attempts
// the caller has left before lockout. It unwraps to the underlying sentinel.
type AttemptsError struct {
	Err       error
	Remaining int
}

func (e *AttemptsError) Error() string { return e.Err.Error() }

func (e *AttemptsError) Unwrap() error { return e.Err }

// RemainingAttempts extracts the remaining-attempts count from err, if present.
func RemainingAttempts(err error) (int, bool) {
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.Remaining, true
	}
	return 0, false
}
