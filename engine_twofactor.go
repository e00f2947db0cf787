package authcore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ivan-varabyou/workix-sub001/internal"
)

// GenerateTOTPSecret starts authenticator enrollment: it creates a pending
// (not yet enabled) record with a fresh seed and returns the material the
// caller renders as a QR code. Calling it again replaces the pending seed.
func (e *Engine) GenerateTOTPSecret(ctx context.Context, userID, email string) (*TwoFactorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	rec := &TwoFactorRecord{
		UserID:    userID,
		Secret:    secretBase32,
		CreatedAt: e.now(),
	}
	if err := e.store.SaveTwoFactor(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &TwoFactorSetup{
		Secret:          secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, email),
	}, nil
}

// EnableTwoFactor completes enrollment by proving the authenticator works: a
// current code must verify against the pending seed. On success it activates
// the factor and returns the plaintext backup codes. This is the only time
// they exist in the clear; only their SHA-256 hashes are stored.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.store.GetTwoFactor(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTwoFactorNotEnabled
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	secret, err := e.totp.DecodeSecret(rec.Secret)
	if err != nil {
		return nil, err
	}
	ok, counter, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.Inc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}

	plain, hashes, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}

	rec.Enabled = true
	rec.LastUsedCounter = counter
	rec.BackupCodeHash = hashes
	if err := e.store.SaveTwoFactor(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.setTwoFactorFlag(ctx, userID, true); err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEvent{
		EventType: "two_factor_enabled",
		UserID:    userID,
		Success:   true,
	})
	return plain, nil
}

// VerifyTwoFactorLogin checks a second-factor code: the TOTP window first,
// the remaining backup codes second. A matched backup code is consumed and
// never accepted again. An accepted TOTP counter is recorded so the same code
// cannot be replayed within its validity window.
func (e *Engine) VerifyTwoFactorLogin(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	rec, err := e.store.GetTwoFactor(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrTwoFactorNotEnabled
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Enabled {
		return ErrTwoFactorNotEnabled
	}

	secret, err := e.totp.DecodeSecret(rec.Secret)
	if err != nil {
		return err
	}
	ok, counter, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return err
	}
	if ok && counter > rec.LastUsedCounter {
		rec.LastUsedCounter = counter
		if err := e.store.SaveTwoFactor(ctx, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metrics.Inc(MetricTwoFactorSuccess)
		return nil
	}

	if e.redeemBackupCode(rec, code) {
		if err := e.store.SaveTwoFactor(ctx, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metrics.Inc(MetricTwoFactorSuccess)
		e.metrics.Inc(MetricBackupCodeUsed)
		e.emit(ctx, AuditEvent{
			EventType: "backup_code_used",
			UserID:    userID,
			Success:   true,
		})
		return nil
	}

	e.metrics.Inc(MetricTwoFactorFailure)
	return ErrTwoFactorInvalid
}

// DisableTwoFactor removes the factor and its backup codes.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteTwoFactor(ctx, userID); err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.setTwoFactorFlag(ctx, userID, false); err != nil {
		return err
	}
	e.emit(ctx, AuditEvent{
		EventType: "two_factor_disabled",
		UserID:    userID,
		Success:   true,
	})
	return nil
}

// RegenerateBackupCodes invalidates every unredeemed backup code and returns
// a fresh plaintext set.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.store.GetTwoFactor(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTwoFactorNotEnabled
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	plain, hashes, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}
	rec.BackupCodeHash = hashes
	if err := e.store.SaveTwoFactor(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return plain, nil
}

func (e *Engine) newBackupCodes() (plain, hashes []string, err error) {
	n := e.config.TOTP.BackupCodeCount
	plain = make([]string, 0, n)
	hashes = make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := internal.NewBackupCode()
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashes = append(hashes, internal.HashToken(normalizeBackupCode(code)))
	}
	return plain, hashes, nil
}

// redeemBackupCode removes the matching hash from the record and reports
// whether the code was valid.
func (e *Engine) redeemBackupCode(rec *TwoFactorRecord, code string) bool {
	hash := internal.HashToken(normalizeBackupCode(code))
	for i, h := range rec.BackupCodeHash {
		if h == hash {
			rec.BackupCodeHash = append(rec.BackupCodeHash[:i], rec.BackupCodeHash[i+1:]...)
			return true
		}
	}
	return false
}

// normalizeBackupCode tolerates lowercase entry and stray whitespace.
func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (e *Engine) setTwoFactorFlag(ctx context.Context, userID string, enabled bool) error {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.TwoFactorEnabled == enabled {
		return nil
	}
	user.TwoFactorEnabled = enabled
	user.UpdatedAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
