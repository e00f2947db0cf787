package authcore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ivan-varabyou/workix-sub001/internal"
)

const biometricFailKeyPrefix = "bio_fail"

func biometricFailKey(userID string, typ BiometricType) string {
	return biometricFailKeyPrefix + ":" + userID + ":" + string(typ)
}

// RegisterBiometric enrolls a template. Only the SHA-256 of the template is
// persisted; enrolling the exact same template twice is rejected.
func (e *Engine) RegisterBiometric(ctx context.Context, userID string, input BiometricInput) (*Biometric, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !input.Type.valid() {
		return nil, ErrBiometricType
	}
	if strings.TrimSpace(input.Template) == "" {
		return nil, fmt.Errorf("%w: empty template", ErrBiometricType)
	}

	hash := internal.TemplateHash(input.Template)

	enrolled, err := e.store.ListBiometrics(ctx, userID, input.Type)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, b := range enrolled {
		if b.TemplateHash == hash {
			return nil, ErrBiometricDuplicate
		}
	}

	now := e.now()
	b := &Biometric{
		ID:           e.newID(),
		UserID:       userID,
		Type:         input.Type,
		TemplateHash: hash,
		DeviceID:     input.DeviceID,
		DeviceName:   input.DeviceName,
		CreatedAt:    now,
	}
	if err := e.store.SaveBiometric(ctx, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.setBiometricFlag(ctx, userID, true); err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEvent{
		EventType: "biometric_registered",
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"type": string(input.Type)},
	})
	return b, nil
}

// VerifyBiometric matches a presented template against every enrolled one of
// its type and accepts the best score when it clears the threshold. Failed
// attempts are counted in a rolling window; exhausting the budget locks the
// factor out until the window lapses.
func (e *Engine) VerifyBiometric(ctx context.Context, userID string, input BiometricInput) (*BiometricVerifyResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !input.Type.valid() {
		return nil, ErrBiometricType
	}

	failKey := biometricFailKey(userID, input.Type)
	failures, err := e.window.Count(ctx, failKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if failures >= int64(e.config.Biometric.MaxFailedAttempts) {
		return nil, ErrBiometricRateLimited
	}

	enrolled, err := e.store.ListBiometrics(ctx, userID, input.Type)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(enrolled) == 0 {
		return nil, ErrBiometricNotEnrolled
	}

	presented := internal.TemplateHash(input.Template)

	var best *Biometric
	var bestScore float64
	for _, b := range enrolled {
		score := matchScore(presented, b.TemplateHash)
		if score > bestScore {
			bestScore = score
			best = b
		}
	}

	if bestScore < e.config.Biometric.Threshold {
		count, err := e.window.Hit(ctx, failKey, e.config.Biometric.AttemptWindow)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metrics.Inc(MetricBiometricFailure)
		remaining := e.config.Biometric.MaxFailedAttempts - int(count)
		if remaining <= 0 {
			return nil, ErrBiometricRateLimited
		}
		return nil, &AttemptsError{Err: ErrBiometricMismatch, Remaining: remaining}
	}

	now := e.now()
	best.LastUsedAt = &now
	if err := e.store.SaveBiometric(ctx, best); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.window.Reset(ctx, failKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricBiometricSuccess)
	e.emit(ctx, AuditEvent{
		EventType: "biometric_verified",
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"type": string(input.Type)},
	})
	return &BiometricVerifyResult{
		Verified:    true,
		BiometricID: best.ID,
		MatchScore:  bestScore,
	}, nil
}

// ListBiometrics returns the user's enrolled templates. A zero typ lists all
// types.
func (e *Engine) ListBiometrics(ctx context.Context, userID string, typ BiometricType) ([]*Biometric, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if typ != "" && !typ.valid() {
		return nil, ErrBiometricType
	}
	list, err := e.store.ListBiometrics(ctx, userID, typ)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return list, nil
}

// RemoveBiometric unenrolls one template. Removing the last template clears
// the user's biometric flag.
func (e *Engine) RemoveBiometric(ctx context.Context, userID, biometricID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteBiometric(ctx, userID, biometricID); err != nil {
		if isNotFound(err) {
			return ErrBiometricNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	remaining, err := e.store.ListBiometrics(ctx, userID, "")
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(remaining) == 0 {
		if err := e.setBiometricFlag(ctx, userID, false); err != nil {
			return err
		}
	}
	return nil
}

// matchScore is the per-position agreement ratio between two template
// digests. Both inputs are fixed-length hex strings, so in practice the score
// is 1.0 for the same template and noise for anything else; the threshold
// comparison is what the public contract guarantees.
func matchScore(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(matches) / float64(longest)
}

func (e *Engine) setBiometricFlag(ctx context.Context, userID string, enabled bool) error {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.BiometricEnabled == enabled {
		return nil
	}
	user.BiometricEnabled = enabled
	user.UpdatedAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
