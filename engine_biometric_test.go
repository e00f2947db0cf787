package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testTemplate = "fp-template-alice-primary"

func enrollBiometric(t *testing.T, fx *engineFixture, userID string) *Biometric {
	t.Helper()
	b, err := fx.engine.RegisterBiometric(context.Background(), userID, BiometricInput{
		Type:       BiometricFingerprint,
		Template:   testTemplate,
		DeviceID:   "device-1",
		DeviceName: "Alice's Phone",
	})
	if err != nil {
		t.Fatalf("RegisterBiometric failed: %v", err)
	}
	return b
}

func TestRegisterBiometricStoresHashOnly(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)

	b := enrollBiometric(t, fx, user.ID)
	if b.TemplateHash == testTemplate || len(b.TemplateHash) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", b.TemplateHash)
	}

	updated, err := fx.store.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if !updated.BiometricEnabled {
		t.Fatal("expected biometric flag set")
	}
}

func TestRegisterBiometricRejectsInvalidInput(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)

	_, err := fx.engine.RegisterBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricType("retina"),
		Template: testTemplate,
	})
	if !errors.Is(err, ErrBiometricType) {
		t.Fatalf("expected ErrBiometricType, got %v", err)
	}

	_, err = fx.engine.RegisterBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFace,
		Template: "   ",
	})
	if !errors.Is(err, ErrBiometricType) {
		t.Fatalf("expected ErrBiometricType for empty template, got %v", err)
	}
}

func TestRegisterBiometricRejectsDuplicateTemplate(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	enrollBiometric(t, fx, user.ID)

	_, err := fx.engine.RegisterBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFingerprint,
		Template: testTemplate,
	})
	if !errors.Is(err, ErrBiometricDuplicate) {
		t.Fatalf("expected ErrBiometricDuplicate, got %v", err)
	}

	// The same template under another type is a different factor.
	if _, err := fx.engine.RegisterBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFace,
		Template: testTemplate,
	}); err != nil {
		t.Fatalf("cross-type enrollment failed: %v", err)
	}
}

func TestVerifyBiometricMatchesEnrolledTemplate(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	b := enrollBiometric(t, fx, user.ID)

	result, err := fx.engine.VerifyBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFingerprint,
		Template: testTemplate,
	})
	if err != nil {
		t.Fatalf("VerifyBiometric failed: %v", err)
	}
	if !result.Verified || result.BiometricID != b.ID {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.MatchScore < fx.engine.Config().Biometric.Threshold {
		t.Fatalf("expected score above threshold, got %f", result.MatchScore)
	}

	stored, err := fx.store.GetBiometric(context.Background(), user.ID, b.ID)
	if err != nil {
		t.Fatalf("GetBiometric failed: %v", err)
	}
	if stored.LastUsedAt == nil {
		t.Fatal("expected last-used timestamp")
	}
}

func TestVerifyBiometricRejectsMismatchWithRemainingAttempts(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	enrollBiometric(t, fx, user.ID)

	_, err := fx.engine.VerifyBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFingerprint,
		Template: "someone-else-entirely",
	})
	if !errors.Is(err, ErrBiometricMismatch) {
		t.Fatalf("expected ErrBiometricMismatch, got %v", err)
	}
	remaining, ok := RemainingAttempts(err)
	if !ok || remaining != fx.engine.Config().Biometric.MaxFailedAttempts-1 {
		t.Fatalf("expected %d remaining, got %d (%v)", fx.engine.Config().Biometric.MaxFailedAttempts-1, remaining, ok)
	}
}

func TestVerifyBiometricLocksOutAfterBudget(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	enrollBiometric(t, fx, user.ID)
	budget := fx.engine.Config().Biometric.MaxFailedAttempts

	wrong := BiometricInput{Type: BiometricFingerprint, Template: "not-alice"}
	for i := 1; i < budget; i++ {
		if _, err := fx.engine.VerifyBiometric(context.Background(), user.ID, wrong); !errors.Is(err, ErrBiometricMismatch) {
			t.Fatalf("attempt %d: expected ErrBiometricMismatch, got %v", i, err)
		}
	}
	// Exhausting the budget flips to the rate-limit error.
	if _, err := fx.engine.VerifyBiometric(context.Background(), user.ID, wrong); !errors.Is(err, ErrBiometricRateLimited) {
		t.Fatalf("expected ErrBiometricRateLimited, got %v", err)
	}
	// Locked out even for the genuine template.
	if _, err := fx.engine.VerifyBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFingerprint,
		Template: testTemplate,
	}); !errors.Is(err, ErrBiometricRateLimited) {
		t.Fatalf("expected ErrBiometricRateLimited for genuine template, got %v", err)
	}

	// The window lapses in Redis.
	fx.redis.FastForward(fx.engine.Config().Biometric.AttemptWindow + time.Second)
	if _, err := fx.engine.VerifyBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFingerprint,
		Template: testTemplate,
	}); err != nil {
		t.Fatalf("verification after window failed: %v", err)
	}
}

func TestVerifyBiometricSuccessResetsFailureWindow(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	enrollBiometric(t, fx, user.ID)

	wrong := BiometricInput{Type: BiometricFingerprint, Template: "not-alice"}
	genuine := BiometricInput{Type: BiometricFingerprint, Template: testTemplate}

	for i := 0; i < 3; i++ {
		_, _ = fx.engine.VerifyBiometric(context.Background(), user.ID, wrong)
	}
	if _, err := fx.engine.VerifyBiometric(context.Background(), user.ID, genuine); err != nil {
		t.Fatalf("VerifyBiometric failed: %v", err)
	}

	// The counter starts over: a full budget is available again.
	budget := fx.engine.Config().Biometric.MaxFailedAttempts
	for i := 1; i < budget; i++ {
		if _, err := fx.engine.VerifyBiometric(context.Background(), user.ID, wrong); !errors.Is(err, ErrBiometricMismatch) {
			t.Fatalf("attempt %d after reset: expected ErrBiometricMismatch, got %v", i, err)
		}
	}
}

func TestVerifyBiometricWithoutEnrollment(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)

	_, err := fx.engine.VerifyBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFingerprint,
		Template: testTemplate,
	})
	if !errors.Is(err, ErrBiometricNotEnrolled) {
		t.Fatalf("expected ErrBiometricNotEnrolled, got %v", err)
	}
}

func TestRemoveLastBiometricClearsFlag(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	b := enrollBiometric(t, fx, user.ID)

	second, err := fx.engine.RegisterBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFace,
		Template: "face-template-alice",
	})
	if err != nil {
		t.Fatalf("RegisterBiometric failed: %v", err)
	}

	if err := fx.engine.RemoveBiometric(context.Background(), user.ID, b.ID); err != nil {
		t.Fatalf("RemoveBiometric failed: %v", err)
	}
	updated, _ := fx.store.GetUserByID(context.Background(), user.ID)
	if !updated.BiometricEnabled {
		t.Fatal("expected flag kept while one template remains")
	}

	if err := fx.engine.RemoveBiometric(context.Background(), user.ID, second.ID); err != nil {
		t.Fatalf("RemoveBiometric failed: %v", err)
	}
	updated, _ = fx.store.GetUserByID(context.Background(), user.ID)
	if updated.BiometricEnabled {
		t.Fatal("expected flag cleared with no templates left")
	}

	if err := fx.engine.RemoveBiometric(context.Background(), user.ID, b.ID); !errors.Is(err, ErrBiometricNotFound) {
		t.Fatalf("expected ErrBiometricNotFound, got %v", err)
	}
}

func TestListBiometricsFiltersByType(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)
	enrollBiometric(t, fx, user.ID)
	if _, err := fx.engine.RegisterBiometric(context.Background(), user.ID, BiometricInput{
		Type:     BiometricFace,
		Template: "face-template-alice",
	}); err != nil {
		t.Fatalf("RegisterBiometric failed: %v", err)
	}

	all, err := fx.engine.ListBiometrics(context.Background(), user.ID, "")
	if err != nil {
		t.Fatalf("ListBiometrics failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(all))
	}

	faces, err := fx.engine.ListBiometrics(context.Background(), user.ID, BiometricFace)
	if err != nil {
		t.Fatalf("ListBiometrics failed: %v", err)
	}
	if len(faces) != 1 || faces[0].Type != BiometricFace {
		t.Fatalf("expected 1 face template, got %+v", faces)
	}

	if _, err := fx.engine.ListBiometrics(context.Background(), user.ID, BiometricType("voice")); !errors.Is(err, ErrBiometricType) {
		t.Fatalf("expected ErrBiometricType, got %v", err)
	}
}
