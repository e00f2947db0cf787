package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const testPhone = "+15550001234"

func activeOTPCode(t *testing.T, fx *engineFixture, phone string) string {
	t.Helper()
	otp, err := fx.store.ActivePhoneOTP(context.Background(), phone)
	if err != nil {
		t.Fatalf("ActivePhoneOTP failed: %v", err)
	}
	return otp.Code
}

// recordingNotifier captures notifier calls for assertion.
type recordingNotifier struct {
	mu    sync.Mutex
	codes []string
}

func (n *recordingNotifier) SendVerificationEmail(context.Context, string, string) error { return nil }
func (n *recordingNotifier) SendPasswordReset(context.Context, string, string) error    { return nil }

func (n *recordingNotifier) SendSecurityCode(_ context.Context, _ string, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
	return nil
}

func (n *recordingNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.codes)
}

func TestSendPhoneOTPIssuesSixDigitCode(t *testing.T) {
	fx := newTestEngine(t)

	result, err := fx.engine.SendPhoneOTP(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	if result.ID == "" {
		t.Fatal("expected otp id")
	}
	wantExpiry := fx.clock.Now().Add(fx.engine.Config().PhoneOTP.Expiry)
	if !result.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, result.ExpiresAt)
	}

	code := activeOTPCode(t, fx, testPhone)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}

func TestSendPhoneOTPRateLimitsFourthSend(t *testing.T) {
	fx := newTestEngine(t)
	maxSends := fx.engine.Config().PhoneOTP.MaxSends

	for i := 0; i < maxSends; i++ {
		if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
			t.Fatalf("send %d failed: %v", i+1, err)
		}
	}
	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	// Another phone is unaffected.
	if _, err := fx.engine.SendPhoneOTP(context.Background(), "+15550009999"); err != nil {
		t.Fatalf("other phone rate limited: %v", err)
	}

	// The window lapses in Redis, not on the engine clock.
	fx.redis.FastForward(fx.engine.Config().PhoneOTP.SendWindow + time.Second)
	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("send after window failed: %v", err)
	}
}

func TestSendPhoneOTPRequiresPhone(t *testing.T) {
	fx := newTestEngine(t)
	if _, err := fx.engine.SendPhoneOTP(context.Background(), "   "); !errors.Is(err, ErrPhoneRequired) {
		t.Fatalf("expected ErrPhoneRequired, got %v", err)
	}
}

func TestResendReplacesPendingCodeAndResetsAttempts(t *testing.T) {
	fx := newTestEngine(t)

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	firstCode := activeOTPCode(t, fx, testPhone)

	// Burn some attempts against the first code.
	for i := 0; i < 3; i++ {
		if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, "000000", testEmail, "Alice"); err == nil {
			t.Fatal("expected wrong code rejected")
		}
	}

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	otp, err := fx.store.ActivePhoneOTP(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("ActivePhoneOTP failed: %v", err)
	}
	if otp.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", otp.Attempts)
	}

	// The replaced code stops working immediately.
	if otp.Code != firstCode {
		if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, firstCode, testEmail, "Alice"); err == nil {
			t.Fatal("expected replaced code rejected")
		}
	}
	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, otp.Code, testEmail, "Alice"); err != nil {
		t.Fatalf("current code rejected: %v", err)
	}
}

func TestVerifyPhoneOTPLocksAfterMaxAttempts(t *testing.T) {
	fx := newTestEngine(t)
	maxAttempts := fx.engine.Config().PhoneOTP.MaxAttempts

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	code := activeOTPCode(t, fx, testPhone)

	for i := 1; i < maxAttempts; i++ {
		_, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, "000000", testEmail, "Alice")
		if !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected ErrOTPInvalid, got %v", i, err)
		}
		remaining, ok := RemainingAttempts(err)
		if !ok || remaining != maxAttempts-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d (%v)", i, maxAttempts-i, remaining, ok)
		}
	}

	// The final failure locks the phone.
	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, "000000", testEmail, "Alice"); !errors.Is(err, ErrOTPLocked) {
		t.Fatalf("expected ErrOTPLocked, got %v", err)
	}
	// Even the correct code is refused while locked.
	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, testEmail, "Alice"); !errors.Is(err, ErrOTPLocked) {
		t.Fatalf("expected ErrOTPLocked with correct code, got %v", err)
	}

	// Lock lapses; the code may be expired by then but the lock itself clears.
	fx.clock.Advance(fx.engine.Config().PhoneOTP.Lockout + time.Second)
	_, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, testEmail, "Alice")
	if errors.Is(err, ErrOTPLocked) {
		t.Fatalf("expected lock cleared after window, got %v", err)
	}
}

func TestVerifyPhoneOTPRejectsExpiredCode(t *testing.T) {
	fx := newTestEngine(t)

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	code := activeOTPCode(t, fx, testPhone)

	fx.clock.Advance(fx.engine.Config().PhoneOTP.Expiry + time.Second)
	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, testEmail, "Alice"); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}

func TestVerifyPhoneOTPIsSingleUse(t *testing.T) {
	fx := newTestEngine(t)

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	code := activeOTPCode(t, fx, testPhone)

	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, testEmail, "Alice"); err != nil {
		t.Fatalf("VerifyPhoneOTP failed: %v", err)
	}
	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, testEmail, "Alice"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on replay, got %v", err)
	}
}

func TestVerifyPhoneOTPAutoRegistersWithEmail(t *testing.T) {
	fx := newTestEngine(t)

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	code := activeOTPCode(t, fx, testPhone)

	// No email: refused, and the code survives for a retry.
	if _, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, "", ""); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}

	result, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, "new@example.com", "Newcomer")
	if err != nil {
		t.Fatalf("VerifyPhoneOTP failed: %v", err)
	}
	user := result.User
	if user.Email != "new@example.com" || user.Phone != testPhone || !user.PhoneVerified {
		t.Fatalf("unexpected auto-registered user: %+v", user)
	}
	if user.PasswordSet {
		t.Fatal("expected auto-registered account without usable password")
	}
	if result.Tokens.AccessToken == "" {
		t.Fatal("expected tokens")
	}
}

func TestVerifyPhoneOTPAttachesPhoneToExistingEmailAccount(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	code := activeOTPCode(t, fx, testPhone)

	result, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, testEmail, "")
	if err != nil {
		t.Fatalf("VerifyPhoneOTP failed: %v", err)
	}
	if result.User.ID != user.ID {
		t.Fatalf("expected existing account, got %s", result.User.ID)
	}
	if result.User.Phone != testPhone || !result.User.PhoneVerified {
		t.Fatalf("expected phone attached and verified, got %+v", result.User)
	}
}

func TestVerifyPhoneOTPFindsAccountByPhone(t *testing.T) {
	fx := newTestEngine(t)
	user := fx.registerUser(t)

	// Attach the phone, unverified, out of band.
	stored, err := fx.store.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	stored.Phone = testPhone
	if err := fx.store.UpdateUser(context.Background(), stored); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	if _, err := fx.engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}
	code := activeOTPCode(t, fx, testPhone)

	// No email needed: the phone already maps to an account.
	result, err := fx.engine.VerifyPhoneOTP(context.Background(), testPhone, code, "", "")
	if err != nil {
		t.Fatalf("VerifyPhoneOTP failed: %v", err)
	}
	if result.User.ID != user.ID || !result.User.PhoneVerified {
		t.Fatalf("expected phone owner verified, got %+v", result.User)
	}
}

func TestSendPhoneOTPDeliversThroughNotifier(t *testing.T) {
	notifier := &recordingNotifier{}
	store := newMemStore()

	mr := fxRedis(t)
	engine, err := New().
		WithConfig(testConfig()).
		WithStore(store).
		WithRedis(mr).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.SendPhoneOTP(context.Background(), testPhone); err != nil {
		t.Fatalf("SendPhoneOTP failed: %v", err)
	}

	// Delivery is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for notifier.sent() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if notifier.sent() != 1 {
		t.Fatalf("expected 1 delivered code, got %d", notifier.sent())
	}
}
