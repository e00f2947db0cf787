package jwt

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager(t)
	now := time.Now().UTC()

	token, expiresAt, err := m.CreateAccess("u1", "alice@example.com", now)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if want := now.Add(time.Hour); !expiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, expiresAt)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "u1" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "authcore-test" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	m := testManager(t)
	now := time.Now().UTC()

	refresh, _, err := m.CreateRefresh("u1", "alice@example.com", now)
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}

	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
	if _, err := m.ParseRefresh(refresh); err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}

	access, _, err := m.CreateAccess("u1", "alice@example.com", now)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := testManager(t)

	token, _, err := m.CreateAccess("u1", "alice@example.com", time.Now().UTC().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected expired token rejected")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := testManager(t)

	token, _, err := m.CreateAccess("u1", "alice@example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := m.ParseAccess(tampered); err == nil {
		t.Fatal("expected tampered token rejected")
	}

	if _, err := m.ParseAccess("not.a.jwt"); err == nil {
		t.Fatal("expected garbage rejected")
	}
}

func TestIssuerMismatchRejected(t *testing.T) {
	issuerA := testManager(t)

	issuerB, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "someone-else",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := issuerB.CreateAccess("u1", "alice@example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := issuerA.ParseAccess(token); err == nil {
		t.Fatal("expected issuer mismatch rejected")
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := m.CreateAccess("u1", "alice@example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// Tokens signed with the HMAC manager never verify here.
	other := testManager(t)
	hmacToken, _, err := other.CreateAccess("u1", "alice@example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(hmacToken); err == nil {
		t.Fatal("expected cross-algorithm token rejected")
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero access ttl", Config{RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"zero refresh ttl", Config{AccessTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"missing key", Config{AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodHS256}},
		{"bad method", Config{AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: "rs256", PrivateKey: []byte("k")}},
		{"bad ed25519 keys", Config{AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: []byte("short")}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
