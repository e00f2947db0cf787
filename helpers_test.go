package authcore

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

/*
====================================
TEST CLOCK
====================================
*/

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

// newTestClock starts at the real wall clock: JWT expiry is validated against
// time.Now inside the token library, so a fixed past instant would make every
// freshly issued token read as expired.
func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

/*
====================================
IN-MEMORY STORE
====================================
*/

// memStore is a map-backed Store honoring the ErrRecordNotFound contract.
type memStore struct {
	mu sync.Mutex

	users         map[string]*User
	refreshTokens map[string]*RefreshTokenRecord
	twoFactors    map[string]*TwoFactorRecord
	phoneOTPs     map[string]*PhoneOTP
	resets        map[string]*PasswordReset
	verifications map[string]*EmailVerification
	socials       map[string]*SocialAccount
	sessions      map[string]*Session
	devices       map[string]*Device
	biometrics    map[string]*Biometric
	statuses      map[string]*SecurityStatus
	suspicious    []*SuspiciousActivity
	events        []*SecurityEvent
	ipBlocks      map[string]*IPBlock
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*User),
		refreshTokens: make(map[string]*RefreshTokenRecord),
		twoFactors:    make(map[string]*TwoFactorRecord),
		phoneOTPs:     make(map[string]*PhoneOTP),
		resets:        make(map[string]*PasswordReset),
		verifications: make(map[string]*EmailVerification),
		socials:       make(map[string]*SocialAccount),
		sessions:      make(map[string]*Session),
		devices:       make(map[string]*Device),
		biometrics:    make(map[string]*Biometric),
		statuses:      make(map[string]*SecurityStatus),
		ipBlocks:      make(map[string]*IPBlock),
	}
}

func copyUser(u *User) *User {
	out := *u
	return &out
}

func copyTwoFactor(rec *TwoFactorRecord) *TwoFactorRecord {
	out := *rec
	out.BackupCodeHash = append([]string(nil), rec.BackupCodeHash...)
	return &out
}

func (s *memStore) GetUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyUser(u), nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *memStore) GetUserByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone != "" && u.Phone == phone {
			return copyUser(u), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *memStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *memStore) UpdateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrRecordNotFound
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *memStore) GetRefreshToken(_ context.Context, token string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refreshTokens[token]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *rec
	return &out, nil
}

func (s *memStore) SaveRefreshToken(_ context.Context, rec *RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *rec
	s.refreshTokens[rec.Token] = &out
	return nil
}

func (s *memStore) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, rec := range s.refreshTokens {
		if rec.ExpiresAt.Before(before) {
			delete(s.refreshTokens, token)
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetTwoFactor(_ context.Context, userID string) (*TwoFactorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.twoFactors[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyTwoFactor(rec), nil
}

func (s *memStore) SaveTwoFactor(_ context.Context, rec *TwoFactorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.twoFactors[rec.UserID] = copyTwoFactor(rec)
	return nil
}

func (s *memStore) DeleteTwoFactor(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.twoFactors[userID]; !ok {
		return ErrRecordNotFound
	}
	delete(s.twoFactors, userID)
	return nil
}

func (s *memStore) ActivePhoneOTP(_ context.Context, phone string) (*PhoneOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *PhoneOTP
	for _, otp := range s.phoneOTPs {
		if otp.Phone != phone || otp.VerifiedAt != nil {
			continue
		}
		if newest == nil || otp.CreatedAt.After(newest.CreatedAt) {
			newest = otp
		}
	}
	if newest == nil {
		return nil, ErrRecordNotFound
	}
	out := *newest
	return &out, nil
}

func (s *memStore) SavePhoneOTP(_ context.Context, otp *PhoneOTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *otp
	s.phoneOTPs[otp.ID] = &out
	return nil
}

func (s *memStore) DeleteExpiredPhoneOTPs(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, otp := range s.phoneOTPs {
		if otp.ExpiresAt.Before(before) {
			delete(s.phoneOTPs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) SavePasswordReset(_ context.Context, r *PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *r
	s.resets[r.ID] = &out
	return nil
}

func (s *memStore) GetPasswordResetByHash(_ context.Context, tokenHash string) (*PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resets {
		if r.TokenHash == tokenHash {
			out := *r
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *memStore) DeleteExpiredPasswordResets(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.resets {
		if r.ExpiresAt.Before(before) {
			delete(s.resets, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) SaveEmailVerification(_ context.Context, v *EmailVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *v
	s.verifications[v.ID] = &out
	return nil
}

func (s *memStore) GetEmailVerificationByHash(_ context.Context, tokenHash string) (*EmailVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.verifications {
		if v.TokenHash == tokenHash {
			out := *v
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *memStore) DeleteExpiredEmailVerifications(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, v := range s.verifications {
		if v.ExpiresAt.Before(before) {
			delete(s.verifications, id)
			n++
		}
	}
	return n, nil
}

func socialKey(provider, providerAccountID string) string {
	return provider + "/" + providerAccountID
}

func (s *memStore) GetSocialAccount(_ context.Context, provider, providerAccountID string) (*SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.socials[socialKey(provider, providerAccountID)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *sa
	return &out, nil
}

func (s *memStore) ListSocialAccounts(_ context.Context, userID string) ([]*SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*SocialAccount
	for _, sa := range s.socials {
		if sa.UserID == userID {
			out := *sa
			list = append(list, &out)
		}
	}
	return list, nil
}

func (s *memStore) SaveSocialAccount(_ context.Context, sa *SocialAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *sa
	s.socials[socialKey(sa.Provider, sa.ProviderAccountID)] = &out
	return nil
}

func (s *memStore) DeleteSocialAccount(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sa := range s.socials {
		if sa.UserID == userID && sa.Provider == provider {
			delete(s.socials, key)
			return nil
		}
	}
	return ErrRecordNotFound
}

func (s *memStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *sess
	return &out, nil
}

func (s *memStore) SaveSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *sess
	s.sessions[sess.ID] = &out
	return nil
}

func (s *memStore) ListActiveSessions(_ context.Context, userID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			out := *sess
			list = append(list, &out)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *memStore) RevokeSessions(_ context.Context, userID, keepID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.RevokedAt != nil || sess.ID == keepID {
			continue
		}
		revoked := at
		sess.RevokedAt = &revoked
		n++
	}
	return n, nil
}

func (s *memStore) DeleteSessionsBefore(_ context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(createdBefore) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetDeviceByFingerprint(_ context.Context, userID, fingerprint string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint {
			out := *d
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *memStore) SaveDevice(_ context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *d
	s.devices[d.ID] = &out
	return nil
}

func (s *memStore) ListDevices(_ context.Context, userID string) ([]*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out := *d
			list = append(list, &out)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastSeenAt.After(list[j].LastSeenAt)
	})
	return list, nil
}

func (s *memStore) DeleteDevice(_ context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok || d.UserID != userID {
		return ErrRecordNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

func (s *memStore) GetBiometric(_ context.Context, userID, biometricID string) (*Biometric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.biometrics[biometricID]
	if !ok || b.UserID != userID {
		return nil, ErrRecordNotFound
	}
	out := *b
	return &out, nil
}

func (s *memStore) ListBiometrics(_ context.Context, userID string, typ BiometricType) ([]*Biometric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Biometric
	for _, b := range s.biometrics {
		if b.UserID != userID {
			continue
		}
		if typ != "" && b.Type != typ {
			continue
		}
		out := *b
		list = append(list, &out)
	}
	return list, nil
}

func (s *memStore) SaveBiometric(_ context.Context, b *Biometric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *b
	s.biometrics[b.ID] = &out
	return nil
}

func (s *memStore) DeleteBiometric(_ context.Context, userID, biometricID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.biometrics[biometricID]
	if !ok || b.UserID != userID {
		return ErrRecordNotFound
	}
	delete(s.biometrics, biometricID)
	return nil
}

func (s *memStore) GetSecurityStatus(_ context.Context, userID string) (*SecurityStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *status
	return &out, nil
}

func (s *memStore) SaveSecurityStatus(_ context.Context, status *SecurityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *status
	s.statuses[status.UserID] = &out
	return nil
}

func (s *memStore) AppendSuspiciousActivity(_ context.Context, a *SuspiciousActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *a
	s.suspicious = append(s.suspicious, &out)
	return nil
}

func (s *memStore) DistinctSuspiciousIPs(_ context.Context, userID string, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var ips []string
	for _, a := range s.suspicious {
		if a.UserID != userID || a.CreatedAt.Before(since) || a.IP == "" {
			continue
		}
		if _, ok := seen[a.IP]; ok {
			continue
		}
		seen[a.IP] = struct{}{}
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func (s *memStore) PruneSuspiciousActivity(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*SuspiciousActivity
	n := 0
	for _, a := range s.suspicious {
		if a.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.suspicious = kept
	return n, nil
}

func (s *memStore) AppendSecurityEvent(_ context.Context, e *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *e
	s.events = append(s.events, &out)
	return nil
}

func (s *memStore) PruneSecurityEvents(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*SecurityEvent
	n := 0
	for _, e := range s.events {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return n, nil
}

func (s *memStore) ActiveIPBlock(_ context.Context, ip string, now time.Time) (*IPBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ipBlocks[ip]
	if !ok || !b.BlockedUntil.After(now) {
		return nil, ErrRecordNotFound
	}
	out := *b
	return &out, nil
}

func (s *memStore) GetIPBlock(_ context.Context, ip string) (*IPBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ipBlocks[ip]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *b
	return &out, nil
}

func (s *memStore) SaveIPBlock(_ context.Context, b *IPBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *b
	s.ipBlocks[b.IP] = &out
	return nil
}

func (s *memStore) DeleteIPBlocks(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ipBlocks, ip)
	return nil
}

func (s *memStore) DeleteExpiredIPBlocks(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ip, b := range s.ipBlocks {
		if b.BlockedUntil.Before(before) {
			delete(s.ipBlocks, ip)
			n++
		}
	}
	return n, nil
}

func (s *memStore) securityEvents() []*SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SecurityEvent, 0, len(s.events))
	for _, e := range s.events {
		copied := *e
		out = append(out, &copied)
	}
	return out
}

func (s *memStore) securityEventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

func (s *memStore) hasSecurityEvent(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

/*
====================================
ENGINE FIXTURE
====================================
*/

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	// Cheap hashing keeps the suite fast; parameters stay above the validator
	// floor.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	return cfg
}

// fxRedis returns a client over a fresh miniredis, for tests building their
// own engine.
func fxRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// redisClientFor opens a second client against a fixture's miniredis.
func redisClientFor(t *testing.T, mr *miniredis.Miniredis) redis.UniversalClient {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type engineFixture struct {
	engine *Engine
	store  *memStore
	redis  *miniredis.Miniredis
	clock  *testClock
}

func newTestEngine(t *testing.T) *engineFixture {
	t.Helper()
	return newTestEngineWith(t, testConfig(), newMemStore())
}

func newTestEngineWith(t *testing.T, cfg Config, store Store) *engineFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	clock := newTestClock()
	engine.now = clock.Now

	fx := &engineFixture{engine: engine, redis: mr, clock: clock}
	if ms, ok := store.(*memStore); ok {
		fx.store = ms
	}
	return fx
}

const (
	testPassword = "Str0ng&Secret19"
	testEmail    = "alice@example.com"
)

func (fx *engineFixture) registerUser(t *testing.T) *User {
	t.Helper()
	user, err := fx.engine.Register(context.Background(), testEmail, testPassword, "Alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user
}

func testDevice(ip string) *DeviceInfo {
	return &DeviceInfo{
		DeviceName: "Alice's Laptop",
		DeviceType: "desktop",
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) Firefox/133.0",
		IPAddress:  ip,
		OS:         "Linux",
		OSVersion:  "6.12",
		Browser:    "Firefox",
	}
}
