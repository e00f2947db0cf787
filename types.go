package authcore

import (
	"context"
	"time"
)

// User is the identity record managed by the engine. The engine never deletes
// users; soft-delete is the caller's concern.
//
// Lockout state intentionally does not live here. AccountSecurityStatus is the
// single authoritative lockout record; keeping a second counter pair on the
// user row invites drift between the two.
type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	PasswordSet   bool
	EmailVerified bool
	Phone         string
	PhoneVerified bool

	TwoFactorEnabled bool
	BiometricEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshTokenRecord is one row of the refresh-token revocation ledger.
// A record with RevokedAt set, or ExpiresAt in the past, is never accepted.
type RefreshTokenRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Revoked reports whether the ledger entry rejects the token at the given time.
func (r *RefreshTokenRecord) Revoked(now time.Time) bool {
	return r.RevokedAt != nil || now.After(r.ExpiresAt)
}

// TwoFactorRecord holds a user's TOTP enrollment: the base32 seed and the
// SHA-256 hex hashes of the unredeemed backup codes. Plaintext backup codes
// are returned to the user exactly once and never persisted.
type TwoFactorRecord struct {
	UserID          string
	Secret          string
	BackupCodeHash  []string
	Enabled         bool
	LastUsedCounter int64
	CreatedAt       time.Time
}

// PhoneOTP is one phone verification code. At most one active (unverified)
// record exists per phone at a time.
type PhoneOTP struct {
	ID          string
	Phone       string
	Code        string
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	LockedUntil *time.Time
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// PasswordReset is a single-use reset challenge. Only the SHA-256 hex hash of
// the issued token is stored.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// EmailVerification is a single-use email confirmation challenge, stored hashed
// like PasswordReset.
type EmailVerification struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// SocialAccount links a third-party identity to a user. The (Provider,
// ProviderAccountID) pair maps to exactly one user.
type SocialAccount struct {
	ID                string
	Provider          string
	ProviderAccountID string
	UserID            string
	Email             string
	DisplayName       string
	PictureURL        string
	EmailVerified     bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session is one authenticated device session. Revocation is monotonic: a
// revoked session is never reactivated.
type Session struct {
	ID             string
	UserID         string
	DeviceName     string
	DeviceType     string
	UserAgent      string
	IPAddress      string
	LastActivityAt time.Time
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

// Device is a fingerprinted client seen for a user. The fingerprint is the
// SHA-256 of the (user agent, OS, browser) triple.
type Device struct {
	ID             string
	UserID         string
	Fingerprint    string
	Name           string
	Type           string
	OS             string
	OSVersion      string
	Browser        string
	BrowserVersion string
	UserAgent      string
	LastSeenAt     time.Time
	CreatedAt      time.Time
}

// BiometricType enumerates the supported biometric factor types.
type BiometricType string

const (
	// BiometricFingerprint is a fingerprint template.
	BiometricFingerprint BiometricType = "fingerprint"
	// BiometricFace is a face template.
	BiometricFace BiometricType = "face"
)

func (t BiometricType) valid() bool {
	return t == BiometricFingerprint || t == BiometricFace
}

// Biometric is one enrolled template. Only the SHA-256 hex hash of the
// template is stored, never raw biometric data.
type Biometric struct {
	ID           string
	UserID       string
	Type         BiometricType
	TemplateHash string
	DeviceID     string
	DeviceName   string
	LastUsedAt   *time.Time
	CreatedAt    time.Time
}

// IPBlock is a time-boxed denylist entry for a single IP address.
type IPBlock struct {
	ID           string
	IP           string
	Reason       string
	BlockedUntil time.Time
	CreatedAt    time.Time
}

// SecurityStatus is the authoritative per-account threat state: lockout,
// failed-attempt counters, and distributed-attack correlation fields.
type SecurityStatus struct {
	UserID                 string
	Email                  string
	Locked                 bool
	LockedUntil            *time.Time
	FailedAttempts         int
	LastFailedLogin        *time.Time
	SuspiciousIPCount      int
	LastSuspiciousActivity *time.Time
}

// SuspiciousActivity is one append-only row of the anomalous-traffic trail,
// pruned by the retention job.
type SuspiciousActivity struct {
	ID          string
	IP          string
	UserID      string
	Email       string
	Activity    string
	RequestPath string
	CreatedAt   time.Time
}

// Severity grades a security event.
type Severity string

const (
	// SeverityLow marks routine noise, e.g. a failed login for an unknown email.
	SeverityLow Severity = "low"
	// SeverityMedium marks events tied to a real account.
	SeverityMedium Severity = "medium"
	// SeverityHigh marks confirmed hostile traffic, e.g. a blocked IP retrying.
	SeverityHigh Severity = "high"
	// SeverityCritical marks injection attempts and distributed attacks.
	SeverityCritical Severity = "critical"
)

// SecurityEvent is one append-only audit row, pruned by the retention job.
type SecurityEvent struct {
	ID        string
	UserID    string
	Email     string
	IP        string
	EventType string
	Severity  Severity
	Details   map[string]string
	CreatedAt time.Time
}

// DeviceInfo is the client metadata a transport layer extracts per request.
type DeviceInfo struct {
	DeviceName     string
	DeviceType     string
	UserAgent      string
	IPAddress      string
	OS             string
	OSVersion      string
	Browser        string
	BrowserVersion string
}

// OAuthProfile is a verified profile returned by a provider client after its
// own handshake. The engine never performs the handshake itself.
type OAuthProfile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Locale        string
}

// Location is a best-effort IP geolocation result.
type Location struct {
	Country string
	Region  string
	City    string
}

/*
====================================
STORE ADAPTER
====================================
*/

// UserStore is the credential-record slice of the store adapter. Missing rows
// are reported as ErrRecordNotFound.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
}

// RefreshTokenStore persists the refresh-token revocation ledger.
type RefreshTokenStore interface {
	GetRefreshToken(ctx context.Context, token string) (*RefreshTokenRecord, error)
	// SaveRefreshToken upserts by token string.
	SaveRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int, error)
}

// TwoFactorStore persists TOTP enrollments, one active record per user.
type TwoFactorStore interface {
	GetTwoFactor(ctx context.Context, userID string) (*TwoFactorRecord, error)
	// SaveTwoFactor upserts by user id.
	SaveTwoFactor(ctx context.Context, rec *TwoFactorRecord) error
	DeleteTwoFactor(ctx context.Context, userID string) error
}

// PhoneOTPStore persists phone verification codes.
type PhoneOTPStore interface {
	// ActivePhoneOTP returns the newest unverified record for the phone.
	ActivePhoneOTP(ctx context.Context, phone string) (*PhoneOTP, error)
	// SavePhoneOTP upserts by id.
	SavePhoneOTP(ctx context.Context, otp *PhoneOTP) error
	DeleteExpiredPhoneOTPs(ctx context.Context, before time.Time) (int, error)
}

// ResetStore persists password-reset and email-verification challenges.
type ResetStore interface {
	SavePasswordReset(ctx context.Context, r *PasswordReset) error
	GetPasswordResetByHash(ctx context.Context, tokenHash string) (*PasswordReset, error)
	DeleteExpiredPasswordResets(ctx context.Context, before time.Time) (int, error)

	SaveEmailVerification(ctx context.Context, v *EmailVerification) error
	GetEmailVerificationByHash(ctx context.Context, tokenHash string) (*EmailVerification, error)
	DeleteExpiredEmailVerifications(ctx context.Context, before time.Time) (int, error)
}

// SocialAccountStore persists third-party identity links.
type SocialAccountStore interface {
	GetSocialAccount(ctx context.Context, provider, providerAccountID string) (*SocialAccount, error)
	ListSocialAccounts(ctx context.Context, userID string) ([]*SocialAccount, error)
	// SaveSocialAccount upserts by (provider, provider account id).
	SaveSocialAccount(ctx context.Context, sa *SocialAccount) error
	DeleteSocialAccount(ctx context.Context, userID, provider string) error
}

// SessionStore persists sessions.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// SaveSession upserts by session id.
	SaveSession(ctx context.Context, s *Session) error
	// ListActiveSessions returns unrevoked sessions, newest first.
	ListActiveSessions(ctx context.Context, userID string) ([]*Session, error)
	// RevokeSessions marks all of a user's active sessions revoked at the given
	// time, skipping keepID when non-empty. Returns the number revoked.
	RevokeSessions(ctx context.Context, userID, keepID string, at time.Time) (int, error)
	DeleteSessionsBefore(ctx context.Context, createdBefore time.Time) (int, error)
}

// DeviceStore persists fingerprinted devices.
type DeviceStore interface {
	GetDeviceByFingerprint(ctx context.Context, userID, fingerprint string) (*Device, error)
	// SaveDevice upserts by device id.
	SaveDevice(ctx context.Context, d *Device) error
	// ListDevices returns the user's devices, most recently seen first.
	ListDevices(ctx context.Context, userID string) ([]*Device, error)
	DeleteDevice(ctx context.Context, userID, deviceID string) error
}

// BiometricStore persists enrolled biometric templates.
type BiometricStore interface {
	GetBiometric(ctx context.Context, userID, biometricID string) (*Biometric, error)
	// ListBiometrics returns the user's templates; typ filters when non-empty.
	ListBiometrics(ctx context.Context, userID string, typ BiometricType) ([]*Biometric, error)
	SaveBiometric(ctx context.Context, b *Biometric) error
	DeleteBiometric(ctx context.Context, userID, biometricID string) error
}

// SecurityStore persists IP blocks, account security status, and the
// append-only suspicious-activity and security-event trails.
type SecurityStore interface {
	GetSecurityStatus(ctx context.Context, userID string) (*SecurityStatus, error)
	// SaveSecurityStatus upserts by user id.
	SaveSecurityStatus(ctx context.Context, s *SecurityStatus) error

	AppendSuspiciousActivity(ctx context.Context, a *SuspiciousActivity) error
	// DistinctSuspiciousIPs returns the distinct source IPs recorded for the
	// user since the given time.
	DistinctSuspiciousIPs(ctx context.Context, userID string, since time.Time) ([]string, error)
	PruneSuspiciousActivity(ctx context.Context, before time.Time) (int, error)

	AppendSecurityEvent(ctx context.Context, e *SecurityEvent) error
	PruneSecurityEvents(ctx context.Context, before time.Time) (int, error)

	// ActiveIPBlock returns the block row for ip whose expiry is after now,
	// or ErrRecordNotFound.
	ActiveIPBlock(ctx context.Context, ip string, now time.Time) (*IPBlock, error)
	// GetIPBlock returns the block row for ip regardless of expiry.
	GetIPBlock(ctx context.Context, ip string) (*IPBlock, error)
	// SaveIPBlock upserts by ip.
	SaveIPBlock(ctx context.Context, b *IPBlock) error
	DeleteIPBlocks(ctx context.Context, ip string) error
	DeleteExpiredIPBlocks(ctx context.Context, before time.Time) (int, error)
}

// Store is the full persistence contract the engine consumes. Implementations
// back it with any relational or document store; the engine only relies on the
// narrow per-entity operations above.
type Store interface {
	UserStore
	RefreshTokenStore
	TwoFactorStore
	PhoneOTPStore
	ResetStore
	SocialAccountStore
	SessionStore
	DeviceStore
	BiometricStore
	SecurityStore
}

/*
====================================
OPTIONAL COLLABORATORS
====================================
*/

// Notifier delivers user-facing messages. Calls are fire-and-forget: the
// engine persists security state first, invokes the notifier asynchronously,
// and logs (never propagates) delivery failures.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendSecurityCode(ctx context.Context, phone, code string) error
}

// NoOpNotifier silently drops all notifications. It is the fallback when no
// notifier is configured.
type NoOpNotifier struct{}

// SendVerificationEmail implements Notifier.
func (NoOpNotifier) SendVerificationEmail(context.Context, string, string) error { return nil }

// SendPasswordReset implements Notifier.
func (NoOpNotifier) SendPasswordReset(context.Context, string, string) error { return nil }

// SendSecurityCode implements Notifier.
func (NoOpNotifier) SendSecurityCode(context.Context, string, string) error { return nil }

// GeoLocator resolves an IP to a coarse location. Best effort: any error is
// treated as "location unknown".
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

/*
====================================
RESULT TYPES
====================================
*/

// TokenPair is the credential set returned by login, refresh, and OAuth flows.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// LoginResult is returned by the credential, OTP, and OAuth login surfaces.
type LoginResult struct {
	Tokens  TokenPair
	User    *User
	Session *Session
}

// TwoFactorSetup is returned by GenerateTOTPSecret.
type TwoFactorSetup struct {
	// Secret is the base32-encoded TOTP seed for manual entry.
	Secret string
	// ProvisioningURI is the otpauth:// payload encoded into the QR code.
	ProvisioningURI string
}

// OTPSendResult is returned by SendPhoneOTP.
type OTPSendResult struct {
	ID        string
	ExpiresAt time.Time
}

// BiometricInput carries an enrollment or verification template.
type BiometricInput struct {
	Type       BiometricType
	Template   string
	DeviceID   string
	DeviceName string
}

// BiometricVerifyResult is returned by VerifyBiometric on success.
type BiometricVerifyResult struct {
	Verified    bool
	BiometricID string
	MatchScore  float64
}

// DeviceTrackResult is returned by TrackDevice.
type DeviceTrackResult struct {
	DeviceID    string
	IsNewDevice bool
}

// SuspicionReport is returned by DetectSuspiciousActivity.
type SuspicionReport struct {
	Suspicious bool
	Reason     string
	// Location is filled from the geolocation collaborator when available.
	Location *Location
}

// AttackReport is returned by TrackSuspiciousIPActivity.
type AttackReport struct {
	IsDistributedAttack bool
	UniqueIPCount       int
}
