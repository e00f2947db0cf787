package authcore

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Instances are configured before
// Build and treated as immutable afterwards; the builder stores a deep copy.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	TOTP         TOTPConfig
	PhoneOTP     PhoneOTPConfig
	Biometric    BiometricConfig
	Lockout      LockoutConfig
	IPBlock      IPBlockConfig
	Reset        ResetConfig
	Verification VerificationConfig
	Session      SessionConfig
	Cleanup      CleanupConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	RedisPrefix  string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access and refresh token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls argon2id hashing parameters and the strength policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSymbol    bool
	RejectCommon     bool
}

/*
====================================
MFA CONFIG
====================================
*/

// TOTPConfig controls authenticator-app enrollment and verification.
type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Skew            int
	SecretBytes     int
	BackupCodeCount int
}

// PhoneOTPConfig controls SMS verification codes.
type PhoneOTPConfig struct {
	Expiry      time.Duration
	MaxAttempts int
	Lockout     time.Duration
	// MaxSends caps code deliveries per phone within SendWindow.
	MaxSends   int
	SendWindow time.Duration
}

// BiometricConfig controls template matching and its attempt budget.
type BiometricConfig struct {
	// Threshold is the minimum match score accepted, in [0, 1].
	Threshold         float64
	MaxFailedAttempts int
	AttemptWindow     time.Duration
}

/*
====================================
THREAT CONFIG
====================================
*/

// LockoutConfig controls per-account lockout and distributed-attack
// correlation.
type LockoutConfig struct {
	// Threshold is the failed-login count that trips a lock.
	Threshold int
	Duration  time.Duration

	// DistributedThreshold is the distinct-IP count within DistributedWindow
	// that classifies failures against one account as a coordinated attack.
	DistributedThreshold    int
	DistributedWindow       time.Duration
	DistributedLockDuration time.Duration
}

// IPBlockConfig maps block reasons to durations. Reasons missing from ByReason
// fall back to Default.
type IPBlockConfig struct {
	ByReason map[string]time.Duration
	Default  time.Duration
}

// durationFor returns the block duration for a reason.
func (c *IPBlockConfig) durationFor(reason string) time.Duration {
	if d, ok := c.ByReason[reason]; ok {
		return d
	}
	return c.Default
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ResetConfig controls password-reset challenges.
type ResetConfig struct {
	TokenTTL time.Duration
	// MaxRequests caps reset emails per address within RequestWindow.
	MaxRequests   int
	RequestWindow time.Duration
}

// VerificationConfig controls email-verification challenges.
type VerificationConfig struct {
	TokenTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session anomaly heuristics.
type SessionConfig struct {
	// ImpossibleTravelWindow flags a login whose source IP differs from the
	// previous session created less than this long ago.
	ImpossibleTravelWindow time.Duration
}

/*
====================================
CLEANUP CONFIG
====================================
*/

// CleanupConfig controls the retention sweeper.
type CleanupConfig struct {
	Interval time.Duration
	// LeaseTTL bounds the Redis lease that keeps concurrent instances from
	// sweeping simultaneously.
	LeaseTTL time.Duration

	SecurityEventRetention      time.Duration
	SuspiciousActivityRetention time.Duration
	SessionRetention            time.Duration
	IPBlockRetention            time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// Block reasons understood by the IP denylist. BlockIP accepts arbitrary
// reason strings; these are the ones the engine itself emits.
const (
	ReasonSQLInjection      = "sql_injection"
	ReasonXSS               = "xss"
	ReasonCommandInjection  = "command_injection"
	ReasonPathTraversal     = "path_traversal"
	ReasonBruteForce        = "brute_force"
	ReasonDistributedAttack = "distributed_attack"
)

// DefaultConfig returns the production defaults. Callers override fields and
// pass the result to Builder.WithConfig.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,

			MinLength:        12,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireDigit:     true,
			RequireSymbol:    true,
			RejectCommon:     true,
		},
		TOTP: TOTPConfig{
			Issuer:          "authcore",
			Digits:          6,
			Period:          30,
			Skew:            2,
			SecretBytes:     20,
			BackupCodeCount: 10,
		},
		PhoneOTP: PhoneOTPConfig{
			Expiry:      10 * time.Minute,
			MaxAttempts: 5,
			Lockout:     15 * time.Minute,
			MaxSends:    3,
			SendWindow:  10 * time.Minute,
		},
		Biometric: BiometricConfig{
			Threshold:         0.95,
			MaxFailedAttempts: 5,
			AttemptWindow:     time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold:               5,
			Duration:                15 * time.Minute,
			DistributedThreshold:    3,
			DistributedWindow:       time.Hour,
			DistributedLockDuration: 24 * time.Hour,
		},
		IPBlock: IPBlockConfig{
			ByReason: map[string]time.Duration{
				ReasonSQLInjection:      24 * time.Hour,
				ReasonCommandInjection:  24 * time.Hour,
				ReasonDistributedAttack: 24 * time.Hour,
				ReasonPathTraversal:     12 * time.Hour,
				ReasonXSS:               6 * time.Hour,
				ReasonBruteForce:        time.Hour,
			},
			Default: time.Hour,
		},
		Reset: ResetConfig{
			TokenTTL:      time.Hour,
			MaxRequests:   3,
			RequestWindow: time.Hour,
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		Session: SessionConfig{
			ImpossibleTravelWindow: time.Minute,
		},
		Cleanup: CleanupConfig{
			Interval: 2 * time.Hour,
			LeaseTTL: 30 * time.Minute,

			SecurityEventRetention:      14 * 24 * time.Hour,
			SuspiciousActivityRetention: 14 * 24 * time.Hour,
			SessionRetention:            30 * 24 * time.Hour,
			IPBlockRetention:            30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RedisPrefix: "ac",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.IPBlock.ByReason != nil {
		out.IPBlock.ByReason = make(map[string]time.Duration, len(cfg.IPBlock.ByReason))
		for k, v := range cfg.IPBlock.ByReason {
			out.IPBlock.ByReason[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.SecretBytes < 20 {
		return errors.New("TOTP SecretBytes must be >= 20")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}

	// Phone OTP
	if c.PhoneOTP.Expiry <= 0 {
		return errors.New("PhoneOTP Expiry must be > 0")
	}
	if c.PhoneOTP.MaxAttempts <= 0 {
		return errors.New("PhoneOTP MaxAttempts must be > 0")
	}
	if c.PhoneOTP.Lockout <= 0 {
		return errors.New("PhoneOTP Lockout must be > 0")
	}
	if c.PhoneOTP.MaxSends <= 0 {
		return errors.New("PhoneOTP MaxSends must be > 0")
	}
	if c.PhoneOTP.SendWindow <= 0 {
		return errors.New("PhoneOTP SendWindow must be > 0")
	}

	// Biometric
	if c.Biometric.Threshold <= 0 || c.Biometric.Threshold > 1 {
		return errors.New("Biometric Threshold must be in (0, 1]")
	}
	if c.Biometric.MaxFailedAttempts <= 0 {
		return errors.New("Biometric MaxFailedAttempts must be > 0")
	}
	if c.Biometric.AttemptWindow <= 0 {
		return errors.New("Biometric AttemptWindow must be > 0")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.DistributedThreshold < 2 {
		return errors.New("Lockout DistributedThreshold must be >= 2")
	}
	if c.Lockout.DistributedWindow <= 0 {
		return errors.New("Lockout DistributedWindow must be > 0")
	}
	if c.Lockout.DistributedLockDuration <= 0 {
		return errors.New("Lockout DistributedLockDuration must be > 0")
	}

	// IP blocking
	if c.IPBlock.Default <= 0 {
		return errors.New("IPBlock Default must be > 0")
	}
	for reason, d := range c.IPBlock.ByReason {
		if d <= 0 {
			return errors.New("IPBlock duration for " + reason + " must be > 0")
		}
	}

	// Challenges
	if c.Reset.TokenTTL <= 0 {
		return errors.New("Reset TokenTTL must be > 0")
	}
	if c.Reset.MaxRequests <= 0 {
		return errors.New("Reset MaxRequests must be > 0")
	}
	if c.Reset.RequestWindow <= 0 {
		return errors.New("Reset RequestWindow must be > 0")
	}
	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}

	// Session
	if c.Session.ImpossibleTravelWindow <= 0 {
		return errors.New("Session ImpossibleTravelWindow must be > 0")
	}

	// Cleanup
	if c.Cleanup.Interval <= 0 {
		return errors.New("Cleanup Interval must be > 0")
	}
	if c.Cleanup.LeaseTTL <= 0 {
		return errors.New("Cleanup LeaseTTL must be > 0")
	}
	if c.Cleanup.SecurityEventRetention <= 0 ||
		c.Cleanup.SuspiciousActivityRetention <= 0 ||
		c.Cleanup.SessionRetention <= 0 ||
		c.Cleanup.IPBlockRetention <= 0 {
		return errors.New("Cleanup retentions must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.RedisPrefix == "" {
		return errors.New("RedisPrefix must not be empty")
	}

	return nil
}
