package authcore

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful password logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected password logins.
	MetricLoginFailure
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess
	// MetricRegisterDuplicate counts registrations rejected for a taken email.
	MetricRegisterDuplicate
	// MetricTokenRefreshSuccess counts successful refresh rotations.
	MetricTokenRefreshSuccess
	// MetricTokenRefreshFailure counts rejected refresh tokens.
	MetricTokenRefreshFailure
	// MetricTokenRevoked counts refresh tokens added to the ledger as revoked.
	MetricTokenRevoked
	// MetricTwoFactorSuccess counts accepted TOTP and backup codes.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts rejected second-factor codes.
	MetricTwoFactorFailure
	// MetricBackupCodeUsed counts redeemed backup codes.
	MetricBackupCodeUsed
	// MetricPhoneOTPSent counts delivered phone codes.
	MetricPhoneOTPSent
	// MetricPhoneOTPSuccess counts verified phone codes.
	MetricPhoneOTPSuccess
	// MetricPhoneOTPFailure counts rejected phone codes.
	MetricPhoneOTPFailure
	// MetricPhoneOTPRateLimited counts sends refused by the per-phone window.
	MetricPhoneOTPRateLimited
	// MetricBiometricSuccess counts accepted biometric verifications.
	MetricBiometricSuccess
	// MetricBiometricFailure counts rejected biometric verifications.
	MetricBiometricFailure
	// MetricOAuthLogin counts OAuth logins, both fresh links and returning.
	MetricOAuthLogin
	// MetricOAuthUserCreated counts accounts auto-created from a provider profile.
	MetricOAuthUserCreated
	// MetricSessionCreated counts created sessions.
	MetricSessionCreated
	// MetricSessionRevoked counts revoked sessions.
	MetricSessionRevoked
	// MetricNewDeviceSeen counts first-time device fingerprints.
	MetricNewDeviceSeen
	// MetricSuspiciousLogin counts logins flagged by the session heuristics.
	MetricSuspiciousLogin
	// MetricInjectionDetected counts payloads tripping an injection pattern.
	MetricInjectionDetected
	// MetricIPBlocked counts denylist insertions and extensions.
	MetricIPBlocked
	// MetricRequestBlocked counts requests rejected by threat analysis.
	MetricRequestBlocked
	// MetricAccountLocked counts lockouts tripped by failed logins.
	MetricAccountLocked
	// MetricDistributedAttack counts distributed-attack classifications.
	MetricDistributedAttack
	// MetricPasswordResetRequest counts reset challenges issued.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess counts completed resets.
	MetricPasswordResetSuccess
	// MetricEmailVerified counts confirmed email addresses.
	MetricEmailVerified
	// MetricCleanupRun counts retention sweeps executed by this instance.
	MetricCleanupRun
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricRegisterSuccess:      "register_success",
	MetricRegisterDuplicate:    "register_duplicate",
	MetricTokenRefreshSuccess:  "token_refresh_success",
	MetricTokenRefreshFailure:  "token_refresh_failure",
	MetricTokenRevoked:         "token_revoked",
	MetricTwoFactorSuccess:     "two_factor_success",
	MetricTwoFactorFailure:     "two_factor_failure",
	MetricBackupCodeUsed:       "backup_code_used",
	MetricPhoneOTPSent:         "phone_otp_sent",
	MetricPhoneOTPSuccess:      "phone_otp_success",
	MetricPhoneOTPFailure:      "phone_otp_failure",
	MetricPhoneOTPRateLimited:  "phone_otp_rate_limited",
	MetricBiometricSuccess:     "biometric_success",
	MetricBiometricFailure:     "biometric_failure",
	MetricOAuthLogin:           "oauth_login",
	MetricOAuthUserCreated:     "oauth_user_created",
	MetricSessionCreated:       "session_created",
	MetricSessionRevoked:       "session_revoked",
	MetricNewDeviceSeen:        "new_device_seen",
	MetricSuspiciousLogin:      "suspicious_login",
	MetricInjectionDetected:    "injection_detected",
	MetricIPBlocked:            "ip_blocked",
	MetricRequestBlocked:       "request_blocked",
	MetricAccountLocked:        "account_locked",
	MetricDistributedAttack:    "distributed_attack",
	MetricPasswordResetRequest: "password_reset_request",
	MetricPasswordResetSuccess: "password_reset_success",
	MetricEmailVerified:        "email_verified",
	MetricCleanupRun:           "cleanup_run",
}

// MetricName returns the stable snake_case name for id, used by exporters.
func MetricName(id MetricID) string {
	if id >= metricIDCount {
		return ""
	}
	return metricNames[id]
}

// MetricIDs returns every defined metric in order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, metricIDCount)
	for i := range ids {
		ids[i] = MetricID(i)
	}
	return ids
}

const cacheLineSize = 64

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's in-process counter set. All methods are safe for
// concurrent use and are no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a Metrics honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. A disabled Metrics snapshots empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
