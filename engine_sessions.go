package authcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/internal"
)

// CreateSession starts a tracked session for the user. Session ids carry 32
// bytes of entropy and are the only handle callers ever hold.
func (e *Engine) CreateSession(ctx context.Context, userID string, device DeviceInfo) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	id, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := e.now()
	session := &Session{
		ID:             id,
		UserID:         userID,
		DeviceName:     device.DeviceName,
		DeviceType:     device.DeviceType,
		UserAgent:      device.UserAgent,
		IPAddress:      device.IPAddress,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := e.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricSessionCreated)
	return session, nil
}

// GetUserSessions returns the user's active sessions, newest first.
func (e *Engine) GetUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.store.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sessions, nil
}

// TouchSession refreshes the session's activity timestamp. Revoked and
// unknown sessions both answer ErrSessionNotFound.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if session.RevokedAt != nil {
		return ErrSessionNotFound
	}

	session.LastActivityAt = e.now()
	if err := e.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeSession ends a session. Revocation is monotonic: once revoked, a
// session never becomes active again, and re-revoking succeeds.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if session.RevokedAt != nil {
		return nil
	}

	at := e.now()
	session.RevokedAt = &at
	if err := e.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricSessionRevoked)
	return nil
}

// RevokeAllSessions ends every active session for the user and returns how
// many were revoked.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	return e.revokeSessions(ctx, userID, "")
}

// RevokeOtherSessions ends every active session except keepID, the "sign out
// everywhere else" operation.
func (e *Engine) RevokeOtherSessions(ctx context.Context, userID, keepID string) (int, error) {
	return e.revokeSessions(ctx, userID, keepID)
}

func (e *Engine) revokeSessions(ctx context.Context, userID, keepID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.RevokeSessions(ctx, userID, keepID, e.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for i := 0; i < n; i++ {
		e.metrics.Inc(MetricSessionRevoked)
	}
	return n, nil
}

// TrackDevice records the client device, keyed by a fingerprint derived from
// its user agent, OS, and browser. A returning device only gets its last-seen
// timestamp refreshed.
func (e *Engine) TrackDevice(ctx context.Context, userID string, device DeviceInfo) (DeviceTrackResult, error) {
	if e == nil {
		return DeviceTrackResult{}, ErrEngineNotReady
	}
	now := e.now()
	fingerprint := internal.DeviceFingerprint(device.UserAgent, device.OS, device.Browser)

	existing, err := e.store.GetDeviceByFingerprint(ctx, userID, fingerprint)
	switch {
	case err == nil:
		existing.LastSeenAt = now
		if err := e.store.SaveDevice(ctx, existing); err != nil {
			return DeviceTrackResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return DeviceTrackResult{DeviceID: existing.ID}, nil
	case isNotFound(err):
		// First time this device shows up for the user.
	default:
		return DeviceTrackResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	d := &Device{
		ID:             e.newID(),
		UserID:         userID,
		Fingerprint:    fingerprint,
		Name:           device.DeviceName,
		Type:           device.DeviceType,
		OS:             device.OS,
		OSVersion:      device.OSVersion,
		Browser:        device.Browser,
		BrowserVersion: device.BrowserVersion,
		UserAgent:      device.UserAgent,
		LastSeenAt:     now,
		CreatedAt:      now,
	}
	if err := e.store.SaveDevice(ctx, d); err != nil {
		return DeviceTrackResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricNewDeviceSeen)
	return DeviceTrackResult{DeviceID: d.ID, IsNewDevice: true}, nil
}

// DetectSuspiciousActivity runs the login anomaly heuristics for a device the
// user just authenticated from: a fingerprint matching none of the user's
// recorded devices, or a source IP that differs from the latest session's
// while that session was active moments ago (travel no human could make).
// A user's very first device establishes the baseline and is never flagged.
// Geolocation, when a locator is configured, annotates the report and never
// fails it.
func (e *Engine) DetectSuspiciousActivity(ctx context.Context, userID string, device DeviceInfo) (SuspicionReport, error) {
	if e == nil {
		return SuspicionReport{}, ErrEngineNotReady
	}

	report := SuspicionReport{}
	if e.geo != nil && device.IPAddress != "" {
		if loc, err := e.geo.Locate(ctx, device.IPAddress); err == nil {
			report.Location = loc
		} else {
			e.logger.Debug("geolocation unavailable",
				zap.String("ip", device.IPAddress),
				zap.Error(err))
		}
	}

	fingerprint := internal.DeviceFingerprint(device.UserAgent, device.OS, device.Browser)
	_, err := e.store.GetDeviceByFingerprint(ctx, userID, fingerprint)
	switch {
	case err == nil:
		// Known device.
	case isNotFound(err):
		known, derr := e.store.ListDevices(ctx, userID)
		if derr != nil {
			return SuspicionReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, derr)
		}
		if len(known) > 0 {
			report.Suspicious = true
			report.Reason = "new_device"
			return report, nil
		}
	default:
		return SuspicionReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessions, err := e.store.ListActiveSessions(ctx, userID)
	if err != nil {
		return SuspicionReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(sessions) > 0 {
		latest := sessions[0]
		// Idle time, not session age: a long-lived session touched seconds
		// ago still anchors the user to its IP.
		idle := e.now().Sub(latest.LastActivityAt)
		if latest.IPAddress != "" && device.IPAddress != "" &&
			latest.IPAddress != device.IPAddress &&
			idle >= 0 && idle < e.config.Session.ImpossibleTravelWindow {
			report.Suspicious = true
			report.Reason = "impossible_travel"
			return report, nil
		}
	}

	return report, nil
}

// GetUserDevices returns the user's recorded devices, most recently seen
// first.
func (e *Engine) GetUserDevices(ctx context.Context, userID string) ([]*Device, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	devices, err := e.store.ListDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return devices, nil
}

// RevokeDevice forgets a recorded device. The next login from it counts as a
// new device again.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteDevice(ctx, userID, deviceID); err != nil {
		if isNotFound(err) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
