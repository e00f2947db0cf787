package authcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/jwt"
)

// IssueTokens signs an access/refresh pair for the user and records the
// refresh token in the revocation ledger.
func (e *Engine) IssueTokens(ctx context.Context, userID, email string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	now := e.now()

	access, _, err := e.tokens.CreateAccess(userID, email, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := e.tokens.CreateRefresh(userID, email, now)
	if err != nil {
		return TokenPair{}, err
	}

	rec := &RefreshTokenRecord{
		Token:     refresh,
		UserID:    userID,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := e.store.SaveRefreshToken(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.JWT.AccessTTL.Seconds()),
	}, nil
}

// VerifyAccessToken validates an access token and returns its claims. Any
// parse, signature, expiry, or token-type failure maps to ErrTokenInvalid.
func (e *Engine) VerifyAccessToken(token string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
// The revocation ledger is consulted before signature verification, so a
// confirmed-revoked token is rejected without spending a signature check. A
// ledger read failure degrades to signature-only validation rather than
// locking every caller out.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	if revoked := e.refreshLedgerRejects(ctx, refreshToken); revoked {
		e.metrics.Inc(MetricTokenRefreshFailure)
		return "", ErrRefreshInvalid
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricTokenRefreshFailure)
		return "", ErrRefreshInvalid
	}

	access, _, err := e.tokens.CreateAccess(claims.UID, claims.Email, e.now())
	if err != nil {
		return "", err
	}

	e.metrics.Inc(MetricTokenRefreshSuccess)
	return access, nil
}

// RotateRefreshToken exchanges a valid refresh token for a fresh pair and
// revokes the presented token. After rotation the old token fails every
// subsequent verification.
func (e *Engine) RotateRefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	if revoked := e.refreshLedgerRejects(ctx, refreshToken); revoked {
		e.metrics.Inc(MetricTokenRefreshFailure)
		return TokenPair{}, ErrRefreshInvalid
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricTokenRefreshFailure)
		return TokenPair{}, ErrRefreshInvalid
	}

	pair, err := e.IssueTokens(ctx, claims.UID, claims.Email)
	if err != nil {
		return TokenPair{}, err
	}

	if err := e.RevokeRefreshToken(ctx, refreshToken); err != nil {
		e.logger.Warn("rotated token not revoked", zap.Error(err))
	}

	e.metrics.Inc(MetricTokenRefreshSuccess)
	return pair, nil
}

// RevokeRefreshToken marks a refresh token unusable. Revocation is monotonic
// and idempotent: revoking an already-revoked or unknown token succeeds.
func (e *Engine) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.now()

	rec, err := e.store.GetRefreshToken(ctx, refreshToken)
	switch {
	case err == nil:
		if rec.RevokedAt != nil {
			return nil
		}
		at := now
		rec.RevokedAt = &at
	case isNotFound(err):
		// Tokens issued before the ledger existed, or by another instance
		// whose write was lost. Record the revocation anyway.
		claims, parseErr := e.tokens.ParseRefresh(refreshToken)
		if parseErr != nil {
			// Not a usable token; nothing to revoke.
			return nil
		}
		at := now
		rec = &RefreshTokenRecord{
			Token:     refreshToken,
			UserID:    claims.UID,
			ExpiresAt: claims.ExpiresAt.Time,
			RevokedAt: &at,
			CreatedAt: now,
		}
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.store.SaveRefreshToken(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricTokenRevoked)
	return nil
}

// refreshLedgerRejects reports whether the ledger confirms the token is dead.
// Unknown tokens and ledger failures both answer false; the signature check
// still stands between an attacker and a forged token.
func (e *Engine) refreshLedgerRejects(ctx context.Context, refreshToken string) bool {
	rec, err := e.store.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("refresh ledger unavailable, falling back to signature check",
				zap.Error(err))
		}
		return false
	}
	return rec.Revoked(e.now())
}
