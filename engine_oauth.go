package authcore

import (
	"context"
	"fmt"
)

// HandleOAuthLogin signs a user in with a provider profile the caller has
// already verified against the provider. Resolution order: existing link,
// then existing account with the profile's email, then a fresh password-less
// account. The link row is upserted either way, and a provider-verified email
// promotes the account's flag; it is never demoted.
func (e *Engine) HandleOAuthLogin(ctx context.Context, provider string, profile OAuthProfile) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if provider == "" || profile.ID == "" || normalizeEmail(profile.Email) == "" {
		return nil, ErrOAuthProfileInvalid
	}
	email := normalizeEmail(profile.Email)
	now := e.now()

	var user *User
	link, err := e.store.GetSocialAccount(ctx, provider, profile.ID)
	switch {
	case err == nil:
		user, err = e.store.GetUserByID(ctx, link.UserID)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	case isNotFound(err):
		user, err = e.userForOAuthProfile(ctx, email, profile)
		if err != nil {
			return nil, err
		}
		link = &SocialAccount{
			ID:        e.newID(),
			Provider:  provider,
			UserID:    user.ID,
			CreatedAt: now,
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	link.ProviderAccountID = profile.ID
	link.Email = email
	link.DisplayName = profile.Name
	link.PictureURL = profile.Picture
	link.EmailVerified = profile.EmailVerified
	link.UpdatedAt = now
	if err := e.store.SaveSocialAccount(ctx, link); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if profile.EmailVerified && !user.EmailVerified {
		user.EmailVerified = true
		user.UpdatedAt = now
		if err := e.store.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	tokens, err := e.IssueTokens(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricOAuthLogin)
	e.emit(ctx, AuditEvent{
		EventType: "oauth_login",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
		Metadata:  map[string]string{"provider": provider},
	})
	return &LoginResult{Tokens: tokens, User: user}, nil
}

// userForOAuthProfile finds the account behind an unlinked profile, creating
// one when the email is unknown.
func (e *Engine) userForOAuthProfile(ctx context.Context, email string, profile OAuthProfile) (*User, error) {
	user, err := e.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return user, nil
	case isNotFound(err):
		// Fall through to account creation.
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.randomPasswordHash()
	if err != nil {
		return nil, err
	}
	now := e.now()
	user = &User{
		ID:            e.newID(),
		Email:         email,
		Name:          profile.Name,
		PasswordHash:  hash,
		PasswordSet:   false,
		EmailVerified: profile.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricOAuthUserCreated)
	return user, nil
}

// LinkSocialAccount attaches a provider identity to an existing signed-in
// account. A pair already claimed by another user is refused.
func (e *Engine) LinkSocialAccount(ctx context.Context, userID, provider string, profile OAuthProfile) (*SocialAccount, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if provider == "" || profile.ID == "" {
		return nil, ErrOAuthProfileInvalid
	}
	now := e.now()

	link, err := e.store.GetSocialAccount(ctx, provider, profile.ID)
	switch {
	case err == nil:
		if link.UserID != userID {
			return nil, ErrSocialAccountClaimed
		}
	case isNotFound(err):
		link = &SocialAccount{
			ID:        e.newID(),
			Provider:  provider,
			UserID:    userID,
			CreatedAt: now,
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	link.ProviderAccountID = profile.ID
	link.Email = normalizeEmail(profile.Email)
	link.DisplayName = profile.Name
	link.PictureURL = profile.Picture
	link.EmailVerified = profile.EmailVerified
	link.UpdatedAt = now
	if err := e.store.SaveSocialAccount(ctx, link); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return link, nil
}

// UnlinkSocialAccount detaches a provider identity. The account must have a
// password of its own first, otherwise unlinking would strand it with no way
// to sign in.
func (e *Engine) UnlinkSocialAccount(ctx context.Context, userID, provider string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.PasswordSet {
		return ErrPasswordRequired
	}

	if err := e.store.DeleteSocialAccount(ctx, userID, provider); err != nil {
		if isNotFound(err) {
			return ErrSocialAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emit(ctx, AuditEvent{
		EventType: "social_account_unlinked",
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"provider": provider},
	})
	return nil
}

// ListSocialAccounts returns the user's linked provider identities.
func (e *Engine) ListSocialAccounts(ctx context.Context, userID string) ([]*SocialAccount, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	list, err := e.store.ListSocialAccounts(ctx, userID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return list, nil
}
