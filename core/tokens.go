package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenInfo is a diagnostic view of a user's stored tokens. Secrets are
// masked; callers can log the whole struct.
type TokenInfo struct {
	HasTokens         bool
	Provider          string
	Scopes            []string
	ExpiresAt         time.Time
	Expired           bool
	MaskedAccessToken string
}

// TokenVerdict is the structured result of a non-throwing token health
// check, for diagnostics and UI.
type TokenVerdict struct {
	HasTokens     bool
	Valid         bool
	Expired       bool
	MissingScopes []string
}

// GetValidAccessToken returns a decrypted access token for the user,
// refreshing first when the token is inside the safety window. Absent or
// corrupted token state resolves to a re-auth error carrying the login URL.
func (s *Service) GetValidAccessToken(ctx context.Context, user User, requiredScopes ...string) (string, error) {
	startedAt := s.Now()
	token, err := s.getValidAccessToken(ctx, user, requiredScopes)
	s.observeOperation(ctx, startedAt, "get_valid_access_token", err, map[string]any{
		"provider": s.config.Provider,
		"user_id":  user.ID,
	})
	return token, err
}

func (s *Service) getValidAccessToken(ctx context.Context, user User, requiredScopes []string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: service is nil")
	}
	if s.tokenStore == nil || s.secretProvider == nil {
		return "", s.mapError(fmt.Errorf("core: token store and secret provider are required"))
	}
	if user.ID <= 0 {
		return "", s.mapError(fmt.Errorf("core: user id is required"))
	}

	record, err := s.tokenStore.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrTokensNotFound) {
			return "", NewReauthRequiredError("no stored tokens for this user", s.config.LoginURL())
		}
		return "", s.mapError(err)
	}

	accessToken, err := s.secretProvider.Decrypt(ctx, record.EncryptedAccessToken)
	if err != nil {
		// Undecryptable rows are corrupted state; only a fresh login fixes them.
		return "", NewReauthRequiredError("stored tokens could not be decrypted", s.config.LoginURL())
	}

	if len(requiredScopes) > 0 {
		if missing := MissingScopes(record.ScopeList(), requiredScopes); len(missing) > 0 {
			return "", NewScopeInsufficientError(missing, s.config.LoginURL())
		}
	}

	if record.ExpiresWithin(s.Now(), s.config.refreshWindow()) {
		refreshed, refreshErr := s.refreshUserTokens(ctx, user, record)
		if refreshErr != nil {
			return "", refreshErr
		}
		return refreshed, nil
	}

	return string(accessToken), nil
}

// ValidateToolAccess composes the static tool scope table with
// GetValidAccessToken: it returns a usable access token or fails with the
// broker's auth error taxonomy.
func (s *Service) ValidateToolAccess(ctx context.Context, user User, tool string) (string, error) {
	startedAt := s.Now()
	token, err := s.getValidAccessToken(ctx, user, RequiredScopesForTool(tool))
	s.observeOperation(ctx, startedAt, "validate_tool_access", err, map[string]any{
		"provider": s.config.Provider,
		"user_id":  user.ID,
		"tool":     tool,
	})
	return token, err
}

// refreshUserTokens exchanges the stored refresh token for a new grant.
// A failed exchange deletes the row and demands re-authentication: the
// token endpoint is not safe to retry blindly on ambiguous failures, so a
// stale session is preferred over replayed refresh grants.
func (s *Service) refreshUserTokens(ctx context.Context, user User, record UserToken) (string, error) {
	if s.authServer == nil {
		return "", s.mapError(fmt.Errorf("core: auth server client is not configured"))
	}
	if len(record.EncryptedRefreshToken) == 0 {
		_ = s.tokenStore.Delete(ctx, user.ID)
		return "", NewReauthRequiredError("stored tokens have no refresh token", s.config.LoginURL())
	}

	refreshToken, err := s.secretProvider.Decrypt(ctx, record.EncryptedRefreshToken)
	if err != nil {
		_ = s.tokenStore.Delete(ctx, user.ID)
		return "", NewReauthRequiredError("stored refresh token could not be decrypted", s.config.LoginURL())
	}

	grant, err := s.authServer.RefreshToken(ctx, string(refreshToken))
	if err != nil {
		if deleteErr := s.tokenStore.Delete(ctx, user.ID); deleteErr != nil {
			s.logError(ctx, "delete tokens after failed refresh", map[string]any{
				"user_id": user.ID,
				"error":   deleteErr.Error(),
			})
		}
		return "", NewReauthRequiredError("token refresh failed", s.config.LoginURL())
	}

	nextRefresh := strings.TrimSpace(grant.RefreshToken)
	if nextRefresh == "" {
		nextRefresh = string(refreshToken)
	}
	scopes := strings.TrimSpace(grant.Scope)
	if scopes == "" {
		scopes = record.Scopes
	}

	encryptedAccess, err := s.secretProvider.Encrypt(ctx, []byte(grant.AccessToken))
	if err != nil {
		return "", s.mapError(err)
	}
	encryptedRefresh, err := s.secretProvider.Encrypt(ctx, []byte(nextRefresh))
	if err != nil {
		return "", s.mapError(err)
	}

	if _, err := s.tokenStore.Save(ctx, SaveUserTokensInput{
		UserID:                user.ID,
		Provider:              record.Provider,
		ExternalID:            record.ExternalID,
		Scopes:                scopes,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		ExpiresAt:             s.Now().Add(time.Duration(grant.ExpiresIn) * time.Second),
	}); err != nil {
		return "", s.mapError(err)
	}

	return grant.AccessToken, nil
}

// GetUserTokenInfo returns a masked diagnostic view; it never fails on
// token state, only on missing wiring.
func (s *Service) GetUserTokenInfo(ctx context.Context, user User) (TokenInfo, error) {
	if s == nil {
		return TokenInfo{}, fmt.Errorf("core: service is nil")
	}
	if s.tokenStore == nil {
		return TokenInfo{}, s.mapError(fmt.Errorf("core: token store is not configured"))
	}

	record, err := s.tokenStore.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrTokensNotFound) {
			return TokenInfo{}, nil
		}
		return TokenInfo{}, s.mapError(err)
	}

	info := TokenInfo{
		HasTokens: true,
		Provider:  record.Provider,
		Scopes:    record.ScopeList(),
		ExpiresAt: record.ExpiresAt,
		Expired:   record.ExpiresWithin(s.Now(), 0),
	}
	if s.secretProvider != nil {
		if accessToken, decryptErr := s.secretProvider.Decrypt(ctx, record.EncryptedAccessToken); decryptErr == nil {
			info.MaskedAccessToken = MaskToken(string(accessToken))
		}
	}
	return info, nil
}

// ValidateUserTokens is the non-throwing health check: it reports expiry
// and scope sufficiency (against the tool's scope set when one is named)
// without surfacing errors for ordinary invalid states.
func (s *Service) ValidateUserTokens(ctx context.Context, user User, tool string) TokenVerdict {
	verdict := TokenVerdict{MissingScopes: []string{}}
	if s == nil || s.tokenStore == nil {
		return verdict
	}

	record, err := s.tokenStore.Get(ctx, user.ID)
	if err != nil {
		return verdict
	}
	verdict.HasTokens = true
	verdict.Expired = record.ExpiresWithin(s.Now(), 0)

	if strings.TrimSpace(tool) != "" {
		verdict.MissingScopes = MissingScopes(record.ScopeList(), RequiredScopesForTool(tool))
	}
	verdict.Valid = !verdict.Expired && len(verdict.MissingScopes) == 0
	return verdict
}

// ClearUserTokens is explicit revocation: the stored row is removed and the
// next operation demands a fresh login.
func (s *Service) ClearUserTokens(ctx context.Context, userID int64) error {
	startedAt := s.Now()
	var err error
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.tokenStore == nil {
		err = s.mapError(fmt.Errorf("core: token store is not configured"))
	} else if userID <= 0 {
		err = s.mapError(fmt.Errorf("core: user id is required"))
	} else {
		err = s.mapError(s.tokenStore.Delete(ctx, userID))
	}
	s.observeOperation(ctx, startedAt, "clear_user_tokens", err, map[string]any{
		"provider": s.config.Provider,
		"user_id":  userID,
	})
	return err
}
