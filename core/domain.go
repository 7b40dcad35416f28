package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUserNotFound           = errors.New("core: user not found")
	ErrSessionNotFound        = errors.New("core: session not found")
	ErrTokensNotFound         = errors.New("core: user tokens not found")
	ErrPairingSessionNotFound = errors.New("core: pairing session not found")
	ErrPairingSessionExpired  = errors.New("core: pairing session expired")
	ErrPairingSessionConsumed = errors.New("core: pairing session already completed")
)

const (
	// LocalUserExternalID is the sentinel external id for the bootstrap
	// identity used by trusted local transports that present no session.
	LocalUserExternalID = "local-user"

	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultPairingTTL = 10 * time.Minute

	// TokenRefreshSafetyWindow is the margin before expiry within which an
	// access token is refreshed before being handed to a caller.
	TokenRefreshSafetyWindow = 60 * time.Second
)

// User is one authenticated identity resolved from the external provider.
type User struct {
	ID          int64
	ExternalID  string
	Username    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateUserInput struct {
	ExternalID  string
	Username    string
	DisplayName string
}

func (in CreateUserInput) Validate() error {
	if strings.TrimSpace(in.ExternalID) == "" {
		return fmt.Errorf("core: external id is required")
	}
	return nil
}

// UpdateUserInput carries a partial update; nil fields are left untouched.
type UpdateUserInput struct {
	Username    *string
	DisplayName *string
}

func (in UpdateUserInput) IsEmpty() bool {
	return in.Username == nil && in.DisplayName == nil
}

// Session binds a caller-held secret to a user for a bounded time. The
// plaintext secret is never stored; only its salted hash survives.
type Session struct {
	ID         string
	UserID     int64
	SecretHash string
	SecretSalt string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now.UTC())
}

type CreateSessionInput struct {
	ID         string
	UserID     int64
	SecretHash string
	SecretSalt string
	ExpiresAt  time.Time
}

func (in CreateSessionInput) Validate() error {
	if strings.TrimSpace(in.ID) == "" {
		return fmt.Errorf("core: session id is required")
	}
	if in.UserID <= 0 {
		return fmt.Errorf("core: session user id is required")
	}
	return nil
}

// SessionContext is the canonical credential pair extracted from a
// transport request. An empty context resolves to the bootstrap local user.
type SessionContext struct {
	SessionID     string
	SessionSecret string
}

func (c SessionContext) IsEmpty() bool {
	return strings.TrimSpace(c.SessionID) == ""
}

// UserToken holds the encrypted provider tokens for one user. At most one
// row exists per user; writes are upserts preserving the original CreatedAt.
type UserToken struct {
	UserID                int64
	Provider              string
	ExternalID            string
	Scopes                string
	EncryptedAccessToken  []byte
	EncryptedRefreshToken []byte
	ExpiresAt             time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ScopeList splits the space-delimited granted-scope string.
func (t UserToken) ScopeList() []string {
	return parseScopes(t.Scopes)
}

// ExpiresWithin reports whether the token expires on or before now+window.
func (t UserToken) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !t.ExpiresAt.After(now.UTC().Add(window))
}

type SaveUserTokensInput struct {
	UserID                int64
	Provider              string
	ExternalID            string
	Scopes                string
	EncryptedAccessToken  []byte
	EncryptedRefreshToken []byte
	ExpiresAt             time.Time
}

func (in SaveUserTokensInput) Validate() error {
	if in.UserID <= 0 {
		return fmt.Errorf("core: token user id is required")
	}
	if len(in.EncryptedAccessToken) == 0 {
		return fmt.Errorf("core: encrypted access token is required")
	}
	return nil
}

// PairingSession is the one-time hosted-flow handshake context, keyed by a
// human-typeable code. It completes at most once, and only before expiry.
type PairingSession struct {
	Code         string
	State        string
	CodeVerifier string
	UserID       *int64
	Completed    bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (p PairingSession) Expired(now time.Time) bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	return !p.ExpiresAt.After(now.UTC())
}

// Verified reports whether the pairing completed and got bound to a user.
func (p PairingSession) Verified() bool {
	return p.Completed && p.UserID != nil && *p.UserID > 0
}

type CreatePairingSessionInput struct {
	Code         string
	State        string
	CodeVerifier string
	ExpiresAt    time.Time
}

func (in CreatePairingSessionInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("core: pairing code is required")
	}
	if strings.TrimSpace(in.State) == "" {
		return fmt.Errorf("core: pairing state is required")
	}
	if strings.TrimSpace(in.CodeVerifier) == "" {
		return fmt.Errorf("core: pairing code verifier is required")
	}
	return nil
}

// ExternalIdentity is the provider's view of a user, fetched from the
// identity endpoint with a fresh access token.
type ExternalIdentity struct {
	ID          string
	Username    string
	DisplayName string
}

func (i ExternalIdentity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("core: external identity id is required")
	}
	return nil
}

// TokenGrant is the normalized result of a token endpoint exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresIn    int64
	TokenType    string
}

func parseScopes(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return strings.Fields(trimmed)
}
