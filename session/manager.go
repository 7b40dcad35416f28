package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-auth-broker/core"
	"github.com/goliatone/go-auth-broker/security"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Manager binds caller-held session credentials to broker users. Local
// transports run without credentials and resolve to the bootstrap user;
// remote transports carry a session id and secret.
type Manager struct {
	users      core.UserStore
	sessions   core.SessionStore
	logger     core.Logger
	sessionTTL time.Duration
	clock      core.Clock
}

type Option func(*Manager)

func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.sessionTTL = ttl
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewManager(users core.UserStore, sessions core.SessionStore, opts ...Option) (*Manager, error) {
	if users == nil {
		return nil, fmt.Errorf("session: user store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session: session store is required")
	}
	_, logger := glog.Resolve("auth-broker-session", nil, nil)
	manager := &Manager{
		users:      users,
		sessions:   sessions,
		logger:     glog.Ensure(logger),
		sessionTTL: core.DefaultSessionTTL,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(manager)
	}
	manager.clock = resolveClock(manager.clock)
	return manager, nil
}

func resolveClock(clock core.Clock) core.Clock {
	if clock != nil {
		return clock
	}
	return func() time.Time {
		return time.Now().UTC()
	}
}

// EnsureLocalUser returns the bootstrap user for credential-less transports,
// creating it on first call. The unique external id makes this idempotent
// across concurrent callers.
func (m *Manager) EnsureLocalUser(ctx context.Context) (core.User, error) {
	if m == nil || m.users == nil {
		return core.User{}, fmt.Errorf("session: manager is not configured")
	}

	user, err := m.users.GetByExternalID(ctx, core.LocalUserExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, core.ErrUserNotFound) {
		return core.User{}, err
	}

	created, createErr := m.users.Create(ctx, core.CreateUserInput{
		ExternalID:  core.LocalUserExternalID,
		Username:    "local",
		DisplayName: "Local User",
	})
	if createErr == nil {
		return created, nil
	}
	// A concurrent caller may have won the race; re-read before failing.
	user, retryErr := m.users.GetByExternalID(ctx, core.LocalUserExternalID)
	if retryErr == nil {
		return user, nil
	}
	return core.User{}, createErr
}

// CreateSession mints a session for the user and returns the plaintext
// secret exactly once. Only the salted hash is stored.
func (m *Manager) CreateSession(ctx context.Context, userID int64) (core.Session, string, error) {
	if m == nil || m.sessions == nil {
		return core.Session{}, "", fmt.Errorf("session: manager is not configured")
	}
	if userID <= 0 {
		return core.Session{}, "", fmt.Errorf("session: user id is required")
	}

	secret, err := security.GenerateSecureToken(32)
	if err != nil {
		return core.Session{}, "", fmt.Errorf("session: generate secret: %w", err)
	}
	hash, salt, err := security.HashPassword(secret)
	if err != nil {
		return core.Session{}, "", fmt.Errorf("session: hash secret: %w", err)
	}

	now := m.clock()
	created, err := m.sessions.Create(ctx, core.CreateSessionInput{
		ID:         uuid.NewString(),
		UserID:     userID,
		SecretHash: hash,
		SecretSalt: salt,
		ExpiresAt:  now.Add(m.sessionTTL),
	})
	if err != nil {
		return core.Session{}, "", err
	}
	m.logger.Info("session created", "session_id", created.ID, "user_id", created.UserID)
	return created, secret, nil
}

// ValidateSession resolves a session context to its stored session. A
// supplied secret must verify against the stored hash; an id-only context is
// trusted for transports that cannot carry the secret.
func (m *Manager) ValidateSession(ctx context.Context, sctx core.SessionContext) (core.Session, error) {
	if m == nil || m.sessions == nil {
		return core.Session{}, fmt.Errorf("session: manager is not configured")
	}
	sessionID := strings.TrimSpace(sctx.SessionID)
	if sessionID == "" {
		return core.Session{}, core.NewInvalidSessionError("session id is required")
	}

	stored, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.Session{}, core.NewInvalidSessionError("session not found")
		}
		return core.Session{}, err
	}
	if stored.Expired(m.clock()) {
		return core.Session{}, core.NewInvalidSessionError("session expired")
	}

	if secret := strings.TrimSpace(sctx.SessionSecret); secret != "" {
		if !security.VerifyPassword(secret, stored.SecretHash, stored.SecretSalt) {
			return core.Session{}, core.NewInvalidSessionError("session secret mismatch")
		}
	}
	return stored, nil
}

// GetUserFromSession maps a session context to its user. An empty context is
// the local transport case and resolves to the bootstrap user.
func (m *Manager) GetUserFromSession(ctx context.Context, sctx core.SessionContext) (core.User, error) {
	if m == nil || m.users == nil {
		return core.User{}, fmt.Errorf("session: manager is not configured")
	}
	if sctx.IsEmpty() {
		return m.EnsureLocalUser(ctx)
	}

	stored, err := m.ValidateSession(ctx, sctx)
	if err != nil {
		return core.User{}, err
	}
	user, err := m.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return core.User{}, core.NewInvalidSessionError("session user no longer exists")
		}
		return core.User{}, err
	}
	return user, nil
}

// RequireUser is GetUserFromSession with a hard failure envelope for
// callers that cannot fall back.
func (m *Manager) RequireUser(ctx context.Context, sctx core.SessionContext) (core.User, error) {
	user, err := m.GetUserFromSession(ctx, sctx)
	if err != nil {
		if core.IsInvalidSession(err) {
			return core.User{}, err
		}
		return core.User{}, core.NewInvalidSessionError(err.Error())
	}
	return user, nil
}

// DeleteSession drops a session; deleting an unknown id is not an error.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	if m == nil || m.sessions == nil {
		return fmt.Errorf("session: manager is not configured")
	}
	return m.sessions.Delete(ctx, sessionID)
}

// CleanupExpired removes expired sessions and reports how many went away.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	if m == nil || m.sessions == nil {
		return 0, fmt.Errorf("session: manager is not configured")
	}
	return m.sessions.CleanupExpired(ctx)
}

var _ core.SessionResolver = (*Manager)(nil)
