package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// UserStore persists authenticated identities. External ids are unique;
// get-or-create semantics ride on that constraint.
type UserStore interface {
	Create(ctx context.Context, in CreateUserInput) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByExternalID(ctx context.Context, externalID string) (User, error)
	Update(ctx context.Context, id int64, in UpdateUserInput) (User, error)
}

// SessionStore persists caller sessions. Reads only surface non-expired
// rows; cleanup removes expired rows and nothing else.
type SessionStore interface {
	Create(ctx context.Context, in CreateSessionInput) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// TokenStore persists at most one encrypted token row per user. Save is an
// upsert that preserves the original created_at.
type TokenStore interface {
	Save(ctx context.Context, in SaveUserTokensInput) (UserToken, error)
	Get(ctx context.Context, userID int64) (UserToken, error)
	Delete(ctx context.Context, userID int64) error
}

// PairingStore persists hosted-flow handshake contexts. Complete is atomic:
// it succeeds only while the session is unexpired and not yet completed.
type PairingStore interface {
	Create(ctx context.Context, in CreatePairingSessionInput) (PairingSession, error)
	Get(ctx context.Context, code string) (PairingSession, error)
	GetByState(ctx context.Context, state string) (PairingSession, error)
	Complete(ctx context.Context, code string, userID int64) error
	CleanupExpired(ctx context.Context) (int64, error)
}

type StoreProvider interface {
	UserStore() UserStore
	SessionStore() SessionStore
	TokenStore() TokenStore
	PairingStore() PairingStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SecretProvider protects token material at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// AuthServerClient talks to the vendor's fixed authorization server
// surface: the token endpoint (code and refresh grants) and the bearer
// identity endpoint.
type AuthServerClient interface {
	AuthorizeURL(state string, codeChallenge string, redirectURI string, scopes []string) string
	ExchangeCode(ctx context.Context, code string, codeVerifier string, redirectURI string) (TokenGrant, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error)
	FetchIdentity(ctx context.Context, accessToken string) (ExternalIdentity, error)
}

// SessionResolver maps transport credentials to users. The session package
// provides the canonical implementation; core depends on the contract only.
type SessionResolver interface {
	GetUserFromSession(ctx context.Context, sctx SessionContext) (User, error)
	RequireUser(ctx context.Context, sctx SessionContext) (User, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Clock lets tests pin time; production wiring leaves it nil and gets UTC now.
type Clock func() time.Time

func resolveClock(clock Clock) Clock {
	if clock != nil {
		return clock
	}
	return func() time.Time {
		return time.Now().UTC()
	}
}
