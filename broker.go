// Package authbroker brokers third-party OAuth credentials for multiple
// users: encrypted token storage, refresh-before-expiry, scope checks, and
// the loopback and hosted-pairing login flows.
package authbroker

import "github.com/goliatone/go-auth-broker/core"

type Config = core.Config

type OAuthConfig = core.OAuthConfig

type HostedConfig = core.HostedConfig

type EncryptionConfig = core.EncryptionConfig

type Option = core.Option

type Service = core.Service

type User = core.User
type Session = core.Session
type SessionContext = core.SessionContext
type UserToken = core.UserToken
type PairingSession = core.PairingSession
type ExternalIdentity = core.ExternalIdentity
type TokenGrant = core.TokenGrant
type TokenInfo = core.TokenInfo
type TokenVerdict = core.TokenVerdict

type UserStore = core.UserStore
type SessionStore = core.SessionStore
type TokenStore = core.TokenStore
type PairingStore = core.PairingStore
type SecretProvider = core.SecretProvider
type AuthServerClient = core.AuthServerClient
type SessionResolver = core.SessionResolver
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithAuthServerClient  = core.WithAuthServerClient
	WithUserStore         = core.WithUserStore
	WithSessionStore      = core.WithSessionStore
	WithTokenStore        = core.WithTokenStore
	WithPairingStore      = core.WithPairingStore
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
