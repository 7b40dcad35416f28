package authbroker

import (
	"context"
	"fmt"

	"github.com/goliatone/go-auth-broker/authserver"
	brokercommand "github.com/goliatone/go-auth-broker/command"
	"github.com/goliatone/go-auth-broker/core"
	"github.com/goliatone/go-auth-broker/flow"
	"github.com/goliatone/go-auth-broker/security"
	"github.com/goliatone/go-auth-broker/session"
	sqlstore "github.com/goliatone/go-auth-broker/store/sql"
)

// Commands is the dispatcher-facing surface: one typed go-command handler
// per broker operation.
type Commands struct {
	StartLoopbackAuth  *brokercommand.StartLoopbackAuthCommand
	StartHostedAuth    *brokercommand.StartHostedAuthCommand
	CheckPairingStatus *brokercommand.CheckPairingStatusCommand
	Logout             *brokercommand.LogoutCommand
	RevokeTokens       *brokercommand.RevokeTokensCommand
}

// Broker bundles the wired service, session manager, and flow controller.
type Broker struct {
	service  *core.Service
	sessions *session.Manager
	flows    *flow.Controller
	commands Commands
}

// Setup builds a fully wired broker from config: SQL stores through the
// repository factory, AES-GCM secret provider fed by the key source chain,
// and the HTTP authorization server client. Every piece can still be
// replaced through the usual service options.
func Setup(cfg Config, opts ...Option) (*Broker, error) {
	options := make([]Option, 0, len(opts)+2)
	options = append(options, core.WithRepositoryFactory(sqlstore.NewRepositoryFactory()))
	options = append(options, opts...)

	service, err := core.NewService(cfg, options...)
	if err != nil {
		return nil, err
	}
	resolved := service.Config()

	var extra []Option

	// The key source chain (explicit key, OS vault, env, key file) only
	// runs when the caller did not bring their own secret provider.
	if service.SecretProvider() == nil {
		source := security.NewKeySource(
			security.WithExplicitKey(resolved.Encryption.Key),
			security.WithKeyFilePath(resolved.Encryption.KeyFilePath),
		)
		key, keyErr := source.Resolve()
		if keyErr != nil {
			return nil, fmt.Errorf("authbroker: resolve encryption key: %w", keyErr)
		}
		provider, providerErr := security.NewBrokerSecretProvider(key)
		if providerErr != nil {
			return nil, fmt.Errorf("authbroker: build secret provider: %w", providerErr)
		}
		extra = append(extra, core.WithSecretProvider(provider))
	}

	if service.AuthServer() == nil {
		client, clientErr := authserver.NewClientFromOAuthConfig(resolved.OAuth)
		if clientErr != nil {
			return nil, fmt.Errorf("authbroker: build auth server client: %w", clientErr)
		}
		extra = append(extra, core.WithAuthServerClient(client))
	}

	if len(extra) > 0 {
		service, err = core.NewService(cfg, append(options, extra...)...)
		if err != nil {
			return nil, err
		}
	}

	broker, err := NewBroker(service)
	if err != nil {
		return nil, err
	}

	// Startup sweep of expired sessions and pairing codes. Best effort:
	// expired rows are invisible at read time regardless, and the service
	// logs the failure itself.
	_ = service.CleanupExpired(context.Background())

	return broker, nil
}

// NewBroker assembles the session manager, flow controller, and command
// surface around an already built service.
func NewBroker(service *core.Service) (*Broker, error) {
	if service == nil {
		return nil, fmt.Errorf("authbroker: service is required")
	}

	sessions, err := session.NewManager(service.UserStore(), service.SessionStore(),
		session.WithSessionTTL(service.Config().SessionTTL),
		session.WithClock(service.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("authbroker: build session manager: %w", err)
	}
	flows, err := flow.NewController(service)
	if err != nil {
		return nil, fmt.Errorf("authbroker: build flow controller: %w", err)
	}

	return &Broker{
		service:  service,
		sessions: sessions,
		flows:    flows,
		commands: Commands{
			StartLoopbackAuth:  brokercommand.NewStartLoopbackAuthCommand(flows),
			StartHostedAuth:    brokercommand.NewStartHostedAuthCommand(flows),
			CheckPairingStatus: brokercommand.NewCheckPairingStatusCommand(flows),
			Logout:             brokercommand.NewLogoutCommand(sessions),
			RevokeTokens:       brokercommand.NewRevokeTokensCommand(service),
		},
	}, nil
}

// NewAuthServerClient builds the default HTTP client for the configured
// authorization server endpoints.
func NewAuthServerClient(cfg OAuthConfig) (*authserver.Client, error) {
	return authserver.NewClientFromOAuthConfig(cfg)
}

func (b *Broker) Service() *Service {
	if b == nil {
		return nil
	}
	return b.service
}

func (b *Broker) Sessions() *session.Manager {
	if b == nil {
		return nil
	}
	return b.sessions
}

func (b *Broker) Flows() *flow.Controller {
	if b == nil {
		return nil
	}
	return b.flows
}

func (b *Broker) Commands() Commands {
	if b == nil {
		return Commands{}
	}
	return b.commands
}

// Close tears down any pending loopback flow listener.
func (b *Broker) Close() error {
	if b == nil || b.flows == nil {
		return nil
	}
	return b.flows.Close()
}
