package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service is the broker core: it owns token lifecycle for users and the
// shared completion step both OAuth flow variants end in. Flow control and
// session resolution live in their own packages and reach the stores
// through the accessors below.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	authServer        AuthServerClient
	userStore         UserStore
	sessionStore      SessionStore
	tokenStore        TokenStore
	pairingStore      PairingStore
	clock             Clock
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("auth-broker", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("auth-broker"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.missingStores() && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.adoptStores(storeProvider)
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.adoptStores(storeProvider)
		} else {
			return nil, mapBuildError(
				builder.errorMapper,
				fmt.Errorf("core: unsupported repository factory type %T", builder.repositoryFactory),
			)
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		authServer:        builder.authServer,
		userStore:         builder.userStore,
		sessionStore:      builder.sessionStore,
		tokenStore:        builder.tokenStore,
		pairingStore:      builder.pairingStore,
		clock:             resolveClock(builder.clock),
	}, nil
}

func (b *serviceBuilder) missingStores() bool {
	return b.userStore == nil || b.sessionStore == nil || b.tokenStore == nil || b.pairingStore == nil
}

func (b *serviceBuilder) adoptStores(provider StoreProvider) {
	if provider == nil {
		return
	}
	if b.userStore == nil {
		b.userStore = provider.UserStore()
	}
	if b.sessionStore == nil {
		b.sessionStore = provider.SessionStore()
	}
	if b.tokenStore == nil {
		b.tokenStore = provider.TokenStore()
	}
	if b.pairingStore == nil {
		b.pairingStore = provider.PairingStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) UserStore() UserStore {
	if s == nil {
		return nil
	}
	return s.userStore
}

func (s *Service) SessionStore() SessionStore {
	if s == nil {
		return nil
	}
	return s.sessionStore
}

func (s *Service) TokenStore() TokenStore {
	if s == nil {
		return nil
	}
	return s.tokenStore
}

func (s *Service) PairingStore() PairingStore {
	if s == nil {
		return nil
	}
	return s.pairingStore
}

func (s *Service) SecretProvider() SecretProvider {
	if s == nil {
		return nil
	}
	return s.secretProvider
}

func (s *Service) AuthServer() AuthServerClient {
	if s == nil {
		return nil
	}
	return s.authServer
}

func (s *Service) Now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// GetOrCreateUser resolves a user row for the external identity, creating
// it on first login and refreshing handle/display name on later ones.
func (s *Service) GetOrCreateUser(ctx context.Context, identity ExternalIdentity) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("core: service is nil")
	}
	if s.userStore == nil {
		return User{}, s.mapError(fmt.Errorf("core: user store is not configured"))
	}
	if err := identity.Validate(); err != nil {
		return User{}, s.mapError(err)
	}

	existing, err := s.userStore.GetByExternalID(ctx, strings.TrimSpace(identity.ID))
	if err == nil {
		update := UpdateUserInput{}
		if username := strings.TrimSpace(identity.Username); username != "" && username != existing.Username {
			update.Username = &username
		}
		if displayName := strings.TrimSpace(identity.DisplayName); displayName != "" && displayName != existing.DisplayName {
			update.DisplayName = &displayName
		}
		if update.IsEmpty() {
			return existing, nil
		}
		updated, updateErr := s.userStore.Update(ctx, existing.ID, update)
		if updateErr != nil {
			return User{}, s.mapError(updateErr)
		}
		return updated, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, s.mapError(err)
	}

	created, err := s.userStore.Create(ctx, CreateUserInput{
		ExternalID:  strings.TrimSpace(identity.ID),
		Username:    strings.TrimSpace(identity.Username),
		DisplayName: strings.TrimSpace(identity.DisplayName),
	})
	if err != nil {
		return User{}, s.mapError(err)
	}
	return created, nil
}

// CompleteLogin is the shared tail of both flow variants: resolve the user
// row, encrypt the grant, and upsert the token record. It runs only after
// identity resolution succeeded, so a failure here leaves no partial rows.
func (s *Service) CompleteLogin(ctx context.Context, identity ExternalIdentity, grant TokenGrant) (User, error) {
	startedAt := s.Now()
	user, err := s.completeLogin(ctx, identity, grant)
	s.observeOperation(ctx, startedAt, "complete_login", err, map[string]any{
		"provider":    s.config.Provider,
		"external_id": identity.ID,
	})
	return user, err
}

func (s *Service) completeLogin(ctx context.Context, identity ExternalIdentity, grant TokenGrant) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("core: service is nil")
	}
	if s.secretProvider == nil {
		return User{}, s.mapError(fmt.Errorf("core: secret provider is not configured"))
	}
	if s.tokenStore == nil {
		return User{}, s.mapError(fmt.Errorf("core: token store is not configured"))
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		return User{}, s.mapError(fmt.Errorf("core: grant access token is required"))
	}

	user, err := s.GetOrCreateUser(ctx, identity)
	if err != nil {
		return User{}, err
	}

	encryptedAccess, err := s.secretProvider.Encrypt(ctx, []byte(grant.AccessToken))
	if err != nil {
		return User{}, s.mapError(err)
	}
	var encryptedRefresh []byte
	if strings.TrimSpace(grant.RefreshToken) != "" {
		encryptedRefresh, err = s.secretProvider.Encrypt(ctx, []byte(grant.RefreshToken))
		if err != nil {
			return User{}, s.mapError(err)
		}
	}

	scopes := strings.TrimSpace(grant.Scope)
	if scopes == "" {
		scopes = strings.Join(s.config.OAuth.Scopes, " ")
	}
	expiresAt := s.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)

	if _, err := s.tokenStore.Save(ctx, SaveUserTokensInput{
		UserID:                user.ID,
		Provider:              s.config.Provider,
		ExternalID:            user.ExternalID,
		Scopes:                scopes,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		ExpiresAt:             expiresAt,
	}); err != nil {
		return User{}, s.mapError(err)
	}
	return user, nil
}

// CleanupExpired removes expired sessions and pairing sessions. It is safe
// to run at process start and on a timer; non-expired rows are never touched.
func (s *Service) CleanupExpired(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := s.Now()
	var sessions, pairings int64
	var err error
	if s.sessionStore != nil {
		sessions, err = s.sessionStore.CleanupExpired(ctx)
		if err != nil {
			err = s.mapError(err)
		}
	}
	if err == nil && s.pairingStore != nil {
		pairings, err = s.pairingStore.CleanupExpired(ctx)
		if err != nil {
			err = s.mapError(err)
		}
	}
	s.observeOperation(ctx, startedAt, "cleanup_expired", err, map[string]any{
		"sessions_removed": sessions,
		"pairings_removed": pairings,
	})
	return err
}
