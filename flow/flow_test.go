package flow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-auth-broker/core"
)

type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]core.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[int64]core.User{}}
}

func (s *memUserStore) Create(_ context.Context, in core.CreateUserInput) (core.User, error) {
	if err := in.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ExternalID == in.ExternalID {
			return core.User{}, fmt.Errorf("memstore: duplicate external id %s", in.ExternalID)
		}
	}
	s.nextID++
	now := time.Now().UTC()
	user := core.User{
		ID:          s.nextID,
		ExternalID:  in.ExternalID,
		Username:    in.Username,
		DisplayName: in.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *memUserStore) GetByID(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return user, nil
}

func (s *memUserStore) GetByExternalID(_ context.Context, externalID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ExternalID == externalID {
			return user, nil
		}
	}
	return core.User{}, core.ErrUserNotFound
}

func (s *memUserStore) Update(_ context.Context, id int64, in core.UpdateUserInput) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	if in.Username != nil {
		user.Username = *in.Username
	}
	if in.DisplayName != nil {
		user.DisplayName = *in.DisplayName
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[int64]core.UserToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: map[int64]core.UserToken{}}
}

func (s *memTokenStore) Save(_ context.Context, in core.SaveUserTokensInput) (core.UserToken, error) {
	if err := in.Validate(); err != nil {
		return core.UserToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	token := core.UserToken{
		UserID:                in.UserID,
		Provider:              in.Provider,
		ExternalID:            in.ExternalID,
		Scopes:                in.Scopes,
		EncryptedAccessToken:  in.EncryptedAccessToken,
		EncryptedRefreshToken: in.EncryptedRefreshToken,
		ExpiresAt:             in.ExpiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if existing, ok := s.tokens[in.UserID]; ok {
		token.CreatedAt = existing.CreatedAt
	}
	s.tokens[in.UserID] = token
	return token, nil
}

func (s *memTokenStore) Get(_ context.Context, userID int64) (core.UserToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[userID]
	if !ok {
		return core.UserToken{}, core.ErrTokensNotFound
	}
	return token, nil
}

func (s *memTokenStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}

type memPairingStore struct {
	mu       sync.Mutex
	sessions map[string]core.PairingSession
	clock    func() time.Time
}

func newMemPairingStore(clock func() time.Time) *memPairingStore {
	return &memPairingStore{sessions: map[string]core.PairingSession{}, clock: clock}
}

func (s *memPairingStore) Create(_ context.Context, in core.CreatePairingSessionInput) (core.PairingSession, error) {
	if err := in.Validate(); err != nil {
		return core.PairingSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[in.Code]; exists {
		return core.PairingSession{}, fmt.Errorf("memstore: duplicate pairing code %s", in.Code)
	}
	session := core.PairingSession{
		Code:         in.Code,
		State:        in.State,
		CodeVerifier: in.CodeVerifier,
		CreatedAt:    s.clock(),
		ExpiresAt:    in.ExpiresAt,
	}
	s.sessions[in.Code] = session
	return session, nil
}

func (s *memPairingStore) Get(_ context.Context, code string) (core.PairingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return core.PairingSession{}, core.ErrPairingSessionNotFound
	}
	return session, nil
}

func (s *memPairingStore) GetByState(_ context.Context, state string) (core.PairingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.State == state {
			return session, nil
		}
	}
	return core.PairingSession{}, core.ErrPairingSessionNotFound
}

func (s *memPairingStore) Complete(_ context.Context, code string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return core.ErrPairingSessionNotFound
	}
	if session.Completed {
		return core.ErrPairingSessionConsumed
	}
	if session.Expired(s.clock()) {
		return core.ErrPairingSessionExpired
	}
	session.Completed = true
	session.UserID = &userID
	s.sessions[code] = session
	return nil
}

func (s *memPairingStore) CleanupExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for code, session := range s.sessions {
		if session.Expired(s.clock()) {
			delete(s.sessions, code)
			removed++
		}
	}
	return removed, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]core.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]core.Session{}}
}

func (s *memSessionStore) Create(_ context.Context, in core.CreateSessionInput) (core.Session, error) {
	if err := in.Validate(); err != nil {
		return core.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session := core.Session{
		ID:         in.ID,
		UserID:     in.UserID,
		SecretHash: in.SecretHash,
		SecretSalt: in.SecretSalt,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  in.ExpiresAt,
	}
	s.sessions[in.ID] = session
	return session, nil
}

func (s *memSessionStore) Get(_ context.Context, id string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return core.Session{}, core.ErrSessionNotFound
	}
	return session, nil
}

func (s *memSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) CleanupExpired(context.Context) (int64, error) {
	return 0, nil
}

// prefixSecretProvider is reversible without key material, which keeps flow
// tests focused on orchestration instead of cryptography.
type prefixSecretProvider struct{}

func (prefixSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return append([]byte("enc:"), plaintext...), nil
}

func (prefixSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	return []byte(strings.TrimPrefix(string(ciphertext), "enc:")), nil
}

type fakeAuthServer struct {
	mu sync.Mutex

	grant       core.TokenGrant
	identity    core.ExternalIdentity
	exchangeErr error
	identityErr error

	lastState     string
	lastChallenge string
	lastCode      string
	lastVerifier  string
	lastRedirect  string
}

func (f *fakeAuthServer) AuthorizeURL(state, codeChallenge, redirectURI string, scopes []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastState = state
	f.lastChallenge = codeChallenge
	values := url.Values{}
	values.Set("state", state)
	values.Set("code_challenge", codeChallenge)
	values.Set("redirect_uri", redirectURI)
	values.Set("scope", strings.Join(scopes, " "))
	return "https://provider.example.com/oauth2/authorize?" + values.Encode()
}

func (f *fakeAuthServer) ExchangeCode(_ context.Context, code, codeVerifier, redirectURI string) (core.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCode = code
	f.lastVerifier = codeVerifier
	f.lastRedirect = redirectURI
	if f.exchangeErr != nil {
		return core.TokenGrant{}, f.exchangeErr
	}
	return f.grant, nil
}

func (f *fakeAuthServer) RefreshToken(context.Context, string) (core.TokenGrant, error) {
	return core.TokenGrant{}, fmt.Errorf("fake: refresh not wired")
}

func (f *fakeAuthServer) FetchIdentity(context.Context, string) (core.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identityErr != nil {
		return core.ExternalIdentity{}, f.identityErr
	}
	return f.identity, nil
}

func (f *fakeAuthServer) recordedState() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastState
}

func (f *fakeAuthServer) recordedVerifier() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastVerifier
}

type flowFixture struct {
	controller *Controller
	service    *core.Service
	client     *fakeAuthServer
	users      *memUserStore
	tokens     *memTokenStore
	pairings   *memPairingStore
	now        *time.Time
}

func (fx flowFixture) advance(d time.Duration) {
	*fx.now = fx.now.Add(d)
}

func newFlowFixture(t *testing.T, cfg core.Config) flowFixture {
	t.Helper()

	current := time.Now().UTC()
	clock := func() time.Time { return current }

	client := &fakeAuthServer{
		grant: core.TokenGrant{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			Scope:        "users.read tweet.read offline.access",
			ExpiresIn:    7200,
			TokenType:    "bearer",
		},
		identity: core.ExternalIdentity{
			ID:          "12345",
			Username:    "jane",
			DisplayName: "Jane Doe",
		},
	}
	users := newMemUserStore()
	tokens := newMemTokenStore()
	pairings := newMemPairingStore(clock)

	service, err := core.NewService(cfg,
		core.WithAuthServerClient(client),
		core.WithSecretProvider(prefixSecretProvider{}),
		core.WithUserStore(users),
		core.WithSessionStore(newMemSessionStore()),
		core.WithTokenStore(tokens),
		core.WithPairingStore(pairings),
		core.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	controller, err := NewController(service, WithClock(clock))
	if err != nil {
		t.Fatalf("build controller: %v", err)
	}
	t.Cleanup(func() { _ = controller.Close() })

	return flowFixture{
		controller: controller,
		service:    service,
		client:     client,
		users:      users,
		tokens:     tokens,
		pairings:   pairings,
		now:        &current,
	}
}

func hostedTestConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.OAuth = core.OAuthConfig{
		ClientID:     "client-id",
		AuthorizeURL: "https://provider.example.com/oauth2/authorize",
		TokenURL:     "https://provider.example.com/2/oauth2/token",
		IdentityURL:  "https://provider.example.com/2/users/me",
		Scopes:       []string{"users.read", "tweet.read", "offline.access"},
	}
	cfg.Hosted = core.HostedConfig{Enabled: true, BaseURL: "https://broker.example.com/"}
	return cfg
}

func loopbackTestConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.OAuth = core.OAuthConfig{
		ClientID:     "client-id",
		AuthorizeURL: "https://provider.example.com/oauth2/authorize",
		TokenURL:     "https://provider.example.com/2/oauth2/token",
		IdentityURL:  "https://provider.example.com/2/users/me",
		RedirectURI:  "http://127.0.0.1:0/callback",
		Scopes:       []string{"users.read", "tweet.read"},
	}
	return cfg
}
