package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fixedTokenStore struct {
	record    UserToken
	missing   bool
	saved     []SaveUserTokensInput
	deleted   []int64
	saveErr   error
	deleteErr error
}

func (s *fixedTokenStore) Save(_ context.Context, in SaveUserTokensInput) (UserToken, error) {
	if s.saveErr != nil {
		return UserToken{}, s.saveErr
	}
	s.saved = append(s.saved, in)
	return UserToken{UserID: in.UserID, Scopes: in.Scopes, ExpiresAt: in.ExpiresAt}, nil
}

func (s *fixedTokenStore) Get(context.Context, int64) (UserToken, error) {
	if s.missing {
		return UserToken{}, ErrTokensNotFound
	}
	return s.record, nil
}

func (s *fixedTokenStore) Delete(_ context.Context, userID int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, userID)
	return nil
}

// reversibleSecrets prefixes instead of encrypting so assertions can read
// what was stored.
type reversibleSecrets struct{}

func (reversibleSecrets) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return append([]byte("enc:"), plaintext...), nil
}

func (reversibleSecrets) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := string(ciphertext)
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("secrets: not an envelope")
	}
	return []byte(strings.TrimPrefix(value, "enc:")), nil
}

type scriptedAuthServer struct {
	grant        TokenGrant
	refreshErr   error
	refreshCalls int
	lastRefresh  string
}

func (s *scriptedAuthServer) AuthorizeURL(string, string, string, []string) string { return "" }

func (s *scriptedAuthServer) ExchangeCode(context.Context, string, string, string) (TokenGrant, error) {
	return TokenGrant{}, fmt.Errorf("scripted: exchange not wired")
}

func (s *scriptedAuthServer) RefreshToken(_ context.Context, refreshToken string) (TokenGrant, error) {
	s.refreshCalls++
	s.lastRefresh = refreshToken
	if s.refreshErr != nil {
		return TokenGrant{}, s.refreshErr
	}
	return s.grant, nil
}

func (s *scriptedAuthServer) FetchIdentity(context.Context, string) (ExternalIdentity, error) {
	return ExternalIdentity{}, fmt.Errorf("scripted: identity not wired")
}

func tokenTestService(t *testing.T, store *fixedTokenStore, client *scriptedAuthServer, now time.Time) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.OAuth.AuthorizeURL = "https://provider.example.com/oauth2/authorize"

	service, err := NewService(cfg,
		WithTokenStore(store),
		WithSecretProvider(reversibleSecrets{}),
		WithAuthServerClient(client),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return service
}

func TestGetValidAccessTokenReturnsFreshToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{record: UserToken{
		UserID:               1,
		Scopes:               "users.read tweet.read",
		EncryptedAccessToken: []byte("enc:live-access"),
		ExpiresAt:            now.Add(time.Hour),
	}}
	client := &scriptedAuthServer{}
	service := tokenTestService(t, store, client, now)

	token, err := service.GetValidAccessToken(context.Background(), User{ID: 1})
	if err != nil {
		t.Fatalf("get access token: %v", err)
	}
	if token != "live-access" {
		t.Fatalf("expected decrypted token, got %q", token)
	}
	if client.refreshCalls != 0 {
		t.Fatal("fresh token must not trigger a refresh")
	}
}

func TestGetValidAccessTokenRefreshesInsideSafetyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{record: UserToken{
		UserID:                1,
		Provider:              "twitter",
		ExternalID:            "12345",
		Scopes:                "users.read tweet.read",
		EncryptedAccessToken:  []byte("enc:stale-access"),
		EncryptedRefreshToken: []byte("enc:refresh-1"),
		ExpiresAt:             now.Add(30 * time.Second),
	}}
	client := &scriptedAuthServer{grant: TokenGrant{
		AccessToken:  "fresh-access",
		RefreshToken: "refresh-2",
		Scope:        "users.read tweet.read",
		ExpiresIn:    7200,
	}}
	service := tokenTestService(t, store, client, now)

	token, err := service.GetValidAccessToken(context.Background(), User{ID: 1})
	if err != nil {
		t.Fatalf("get access token: %v", err)
	}
	if token != "fresh-access" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if client.lastRefresh != "refresh-1" {
		t.Fatalf("refresh should use the stored refresh token, got %q", client.lastRefresh)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saved))
	}
	saved := store.saved[0]
	if string(saved.EncryptedAccessToken) != "enc:fresh-access" {
		t.Fatalf("new access token should be stored encrypted, got %q", saved.EncryptedAccessToken)
	}
	if string(saved.EncryptedRefreshToken) != "enc:refresh-2" {
		t.Fatalf("rotated refresh token should be stored, got %q", saved.EncryptedRefreshToken)
	}
	if want := now.Add(7200 * time.Second); !saved.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", saved.ExpiresAt, want)
	}
}

func TestRefreshKeepsPriorRefreshTokenWhenGrantOmitsIt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{record: UserToken{
		UserID:                1,
		Scopes:                "users.read",
		EncryptedAccessToken:  []byte("enc:stale"),
		EncryptedRefreshToken: []byte("enc:keep-me"),
		ExpiresAt:             now,
	}}
	client := &scriptedAuthServer{grant: TokenGrant{AccessToken: "fresh", ExpiresIn: 3600}}
	service := tokenTestService(t, store, client, now)

	if _, err := service.GetValidAccessToken(context.Background(), User{ID: 1}); err != nil {
		t.Fatalf("get access token: %v", err)
	}
	if string(store.saved[0].EncryptedRefreshToken) != "enc:keep-me" {
		t.Fatalf("prior refresh token should survive, got %q", store.saved[0].EncryptedRefreshToken)
	}
	if store.saved[0].Scopes != "users.read" {
		t.Fatalf("prior scopes should survive an empty grant scope, got %q", store.saved[0].Scopes)
	}
}

func TestRefreshFailureDeletesRowAndDemandsReauth(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{record: UserToken{
		UserID:                7,
		EncryptedAccessToken:  []byte("enc:stale"),
		EncryptedRefreshToken: []byte("enc:revoked"),
		ExpiresAt:             now,
	}}
	client := &scriptedAuthServer{refreshErr: fmt.Errorf("invalid_grant")}
	service := tokenTestService(t, store, client, now)

	_, err := service.GetValidAccessToken(context.Background(), User{ID: 7})
	if !IsReauthRequired(err) {
		t.Fatalf("expected re-auth error, got %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 7 {
		t.Fatalf("failed refresh must delete the token row, got %v", store.deleted)
	}
}

func TestGetValidAccessTokenWithoutTokensDemandsReauth(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{missing: true}
	service := tokenTestService(t, store, &scriptedAuthServer{}, now)

	_, err := service.GetValidAccessToken(context.Background(), User{ID: 1})
	if !IsReauthRequired(err) {
		t.Fatalf("expected re-auth error, got %v", err)
	}
}

func TestGetValidAccessTokenRejectsMissingScopes(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{record: UserToken{
		UserID:               1,
		Scopes:               "users.read tweet.read",
		EncryptedAccessToken: []byte("enc:live"),
		ExpiresAt:            now.Add(time.Hour),
	}}
	service := tokenTestService(t, store, &scriptedAuthServer{}, now)

	_, err := service.ValidateToolAccess(context.Background(), User{ID: 1}, "bookmarks.add")
	if !IsScopeInsufficient(err) {
		t.Fatalf("expected scope error, got %v", err)
	}
}

func TestValidateUserTokensVerdicts(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	store := &fixedTokenStore{missing: true}
	service := tokenTestService(t, store, &scriptedAuthServer{}, now)
	verdict := service.ValidateUserTokens(context.Background(), User{ID: 1}, "users.me")
	if verdict.HasTokens || verdict.Valid {
		t.Fatalf("missing tokens should yield an empty verdict, got %+v", verdict)
	}

	store = &fixedTokenStore{record: UserToken{
		UserID:               1,
		Scopes:               "users.read tweet.read",
		EncryptedAccessToken: []byte("enc:live"),
		ExpiresAt:            now.Add(time.Hour),
	}}
	service = tokenTestService(t, store, &scriptedAuthServer{}, now)
	verdict = service.ValidateUserTokens(context.Background(), User{ID: 1}, "tweets.get")
	if !verdict.HasTokens || !verdict.Valid || verdict.Expired {
		t.Fatalf("expected valid verdict, got %+v", verdict)
	}

	verdict = service.ValidateUserTokens(context.Background(), User{ID: 1}, "bookmarks.add")
	if verdict.Valid || len(verdict.MissingScopes) == 0 {
		t.Fatalf("expected missing-scope verdict, got %+v", verdict)
	}
}

func TestGetUserTokenInfoMasksAccessToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{record: UserToken{
		UserID:               1,
		Provider:             "twitter",
		Scopes:               "users.read",
		EncryptedAccessToken: []byte("enc:super-secret-access-token"),
		ExpiresAt:            now.Add(time.Hour),
	}}
	service := tokenTestService(t, store, &scriptedAuthServer{}, now)

	info, err := service.GetUserTokenInfo(context.Background(), User{ID: 1})
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	if !info.HasTokens || info.Expired {
		t.Fatalf("unexpected info %+v", info)
	}
	if strings.Contains(info.MaskedAccessToken, "super-secret") {
		t.Fatalf("masked token leaks the secret: %q", info.MaskedAccessToken)
	}
	if info.MaskedAccessToken == "" {
		t.Fatal("expected a masked token value")
	}
}

func TestClearUserTokensDeletesRow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fixedTokenStore{}
	service := tokenTestService(t, store, &scriptedAuthServer{}, now)

	if err := service.ClearUserTokens(context.Background(), 9); err != nil {
		t.Fatalf("clear tokens: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 9 {
		t.Fatalf("expected delete of user 9, got %v", store.deleted)
	}

	if err := service.ClearUserTokens(context.Background(), 0); err == nil {
		t.Fatal("expected error for missing user id")
	}
}
