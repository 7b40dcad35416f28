package core

import (
	"reflect"
	"testing"
	"time"
)

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	session := Session{ExpiresAt: now.Add(time.Minute)}
	if session.Expired(now) {
		t.Fatal("session expiring in a minute is not expired")
	}
	session.ExpiresAt = now
	if !session.Expired(now) {
		t.Fatal("session is expired at its exact expiry instant")
	}
	session.ExpiresAt = time.Time{}
	if session.Expired(now) {
		t.Fatal("zero expiry never expires")
	}
}

func TestUserTokenExpiresWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := UserToken{ExpiresAt: now.Add(30 * time.Second)}

	if !token.ExpiresWithin(now, time.Minute) {
		t.Fatal("token expiring in 30s is inside a 60s window")
	}
	if token.ExpiresWithin(now, 10*time.Second) {
		t.Fatal("token expiring in 30s is outside a 10s window")
	}
	if (UserToken{}).ExpiresWithin(now, time.Minute) {
		t.Fatal("zero expiry never falls inside a window")
	}
}

func TestUserTokenScopeList(t *testing.T) {
	token := UserToken{Scopes: "  users.read   tweet.read "}
	want := []string{"users.read", "tweet.read"}
	if got := token.ScopeList(); !reflect.DeepEqual(got, want) {
		t.Fatalf("scope list = %v, want %v", got, want)
	}
	if got := (UserToken{}).ScopeList(); len(got) != 0 {
		t.Fatalf("empty scopes should yield an empty list, got %v", got)
	}
}

func TestPairingSessionVerified(t *testing.T) {
	userID := int64(3)

	if (PairingSession{Completed: true}).Verified() {
		t.Fatal("completed without a bound user is not verified")
	}
	if (PairingSession{UserID: &userID}).Verified() {
		t.Fatal("bound user without completion is not verified")
	}
	if !(PairingSession{Completed: true, UserID: &userID}).Verified() {
		t.Fatal("completed and bound should verify")
	}
}

func TestSessionContextIsEmpty(t *testing.T) {
	if !(SessionContext{}).IsEmpty() {
		t.Fatal("zero context is empty")
	}
	if !(SessionContext{SessionID: "   "}).IsEmpty() {
		t.Fatal("whitespace id is empty")
	}
	if (SessionContext{SessionID: "sess-1"}).IsEmpty() {
		t.Fatal("context with an id is not empty")
	}
}

func TestConfigLoginURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OAuth.AuthorizeURL = "https://provider.example.com/oauth2/authorize"
	if got := cfg.LoginURL(); got != "https://provider.example.com/oauth2/authorize" {
		t.Fatalf("login url = %q", got)
	}

	cfg.Hosted = HostedConfig{Enabled: true, BaseURL: "https://broker.example.com/"}
	if got := cfg.LoginURL(); got != "https://broker.example.com/login" {
		t.Fatalf("hosted login url = %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Hosted.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("hosted mode without base url must not validate")
	}

	cfg = DefaultConfig()
	cfg.SessionTTL = -time.Hour
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative ttl must not validate")
	}

	cfg = DefaultConfig()
	cfg.Provider = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("blank provider must not validate")
	}
}

func TestValidateInputs(t *testing.T) {
	if err := (CreateUserInput{}).Validate(); err == nil {
		t.Fatal("user input requires an external id")
	}
	if err := (CreateUserInput{ExternalID: "12345"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := (CreateSessionInput{ID: "s", UserID: 0}).Validate(); err == nil {
		t.Fatal("session input requires a user id")
	}
	if err := (SaveUserTokensInput{UserID: 1}).Validate(); err == nil {
		t.Fatal("token input requires an encrypted access token")
	}
	if err := (CreatePairingSessionInput{Code: "A", State: "s"}).Validate(); err == nil {
		t.Fatal("pairing input requires a verifier")
	}
}
