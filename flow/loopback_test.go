package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-auth-broker/core"
)

// reserveLoopbackPort grabs a free port and releases it so the redirect URI
// can name it explicitly, like a provider-registered redirect would.
func reserveLoopbackPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		t.Fatalf("release reserved port: %v", err)
	}
	return port
}

func waitForResult(t *testing.T, auth *LoopbackAuth) LoopbackResult {
	t.Helper()
	select {
	case result := <-auth.Done():
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for loopback result")
		return LoopbackResult{}
	}
}

func callbackGet(t *testing.T, auth *LoopbackAuth, params url.Values) (int, string) {
	t.Helper()
	resp, err := http.Get(auth.RedirectURI + "?" + params.Encode())
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read callback body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestStartLoopbackAuthBindsEphemeralPort(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())

	auth, err := fx.controller.StartLoopbackAuth(context.Background())
	if err != nil {
		t.Fatalf("start loopback auth: %v", err)
	}
	if strings.Contains(auth.RedirectURI, ":0/") {
		t.Fatalf("redirect uri should carry the bound port, got %q", auth.RedirectURI)
	}
	if !strings.Contains(auth.AuthorizeURL, "code_challenge=") {
		t.Fatalf("authorize url should carry the challenge, got %q", auth.AuthorizeURL)
	}
	parsed, err := url.Parse(auth.AuthorizeURL)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	if got := parsed.Query().Get("redirect_uri"); got != auth.RedirectURI {
		t.Fatalf("authorize url redirect %q does not match bound %q", got, auth.RedirectURI)
	}
}

func TestLoopbackCallbackCompletesFlow(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())
	ctx := context.Background()

	auth, err := fx.controller.StartLoopbackAuth(ctx)
	if err != nil {
		t.Fatalf("start loopback auth: %v", err)
	}

	params := url.Values{}
	params.Set("code", "auth-code")
	params.Set("state", fx.client.recordedState())
	status, body := callbackGet(t, auth, params)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from callback, got %d: %s", status, body)
	}
	if !strings.Contains(body, "Authentication complete") {
		t.Fatalf("expected success page, got %q", body)
	}

	result := waitForResult(t, auth)
	if result.Err != nil {
		t.Fatalf("loopback flow failed: %v", result.Err)
	}
	if result.User.ExternalID != "12345" {
		t.Fatalf("unexpected user %+v", result.User)
	}

	token, err := fx.tokens.Get(ctx, result.User.ID)
	if err != nil {
		t.Fatalf("tokens should be persisted: %v", err)
	}
	if string(token.EncryptedAccessToken) != "enc:access-token" {
		t.Fatalf("access token should be stored encrypted, got %q", token.EncryptedAccessToken)
	}
}

func TestLoopbackCallbackRejectsStateMismatch(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())

	auth, err := fx.controller.StartLoopbackAuth(context.Background())
	if err != nil {
		t.Fatalf("start loopback auth: %v", err)
	}

	params := url.Values{}
	params.Set("code", "auth-code")
	params.Set("state", "tampered")
	status, _ := callbackGet(t, auth, params)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on state mismatch, got %d", status)
	}

	result := waitForResult(t, auth)
	if !core.IsFlowFailed(result.Err) {
		t.Fatalf("expected flow failed error, got %v", result.Err)
	}
	if _, err := fx.users.GetByExternalID(context.Background(), "12345"); err == nil {
		t.Fatal("no user should be created on a rejected callback")
	}
}

func TestLoopbackCallbackRejectsProviderError(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())

	auth, err := fx.controller.StartLoopbackAuth(context.Background())
	if err != nil {
		t.Fatalf("start loopback auth: %v", err)
	}

	params := url.Values{}
	params.Set("error", "access_denied")
	params.Set("error_description", "user declined")
	status, body := callbackGet(t, auth, params)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on provider error, got %d", status)
	}
	if !strings.Contains(body, "Authentication failed") {
		t.Fatalf("expected error page, got %q", body)
	}

	result := waitForResult(t, auth)
	if !core.IsFlowFailed(result.Err) {
		t.Fatalf("expected flow failed error, got %v", result.Err)
	}
}

func TestLoopbackCallbackRejectsMissingCode(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())

	auth, err := fx.controller.StartLoopbackAuth(context.Background())
	if err != nil {
		t.Fatalf("start loopback auth: %v", err)
	}

	params := url.Values{}
	params.Set("state", fx.client.recordedState())
	status, _ := callbackGet(t, auth, params)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 when code is missing, got %d", status)
	}

	result := waitForResult(t, auth)
	if !core.IsFlowFailed(result.Err) {
		t.Fatalf("expected flow failed error, got %v", result.Err)
	}
}

func TestSecondLoopbackFlowReplacesPending(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())
	ctx := context.Background()

	first, err := fx.controller.StartLoopbackAuth(ctx)
	if err != nil {
		t.Fatalf("start first flow: %v", err)
	}
	second, err := fx.controller.StartLoopbackAuth(ctx)
	if err != nil {
		t.Fatalf("start second flow: %v", err)
	}

	result := waitForResult(t, first)
	if !errors.Is(result.Err, ErrFlowReplaced) {
		t.Fatalf("expected first flow to resolve with ErrFlowReplaced, got %v", result.Err)
	}

	params := url.Values{}
	params.Set("code", "auth-code")
	params.Set("state", fx.client.recordedState())
	status, _ := callbackGet(t, second, params)
	if status != http.StatusOK {
		t.Fatalf("second flow callback should succeed, got %d", status)
	}
	if result := waitForResult(t, second); result.Err != nil {
		t.Fatalf("second flow failed: %v", result.Err)
	}
}

func TestSecondLoopbackFlowReplacesPendingOnFixedPort(t *testing.T) {
	cfg := loopbackTestConfig()
	cfg.OAuth.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", reserveLoopbackPort(t))
	fx := newFlowFixture(t, cfg)
	ctx := context.Background()

	first, err := fx.controller.StartLoopbackAuth(ctx)
	if err != nil {
		t.Fatalf("start first flow: %v", err)
	}
	// Both flows claim the same registered port; the pending listener must
	// be gone before the second one binds.
	second, err := fx.controller.StartLoopbackAuth(ctx)
	if err != nil {
		t.Fatalf("second flow should rebind the fixed port: %v", err)
	}
	if second.RedirectURI != cfg.OAuth.RedirectURI {
		t.Fatalf("second flow redirect %q, want %q", second.RedirectURI, cfg.OAuth.RedirectURI)
	}

	result := waitForResult(t, first)
	if !errors.Is(result.Err, ErrFlowReplaced) {
		t.Fatalf("expected first flow to resolve with ErrFlowReplaced, got %v", result.Err)
	}

	params := url.Values{}
	params.Set("code", "auth-code")
	params.Set("state", fx.client.recordedState())
	status, _ := callbackGet(t, second, params)
	if status != http.StatusOK {
		t.Fatalf("second flow callback should succeed, got %d", status)
	}
	if result := waitForResult(t, second); result.Err != nil {
		t.Fatalf("second flow failed: %v", result.Err)
	}
}

func TestControllerCloseResolvesPendingFlow(t *testing.T) {
	fx := newFlowFixture(t, loopbackTestConfig())

	auth, err := fx.controller.StartLoopbackAuth(context.Background())
	if err != nil {
		t.Fatalf("start loopback auth: %v", err)
	}
	if err := fx.controller.Close(); err != nil {
		t.Fatalf("close controller: %v", err)
	}

	result := waitForResult(t, auth)
	if result.Err == nil {
		t.Fatal("expected pending flow to resolve with an error on close")
	}
}
