package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-auth-broker/core"
)

// pairingCodeCreateAttempts bounds retries when a generated code collides
// with an existing row.
const pairingCodeCreateAttempts = 3

// HostedAuthStart is handed to a remote caller: the human-typeable pairing
// code, the login URL that embeds it, and when the handshake expires.
type HostedAuthStart struct {
	PairingCode  string
	LoginURL     string
	AuthorizeURL string
	ExpiresAt    time.Time
}

// PairingStatus is the poll result for a pending pairing code. User is set
// only when Verified is true.
type PairingStatus struct {
	Code      string
	Verified  bool
	ExpiresAt time.Time
	User      *core.User
}

// StartHostedAuth mints a pairing code plus PKCE material, persists the
// handshake context, and returns the login URL the human should visit. The
// controller never talks to the browser in this variant; the provider calls
// back via HandleHostedCallback.
func (c *Controller) StartHostedAuth(ctx context.Context) (HostedAuthStart, error) {
	if c == nil {
		return HostedAuthStart{}, fmt.Errorf("flow: controller is required")
	}
	cfg := c.service.Config()
	if !cfg.Hosted.Enabled {
		return HostedAuthStart{}, fmt.Errorf("flow: hosted mode is not enabled")
	}

	ttl := cfg.PairingTTL
	if ttl <= 0 {
		ttl = core.DefaultPairingTTL
	}

	var session core.PairingSession
	var pkce PKCE
	var createErr error
	for attempt := 0; attempt < pairingCodeCreateAttempts; attempt++ {
		code, err := GeneratePairingCode()
		if err != nil {
			return HostedAuthStart{}, fmt.Errorf("flow: generate pairing code: %w", err)
		}
		state, err := GenerateState()
		if err != nil {
			return HostedAuthStart{}, fmt.Errorf("flow: generate state: %w", err)
		}
		pkce, err = GeneratePKCE()
		if err != nil {
			return HostedAuthStart{}, fmt.Errorf("flow: generate pkce pair: %w", err)
		}

		session, createErr = c.service.PairingStore().Create(ctx, core.CreatePairingSessionInput{
			Code:         code,
			State:        state,
			CodeVerifier: pkce.Verifier,
			ExpiresAt:    c.clock().Add(ttl),
		})
		if createErr == nil {
			break
		}
	}
	if createErr != nil {
		return HostedAuthStart{}, fmt.Errorf("flow: persist pairing session: %w", createErr)
	}

	authorizeURL := c.service.AuthServer().AuthorizeURL(session.State, pkce.Challenge, hostedRedirectURI(cfg), c.scopes())
	c.logStep("hosted", StateStarted, "hosted pairing flow started", nil)

	return HostedAuthStart{
		PairingCode:  session.Code,
		LoginURL:     hostedLoginURL(cfg, session.Code),
		AuthorizeURL: authorizeURL,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// HandleHostedCallback finishes a hosted flow when the provider redirects
// back: it resolves the pairing session by state, exchanges the code with
// the stored verifier, resolves the identity, persists user and tokens, and
// atomically marks the pairing session completed.
func (c *Controller) HandleHostedCallback(ctx context.Context, state, code, providerErr string) (core.User, error) {
	if c == nil {
		return core.User{}, fmt.Errorf("flow: controller is required")
	}
	if trimmed := strings.TrimSpace(providerErr); trimmed != "" {
		return core.User{}, core.NewFlowFailedError(fmt.Errorf("flow: provider reported %s", trimmed), "authorization denied")
	}
	state = strings.TrimSpace(state)
	code = strings.TrimSpace(code)
	if state == "" || code == "" {
		return core.User{}, core.NewPairingInvalidError("callback is missing state or code")
	}

	session, err := c.service.PairingStore().GetByState(ctx, state)
	if err != nil {
		if errors.Is(err, core.ErrPairingSessionNotFound) {
			return core.User{}, core.NewPairingInvalidError("no pairing session matches this state")
		}
		return core.User{}, fmt.Errorf("flow: resolve pairing session: %w", err)
	}
	if session.Completed {
		return core.User{}, core.NewPairingInvalidError("pairing session was already completed")
	}
	if session.Expired(c.clock()) {
		return core.User{}, core.NewPairingInvalidError("pairing session has expired")
	}
	c.logStep("hosted", StateCodeReceived, "authorization code received", nil)

	user, err := c.runExchange(ctx, "hosted", code, session.CodeVerifier, hostedRedirectURI(c.service.Config()))
	if err != nil {
		return core.User{}, err
	}

	if err := c.service.PairingStore().Complete(ctx, session.Code, user.ID); err != nil {
		switch {
		case errors.Is(err, core.ErrPairingSessionConsumed):
			return core.User{}, core.NewPairingInvalidError("pairing session was already completed")
		case errors.Is(err, core.ErrPairingSessionExpired):
			return core.User{}, core.NewPairingInvalidError("pairing session has expired")
		default:
			return core.User{}, fmt.Errorf("flow: complete pairing session: %w", err)
		}
	}
	return user, nil
}

// CheckPairingStatus reports whether the pairing completed. A disconnected
// caller polls this with the code it was handed; Verified is true only while
// the session is unexpired, completed, and its bound user still resolves.
func (c *Controller) CheckPairingStatus(ctx context.Context, code string) (PairingStatus, error) {
	if c == nil {
		return PairingStatus{}, fmt.Errorf("flow: controller is required")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return PairingStatus{}, core.NewPairingInvalidError("pairing code is required")
	}

	session, err := c.service.PairingStore().Get(ctx, code)
	if err != nil {
		if errors.Is(err, core.ErrPairingSessionNotFound) {
			// Unknown, expired, and already-swept codes all poll the same
			// way; the caller cannot tell whether cleanup ran yet.
			return PairingStatus{Code: code}, nil
		}
		return PairingStatus{}, fmt.Errorf("flow: resolve pairing session: %w", err)
	}

	status := PairingStatus{Code: session.Code, ExpiresAt: session.ExpiresAt}
	if session.Expired(c.clock()) || !session.Verified() {
		return status, nil
	}

	user, err := c.service.UserStore().GetByID(ctx, *session.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return status, nil
		}
		return PairingStatus{}, fmt.Errorf("flow: resolve paired user: %w", err)
	}
	status.Verified = true
	status.User = &user
	return status, nil
}

func hostedRedirectURI(cfg core.Config) string {
	return strings.TrimSuffix(strings.TrimSpace(cfg.Hosted.BaseURL), "/") + "/callback"
}

func hostedLoginURL(cfg core.Config, pairingCode string) string {
	return cfg.LoginURL() + "?code=" + pairingCode
}
