package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-auth-broker/core"
)

// State labels one step of an OAuth flow instance. Both variants walk the
// same ladder; Failed is reachable from any rung.
type State string

const (
	StateStarted       State = "STARTED"
	StateCodeReceived  State = "CODE_RECEIVED"
	StateTokenExchange State = "TOKEN_EXCHANGED"
	StateUserResolved  State = "USER_RESOLVED"
	StateCompleted     State = "COMPLETED"
	StateFailed        State = "FAILED"
)

// Controller orchestrates the loopback and hosted-pairing flow variants on
// top of the broker service. At most one loopback flow is pending per
// controller; starting another replaces it.
type Controller struct {
	service *core.Service
	logger  core.Logger
	clock   core.Clock

	mu      sync.Mutex
	pending *loopbackFlow
}

type Option func(*Controller)

func WithLogger(logger core.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock pins time for expiry checks in tests.
func WithClock(clock core.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewController(service *core.Service, opts ...Option) (*Controller, error) {
	if service == nil {
		return nil, fmt.Errorf("flow: service is required")
	}
	c := &Controller{
		service: service,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		_, logger := glog.Resolve("auth-broker-flow", nil, nil)
		c.logger = glog.Ensure(logger)
	}
	if c.clock == nil {
		c.clock = service.Now
	}
	return c, nil
}

// Close tears down any pending loopback flow and its listener. Safe to call
// on shutdown regardless of whether a flow was started.
func (c *Controller) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		pending.teardown(fmt.Errorf("flow: controller closed"))
	}
	return nil
}

// runExchange walks the shared CODE_RECEIVED → COMPLETED segment: exchange
// the authorization code, resolve the external identity, then persist the
// user and encrypted tokens. Token persistence stays last so a failed
// identity fetch leaves no partial records.
func (c *Controller) runExchange(ctx context.Context, variant, code, verifier, redirectURI string) (core.User, error) {
	client := c.service.AuthServer()
	if client == nil {
		return core.User{}, core.NewFlowFailedError(fmt.Errorf("flow: auth server client not configured"), "authorization flow failed")
	}

	grant, err := client.ExchangeCode(ctx, code, verifier, redirectURI)
	if err != nil {
		c.logStep(variant, StateFailed, "code exchange failed", err)
		return core.User{}, core.NewFlowFailedError(err, "token exchange failed")
	}
	c.logStep(variant, StateTokenExchange, "authorization code exchanged", nil)

	identity, err := client.FetchIdentity(ctx, grant.AccessToken)
	if err != nil {
		c.logStep(variant, StateFailed, "identity fetch failed", err)
		return core.User{}, core.NewFlowFailedError(err, "identity resolution failed")
	}
	c.logStep(variant, StateUserResolved, "external identity resolved", nil)

	user, err := c.service.CompleteLogin(ctx, identity, grant)
	if err != nil {
		c.logStep(variant, StateFailed, "login completion failed", err)
		return core.User{}, err
	}
	c.logStep(variant, StateCompleted, "authorization flow completed", nil)
	return user, nil
}

func (c *Controller) logStep(variant string, state State, message string, err error) {
	if c.logger == nil {
		return
	}
	if err != nil {
		c.logger.Error(message, "variant", variant, "state", string(state), "error", err)
		return
	}
	c.logger.Info(message, "variant", variant, "state", string(state))
}

func (c *Controller) scopes() []string {
	cfg := c.service.Config()
	out := make([]string, 0, len(cfg.OAuth.Scopes))
	for _, scope := range cfg.OAuth.Scopes {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
