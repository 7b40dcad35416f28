package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-auth-broker/flow"
)

// FlowService is the slice of the flow controller the command surface
// needs; the dispatcher side never sees stores or provider clients.
type FlowService interface {
	StartLoopbackAuth(ctx context.Context) (*flow.LoopbackAuth, error)
	StartHostedAuth(ctx context.Context) (flow.HostedAuthStart, error)
	CheckPairingStatus(ctx context.Context, code string) (flow.PairingStatus, error)
}

type SessionService interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

type TokenService interface {
	ClearUserTokens(ctx context.Context, userID int64) error
}

type StartLoopbackAuthCommand struct {
	service FlowService
}

func NewStartLoopbackAuthCommand(service FlowService) *StartLoopbackAuthCommand {
	return &StartLoopbackAuthCommand{service: service}
}

func (c *StartLoopbackAuthCommand) Execute(ctx context.Context, _ StartLoopbackAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: flow service is required")
	}
	out, err := c.service.StartLoopbackAuth(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type StartHostedAuthCommand struct {
	service FlowService
}

func NewStartHostedAuthCommand(service FlowService) *StartHostedAuthCommand {
	return &StartHostedAuthCommand{service: service}
}

func (c *StartHostedAuthCommand) Execute(ctx context.Context, _ StartHostedAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: flow service is required")
	}
	out, err := c.service.StartHostedAuth(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CheckPairingStatusCommand struct {
	service FlowService
}

func NewCheckPairingStatusCommand(service FlowService) *CheckPairingStatusCommand {
	return &CheckPairingStatusCommand{service: service}
}

func (c *CheckPairingStatusCommand) Execute(ctx context.Context, msg CheckPairingStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: flow service is required")
	}
	out, err := c.service.CheckPairingStatus(ctx, strings.TrimSpace(msg.PairingCode))
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, msg LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.DeleteSession(ctx, strings.TrimSpace(msg.SessionID))
}

type RevokeTokensCommand struct {
	service TokenService
}

func NewRevokeTokensCommand(service TokenService) *RevokeTokensCommand {
	return &RevokeTokensCommand{service: service}
}

func (c *RevokeTokensCommand) Execute(ctx context.Context, msg RevokeTokensMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	return c.service.ClearUserTokens(ctx, msg.UserID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
