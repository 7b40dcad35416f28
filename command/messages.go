package command

import (
	"strings"

	"github.com/goliatone/go-auth-broker/flow"
)

const (
	TypeStartLoopbackAuth  = "authbroker.command.loopback.start"
	TypeStartHostedAuth    = "authbroker.command.hosted.start"
	TypeCheckPairingStatus = "authbroker.command.pairing.check"
	TypeLogout             = "authbroker.command.logout"
	TypeRevokeTokens       = "authbroker.command.tokens.revoke"
)

// StartLoopbackAuthMessage launches the loopback flow; the dispatcher
// result carries the authorize URL and the pending flow handle.
type StartLoopbackAuthMessage struct{}

func (StartLoopbackAuthMessage) Type() string { return TypeStartLoopbackAuth }

func (StartLoopbackAuthMessage) Validate() error { return nil }

// StartHostedAuthMessage mints a pairing code for a remote caller.
type StartHostedAuthMessage struct{}

func (StartHostedAuthMessage) Type() string { return TypeStartHostedAuth }

func (StartHostedAuthMessage) Validate() error { return nil }

type CheckPairingStatusMessage struct {
	PairingCode string
}

func (CheckPairingStatusMessage) Type() string { return TypeCheckPairingStatus }

func (m CheckPairingStatusMessage) Validate() error {
	code := strings.TrimSpace(m.PairingCode)
	if code == "" {
		return commandValidationError("pairing_code", "pairing code is required")
	}
	if len(code) != flow.PairingCodeLength {
		return commandValidationError("pairing_code", "pairing code has the wrong length")
	}
	return nil
}

type LogoutMessage struct {
	SessionID string
}

func (LogoutMessage) Type() string { return TypeLogout }

func (m LogoutMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return commandValidationError("session_id", "session id is required")
	}
	return nil
}

type RevokeTokensMessage struct {
	UserID int64
}

func (RevokeTokensMessage) Type() string { return TypeRevokeTokens }

func (m RevokeTokensMessage) Validate() error {
	if m.UserID <= 0 {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}
