package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartLoopbackAuthMessage]  = (*StartLoopbackAuthCommand)(nil)
	_ gocmd.Commander[StartHostedAuthMessage]    = (*StartHostedAuthCommand)(nil)
	_ gocmd.Commander[CheckPairingStatusMessage] = (*CheckPairingStatusCommand)(nil)
	_ gocmd.Commander[LogoutMessage]             = (*LogoutCommand)(nil)
	_ gocmd.Commander[RevokeTokensMessage]       = (*RevokeTokensCommand)(nil)
)
