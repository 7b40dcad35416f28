package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorBadInput             = "AUTH_BAD_INPUT"
	BrokerErrorReauthRequired       = "AUTH_REAUTH_REQUIRED"
	BrokerErrorScopeInsufficient    = "AUTH_SCOPE_INSUFFICIENT"
	BrokerErrorInvalidSession       = "AUTH_SESSION_INVALID"
	BrokerErrorPairingInvalid       = "AUTH_PAIRING_INVALID"
	BrokerErrorEncryptionFailed     = "AUTH_ENCRYPTION_FAILED"
	BrokerErrorDecryptionFailed     = "AUTH_DECRYPTION_FAILED"
	BrokerErrorFlowFailed           = "AUTH_FLOW_FAILED"
	BrokerErrorProviderAuthEndpoint = "AUTH_PROVIDER_ENDPOINT_FAILED"
	BrokerErrorInternal             = "AUTH_INTERNAL_ERROR"
)

// NewReauthRequiredError signals that the caller's stored tokens are absent,
// corrupted, or irrecoverably expired. The login URL travels in metadata so
// the surrounding UI can present an actionable next step.
func NewReauthRequiredError(message string, loginURL string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "authentication required"
	}
	err := goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(BrokerErrorReauthRequired)
	if strings.TrimSpace(loginURL) != "" {
		err = err.WithMetadata(map[string]any{"login_url": strings.TrimSpace(loginURL)})
	}
	return err
}

// NewScopeInsufficientError signals valid tokens with a missing grant. The
// missing scopes and a re-auth URL travel in metadata.
func NewScopeInsufficientError(missing []string, loginURL string) *goerrors.Error {
	metadata := map[string]any{
		"missing_scopes": append([]string(nil), missing...),
	}
	if strings.TrimSpace(loginURL) != "" {
		metadata["login_url"] = strings.TrimSpace(loginURL)
	}
	return goerrors.New(
		"granted scopes do not cover this operation: missing "+strings.Join(missing, " "),
		goerrors.CategoryAuthz,
	).
		WithCode(http.StatusForbidden).
		WithTextCode(BrokerErrorScopeInsufficient).
		WithMetadata(metadata)
}

// NewInvalidSessionError signals that no user resolves for the presented
// transport credential.
func NewInvalidSessionError(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "no valid session for the presented credentials"
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(BrokerErrorInvalidSession)
}

// NewPairingInvalidError signals a missing, expired, or already-consumed
// pairing session.
func NewPairingInvalidError(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "pairing session is not valid"
	}
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(BrokerErrorPairingInvalid)
}

// NewFlowFailedError wraps a step failure of either OAuth flow variant.
func NewFlowFailedError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(BrokerErrorFlowFailed)
}

// IsReauthRequired reports whether err carries the re-auth text code.
func IsReauthRequired(err error) bool {
	return hasTextCode(err, BrokerErrorReauthRequired)
}

// IsScopeInsufficient reports whether err carries the scope text code.
func IsScopeInsufficient(err error) bool {
	return hasTextCode(err, BrokerErrorScopeInsufficient)
}

// IsInvalidSession reports whether err carries the invalid-session text code.
func IsInvalidSession(err error) bool {
	return hasTextCode(err, BrokerErrorInvalidSession)
}

// IsPairingInvalid reports whether err carries the pairing text code.
func IsPairingInvalid(err error) bool {
	return hasTextCode(err, BrokerErrorPairingInvalid)
}

// IsFlowFailed reports whether err carries the flow-failure text code.
func IsFlowFailed(err error) bool {
	return hasTextCode(err, BrokerErrorFlowFailed)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "decrypt"):
		return newBrokerError(err.Error(), goerrors.CategoryInternal, BrokerErrorDecryptionFailed)
	case strings.Contains(msg, "encrypt"):
		return newBrokerError(err.Error(), goerrors.CategoryInternal, BrokerErrorEncryptionFailed)
	case strings.Contains(msg, "pairing session"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorPairingInvalid)
	case strings.Contains(msg, "session"):
		return newBrokerError(err.Error(), goerrors.CategoryAuth, BrokerErrorInvalidSession)
	case strings.Contains(msg, "token endpoint"), strings.Contains(msg, "identity endpoint"):
		return newBrokerError(err.Error(), goerrors.CategoryExternal, BrokerErrorProviderAuthEndpoint)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func newBrokerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = brokerHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorBadInput
	case goerrors.CategoryAuth:
		return BrokerErrorReauthRequired
	case goerrors.CategoryAuthz:
		return BrokerErrorScopeInsufficient
	case goerrors.CategoryExternal:
		return BrokerErrorProviderAuthEndpoint
	case goerrors.CategoryOperation:
		return BrokerErrorFlowFailed
	default:
		return BrokerErrorInternal
	}
}

func brokerHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
