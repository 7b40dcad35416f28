package session

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-auth-broker/core"
)

const (
	// HeaderSessionID and HeaderSessionSecret carry session credentials for
	// clients that cannot set cookies or bearer tokens.
	HeaderSessionID     = "X-Session-ID"
	HeaderSessionSecret = "X-Session-Secret"

	// CookieSessionID and CookieSessionSecret are the browser carriers.
	CookieSessionID     = "broker_session"
	CookieSessionSecret = "broker_session_secret"

	bearerPrefix = "Bearer "
)

// ExtractSessionContext reads session credentials from whichever carrier the
// request uses: Authorization bearer ("<id>.<secret>" or bare id), the
// session cookie pair, or the custom header pair. A request with none of
// them yields an empty context, which downstream resolves to the bootstrap
// user. The function never touches storage.
func ExtractSessionContext(r *http.Request) core.SessionContext {
	if r == nil {
		return core.SessionContext{}
	}

	if sctx := fromBearer(r.Header.Get("Authorization")); !sctx.IsEmpty() {
		return sctx
	}
	if sctx := fromCookies(r); !sctx.IsEmpty() {
		return sctx
	}
	return fromHeaders(r.Header)
}

func fromBearer(header string) core.SessionContext {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, bearerPrefix) {
		return core.SessionContext{}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return core.SessionContext{}
	}
	// Session ids are UUIDs; a trailing ".<secret>" segment is optional.
	if idx := strings.LastIndex(token, "."); idx > 0 {
		return core.SessionContext{
			SessionID:     strings.TrimSpace(token[:idx]),
			SessionSecret: strings.TrimSpace(token[idx+1:]),
		}
	}
	return core.SessionContext{SessionID: token}
}

func fromCookies(r *http.Request) core.SessionContext {
	idCookie, err := r.Cookie(CookieSessionID)
	if err != nil || strings.TrimSpace(idCookie.Value) == "" {
		return core.SessionContext{}
	}
	sctx := core.SessionContext{SessionID: strings.TrimSpace(idCookie.Value)}
	if secretCookie, secretErr := r.Cookie(CookieSessionSecret); secretErr == nil {
		sctx.SessionSecret = strings.TrimSpace(secretCookie.Value)
	}
	return sctx
}

func fromHeaders(header http.Header) core.SessionContext {
	id := strings.TrimSpace(header.Get(HeaderSessionID))
	if id == "" {
		return core.SessionContext{}
	}
	return core.SessionContext{
		SessionID:     id,
		SessionSecret: strings.TrimSpace(header.Get(HeaderSessionSecret)),
	}
}
