package flow

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-auth-broker/core"
)

const loopbackShutdownTimeout = 5 * time.Second

// ErrFlowReplaced resolves a pending loopback flow when a newer one takes
// over the listener.
var ErrFlowReplaced = fmt.Errorf("flow: loopback flow replaced by a newer one")

// LoopbackResult is delivered exactly once per loopback flow, on the Done
// channel, when the callback lands or the flow is torn down.
type LoopbackResult struct {
	User core.User
	Err  error
}

// LoopbackAuth is a pending loopback flow: the caller opens AuthorizeURL in
// a browser and waits on Done for the callback outcome.
type LoopbackAuth struct {
	AuthorizeURL string
	RedirectURI  string

	flow *loopbackFlow
}

// Done yields the single flow result. The channel closes after delivery.
func (a *LoopbackAuth) Done() <-chan LoopbackResult {
	if a == nil || a.flow == nil {
		closed := make(chan LoopbackResult)
		close(closed)
		return closed
	}
	return a.flow.done
}

type loopbackFlow struct {
	controller  *Controller
	state       string
	verifier    string
	redirectURI string

	server   *http.Server
	listener net.Listener

	once sync.Once
	done chan LoopbackResult
}

// StartLoopbackAuth binds a listener on the configured redirect URI, builds
// the PKCE authorization URL, and returns a handle whose Done channel
// resolves when the provider redirects back. A second call while a flow is
// pending replaces the earlier flow; the replaced flow's Done resolves with
// ErrFlowReplaced.
func (c *Controller) StartLoopbackAuth(ctx context.Context) (*LoopbackAuth, error) {
	if c == nil {
		return nil, fmt.Errorf("flow: controller is required")
	}
	cfg := c.service.Config()

	redirect, err := url.Parse(strings.TrimSpace(cfg.OAuth.RedirectURI))
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("flow: oauth.redirect_uri must be an absolute URL: %q", cfg.OAuth.RedirectURI)
	}

	// Replace any pending flow first. Its listener must be closed before we
	// bind ours: with a fixed-port redirect URI both flows contend for the
	// same port.
	c.mu.Lock()
	replaced := c.pending
	c.pending = nil
	c.mu.Unlock()
	if replaced != nil {
		replaced.teardown(ErrFlowReplaced)
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("flow: generate pkce pair: %w", err)
	}
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("flow: generate state: %w", err)
	}

	// Port 0 binds an ephemeral port; the redirect URI is rewritten with
	// the port actually bound so the authorize URL stays accurate.
	listenAddr := redirect.Host
	if redirect.Port() == "" {
		listenAddr = net.JoinHostPort(redirect.Hostname(), "0")
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("flow: bind loopback listener on %s: %w", listenAddr, err)
	}
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		redirect.Host = net.JoinHostPort(redirect.Hostname(), fmt.Sprintf("%d", addr.Port))
	}

	flow := &loopbackFlow{
		controller:  c,
		state:       state,
		verifier:    pkce.Verifier,
		redirectURI: redirect.String(),
		listener:    listener,
		done:        make(chan LoopbackResult, 1),
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, flow.handleCallback)
	flow.server = &http.Server{Handler: mux}

	c.mu.Lock()
	c.pending = flow
	c.mu.Unlock()

	go func() {
		if serveErr := flow.server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			flow.fail(fmt.Errorf("flow: loopback listener: %w", serveErr))
		}
	}()

	authorizeURL := c.service.AuthServer().AuthorizeURL(state, pkce.Challenge, flow.redirectURI, c.scopes())
	c.logStep("loopback", StateStarted, "loopback flow started", nil)

	return &LoopbackAuth{
		AuthorizeURL: authorizeURL,
		RedirectURI:  flow.redirectURI,
		flow:         flow,
	}, nil
}

func (f *loopbackFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := strings.TrimSpace(query.Get("error")); providerErr != "" {
		detail := providerErr
		if desc := strings.TrimSpace(query.Get("error_description")); desc != "" {
			detail = providerErr + ": " + desc
		}
		f.failCallback(w, core.NewFlowFailedError(fmt.Errorf("flow: provider reported %s", detail), "authorization denied"))
		return
	}

	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		f.failCallback(w, core.NewFlowFailedError(fmt.Errorf("flow: callback carried no authorization code"), "authorization flow failed"))
		return
	}

	// Exact match only; a mismatched state means the code belongs to a
	// different request and must not be exchanged.
	if query.Get("state") != f.state {
		f.failCallback(w, core.NewFlowFailedError(fmt.Errorf("flow: state parameter mismatch"), "authorization flow failed"))
		return
	}
	f.controller.logStep("loopback", StateCodeReceived, "authorization code received", nil)

	user, err := f.controller.runExchange(r.Context(), "loopback", code, f.verifier, f.redirectURI)
	if err != nil {
		f.failCallback(w, err)
		return
	}

	writeCallbackPage(w, http.StatusOK, "Authentication complete",
		fmt.Sprintf("Signed in as @%s. You can close this window.", user.Username))
	f.finish(LoopbackResult{User: user})
}

func (f *loopbackFlow) failCallback(w http.ResponseWriter, err error) {
	writeCallbackPage(w, http.StatusBadRequest, "Authentication failed", err.Error())
	f.finish(LoopbackResult{Err: err})
}

func (f *loopbackFlow) fail(err error) {
	f.complete(LoopbackResult{Err: err}, false)
}

// teardown resolves the flow and closes its listener synchronously, so the
// port is free again when teardown returns.
func (f *loopbackFlow) teardown(err error) {
	f.complete(LoopbackResult{Err: err}, true)
}

// finish delivers the single result and tears the listener down. The first
// caller wins; later calls are no-ops.
func (f *loopbackFlow) finish(result LoopbackResult) {
	f.complete(result, false)
}

func (f *loopbackFlow) complete(result LoopbackResult, immediate bool) {
	f.once.Do(func() {
		f.done <- result
		close(f.done)

		f.controller.mu.Lock()
		if f.controller.pending == f {
			f.controller.pending = nil
		}
		f.controller.mu.Unlock()

		if immediate {
			_ = f.server.Close()
			return
		}
		// The callback handler reaches here while its request is still in
		// flight; a synchronous Shutdown would wait on itself.
		server := f.server
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), loopbackShutdownTimeout)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
	})
}

func writeCallbackPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	safeTitle := html.EscapeString(title)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, safeTitle, safeTitle, html.EscapeString(detail))
}
