package authserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-auth-broker/core"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config points the client at the vendor's fixed authorization server
// endpoints. The client never invents endpoints; everything comes from here.
type Config struct {
	ClientID           string
	ClientSecret       string
	AuthorizeURL       string
	TokenURL           string
	IdentityURL        string
	ClientSecretInBody bool
	RequestTimeout     time.Duration
	HTTPClient         HTTPDoer
}

// Client implements the token and identity endpoints of the authorization
// server: authorization_code + PKCE exchange, refresh_token grant, and
// bearer identity lookup.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AuthorizeURL = strings.TrimSpace(cfg.AuthorizeURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.IdentityURL = strings.TrimSpace(cfg.IdentityURL)

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("authserver: client id is required")
	}
	if cfg.AuthorizeURL == "" {
		return nil, fmt.Errorf("authserver: authorize url is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("authserver: token url is required")
	}
	if cfg.IdentityURL == "" {
		return nil, fmt.Errorf("authserver: identity url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// NewClientFromOAuthConfig adapts the broker's runtime config section.
func NewClientFromOAuthConfig(cfg core.OAuthConfig) (*Client, error) {
	return NewClient(Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		IdentityURL:  cfg.IdentityURL,
	})
}

// AuthorizeURL builds the user-facing authorization URL with a PKCE S256
// challenge and opaque state.
func (c *Client) AuthorizeURL(state string, codeChallenge string, redirectURI string, scopes []string) string {
	if c == nil {
		return ""
	}
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.ClientID)
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	if len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, " "))
	}
	values.Set("state", strings.TrimSpace(state))
	values.Set("code_challenge", strings.TrimSpace(codeChallenge))
	values.Set("code_challenge_method", "S256")

	authorizeURL := c.cfg.AuthorizeURL
	if strings.Contains(authorizeURL, "?") {
		return authorizeURL + "&" + values.Encode()
	}
	return authorizeURL + "?" + values.Encode()
}

// ExchangeCode redeems an authorization code with its PKCE verifier.
func (c *Client) ExchangeCode(ctx context.Context, code string, codeVerifier string, redirectURI string) (core.TokenGrant, error) {
	if c == nil {
		return core.TokenGrant{}, fmt.Errorf("authserver: client is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenGrant{}, fmt.Errorf("authserver: authorization code is required")
	}
	codeVerifier = strings.TrimSpace(codeVerifier)
	if codeVerifier == "" {
		return core.TokenGrant{}, fmt.Errorf("authserver: code verifier is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return grantFromPayload(payload), nil
}

// RefreshToken redeems a refresh token for a new grant.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	if c == nil {
		return core.TokenGrant{}, fmt.Errorf("authserver: client is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, fmt.Errorf("authserver: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return grantFromPayload(payload), nil
}

// FetchIdentity resolves the authenticated account behind an access token.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (core.ExternalIdentity, error) {
	if c == nil {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: client is nil")
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: access token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, c.cfg.IdentityURL, nil)
	if err != nil {
		return core.ExternalIdentity{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: identity request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: read identity response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: identity response exceeds %d bytes", maxResponseBodyBytes)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: identity endpoint returned status %d", response.StatusCode)
	}

	identity, err := parseIdentityPayload(body)
	if err != nil {
		return core.ExternalIdentity{}, err
	}
	return identity, nil
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if c.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecretInBody && c.cfg.ClientSecret != "" {
		values.Set("client_secret", c.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !c.cfg.ClientSecretInBody && c.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: read token response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: token response exceeds %d bytes", maxResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, fmt.Errorf(
			"authserver: token endpoint error (%d): %s",
			response.StatusCode,
			describeTokenError(payload),
		)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: token endpoint error: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("authserver: token endpoint response missing access token")
	}
	return payload, nil
}

func grantFromPayload(payload tokenEndpointPayload) core.TokenGrant {
	return core.TokenGrant{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		Scope:        strings.TrimSpace(payload.Scope),
		ExpiresIn:    payload.ExpiresIn,
		TokenType:    normalizeTokenType(payload.TokenType),
	}
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

// parseIdentityPayload accepts both enveloped ({"data":{...}}) and flat
// identity responses.
func parseIdentityPayload(body []byte) (core.ExternalIdentity, error) {
	var decoded struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"data"`
		ID       string `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: decode identity response: %w", err)
	}

	identity := core.ExternalIdentity{
		ID:          strings.TrimSpace(decoded.Data.ID),
		Username:    strings.TrimSpace(decoded.Data.Username),
		DisplayName: strings.TrimSpace(decoded.Data.Name),
	}
	if identity.ID == "" {
		identity = core.ExternalIdentity{
			ID:          strings.TrimSpace(decoded.ID),
			Username:    strings.TrimSpace(decoded.Username),
			DisplayName: strings.TrimSpace(decoded.Name),
		}
	}
	if identity.ID == "" {
		return core.ExternalIdentity{}, fmt.Errorf("authserver: identity response missing account id")
	}
	return identity, nil
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.AuthServerClient = (*Client)(nil)
