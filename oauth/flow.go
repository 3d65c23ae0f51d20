package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hydai/mcplug"
)

const (
	callbackHost = "127.0.0.1"
	callbackPath = "/callback"
	clientID     = "mcplug"
)

// FlowOption configures an authorization flow.
type FlowOption func(*Flow)

// WithLogger sets a structured logger for flow progress.
func WithLogger(l *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = l }
}

// WithOpenBrowser overrides how the authorization URL is presented to the
// user. The default launches the platform browser.
func WithOpenBrowser(open func(url string) error) FlowOption {
	return func(f *Flow) { f.openBrowser = open }
}

// Flow runs the authorization-code + PKCE browser flow for one server and
// persists the resulting token in the cache.
type Flow struct {
	server      string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
	openBrowser func(url string) error
}

// NewFlow builds a flow for the named server's MCP base URL.
func NewFlow(server, baseURL string, opts ...FlowOption) *Flow {
	f := &Flow{
		server:      server,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 60 * time.Second},
		openBrowser: openBrowser,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Run drives the full flow: discovery, browser authorization with a loopback
// callback, code exchange, and cache write. It blocks until the callback
// arrives or ctx is cancelled.
func (f *Flow) Run(ctx context.Context) (*Token, error) {
	meta, err := Discover(ctx, f.client, f.baseURL)
	if err != nil {
		return nil, err
	}

	pkce, err := NewPKCE()
	if err != nil {
		return nil, mcplug.ErrOAuth("generate PKCE verifier: "+err.Error(), err)
	}
	state := uuid.NewString()

	listener, err := net.Listen("tcp", callbackHost+":0")
	if err != nil {
		return nil, mcplug.ErrOAuth("start callback listener: "+err.Error(), err)
	}
	defer listener.Close()
	redirectURI := fmt.Sprintf("http://%s%s", listener.Addr().String(), callbackPath)

	authURL := buildAuthURL(meta.AuthorizationEndpoint, redirectURI, state, pkce.Challenge)
	if f.logger != nil {
		f.logger.Info("oauth: opening browser", "server", f.server, "url", authURL)
	}
	if err := f.openBrowser(authURL); err != nil {
		return nil, mcplug.ErrOAuth("open browser: "+err.Error(), err)
	}

	code, err := waitCallback(ctx, listener, state)
	if err != nil {
		return nil, err
	}

	tok, err := f.exchange(ctx, meta.TokenEndpoint, code, redirectURI, pkce.Verifier)
	if err != nil {
		return nil, err
	}

	if err := SaveToken(f.server, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func buildAuthURL(endpoint, redirectURI, state, challenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}

// waitCallback serves exactly one authorization callback on the listener and
// returns the authorization code.
func waitCallback(ctx context.Context, listener net.Listener, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != callbackPath {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			if q.Get("state") != state {
				ch <- result{err: mcplug.ErrOAuth("authorization callback state mismatch", nil)}
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			if errCode := q.Get("error"); errCode != "" {
				ch <- result{err: mcplug.ErrOAuth("authorization denied: "+errCode, nil)}
				http.Error(w, "authorization failed", http.StatusBadRequest)
				return
			}
			code := q.Get("code")
			if code == "" {
				ch <- result{err: mcplug.ErrOAuth("authorization callback missing code", nil)}
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this tab.")
			ch <- result{code: code}
		}),
	}
	go server.Serve(listener)
	defer server.Close()

	select {
	case res := <-ch:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exchange trades the authorization code for tokens.
func (f *Flow) exchange(ctx context.Context, tokenEndpoint, code, redirectURI, verifier string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, mcplug.ErrOAuth("build token request: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, mcplug.ErrOAuth("token exchange: "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, mcplug.ErrOAuth(fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, body), nil)
	}

	var wire struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, mcplug.ErrOAuth("decode token response: "+err.Error(), err)
	}
	if wire.AccessToken == "" {
		return nil, mcplug.ErrOAuth("token response missing access_token", nil)
	}

	tok := &Token{
		AccessToken:  wire.AccessToken,
		RefreshToken: wire.RefreshToken,
		TokenType:    wire.TokenType,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if wire.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Unix() + wire.ExpiresIn
	}
	return tok, nil
}

// openBrowser launches the platform browser at url.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
