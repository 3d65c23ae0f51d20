package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"
)

func TestPKCE(t *testing.T) {
	p, err := NewPKCE()
	if err != nil {
		t.Fatal(err)
	}
	if p.Verifier == "" || p.Challenge == "" {
		t.Fatal("empty PKCE pair")
	}

	sum := sha256.Sum256([]byte(p.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if p.Challenge != want {
		t.Errorf("challenge is not S256 of the verifier")
	}

	q, err := NewPKCE()
	if err != nil {
		t.Fatal(err)
	}
	if q.Verifier == p.Verifier {
		t.Error("two verifiers are identical")
	}
}

func TestTokenExpired(t *testing.T) {
	if (&Token{}).Expired() {
		t.Error("token without expiry reported expired")
	}
	past := &Token{ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	if !past.Expired() {
		t.Error("expired token reported valid")
	}
	// Inside the one-minute skew window counts as expired.
	soon := &Token{ExpiresAt: time.Now().Add(30 * time.Second).Unix()}
	if !soon.Expired() {
		t.Error("token expiring within the skew window reported valid")
	}
	later := &Token{ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if later.Expired() {
		t.Error("fresh token reported expired")
	}
}

func TestTokenCacheRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if tok := LoadToken("srv"); tok != nil {
		t.Fatalf("empty cache returned %+v", tok)
	}

	want := &Token{AccessToken: "abc", TokenType: "Bearer", RefreshToken: "r1"}
	if err := SaveToken("srv", want); err != nil {
		t.Fatal(err)
	}

	if got := CachePath("srv"); got != filepath.Join(home, ".mcplug", "srv", "tokens.json") {
		t.Errorf("CachePath = %q", got)
	}

	got := LoadToken("srv")
	if got == nil || got.AccessToken != "abc" || got.RefreshToken != "r1" {
		t.Errorf("LoadToken = %+v", got)
	}

	// A second server's cache is independent.
	if tok := LoadToken("other"); tok != nil {
		t.Errorf("cross-server cache leak: %+v", tok)
	}
}

func TestDiscover(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"resource":%q,"authorization_servers":[%q]}`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"authorization_endpoint":"%s/authorize","token_endpoint":"%s/token"}`, srv.URL, srv.URL)
	})

	meta, err := Discover(context.Background(), srv.Client(), srv.URL+"/mcp")
	if err != nil {
		t.Fatal(err)
	}
	if meta.AuthorizationEndpoint != srv.URL+"/authorize" || meta.TokenEndpoint != srv.URL+"/token" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestDiscoverMissingMetadata(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := Discover(context.Background(), srv.Client(), srv.URL+"/mcp"); err == nil {
		t.Fatal("discovery succeeded against a bare server")
	}
}

func TestFlowRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"authorization_endpoint":"%s/authorize","token_endpoint":"%s/token"}`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.Form.Get("code") != "test-code" || r.Form.Get("code_verifier") == "" {
			http.Error(w, "bad exchange", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"access_token":"granted","token_type":"Bearer","expires_in":3600}`)
	})

	// The fake browser: parse the authorization URL and immediately hit the
	// loopback callback with a code and the same state.
	browser := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		redirect := q.Get("redirect_uri") + "?code=test-code&state=" + url.QueryEscape(q.Get("state"))
		go http.Get(redirect)
		return nil
	}

	flow := NewFlow("srv", srv.URL+"/mcp", WithOpenBrowser(browser))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := flow.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tok.AccessToken != "granted" {
		t.Errorf("token = %+v", tok)
	}
	if tok.ExpiresAt == 0 {
		t.Error("expires_in was not converted to an absolute expiry")
	}

	// The flow persists the token where the HTTP transport reads it.
	cached := LoadToken("srv")
	if cached == nil || cached.AccessToken != "granted" {
		t.Errorf("cache after flow = %+v", cached)
	}
}

func TestFlowStateMismatch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"authorization_endpoint":"%s/authorize","token_endpoint":"%s/token"}`, srv.URL, srv.URL)
	})

	browser := func(authURL string) error {
		u, _ := url.Parse(authURL)
		redirect := u.Query().Get("redirect_uri") + "?code=x&state=wrong"
		go http.Get(redirect)
		return nil
	}

	flow := NewFlow("srv", srv.URL+"/mcp", WithOpenBrowser(browser))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := flow.Run(ctx); err == nil {
		t.Fatal("state mismatch accepted")
	}
}
