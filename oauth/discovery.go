package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hydai/mcplug"
)

// ProtectedResource is the RFC 9728 protected-resource metadata an MCP
// server publishes at /.well-known/oauth-protected-resource.
type ProtectedResource struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// ServerMetadata is the RFC 8414 authorization-server metadata.
type ServerMetadata struct {
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// Discover resolves the authorization-server metadata for an MCP base URL:
// first the protected-resource document, then the advertised authorization
// server's own metadata. When the resource document is missing it falls back
// to probing the MCP origin directly.
func Discover(ctx context.Context, client *http.Client, baseURL string) (*ServerMetadata, error) {
	origin, err := originOf(baseURL)
	if err != nil {
		return nil, mcplug.ErrOAuth("invalid base URL: "+err.Error(), err)
	}

	authServer := origin
	var pr ProtectedResource
	if err := fetchJSON(ctx, client, origin+"/.well-known/oauth-protected-resource", &pr); err == nil && len(pr.AuthorizationServers) > 0 {
		authServer = pr.AuthorizationServers[0]
	}

	var meta ServerMetadata
	if err := fetchJSON(ctx, client, authServer+"/.well-known/oauth-authorization-server", &meta); err != nil {
		return nil, mcplug.ErrOAuth("fetch authorization server metadata: "+err.Error(), err)
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return nil, mcplug.ErrOAuth("authorization server metadata missing endpoints", nil)
	}
	return &meta, nil
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
