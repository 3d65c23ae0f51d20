// Package oauth implements the browser-based OAuth collaborator: the token
// cache the HTTP transport reads, PKCE, authorization-server discovery, and
// the loopback-callback flow. The core never writes tokens; only this
// package does.
package oauth

import "time"

// Token is the cached credential for one server.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	// ExpiresAt is a Unix timestamp; zero means no known expiry.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Expired reports whether the token has a known expiry in the past, with a
// one-minute skew allowance.
func (t *Token) Expired() bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(time.Minute).Unix() >= t.ExpiresAt
}
