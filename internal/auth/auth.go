// Package auth implements static API key authentication for the HTTP
// surface. Keys are compared in constant time.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authenticator validates bearer tokens against the configured keys.
type Authenticator struct {
	apiKey   []byte
	adminKey []byte
}

// New creates an authenticator. An empty apiKey disables request auth;
// an empty adminKey disables admin endpoints outright.
func New(apiKey, adminKey string) *Authenticator {
	return &Authenticator{apiKey: []byte(apiKey), adminKey: []byte(adminKey)}
}

// Authorize reports whether r carries a valid request key.
func (a *Authenticator) Authorize(r *http.Request) bool {
	if len(a.apiKey) == 0 {
		return true
	}
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), a.apiKey) == 1
}

// AuthorizeAdmin reports whether r carries the admin key. Admin access is
// never open: no configured key means no admin surface.
func (a *Authenticator) AuthorizeAdmin(r *http.Request) bool {
	if len(a.adminKey) == 0 {
		return false
	}
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), a.adminKey) == 1
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
