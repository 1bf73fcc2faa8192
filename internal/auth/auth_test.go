package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func request(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthorize(t *testing.T) {
	a := New("request-key", "admin-key")

	if !a.Authorize(request("request-key")) {
		t.Error("valid key rejected")
	}
	if a.Authorize(request("wrong")) {
		t.Error("wrong key accepted")
	}
	if a.Authorize(request("")) {
		t.Error("missing header accepted")
	}
	if a.Authorize(request("admin-key")) {
		t.Error("admin key must not open the request surface")
	}
}

func TestAuthorize_OpenWhenUnconfigured(t *testing.T) {
	a := New("", "")
	if !a.Authorize(request("")) {
		t.Error("empty api key should disable request auth")
	}
	if a.AuthorizeAdmin(request("anything")) {
		t.Error("empty admin key must keep the admin surface closed")
	}
}

func TestAuthorizeAdmin(t *testing.T) {
	a := New("request-key", "admin-key")
	if !a.AuthorizeAdmin(request("admin-key")) {
		t.Error("valid admin key rejected")
	}
	if a.AuthorizeAdmin(request("request-key")) {
		t.Error("request key accepted on admin surface")
	}
}

func TestBearerToken_Format(t *testing.T) {
	a := New("key", "")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic a2V5")
	if a.Authorize(r) {
		t.Error("non-bearer scheme accepted")
	}
}
