package akapi

import (
	"net/http"
	"net/url"
)

// DefaultCSRFCookie is the cookie Django stores the CSRF token in.
const DefaultCSRFCookie = "csrftoken"

// CSRFHeader carries the token on mutating calls.
const CSRFHeader = "X-CSRFToken"

// TokenSource looks up a named token such as the CSRF cookie.
type TokenSource interface {
	Token(name string) (string, bool)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(name string) (string, bool)

func (f TokenSourceFunc) Token(name string) (string, bool) {
	return f(name)
}

// StaticTokens serves tokens from a fixed map.
type StaticTokens map[string]string

func (s StaticTokens) Token(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// CookieTokens reads tokens from the cookies a jar holds for a site.
type CookieTokens struct {
	Jar http.CookieJar
	URL *url.URL
}

func (c CookieTokens) Token(name string) (string, bool) {
	if c.Jar == nil || c.URL == nil {
		return "", false
	}
	for _, cookie := range c.Jar.Cookies(c.URL) {
		if cookie.Name == name {
			return cookie.Value, true
		}
	}
	return "", false
}
