// Package session defines the session descriptor carried by the cookie
// pair and the helpers that set, clear, and read those cookies.
package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gateward/gateward/internal/access"
)

// expiredTime backs Max-Age=0 for clients that only honor Expires.
var expiredTime = time.Unix(0, 0)

// Cookie names. VerificationCookie holds the encrypted token and is
// HttpOnly; UserDataCookie holds the URL-encoded canonical JSON of the
// descriptor and is readable by client code.
const (
	VerificationCookie = "access_verification"
	UserDataCookie     = "user_data"

	// MaxAge is the natural cookie lifetime: 24 hours.
	MaxAge = 86400
)

// Descriptor is the authenticated facts about a user. It is produced at
// login, carried verbatim inside both cookies, and never mutated.
type Descriptor struct {
	UserID   string       `json:"userId"`
	Email    string       `json:"email"`
	UserName string       `json:"userName"`
	Level    access.Level `json:"level"`
}

// CanonicalJSON is the byte-exact serialization carried in both cookies
// and compared during verification. Field order is fixed by the struct.
func (d Descriptor) CanonicalJSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CookieWriter sets and clears the session cookie pair. The two cookies
// are always written together; the system never treats one as valid
// without the other.
type CookieWriter struct {
	// Secure should only be false for local development over plain http.
	Secure bool
}

// Set writes both session cookies with the standard attributes.
func (cw CookieWriter) Set(w http.ResponseWriter, verificationToken, canonicalUserData string) {
	http.SetCookie(w, &http.Cookie{
		Name:     VerificationCookie,
		Value:    verificationToken,
		Path:     "/",
		MaxAge:   MaxAge,
		HttpOnly: true,
		Secure:   cw.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     UserDataCookie,
		Value:    url.QueryEscape(canonicalUserData),
		Path:     "/",
		MaxAge:   MaxAge,
		Secure:   cw.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear expires both cookies. Idempotent: re-clearing an already cleared
// session produces the same observable effect. MaxAge -1 serializes as
// Max-Age=0 on the wire; the epoch Expires covers legacy clients.
func (cw CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     VerificationCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  expiredTime,
		HttpOnly: true,
		Secure:   cw.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     UserDataCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  expiredTime,
		Secure:   cw.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// DescriptorFromCookie URL-decodes and JSON-parses a user_data cookie
// value into a Descriptor.
func DescriptorFromCookie(value string) (Descriptor, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return Descriptor{}, err
	}
	var d Descriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// UserDataFromRequest is the read-only accessor page-rendering blocks
// consume. It returns the descriptor from the request's user_data cookie,
// or false when the cookie is absent or unparseable. It performs no
// verification and must never feed a security decision.
func UserDataFromRequest(r *http.Request) (Descriptor, bool) {
	c, err := r.Cookie(UserDataCookie)
	if err != nil {
		return Descriptor{}, false
	}
	d, err := DescriptorFromCookie(c.Value)
	if err != nil {
		return Descriptor{}, false
	}
	return d, true
}
