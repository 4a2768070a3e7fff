package session

import (
	"errors"
	"fmt"
	"net/textproto"
	"strings"
)

// ErrMalformedCookieHeader reports a Cookie header that could not be
// parsed into name=value pairs.
var ErrMalformedCookieHeader = errors.New("session: malformed cookie header")

// ParseCookieHeader parses a raw Cookie header into a name->value map.
// A malformed header is a first-class failure, never a partially
// populated map. An empty header yields an empty map.
func ParseCookieHeader(header string) (map[string]string, error) {
	out := make(map[string]string)
	header = textproto.TrimString(header)
	if header == "" {
		return out, nil
	}

	for _, part := range strings.Split(header, ";") {
		part = textproto.TrimString(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty pair", ErrMalformedCookieHeader)
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: pair %q has no '='", ErrMalformedCookieHeader, part)
		}
		name = textproto.TrimString(name)
		if !validCookieName(name) {
			return nil, fmt.Errorf("%w: invalid name %q", ErrMalformedCookieHeader, name)
		}
		// strip optional double quotes around the value
		if len(value) > 1 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		out[name] = value
	}
	return out, nil
}

// validCookieName checks RFC 6265 token characters.
func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
