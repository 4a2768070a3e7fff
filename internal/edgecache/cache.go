// Package edgecache is the shared key-value store the edge gateway reads
// and writes. Entries are full origin responses keyed by request URL.
//
// The cache gives no consistency guarantee: writes happen on the
// fire-and-forget path after the response has already been returned, and
// concurrent misses for the same URL may each fetch the origin. The only
// contract is "a stored entry may be served instead of an origin fetch".
package edgecache

import (
	"context"
	"net/http"
)

// Entry is a captured origin response, including the protection-marker
// header.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Clone returns a deep copy so callers can mutate headers without
// corrupting the stored entry.
func (e *Entry) Clone() *Entry {
	cp := &Entry{
		Status: e.Status,
		Header: make(http.Header, len(e.Header)),
		Body:   make([]byte, len(e.Body)),
	}
	for k, v := range e.Header {
		vv := make([]string, len(v))
		copy(vv, v)
		cp.Header[k] = vv
	}
	copy(cp.Body, e.Body)
	return cp
}

// Cache stores origin responses by URL.
type Cache interface {
	// Get returns the entry for key, a hit flag, and any backend error.
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Put stores an entry for key.
	Put(ctx context.Context, key string, e *Entry) error
}
