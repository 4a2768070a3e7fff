// Package gateway is the request-time decision point in front of the
// CMS origin. Each request runs a fixed state machine: fetch (cache or
// origin), protection check, cookie extraction, descriptor parse,
// verification round trip, authorization. Every ambiguous or failing
// step on the verification path denies - the gateway never fails open.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gateward/gateward/internal/access"
	"github.com/gateward/gateward/internal/edgecache"
	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/session"
)

// ProtectionHeader is the origin response header declaring the minimum
// access level required to view a resource. Absent or "public" means
// unprotected.
const ProtectionHeader = "X-Access-Level"

// Decision outcomes, used for logs and metrics labels.
const (
	OutcomeAllowed         = "allowed"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeForbidden       = "forbidden"
)

// Recorder is the metrics surface the gateway increments.
type Recorder interface {
	IncDecision(outcome string)
	IncCacheLookup(result string)
	IncOriginFetch()
	IncOriginError()
}

type nopRecorder struct{}

func (nopRecorder) IncDecision(string)    {}
func (nopRecorder) IncCacheLookup(string) {}
func (nopRecorder) IncOriginFetch()       {}
func (nopRecorder) IncOriginError()       {}

type Options struct {
	Logger log.Logger
	// Origin is the CMS origin base URL; request paths are resolved
	// against it.
	Origin *url.URL
	// Cache is the shared edge cache. Writes are fire-and-forget.
	Cache edgecache.Cache
	// Verifier confirms tokens. Required.
	Verifier Verifier
	// LoginURL receives unauthenticated redirects, with the original
	// request URL as ?returnUrl=. Default "/login".
	LoginURL string
	// Client fetches from the origin. Defaults to a 10s-timeout client.
	Client *http.Client
	// Metrics is optional.
	Metrics Recorder
	// CacheWriteTimeout bounds the background cache write. Default 5s.
	CacheWriteTimeout time.Duration
}

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	if opts.Origin == nil {
		return nil, errors.New("gateway: Origin is nil")
	}
	if opts.Cache == nil {
		return nil, errors.New("gateway: Cache is nil")
	}
	if opts.Verifier == nil {
		return nil, errors.New("gateway: Verifier is nil")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.LoginURL == "" {
		opts.LoginURL = "/login"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.CacheWriteTimeout <= 0 {
		opts.CacheWriteTimeout = 5 * time.Second
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	L := log.FromContext(ctx)
	m := h.opts.Metrics

	// 1. fetch: cache lookup, origin on miss
	entry, err := h.fetch(ctx, r)
	if err != nil {
		m.IncOriginError()
		L.Error(ctx, err, "origin fetch failed")
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	// 2. protection check: absent or public means unprotected
	required := access.Level(entry.Header.Get(ProtectionHeader))
	if required == "" || access.Rank(required) == access.Rank(access.Public) {
		m.IncDecision(OutcomeAllowed)
		writeEntry(w, r, entry)
		return
	}

	// 3. cookie extraction: a missing verification cookie or a malformed
	// Cookie header both deny
	cookies, err := session.ParseCookieHeader(r.Header.Get("Cookie"))
	if err != nil {
		h.redirectToLogin(w, r, "malformed cookie header")
		return
	}
	verification, ok := cookies[session.VerificationCookie]
	if !ok || verification == "" {
		h.redirectToLogin(w, r, "no verification cookie")
		return
	}

	// 4. descriptor parse
	userData, ok := cookies[session.UserDataCookie]
	if !ok {
		h.redirectToLogin(w, r, "no user_data cookie")
		return
	}
	desc, err := session.DescriptorFromCookie(userData)
	if err != nil {
		h.redirectToLogin(w, r, "unparseable user_data cookie")
		return
	}

	// 5. verification round trip: transport failures, timeouts, and
	// non-200 answers all land here as a deny (fail closed)
	if !h.opts.Verifier.Verify(ctx, verification, desc) {
		h.redirectToLogin(w, r, "verification failed")
		return
	}

	// 6. authorization
	if !access.HasAccess(desc.Level, required) {
		m.IncDecision(OutcomeForbidden)
		L.Info(ctx, "access forbidden",
			"user_id", desc.UserID,
			"user_level", desc.Level,
			"required_level", required,
		)
		// a forbidden decision must never be cached: the next requester
		// might be authorized
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	m.IncDecision(OutcomeAllowed)
	writeEntry(w, r, entry)
}

// fetch returns the cached entry for the request URL, or fetches it from
// the origin and schedules a background cache write. Concurrent misses
// may each hit the origin; there is deliberately no single-flight.
func (h *Handler) fetch(ctx context.Context, r *http.Request) (*edgecache.Entry, error) {
	m := h.opts.Metrics
	key := h.originURL(r)

	entry, hit, err := h.opts.Cache.Get(ctx, key)
	if err != nil {
		// a broken cache backend degrades to a miss, not an outage
		m.IncCacheLookup("error")
		log.FromContext(ctx).Warn(ctx, "cache lookup failed", "err", err.Error())
	} else if hit {
		m.IncCacheLookup("hit")
		return entry, nil
	} else {
		m.IncCacheLookup("miss")
	}

	entry, err = h.fetchOrigin(ctx, r, key)
	if err != nil {
		return nil, err
	}

	// fire-and-forget: the response is returned without waiting for the
	// cache write, so there is no read-after-write guarantee
	go func(e *edgecache.Entry) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.CacheWriteTimeout)
		defer cancel()
		if err := h.opts.Cache.Put(wctx, key, e); err != nil {
			h.opts.Logger.Warn(wctx, "cache write failed", "key", key, "err", err.Error())
		}
	}(entry.Clone())

	return entry, nil
}

// originURL substitutes the origin host, keeping path and query. It also
// serves as the cache key.
func (h *Handler) originURL(r *http.Request) string {
	u := *h.opts.Origin
	u.Path = r.URL.Path
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

func (h *Handler) fetchOrigin(ctx context.Context, r *http.Request, fetchURL string) (*edgecache.Entry, error) {
	h.opts.Metrics.IncOriginFetch()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &edgecache.Entry{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// redirectToLogin is the Unauthenticated terminal state: 302 to the
// login URL carrying the original request URL as returnUrl.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, reason string) {
	h.opts.Metrics.IncDecision(OutcomeUnauthenticated)
	log.FromContext(r.Context()).Info(r.Context(), "unauthenticated request to protected resource",
		"reason", reason,
	)
	target := h.opts.LoginURL + "?returnUrl=" + url.QueryEscape(r.URL.RequestURI())
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// writeEntry is the Allowed terminal state: the cached or fresh origin
// response, unmodified.
func writeEntry(w http.ResponseWriter, r *http.Request, e *edgecache.Entry) {
	for k, vv := range e.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(e.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(e.Body)
	}
}
