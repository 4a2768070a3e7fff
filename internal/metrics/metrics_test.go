package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// scrape renders the registry through the /metrics handler.
func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics scrape: %d", rec.Code)
	}
	return rec.Body.String()
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.IncDecision("forbidden")
	m.IncCacheLookup("hit")
	m.IncOriginFetch()
	m.IncVerifyFailure("mismatch")
	m.IncLogin("success")
	m.IncLogout()

	body := scrape(t, m)
	for _, want := range []string{
		`gateway_decisions_total{outcome="forbidden"} 1`,
		`gateway_cache_lookups_total{result="hit"} 1`,
		`gateway_origin_fetches_total 1`,
		`verify_failures_total{kind="mismatch"} 1`,
		`login_attempts_total{result="success"} 1`,
		`logout_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMiddleware_CountsRequests(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/some/page", nil))

	body := scrape(t, m)
	if !strings.Contains(body, `http_requests_total{method="GET",route="proxy",status="418"} 1`) {
		t.Errorf("request counter missing:\n%s", body)
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	m.SetBuildInfo("gateward", "1.2.3", "go1.24")
	if !strings.Contains(scrape(t, m), `build_info{app="gateward",go_version="go1.24",version="1.2.3"} 1`) {
		t.Error("build_info gauge missing")
	}
}
