package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateward/gateward/internal/health"
	"github.com/gateward/gateward/internal/log"
)

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startOps(t *testing.T, opts Options) int {
	t.Helper()
	if opts.Port == 0 {
		opts.Port = getFreePort(t)
	}
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { stop(ctx) })
	return opts.Port
}

func opsGet(t *testing.T, port int, path string) *http.Response {
	t.Helper()
	addr := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	resp, err := http.Get(addr)
	if err != nil {
		t.Fatalf("GET %s: %v", addr, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestHealthEndpoints(t *testing.T) {
	port := startOps(t, Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "warming up"),
	})

	resp := opsGet(t, port, "/-/healthy")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/-/healthy status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = opsGet(t, port, "/-/ready")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/-/ready status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(body, "warming up") {
		t.Fatalf("/-/ready body = %q, want reason", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ops_test_total"})
	reg.MustRegister(c)
	c.Inc()

	port := startOps(t, Options{
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(true, ""),
	})

	resp := opsGet(t, port, "/metrics")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "ops_test_total 1") {
		t.Fatalf("/metrics body missing counter:\n%s", body)
	}
}

func TestPprofDisabledIsNotFound(t *testing.T) {
	port := startOps(t, Options{
		EnablePprof: false,
		Health:      health.Fixed(true, ""),
		Readiness:   health.Fixed(true, ""),
	})

	resp := opsGet(t, port, "/debug/pprof/")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/debug/pprof/ status = %d, want 404 when disabled", resp.StatusCode)
	}
}

func TestPprofEnabled(t *testing.T) {
	port := startOps(t, Options{
		EnablePprof: true,
		Health:      health.Fixed(true, ""),
		Readiness:   health.Fixed(true, ""),
	})

	resp := opsGet(t, port, "/debug/pprof/")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/debug/pprof/ status = %d, want 200 when enabled", resp.StatusCode)
	}
}

func TestStop_Idempotent(t *testing.T) {
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), Options{Port: getFreePort(t)})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
