package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/config"
	"github.com/ehr/healthmetrics/internal/domain/alerting"
	"github.com/ehr/healthmetrics/internal/domain/metrics"
	"github.com/ehr/healthmetrics/internal/domain/monitoring"
	"github.com/ehr/healthmetrics/internal/platform/cache"
	"github.com/ehr/healthmetrics/internal/platform/db"
	"github.com/ehr/healthmetrics/internal/platform/websocket"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:            env,
		DatabaseURL:    "postgres://unused",
		AuthSigningKey: "test-signing-key",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		RequestTimeout: 5 * time.Second,
		RollupTimeout:  5 * time.Second,
		RollupCacheTTL: 30 * time.Second,
	}
}

// testHandlers wires the HTTP surface without stores. Only routes that never
// reach a repository are exercised here.
func testHandlers() handlers {
	logger := zerolog.Nop()
	ranges := metrics.DefaultRangeTable()
	emitter := alerting.NewEmitter(nil, ranges, alerting.MetricPolicy(0), alerting.EventPolicy(2*time.Minute), logger)
	return handlers{
		metrics:    metrics.NewHandler(metrics.NewService(nil, ranges, logger)),
		alerts:     alerting.NewHandler(alerting.NewService(nil, logger), emitter),
		monitoring: monitoring.NewHandler(monitoring.NewEngine(nil, ranges, time.Second, logger), cache.NewMemoryStore(), time.Minute, logger),
		ws:         websocket.NewHandler(websocket.NewHub(logger), nil),
	}
}

func serve(t *testing.T, env, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := newServer(testConfig(env), zerolog.Nop(), testHandlers())
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthIsPublic(t *testing.T) {
	rec := serve(t, "production", http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("expected version in body, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_MetricsIsPublic(t *testing.T) {
	rec := serve(t, "production", http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_APIRequiresToken(t *testing.T) {
	rec := serve(t, "production", http.MethodGet, "/api/v1/metric-types", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServer_DevAuthDefaultsToAdmin(t *testing.T) {
	rec := serve(t, "development", http.MethodGet, "/api/v1/metric-types", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "glucose") {
		t.Errorf("expected catalog in body, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("expected api routes to be rate limited, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestServer_FleetRollupRequiresStaff(t *testing.T) {
	rec := serve(t, "development", http.MethodGet, "/api/v1/fleet/rollup", map[string]string{
		"X-Dev-User":  "8d6f8c52-52c5-4d43-9a7e-7f1d7f3f1b1e",
		"X-Dev-Roles": "patient",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServer_RoutesRegistered(t *testing.T) {
	e := newServer(testConfig("development"), zerolog.Nop(), testHandlers())

	want := map[string]bool{
		"POST /api/v1/subjects/:subject_id/metrics":       false,
		"GET /api/v1/subjects/:subject_id/metrics/latest": false,
		"POST /api/v1/subjects/:subject_id/evaluations":   false,
		"POST /api/v1/alerts/:id/acknowledge":             false,
		"POST /api/v1/alerts/:id/resolve":                 false,
		"POST /api/v1/alerts/:id/dismiss":                 false,
		"POST /api/v1/alerts/:id/read":                    false,
		"POST /api/v1/alerts/events":                      false,
		"GET /api/v1/subjects/:subject_id/status":         false,
		"GET /api/v1/fleet/rollup":                        false,
		"GET /ws/alerts":                                  false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestRateLimitConfig(t *testing.T) {
	cfg := testConfig("production")
	cfg.RateLimitRPS = 5
	cfg.RateLimitBurst = 0

	rl := rateLimitConfig(cfg)
	if rl.RequestsPerSecond != 5 {
		t.Errorf("expected 5 rps, got %v", rl.RequestsPerSecond)
	}
	if rl.BurstSize != 200 {
		t.Errorf("expected default burst 200, got %d", rl.BurstSize)
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_health_metrics.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})

	out := buf.String()
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2026-03-01 10:00:00") {
		t.Errorf("expected applied row, got:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected pending row, got:\n%s", out)
	}
}
