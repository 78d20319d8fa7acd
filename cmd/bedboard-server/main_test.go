package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/bedboard/internal/config"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
	"github.com/ehr/bedboard/internal/platform/websocket"
)

const testKey = "test-signing-key-0123456789abcdef0123"

// testServer wires the full route table without a database. Only requests
// rejected before reaching a repository are safe to send.
func testServer(t *testing.T) (*echo.Echo, *auth.TokenIssuer) {
	t.Helper()
	cfg := &config.Config{
		Env:                         "test",
		AuthSigningKey:              testKey,
		AuthIssuer:                  "bedboard",
		SessionTTL:                  time.Hour,
		RateLimitRPS:                1000,
		RateLimitBurst:              1000,
		LongStayDays:                15,
		ReadmissionWindowDays:       30,
		DischargeJustificationAfter: 5 * time.Hour,
	}
	in := &infra{cfg: cfg, logger: zerolog.Nop(), loc: time.UTC}
	svc := buildServices(in, changefeed.Discard, nil)

	authCfg := auth.MiddlewareConfig{
		Issuer:  svc.issuer,
		Skipper: auth.AuthSkipper,
		Logger:  zerolog.Nop(),
	}
	e := newEcho(cfg, zerolog.Nop())
	registerRoutes(e.Group("/api/v1"), cfg, authCfg, svc, websocket.NewHub(zerolog.Nop()))
	return e, svc.issuer
}

func TestRegisterRoutes_MountsAPI(t *testing.T) {
	e, _ := testServer(t)

	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /api/v1/beds",
		"POST /api/v1/beds/:id/admit",
		"POST /api/v1/beds/:id/transfer",
		"POST /api/v1/beds",
		"POST /api/v1/discharge-controls",
		"GET /api/v1/alerts/long-stay",
		"PUT /api/v1/alerts/investigations/:key",
		"POST /api/v1/ambulance-requests/:id/confirm",
		"POST /api/v1/auth/sign-in",
		"PATCH /api/v1/admin/users/:id",
		"GET /api/v1/reports/:name",
		"GET /api/v1/ws",
		"POST /api/v1/admin/seed",
	}
	for _, route := range want {
		if !have[route] {
			t.Errorf("route %q not registered", route)
		}
	}
}

func TestRegisterRoutes_NoSeedInProduction(t *testing.T) {
	cfg := &config.Config{Env: "production", RateLimitRPS: 10, RateLimitBurst: 10, AuthSigningKey: testKey}
	in := &infra{cfg: cfg, logger: zerolog.Nop(), loc: time.UTC}
	svc := buildServices(in, changefeed.Discard, nil)

	e := echo.New()
	registerRoutes(e.Group("/api/v1"), cfg, auth.MiddlewareConfig{Issuer: svc.issuer}, svc, websocket.NewHub(zerolog.Nop()))

	for _, r := range e.Routes() {
		if r.Path == "/api/v1/admin/seed" {
			t.Fatal("seed route must not be mounted in production")
		}
	}
}

func TestRegisterRoutes_RequiresSession(t *testing.T) {
	e, _ := testServer(t)

	for _, path := range []string{"/api/v1/beds", "/api/v1/alerts/long-stay", "/api/v1/reports/departments"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestRegisterRoutes_SeedIsAdminOnly(t *testing.T) {
	e, issuer := testServer(t)

	token, _, err := issuer.Issue(auth.Principal{
		UserID: "7d3b1f0e-0a8e-4d55-9b7e-0c1f3b7a2a11",
		Email:  "nurse@example.org",
		Role:   auth.RoleUser,
		Active: true,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/seed", strings.NewReader(`{"demoPatients":5}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewEcho_SecurityHeaders(t *testing.T) {
	e, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/beds", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options on every response")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id")
	}
}

func newUserCreateCmd(args ...string) *cobra.Command {
	cmd := userCmd()
	create, _, _ := cmd.Find([]string{"create"})
	_ = create.Flags().Parse(args)
	return create
}

func TestUserInputFromFlags(t *testing.T) {
	t.Setenv(passwordEnv, "")

	cmd := newUserCreateCmd("--email", "admin@example.org", "--name", "Admin", "--password", "s3cret-pass", "--role", "admin")
	in, err := userInputFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Email != "admin@example.org" || in.Name != "Admin" || in.Role != auth.RoleAdmin || in.Password != "s3cret-pass" {
		t.Errorf("unexpected input: %+v", in)
	}
}

func TestUserInputFromFlags_PasswordFromEnv(t *testing.T) {
	t.Setenv(passwordEnv, "from-the-env")

	in, err := userInputFromFlags(newUserCreateCmd("--email", "a@example.org", "--name", "A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Password != "from-the-env" {
		t.Errorf("expected password from env, got %q", in.Password)
	}
	if in.Role != auth.RoleUser {
		t.Errorf("expected default role %q, got %q", auth.RoleUser, in.Role)
	}
}

func TestUserInputFromFlags_NoPassword(t *testing.T) {
	t.Setenv(passwordEnv, "")

	if _, err := userInputFromFlags(newUserCreateCmd("--email", "a@example.org", "--name", "A")); err == nil {
		t.Fatal("expected error without a password")
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "beds", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "discharge_controls"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-03-01 08:30:00") {
		t.Errorf("unexpected applied row: %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row: %q", lines[3])
	}
}
