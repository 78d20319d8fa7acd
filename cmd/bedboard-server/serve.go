package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/bedboard/internal/config"
	"github.com/ehr/bedboard/internal/domain/alert"
	"github.com/ehr/bedboard/internal/domain/ambulance"
	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/domain/discharge"
	"github.com/ehr/bedboard/internal/domain/identity"
	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
	"github.com/ehr/bedboard/internal/platform/middleware"
	"github.com/ehr/bedboard/internal/platform/reporting"
	"github.com/ehr/bedboard/internal/platform/sandbox"
	"github.com/ehr/bedboard/internal/platform/websocket"
)

const (
	requestTimeout = 30 * time.Second
	bodyLimit      = "1M"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bed board API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// services is every domain service the API exposes.
type services struct {
	beds       *bed.Service
	discharges *discharge.Service
	alerts     *alert.Service
	ambulance  *ambulance.Service
	identity   *identity.Service
	reports    *reporting.Reports
	seeder     *sandbox.Seeder
	issuer     *auth.TokenIssuer
}

func buildServices(in *infra, pub changefeed.Publisher, revocations auth.RevocationStore) *services {
	cfg := in.cfg
	tx := db.NewTxRunner(in.pool)

	beds := bed.NewService(bed.NewRepoPG(in.pool), tx, pub)
	beds.SetClock(time.Now, in.loc)
	beds.SetLogger(in.logger)

	discharges := discharge.NewService(discharge.NewRepoPG(in.pool), beds, tx, cfg.DischargeJustificationAfter)
	discharges.SetLogger(in.logger)
	beds.SetDischargeGuard(discharges)

	alerts := alert.NewService(alert.NewRepoPG(in.pool), beds, pub, cfg.LongStayDays, cfg.ReadmissionWindowDays)
	alerts.SetLogger(in.logger)

	amb := ambulance.NewService(ambulance.NewRepoPG(in.pool), pub)
	amb.SetClock(time.Now, in.loc)
	amb.SetLogger(in.logger)

	issuer := auth.NewTokenIssuer([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, cfg.SessionTTL)
	users := identity.NewService(identity.NewRepoPG(in.pool), tx, issuer, revocations, pub)
	users.SetLogger(in.logger)

	return &services{
		beds:       beds,
		discharges: discharges,
		alerts:     alerts,
		ambulance:  amb,
		identity:   users,
		reports:    reporting.NewReports(beds, alerts, amb, in.loc),
		seeder:     sandbox.NewSeeder(beds, sandbox.DefaultLayout()),
		issuer:     issuer,
	}
}

func runServer() error {
	ctx := context.Background()

	in, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer in.Close()
	logger := in.logger

	revocations := in.revocations()
	svc := buildServices(in, in.publisher(), revocations)
	svc.beds.SetCache(in.snapshots(), in.cfg.BoardCacheTTL)

	hub := websocket.NewHub(logger)
	sub, err := in.bus.Subscribe(func(c changefeed.Change) {
		svc.beds.InvalidateBoard(context.Background())
		hub.OnChange(c)
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	authCfg := auth.MiddlewareConfig{
		Issuer:      svc.issuer,
		Revocations: revocations,
		Users:       svc.identity,
		Skipper:     auth.AuthSkipper,
		Logger:      logger,
	}

	e := newEcho(in.cfg, logger)
	e.GET("/health", db.HealthHandler(version, in.pool, in.healthChecks()))
	registerRoutes(e.Group("/api/v1"), in.cfg, authCfg, svc, hub)

	go func() {
		addr := ":" + in.cfg.Port
		logger.Info().Str("addr", addr).Str("env", in.cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	return e
}

// registerRoutes mounts every API handler under api. Authentication runs on
// the whole group; the websocket endpoint authenticates its query token.
func registerRoutes(api *echo.Group, cfg *config.Config, authCfg auth.MiddlewareConfig, svc *services, hub *websocket.Hub) {
	// Auth runs first so the limiter can key on the user id.
	api.Use(auth.Middleware(authCfg))
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))

	bed.NewHandler(svc.beds).RegisterRoutes(api)
	discharge.NewHandler(svc.discharges).RegisterRoutes(api)
	alert.NewHandler(svc.alerts).RegisterRoutes(api)
	ambulance.NewHandler(svc.ambulance).RegisterRoutes(api)
	identity.NewHandler(svc.identity).RegisterRoutes(api)
	reporting.NewHandler(svc.reports).RegisterRoutes(api)
	websocket.NewHandler(hub, authCfg, cfg.CORSOrigins).RegisterRoutes(api)

	if !cfg.IsProduction() {
		admin := api.Group("/admin", auth.RequireAdmin())
		sandbox.NewSeedHandler(svc.seeder).RegisterRoutes(admin)
	}
}
