package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/chat-incom/agendamento/internal/config"
	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/domain/scheduling"
	"github.com/chat-incom/agendamento/internal/platform/auth"
	"github.com/chat-incom/agendamento/internal/platform/db"
	"github.com/chat-incom/agendamento/internal/platform/middleware"
	"github.com/chat-incom/agendamento/internal/platform/websocket"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func jwtConfig(cfg *config.Config, logger zerolog.Logger) (auth.JWTConfig, error) {
	key := []byte(cfg.JWTSecret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return auth.JWTConfig{}, fmt.Errorf("generate signing key: %w", err)
		}
		logger.Warn().Msg("JWT_SECRET not set, using a random key; tokens will not survive a restart")
	}
	return auth.JWTConfig{Issuer: "clinic-server", SigningKey: key, TTL: cfg.JWTTTL}, nil
}

// app holds the services one server instance runs.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	store      *store
	clinic     *clinic.Service
	scheduling *scheduling.Service
	flows      *scheduling.FlowStore
	hub        *websocket.Hub
	auth       *auth.Authenticator
	jwt        auth.JWTConfig
}

func newApp(cfg *config.Config, st *store, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	jwtCfg, err := jwtConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	hub := websocket.NewHub(logger)
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		clinic: clinic.NewService(st.Repo, cfg.DefaultSlotInterval, logger),
		scheduling: scheduling.NewService(st.Repo, hub, scheduling.Options{
			Location:  loc,
			Lookahead: cfg.LookaheadDays,
		}, logger),
		flows: scheduling.NewFlowStore(cfg.SessionTTL),
		hub:   hub,
		auth: auth.NewAuthenticator(auth.AdminAccount{
			Email:        cfg.AdminEmail,
			PasswordHash: cfg.AdminPasswordHash,
		}, jwtCfg, logger),
		jwt: jwtCfg,
	}, nil
}

// routes builds the HTTP server with every route mounted.
func (a *app) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.RequestTimeout(15*time.Second,
		"POST /api/v1/bookings",
		"POST /api/v1/booking-sessions/:id/confirm",
	))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	status := db.NewStatusReporter(a.store.Repo, a.store.Pool, a.store.Degraded)
	e.GET("/health", status.Handler(false))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	}))
	api.GET("/status", status.Handler(false))
	api.POST("/auth/login", a.auth.LoginHandler)

	var guard echo.MiddlewareFunc
	if a.cfg.IsDev() {
		guard = auth.DevAuthMiddleware(a.jwt)
	} else {
		guard = auth.JWTMiddleware(a.jwt)
	}
	admin := api.Group("/admin", guard)
	admin.GET("/status", status.Handler(true), auth.RequireRole(auth.RoleAdmin))

	clinic.NewHandler(a.clinic).RegisterRoutes(api, admin)
	scheduling.NewHandler(a.scheduling, a.flows).RegisterRoutes(api, admin)
	websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: admin routes accept requests without a token")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := newApp(cfg, st, logger)
	if err != nil {
		return err
	}
	e := a.routes()

	sweeper := scheduling.NewSweeper(a.scheduling, a.flows, logger)
	jobs, err := sweeper.Schedule(cfg.SweepSchedule)
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", cfg.SweepSchedule, err)
	}
	jobs.Start()
	logger.Info().Str("schedule", cfg.SweepSchedule).Msg("sweep scheduled")

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", st.Primary.Backend()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	<-jobs.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
