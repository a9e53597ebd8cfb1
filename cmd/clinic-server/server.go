package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/sequence"
)

const version = "0.1.0"

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// routes are the domain handlers mounted under /api/v1.
type routes interface {
	RegisterRoutes(api *echo.Group)
}

// newEcho builds the router with the global middleware chain, the health
// endpoints and the authenticated API group.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, handlers ...routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	api := e.Group("/api/v1")
	if cfg.DevAuth() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if pool != nil {
		api.Use(db.ConnMiddleware(pool))
	}

	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return e
}

// notificationSenders returns the AMQP publisher when a broker is configured
// and the log sender otherwise. The returned close func is never nil.
func notificationSenders(cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, notification.SMSSender, func() error, error) {
	if cfg.NotifyAMQPURL == "" {
		ls := notification.NewLogSender(logger)
		return ls, ls, func() error { return nil }, nil
	}
	as, err := notification.NewAMQPSender(cfg.NotifyAMQPURL, cfg.NotifyExchange)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info().Str("exchange", cfg.NotifyExchange).Msg("publishing notifications to AMQP")
	return as, as, as.Close, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tx := db.NewTransactor(pool, cfg.TxMaxRetries, logger)

	staffSvc := staff.NewService(staff.NewStaffRepoPG(pool), tx, logger)
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool),
		sequence.NewAllocator(pool, "patients", "patient_code", sequence.PrefixPatient), tx, logger)
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), staffSvc,
		sequence.NewAllocator(pool, "appointments", "appointment_number", sequence.PrefixAppointment), tx, logger)
	billingSvc := billing.NewService(billing.NewBillRepoPG(pool),
		sequence.NewAllocator(pool, "bills", "bill_number", sequence.PrefixInvoice), tx, logger)

	email, sms, closeSenders, err := notificationSenders(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to notification broker")
	}
	dispatcher := notification.NewDispatcher(patientSvc, email, sms, notification.NewTemplateEngine(), cfg.NotifyTimeout, logger)

	e := newEcho(cfg, logger, pool,
		staff.NewHandler(staffSvc),
		patient.NewHandler(patientSvc),
		scheduling.NewHandler(schedulingSvc, dispatcher),
		billing.NewHandler(billingSvc, dispatcher),
	)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
	dispatcher.Wait()
	if err := closeSenders(); err != nil {
		logger.Warn().Err(err).Msg("closing notification senders")
	}
	logger.Info().Msg("server stopped")
	return nil
}
