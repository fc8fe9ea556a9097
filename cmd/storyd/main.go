package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/strata-social/story_layer/internal/app"
	"github.com/strata-social/story_layer/internal/app/httpapi"
	"github.com/strata-social/story_layer/internal/app/metrics"
	"github.com/strata-social/story_layer/internal/app/storage/postgres"
	"github.com/strata-social/story_layer/internal/config"
	"github.com/strata-social/story_layer/internal/logging"
	"github.com/strata-social/story_layer/internal/middleware"
	"github.com/strata-social/story_layer/internal/platform/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("storyd", cfg.Logging.Level, cfg.Logging.Format)

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	application, err := app.New(cfg, stores, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	auditSink, err := httpapi.NewFileAuditSink(os.Getenv("AUDIT_LOG_PATH"))
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	audit := httpapi.NewAuditLog(500, auditSink)

	api := httpapi.NewHandler(application, audit)

	root := http.NewServeMux()
	root.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	root.Handle("/metrics", metrics.Handler())
	root.Handle("/", api)

	var handler http.Handler = root
	skipPaths := []string{"/healthz", "/metrics"}

	if cfg.Auth.JWTPublicKeyPath != "" {
		publicKey, err := loadPublicKey(cfg.Auth.JWTPublicKeyPath)
		if err != nil {
			return fmt.Errorf("load jwt public key: %w", err)
		}
		auth := middleware.NewAuthMiddleware(publicKey, log, skipPaths)
		handler = auth.Handler(handler)
	} else {
		log.Warn("JWT public key not configured; requests are unauthenticated")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	limiter.StartCleanup(10 * time.Minute)
	handler = limiter.Handler(handler)

	handler = middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins).Handler(handler)
	handler = middleware.NewTracingMiddleware(log).Handler(handler)
	handler = metrics.InstrumentHandler(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}

	log.Info("storyd stopped")
	return nil
}

func buildStores(cfg *config.Config, log *logging.Logger) (app.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_URL not set; using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := sqlx.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.Apply(pingCtx, db.DB); err != nil {
		_ = db.Close()
		return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{
		Stories:    store,
		Engagement: store,
		Quota:      store,
		Follows:    store,
	}, func() { _ = db.Close() }, nil
}

func loadPublicKey(path string) (interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(raw)
}
