package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-appointments/internal/adapters/auth/jwtverifier"
	mem "clinic-appointments/internal/adapters/storage/memory"
	"clinic-appointments/internal/adapters/storage/mongodb"
	pg "clinic-appointments/internal/adapters/storage/postgres"
	"clinic-appointments/internal/config"
	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/auth"
	"clinic-appointments/internal/ports/documents"
	"clinic-appointments/internal/router"
)

// @title Clinic Appointments API
// @version 1.0
// @description Turnos, remedios caseros y asignaciones sobre un store documental, con permisos por recurso.
// @BasePath /
func main() {
	cfg := config.Load()

	log := logger.Must(logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Logger.Level),
		Format: logger.ParseFormat(cfg.Logger.Format),
		App:    cfg.App.Name,
		Env:    cfg.App.Env,
	}))
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", map[string]any{"err": err})
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("store close failed", map[string]any{"err": err})
		}
	}()

	var verifier auth.AuthVerifier // nil => modo dev (X-Debug-User-ID)
	if cfg.Auth.JWTSecret != "" {
		verifier = jwtverifier.New(cfg.Auth.JWTSecret)
	} else {
		log.Warn("AUTH_JWT_SECRET not set: running in dev auth mode", nil)
	}

	h, err := router.NewRouter(router.Options{
		AuthVerifier: verifier,
		Store:        store,
		Logger:       log,
		Permissions: permissions.Options{
			Superusers:    cfg.Permissions.Superusers,
			DefaultGlobal: cfg.Permissions.DefaultGlobal,
		},
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSecond,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      h,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", map[string]any{"addr": cfg.HTTP.Addr, "store": cfg.Store.Driver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Store, log logger.Logger) (documents.Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		db, err := pg.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s := pg.NewStore(db)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, nil

	case config.StoreMongo:
		client, err := mongodb.Open(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return mongodb.NewStore(client, cfg.MongoDatabase), nil

	case config.StoreMemory, "":
		log.Warn("using in-memory store; data is lost on restart", nil)
		return mem.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Driver)
	}
}
