//	@title			File Versions API
//	@version		1.0
//	@description	Versioned file storage with an append-only audit ledger.
//
//	@host		localhost:3000
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fileversion/service/internal/auth"
	"github.com/fileversion/service/internal/config"
	"github.com/fileversion/service/internal/db"
	"github.com/fileversion/service/internal/file"
	"github.com/fileversion/service/internal/history"
	"github.com/fileversion/service/internal/logging"
	"github.com/fileversion/service/internal/metrics"
	"github.com/fileversion/service/internal/server"
	"github.com/fileversion/service/internal/storage"

	_ "github.com/fileversion/service/docs/swagger"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		bootLog := logging.New("development", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logging.New(cfg.AppEnv, cfg.LogLevel)
	if !dotenv {
		log.Debug().Msg("no .env file found, using environment only")
	}
	if cfg.IsProduction() && cfg.JWTSecret == "change_me_in_production" {
		log.Fatal().Msg("JWT_SECRET must be set in production")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	pool, err := db.Connect(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	store, err := newStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("object storage init failed")
	}
	if err := store.EnsureBucket(startupCtx, cfg.StorageBucket); err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.StorageBucket).Msg("object storage bucket unavailable")
	}

	// Wire dependencies: repository → service → handler
	ledger := history.NewRepository(pool)
	fileSvc := file.NewService(store, ledger, metrics.New(prometheus.DefaultRegisterer), log)
	fileHandler := file.NewHandler(fileSvc, cfg.MaxUploadBytes, log)

	authSvc := auth.NewService(cfg.JWTSecret, cfg.JWTTTL)
	authHandler := auth.NewHandler(authSvc, log)

	router := server.NewRouter(server.Deps{
		Auth:     authHandler,
		Files:    fileHandler,
		Verifier: authSvc,
		Metrics:  promhttp.Handler(),
		Log:      log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Str("storage", cfg.StorageDriver).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func newStore(cfg *config.Config, log zerolog.Logger) (storage.Gateway, error) {
	opts := storage.Options{
		Endpoint:   cfg.StorageEndpoint,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		Bucket:     cfg.StorageBucket,
		Region:     cfg.StorageRegion,
		UseSSL:     cfg.StorageUseSSL,
		StagingDir: cfg.StorageStagingDir,
	}

	if cfg.StorageDriver == config.DriverS3 {
		return storage.NewS3Storage(opts, log), nil
	}
	return storage.NewMinioStorage(opts, log)
}
