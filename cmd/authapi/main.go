// Command authapi serves the reference auth API the session client talks to.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ferrington/bug-wars-client/internal/api"
	"github.com/Ferrington/bug-wars-client/internal/api/handler"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
	"github.com/Ferrington/bug-wars-client/internal/core/service"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/db/memory"
	mongodb "github.com/Ferrington/bug-wars-client/internal/infrastructure/db/mongo"
	redisdb "github.com/Ferrington/bug-wars-client/internal/infrastructure/db/redis"
	"github.com/Ferrington/bug-wars-client/internal/pkg/config"
	"github.com/Ferrington/bug-wars-client/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadServer(ctx)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "authapi",
	})

	var (
		accounts ports.AccountRepository
		refresh  ports.RefreshTokenStore
		checks   = map[string]handler.Pinger{}
		closers  []func(context.Context) error
	)

	switch cfg.Backend {
	case config.BackendMongo:
		db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect mongo")
		}
		repo := mongodb.NewAccountRepository(db.DB)
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("ensure indexes failed")
		}

		rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}

		accounts, refresh = repo, redisdb.NewRefreshTokenStore(rdb)
		checks["mongodb"] = db
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		closers = append(closers, db.Close, func(context.Context) error { return rdb.Close() })
	default:
		accounts, refresh = memory.NewAccountRepository(), memory.NewRefreshTokenStore()
	}

	authService := service.NewAuthService(accounts, refresh, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, log)
	e := api.NewRouter(api.Deps{
		AuthService: authService,
		JWTSecret:   cfg.JWTSecret,
		Checks:      checks,
		Log:         log,
		Metrics:     true,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()
	log.Info().Msg("shutdown signal received")

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	for _, closeFn := range closers {
		if err := closeFn(drainCtx); err != nil {
			log.Error().Err(err).Msg("close dependency")
		}
	}
	log.Info().Msg("server exited cleanly")
}
