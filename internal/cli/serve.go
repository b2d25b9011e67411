package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecrbeachresorts/portal/internal/api"
	"github.com/ecrbeachresorts/portal/internal/api/handler"
	"github.com/ecrbeachresorts/portal/internal/core/service"
	mongostore "github.com/ecrbeachresorts/portal/internal/infrastructure/db/mongo"
	redisstore "github.com/ecrbeachresorts/portal/internal/infrastructure/db/redis"
	"github.com/ecrbeachresorts/portal/internal/infrastructure/queue"
	"github.com/ecrbeachresorts/portal/internal/pkg/config"
	"github.com/ecrbeachresorts/portal/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the identity API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.Development(), Service: "portal-api"})

	mongoClient, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "ecr-portal",

		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	identities := mongostore.NewIdentityRepository(db)
	if err := identities.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	counts, err := identities.CountByRole(ctx)
	if err != nil {
		return fmt.Errorf("count identities: %w", err)
	}

	dispatcher := queue.NewDispatcher(cfg.AuditWorkers,
		service.NewAuthEventService(mongostore.NewAuthEventRepository(db), logger.Component("audit")), logger.Component("dispatcher"))
	dispatcher.Start(ctx)

	authService := service.NewAuthService(
		identities,
		service.NewIDAllocator(counts),
		redisstore.NewRevocationList(rdb),
		redisstore.NewResetTokenStore(rdb),
		dispatcher,
		service.AuthConfig{
			JWTSecret:     cfg.Auth.JWTSecret,
			TokenTTL:      cfg.Auth.TokenTTL,
			ResetTokenTTL: cfg.Auth.ResetTokenTTL,
		},
		logger.Component("auth"),
	)
	if cfg.Auth.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return err
		}
	}

	e := api.NewRouter(api.Dependencies{
		Auth:  authService,
		Admin: service.NewIdentityAdminService(identities, dispatcher, logger.Component("admin")),
		Readiness: map[string]handler.Pinger{
			"mongodb": handler.MongoPinger(db),
			"redis":   handler.RedisPinger(rdb),
		},
		Log: log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("identity api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
