package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/database"
	"github.com/iliyamo/campus-marketplace/internal/handler"
	"github.com/iliyamo/campus-marketplace/internal/middleware"
	"github.com/iliyamo/campus-marketplace/internal/objectstore"
	"github.com/iliyamo/campus-marketplace/internal/queue"
	"github.com/iliyamo/campus-marketplace/internal/repository"
	"github.com/iliyamo/campus-marketplace/internal/router"
	"github.com/iliyamo/campus-marketplace/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port      string
		maxUpload int64
		noMail    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the marketplace backend",
		Long: `Starts the HTTP backend: accounts, listings and image storage.

MySQL and MongoDB are required. Redis is optional and only caches the
listing feed. The mail consumer drains the RabbitMQ auth.mail queue into
logs/mail.log unless --no-mail-consumer is given.`,
		Example: `  # Start on APP_PORT from the environment
  marketplace serve

  # Start on a custom port
  marketplace serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}

			db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			mongoClient, err := config.NewMongoClient(ctx, cfg.MongoURI)
			if err != nil {
				return err
			}
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()
			objects := objectstore.NewGridFS(mongoClient, cfg.MongoDB)

			ready := map[string]handler.Pinger{
				"mysql": db,
				"mongo": handler.PingFunc(func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }),
			}

			cacheCfg := config.LoadCacheConfig()
			var feedCache *middleware.FeedCache
			if cacheCfg.Enabled {
				rdb, err := config.NewRedisClient(config.LoadRedisConfig())
				if err != nil {
					slog.Warn("feed cache disabled", "err", err)
				} else {
					defer rdb.Close()
					feedCache = middleware.NewFeedCache(cacheCfg, rdb)
					ready["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
				}
			}

			if !noMail {
				consumer := queue.NewMailConsumer()
				go func() {
					if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						slog.Error("mail consumer stopped", "err", err)
					}
				}()
			}

			e := echo.New()
			e.HideBanner = true
			e.Use(echomw.Recover())
			e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
				LogMethod:   true,
				LogURI:      true,
				LogStatus:   true,
				LogLatency:  true,
				LogError:    true,
				HandleError: true,
				LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
					attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
					if v.Error != nil {
						slog.Error("request", append(attrs, "err", v.Error)...)
						return nil
					}
					slog.Info("request", attrs...)
					return nil
				},
			}))

			router.RegisterRoutes(e, ready)
			router.RegisterAuth(e, handler.NewAuthHandler(cfg,
				repository.NewUserRepo(db),
				repository.NewTokenRepo(db),
				repository.NewEmailTokenRepo(db),
				service.NewMailPublisher(),
			), cfg.JWTSecret)
			router.RegisterListings(e, handler.NewListingHandler(repository.NewListingRepo(db), cfg.Market), cfg.JWTSecret, feedCache)
			router.RegisterStorage(e, handler.NewStorageHandler(objects, cfg.Market.ImageBucket, maxUpload), cfg.JWTSecret)

			addr := ":" + cfg.Port
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("marketplace backend listening", "addr", addr, "env", cfg.Env, "public_url", cfg.PublicURL)
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := e.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default APP_PORT)")
	cmd.Flags().Int64Var(&maxUpload, "max-upload-bytes", 5<<20, "Largest accepted image upload")
	cmd.Flags().BoolVar(&noMail, "no-mail-consumer", false, "Do not run the mail outbox consumer in this process")
	return cmd
}
