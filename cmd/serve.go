package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	v1 "github.com/Barsa-M/accident-reporting-sub000/internal/handler/http/v1"
	"github.com/Barsa-M/accident-reporting-sub000/internal/webhook"
	"github.com/Barsa-M/accident-reporting-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/Barsa-M/accident-reporting-sub000/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook worker and requeue scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return serve(cmd.Context(), cfg, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on start")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, skipMigrations bool) error {
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !skipMigrations {
		log.Info("Running database migrations...")
		if err := migrate(ctx, cfg); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		log.Info("Database migrations applied successfully")
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := v1.NewHandler(v1.Services{
		Incidents:  a.incidents,
		Dispatch:   a.dispatch,
		Responders: a.responders,
		History:    a.history,
		Sweeper:    a.scheduler,
	}, log, cfg)

	router := gin.New()
	router.Use(gin.Recovery())
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	webhookWorker := webhook.NewWorker(a.redisClient, log, cfg)
	webhookWorker.Start(ctx)
	relay := webhook.NewRelay(a.storage.notifications, a.publisher, log, cfg)
	relay.Start(ctx)
	a.scheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("HTTP server started on port %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal, shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	stop()
	a.scheduler.Stop()
	webhookWorker.Wait()
	relay.Wait()
	if err != nil {
		return err
	}

	log.Info("Server gracefully stopped")
	return nil
}
