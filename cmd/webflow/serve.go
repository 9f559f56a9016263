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

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/api/handlers"
	"webflowwizard/engine/internal/api/routes"
	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/recorder"
	"webflowwizard/engine/internal/services"
	"webflowwizard/engine/internal/store"
	"webflowwizard/engine/internal/transport/natsbus"
	"webflowwizard/engine/pkg/auth"
	"webflowwizard/engine/pkg/database"
)

const statusSyncInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduler and the optional NATS bus",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	pool := newPool(cfg, log)
	defer pool.CloseAll()

	hub := notify.NewHub(log)
	notifiers := notify.Multi{hub}

	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = natsbus.Connect(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		defer nc.Close()
		notifiers = append(notifiers, natsbus.NewPublisher(nc, log))
	}

	recOpts, err := recorderOptions(cfg)
	if err != nil {
		return err
	}
	recordings := recorder.NewManager(pool.OpenSession, recOpts, notifiers, log)
	runs := executor.NewManager(pool.OpenTarget, cfg.Executor.MaxWorkers, log)
	ctrl := services.NewController(recordings, runs, store.New(db), notifiers, executorOptions(cfg), log)
	defer ctrl.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := services.NewScheduler(ctrl, log)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	defer scheduler.Stop()

	statusSync := services.NewStatusSync(ctrl, statusSyncInterval, 0, log)
	statusSync.Start(ctx)
	defer statusSync.Stop()

	if nc != nil {
		bus := natsbus.NewBus(nc, ctrl, log)
		if err := bus.Start(); err != nil {
			return err
		}
		defer bus.Close()
	}

	gin.SetMode(cfg.Server.Mode)
	j := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.ExpireTime, cfg.JWT.APIKeyHash)
	if cfg.JWT.APIKeyHash == "" {
		log.Warn("API_KEY_HASH is not set, tokens can only be issued with `webflow token`")
	}
	router := routes.SetupRoutes(handlers.New(ctrl, scheduler, hub, j, log), j, log)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", zap.Error(err))
	}
	log.Info("server shutdown complete")
	return nil
}
