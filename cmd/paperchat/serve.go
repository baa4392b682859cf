package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liliang-cn/paperchat/internal/api"
	"github.com/liliang-cn/paperchat/internal/api/assistant"
	"github.com/liliang-cn/paperchat/internal/api/papers"
	"github.com/liliang-cn/paperchat/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	gc := scheduler.NewGC(a.store, cfg.Vector.GCGrace, logger)
	if err := gc.Start(cfg.Vector.GCSchedule); err != nil {
		return err
	}
	defer gc.Stop()

	router := api.SetupRouter(
		papers.NewHandler(a.ingest, a.chat, a.broker, logger),
		assistant.NewHandler(a.research, a.match, a.email, a.assistant),
		api.RouterConfig{
			APIKey:         cfg.Admin.APIKey,
			AllowOrigins:   cfg.Server.AllowOrigins,
			MaxUploadBytes: cfg.Storage.MaxUploadMB << 20,
		},
		logger,
	)

	// generation can outlast the default write timeout
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting PaperChat server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
			zap.String("vector_backend", cfg.Vector.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
