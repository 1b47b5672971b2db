package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"allocation-generator/internal/app"
	"allocation-generator/internal/handlers"
	"allocation-generator/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Database.DSN == "" {
		return errors.New("'DATABASE_DSN' not set")
	}

	ctx, stop := signalContext()
	defer stop()

	container := app.NewContainer(cfg, logger)
	defer container.Close()

	if err := container.InitDatabase(); err != nil {
		return err
	}

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	reportHandler := handlers.NewReportHandler(container.Reports, logger)
	srv := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           router.SetupRouter(reportHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("🚀 Report API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down report API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
