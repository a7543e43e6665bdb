package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/go-replay/internal/api"
	"github.com/prasenjit/go-replay/internal/logging"
	"github.com/prasenjit/go-replay/internal/replay"
	"github.com/prasenjit/go-replay/internal/stats"
	"github.com/prasenjit/go-replay/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Go-Replay server",
	Long: `Starts the Go-Replay server.

The server will:
  - Load classification rules, matching policies and recordings from storage
  - Expose the Admin API at /_api/
  - Replay the best recorded response for every other request

Configuration is loaded from config.yaml in the current directory,
or specify a custom config file with the --config flag.`,
	RunE: runServe,
}

var portFlag int

func init() {
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Override server port")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	statsCollector := stats.NewCollector()
	tracingService := tracing.NewService(cfg.Tracing.MaxTraces, cfg.Tracing.Retention)

	replayEngine := replay.NewEngine(store, statsCollector, tracingService, replay.Options{
		Logger: logger,
		Replay: cfg.Replay,
	})

	router := api.NewRouter(store, statsCollector, tracingService, replayEngine, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("starting go-replay server")
		logger.Infof("Admin API available at http://%s/_api/", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	logger.Info("server stopped")
	return nil
}
