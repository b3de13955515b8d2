package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/cashflow-engine/api"
	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/notify"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	var port int
	var driver, dsn string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override := func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
				if cmd.Flags().Changed("db-driver") {
					cfg.Database.Driver = driver
				}
				if cmd.Flags().Changed("db-dsn") {
					cfg.Database.DSN = dsn
				}
			}
			return runServe(cmd.Context(), flags, override)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().StringVar(&driver, "db-driver", "sqlite3", "store driver: sqlite3, postgres or memory")
	cmd.Flags().StringVar(&dsn, "db-dsn", "cashflow.db", "store DSN (\":memory:\" for an in-memory SQLite database)")

	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, override func(*config.Config)) error {
	cfg, logger, svc, closeStore, err := bootstrap(flags, os.Stderr, override)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("closing store")
		}
	}()

	handler := api.NewHandler(svc, cfg.Preferences, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	if cfg.Monitor.Enabled {
		monitor, err := api.NewRiskMonitor(svc, notify.New(cfg.SMTP, logger), logger, cfg.Monitor)
		if err != nil {
			return err
		}
		monitor.Start()
		defer monitor.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"driver": cfg.Database.Driver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
