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

	"github.com/spf13/cobra"
	"github.com/warp/accrual-engine/api"
	"github.com/warp/accrual-engine/logging"
	"github.com/warp/accrual-engine/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves agreements, accrual rows and recalculation over HTTP, backed by SQLite.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, then closes the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
	serveCmd.Flags().String("db", "./data/accruals.db", `SQLite database path (":memory:" for in-memory)`)

	v.BindPFlag("http.port", serveCmd.Flags().Lookup("port"))
	v.BindPFlag("db.path", serveCmd.Flags().Lookup("db"))
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// The API owns the rows, so it always serves the local database.
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	engine, err := buildEngine(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer engine.Close()

	handler := api.NewHandler(store, engine.recalculator, engine.modules, logging.For("api"))
	router := api.NewRouter(handler, cfg.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Log.WithFields(map[string]any{
			"port": cfg.HTTP.Port,
			"db":   cfg.DB.Path,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logging.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logging.Log.Info("Server stopped")
	return nil
}
