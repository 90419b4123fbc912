// Command report-worker runs the queue-driven pipeline job handler: it
// subscribes to the configured queue and turns each delivered job into a
// durable report artifact.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiobjectives/report-worker/internal/app"
)

func main() {
	configPath := os.Getenv("REPORT_WORKER_CONFIG")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", healthPort()),
		Handler:      healthMux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("starting health server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error().Err(err).Msg("health server failed")
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Msg("subscribing to job queue")
		runErr <- a.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info().Msg("shutdown signal received")
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			a.Logger.Error().Err(err).Msg("queue subscription ended unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("health server shutdown failed")
	}
	a.Close(shutdownCtx)
	a.Logger.Info().Msg("report-worker stopped")
}

func healthPort() int {
	if v := os.Getenv("REPORT_WORKER_HEALTH_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			return port
		}
	}
	return 8080
}

func healthMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
