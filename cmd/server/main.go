/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the freight engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, FREIGHT_* environment, flags)
  2. Build the logger (stderr or rotating file)
  3. Initialize SQLite store
  4. Create API handler and the balance reconciler
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port                 HTTP server port (default: 8080)
  -db                   SQLite database path (default: freight.db)
                        Use ":memory:" for in-memory database
  -log-level            logrus level (default: info)
  -log-file             Rotate JSON logs into this file
  -timeout              Per unit-of-work timeout (default: 5s)
  -vehicle-policy       keep-active | in-use
  -reconcile-interval   Balance reconciliation period, 0 disables (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/freight.db"

  # Trucks show as EnUso while travelling
  ./server -vehicle-policy=in-use

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/sirupsen/logrus"

	"github.com/warp/freight-engine/api"
	"github.com/warp/freight-engine/config"
	"github.com/warp/freight-engine/freight"
	"github.com/warp/freight-engine/logging"
	"github.com/warp/freight-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closer.Close()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	policy, err := freight.VehiclePolicyByName(cfg.VehiclePolicy)
	if err != nil {
		log.WithError(err).Fatal("invalid vehicle policy")
	}

	clock := freight.SystemClock{Location: cfg.Location}
	handler := api.NewHandler(store, clock, log, api.Options{
		Timeout:       cfg.Timeout,
		VehiclePolicy: policy,
	})

	reconciler := api.NewBalanceReconciler(handler.Ledger, clock, log)
	reconciler.CheckInterval = cfg.ReconcileInterval
	handler.Reconciler = reconciler
	reconciler.Start()

	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":           cfg.Port,
			"db":             cfg.DBPath,
			"vehicle_policy": cfg.VehiclePolicy,
			"timezone":       cfg.Location.String(),
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	reconciler.Stop()

	log.Info("server stopped")
}
