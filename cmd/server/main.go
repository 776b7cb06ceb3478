/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger integrity engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Initialize SQLite store
  3. Reconcile outlet counters against persisted entry numbers
  4. Start the background anomaly scan scheduler
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  Flags win over environment variables:
  -port / PORT          HTTP server port (default: 8080)
  -db / DATABASE_PATH   SQLite database path (default: ledger.db)
                        Use ":memory:" for an in-memory database
  -tz / LEDGER_TZ       IANA timezone of the outlets (default: Asia/Kolkata)
  -log-level / LOG_LEVEL  logrus level (default: info)
  -scan-interval / SCAN_INTERVAL_MINUTES
                        Minutes between background anomaly sweeps
                        (default: 60; 0 disables)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sahakar/ledger-engine/api"
	"github.com/sahakar/ledger-engine/ledger"
	"github.com/sahakar/ledger-engine/store/sqlite"
)

func main() {
	// .env is optional; flags override whatever it sets.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "ledger.db"), "SQLite database path")
	tz := flag.String("tz", envStr("LEDGER_TZ", ledger.DefaultTimezone), "IANA timezone of the outlets")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	scanInterval := flag.Int("scan-interval", envInt("SCAN_INTERVAL_MINUTES", 60), "minutes between anomaly sweeps (0 disables)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	cal := ledger.NewCalendar(*tz, nil)
	handler := api.NewHandler(store, cal, ledger.NopSyncNotifier{}, log)

	// Startup repair: counters must never trail the persisted entry numbers.
	outlets, err := store.ListOutlets(context.Background())
	if err != nil {
		log.WithError(err).Fatal("failed to list outlets")
	}
	for _, o := range outlets {
		if _, err := handler.Sequences.ReconcileCounters(context.Background(), o.ID, "system"); err != nil {
			log.WithError(err).WithField("outlet_id", o.ID).Warn("counter reconciliation failed")
		}
	}

	// Background anomaly sweeps; 0 disables.
	scheduler := api.NewScanScheduler(handler)
	if *scanInterval <= 0 {
		scheduler.Enabled = false
	} else {
		scheduler.CheckInterval = time.Duration(*scanInterval) * time.Minute
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": *port, "db": *dbPath, "tz": *tz}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
