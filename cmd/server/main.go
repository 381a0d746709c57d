/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll console server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize the SQLite store
  3. Wire attendance service, cash-advance ledger, payroll run service
  4. Configure HTTP router and the day-close scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides HR_PORT)
  -db      SQLite database path (overrides HR_DB_PATH)
           Use ":memory:" for an in-memory SQLite database
  -seed    Load the demo roster on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/payroll.db"
  ./server -db=":memory:" -seed
  HR_LATE_CUTOFF=08:30 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/api"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/config"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/balibad/payroll-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("server: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	seed := flag.Bool("seed", false, "load the demo roster")
	flag.Parse()

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cutoff, err := cfg.Cutoff()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	workweek, err := cfg.WorkingWeek()
	if err != nil {
		return err
	}

	// Initialize store
	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			return err
		}
	}
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Engine services
	attendanceSvc := &attendance.Service{
		Store:     store,
		Directory: store,
		Activity:  store,
		Cutoff:    cutoff,
		Workweek:  workweek,
		Logger:    logger.Named("attendance"),
	}
	ledger := advance.NewLedger(store, store,
		advance.WithActivitySink(store),
		advance.WithLogger(logger.Named("advance")),
	)
	reconciler := payroll.NewReconciler(policy, ledger)
	reconciler.Workers = cfg.BatchWorkers
	runs := &payroll.RunService{
		Runs:       store,
		Reconciler: reconciler,
		Directory:  store,
		Records:    store,
		Recouper:   ledger,
		Activity:   store,
		Logger:     logger.Named("payroll"),
	}

	if *seed {
		if err := store.Reset(context.Background()); err != nil {
			return err
		}
		if err := seedDemo(context.Background(), store, attendanceSvc, ledger); err != nil {
			return err
		}
		logger.Info("demo roster loaded")
	}

	handler := api.NewHandler(api.Services{
		Directory:  store,
		Attendance: attendanceSvc,
		Advances:   ledger,
		Payroll:    runs,
		Feed:       store,
		DB:         store,
	}, cutoff.Location, logger.Named("api"))

	router := api.NewRouter(handler, cfg.AllowedOrigins)

	scheduler := api.NewDayCloseScheduler(attendanceSvc, logger.Named("scheduler"))
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", *dbPath),
			zap.String("late_cutoff", cutoff.String()),
			zap.Stringers("workweek", workweek.Days()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
