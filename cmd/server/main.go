/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bookkeeping server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and read configuration
  2. Configure structured logging
  3. Initialize SQLite store (migrations run on open)
  4. Build the book orchestrator and API handler
  5. Start server with graceful shutdown

CONFIGURATION (environment, flags override):
  PORT       HTTP server port (default: 8080)
  DB_PATH    SQLite database path (default: bookkeeper.db)
             Use ":memory:" for an in-memory database
  LOG_LEVEL  debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/ledger.db"
  PORT=3000 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - book/book.go: The bill orchestrator
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
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tallybook/bookkeeper/api"
	"github.com/tallybook/bookkeeper/book"
	"github.com/tallybook/bookkeeper/logging"
	"github.com/tallybook/bookkeeper/store/sqlite"
)

type config struct {
	Port   int
	DBPath string
}

func loadConfig() config {
	// .env is optional; real env always wins
	godotenv.Load()

	cfg := config{
		Port:   8080,
		DBPath: getEnv("DB_PATH", "bookkeeper.db"),
	}
	if s := os.Getenv("PORT"); s != "" {
		if p, err := strconv.Atoi(s); err == nil {
			cfg.Port = p
		}
	}

	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	cfg.Port = *port
	cfg.DBPath = *dbPath
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConfig()
	log := logging.Setup()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Error("failed to initialize database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	handler := api.NewHandler(book.New(store, log))
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", server.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
