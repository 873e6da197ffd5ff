// Aegis Core - access-control service
//
// This is the main entry point for the Aegis Core application: session
// management with hijack detection, role-based authorization, and a durable
// audit trail, exposed over an HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/marlowe-systems/aegis-core/migrations"

	"github.com/marlowe-systems/aegis-core/internal/api"
	"github.com/marlowe-systems/aegis-core/internal/audit"
	"github.com/marlowe-systems/aegis-core/internal/authz"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/config"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/database"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/logging"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/metrics"
	"github.com/marlowe-systems/aegis-core/internal/session"
	"github.com/marlowe-systems/aegis-core/internal/user"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Aegis Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect the metrics sink (optional)
	var sink audit.MetricsSink
	if cfg.Metrics.Enabled {
		metricsClient, err := metrics.Connect(cfg.Metrics)
		if err != nil {
			return fmt.Errorf("connecting metrics sink: %w", err)
		}
		defer func() {
			log.Info("closing metrics sink")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing metrics sink", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("metrics write error", "error", err)
		})
		sink = metricsClient
		log.Info("metrics sink connected",
			"url", cfg.Metrics.URL,
			"org", cfg.Metrics.Org,
			"bucket", cfg.Metrics.Bucket,
		)
	} else {
		log.Info("metrics sink disabled")
	}

	// Core components
	users := user.NewRepository(db.DB)
	trail := audit.NewTrail(audit.NewSQLiteRepository(db), log, sink)
	sessions := session.NewStore(session.NewSQLiteRepository(db), users, trail, log,
		cfg.SessionTimeout(), cfg.SessionRetention())
	engine := authz.NewEngine(users)

	// First-run admin account; the generated password is logged by the seeder
	if _, seedErr := user.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Background session reaper
	reaper := session.NewReaper(sessions, log, cfg.ReapInterval())
	go reaper.Run(ctx)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Sessions: sessions,
		Engine:   engine,
		Trail:    trail,
		Users:    users,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AEGIS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AEGIS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
