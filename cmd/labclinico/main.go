// LabClinico authentication and authorization service.
//
// This is the main entry point for the LabClinico auth core: account
// registration, credential login with JWT issuance, refresh token session
// management, and a data-driven permission gateway that authorizes every
// protected request against a resource catalog stored in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/CristianR23-coder/ProyectoLabClinico-sub000/migrations"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/api"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/audit"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/config"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/database"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/logging"
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
	log.Info("starting LabClinico auth service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Wire repositories and the credential service
	users := auth.NewUserRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)
	perms := auth.NewPermissionRepository(db.DB)
	auditRepo := audit.NewRepository(db.DB)

	service := auth.NewService(auth.ServiceDeps{
		Users:      users,
		Tokens:     tokens,
		Perms:      perms,
		Logger:     log.Logger,
		Secret:     cfg.Security.JWT.Secret,
		AccessTTL:  time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute,
		RefreshTTL: time.Duration(cfg.Security.JWT.RefreshTokenTTL) * time.Minute,
	})

	// Seed roles, the resource catalog, and the first admin account. The
	// generated admin password is logged inside Seed on first boot only.
	if _, err := auth.Seed(ctx, users, perms, api.ProtectedResources(), log.Logger); err != nil {
		return fmt.Errorf("seeding auth data: %w", err)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:   cfg.Server,
		Security: cfg.Security,
		Logger:   log,
		Users:    users,
		Tokens:   tokens,
		Perms:    perms,
		Service:  service,
		Audit:    auditRepo,
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
	log.Info("API server listening",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("LabClinico auth service stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABCLINICO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABCLINICO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
