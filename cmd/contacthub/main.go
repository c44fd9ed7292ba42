// ContactHub authentication service.
//
// This is the main entry point for the contacthub server: credential
// verification, token issuance and rotation, and principal resolution
// behind a small REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jcossey/contacthub/migrations"

	"github.com/jcossey/contacthub/internal/api"
	"github.com/jcossey/contacthub/internal/auth"
	"github.com/jcossey/contacthub/internal/infrastructure/config"
	"github.com/jcossey/contacthub/internal/infrastructure/database"
	"github.com/jcossey/contacthub/internal/infrastructure/logging"
	"github.com/jcossey/contacthub/internal/infrastructure/rediscache"
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
	log.Info("starting contacthub",
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
	db, err := database.Open(ctx, database.Config{
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

	// Identity cache: Redis when enabled, in-process otherwise
	var cache auth.Cache
	if cfg.Redis.Enabled {
		redisCache, cacheErr := rediscache.New(cfg.Redis, log)
		if cacheErr != nil {
			return fmt.Errorf("connecting to Redis: %w", cacheErr)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisCache.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		log.Info("Redis identity cache connected",
			"host", cfg.Redis.Host,
			"port", cfg.Redis.Port,
		)
		cache = redisCache
	} else {
		log.Info("Redis disabled, using in-process identity cache")
		cache = auth.NewMemoryCache()
	}

	// Token codec with the configured secret and pinned algorithm
	codec, err := auth.NewTokenCodec(cfg.Auth.Secret, cfg.Auth.Algorithm)
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	// Auth service
	store := auth.NewUserStore(db.DB)
	authService, err := auth.New(auth.Deps{
		Store:            store,
		Cache:            cache,
		Codec:            codec,
		Logger:           log,
		AccessTokenTTL:   cfg.Auth.GetAccessTokenTTL(),
		RefreshTokenTTL:  cfg.Auth.GetRefreshTokenTTL(),
		IdentityCacheTTL: cfg.Auth.GetIdentityCacheTTL(),
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}
	log.Info("auth service initialised", "algorithm", cfg.Auth.Algorithm)

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Auth:    authService,
		AuthCfg: cfg.Auth,
		Logger:  log,
		Version: version,
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
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	// Verify infrastructure is healthy before declaring readiness
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("contacthub stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CONTACTHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CONTACTHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
