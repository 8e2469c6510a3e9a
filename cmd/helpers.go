package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/cineforum/internal/catalog"
	"github.com/ziadkadry99/cineforum/internal/config"
	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// loadConfig loads and validates the config and applies its logging
// settings, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `cineforum init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format})
	return cfg, nil
}

// openDatabase opens the SQLite database, creating its directory, and
// makes sure the moderator account exists.
func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := users.NewStore(database).EnsureModerator(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// createLLMProviderFromConfig returns the rate-limited provider, or nil when
// AI features are disabled.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	p, err := llm.NewProvider(string(cfg.LLM.Provider), cfg.LLM.Model)
	if err != nil || p == nil {
		return nil, err
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		p = llm.NewRateLimitedProvider(p, cfg.LLM.RequestsPerMinute)
	}
	return p, nil
}

// createCatalog returns the catalog client, or nil when no API key is set.
func createCatalog(cfg *config.Config) movies.Catalog {
	client := catalog.New(cfg.Catalog)
	if !client.Enabled() {
		logging.Warn().Str("env", cfg.Catalog.APIKeyEnv).Msg("catalog API key not set, film import disabled")
		return nil
	}
	return client
}

// similarIndexPath is where the similarity index is persisted between runs.
func similarIndexPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DatabasePath), "similar.gob.gz")
}
