package cmd

import (
	"fmt"

	"ragserver/db"
	"ragserver/internal/config"
)

// executeMigrate runs database migrations and exits. Useful for deploy
// pipelines that migrate before rolling the server.
func executeMigrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.StorageBackend != config.StoragePostgres {
		return fmt.Errorf("migrate requires the postgres storage backend, configured backend is %q", cfg.StorageBackend)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
