package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

// MaybeRunDev applies pending embedded migrations on startup when running in
// dev with MARKETPLACE_AUTO_MIGRATE enabled. Every other environment migrates
// through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	applied, err := Run(ctx, sqlDB, DefaultDir, "up")
	for _, res := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{"version": res.Version, "path": res.Path}), "migration applied")
	}
	if err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "dev auto-migrate complete")
	return nil
}
