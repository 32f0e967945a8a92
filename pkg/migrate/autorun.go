package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/db"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev
// with GROUPCART_AUTO_MIGRATE set. Elsewhere it does nothing.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	runner, err := NewRunner(sqlDB, FS(), logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "dev auto-migrate starting")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "dev auto-migrate finished")
	return nil
}
