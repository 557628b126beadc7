package bootstrap

import (
	"github.com/eleven-am/tutor-backend/internal/telemetry"
	"go.uber.org/fx"
)

func RunMigrations(rollups *telemetry.RollupStore) error {
	return rollups.Migrate()
}

var StoresModule = fx.Options(
	fx.Invoke(RunMigrations),
)
