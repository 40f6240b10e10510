package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/migrateflow/config"
	"github.com/BaSui01/migrateflow/internal/database"
)

// NewManagerFromConfig opens the configured database and creates a manager on
// it. The returned pool must be closed by the caller.
func NewManagerFromConfig(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger, recorder Recorder) (*Manager, *database.PoolManager, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbType, err := database.ParseDatabaseType(cfg.Database.Driver)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid database type: %w", err)
	}

	db, err := database.Open(dbType, cfg.Database.DSN(), cfg.Log.Level == "debug")
	if err != nil {
		return nil, nil, err
	}

	pool, err := database.NewPoolManager(db, dbType, database.PoolConfig{
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		_ = database.CloseDB(db)
		return nil, nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, nil, fmt.Errorf("database %s is unreachable: %w", dbType, err)
	}

	mgr, err := NewManager(ctx, pool, Options{
		Table:        cfg.Migration.Table,
		Dirs:         cfg.Migration.ModuleDir,
		ShadowDSN:    cfg.Migration.ShadowDSN,
		DefaultLabel: cfg.Migration.DefaultLabel,
		UpTemplate:   cfg.Migration.UpTemplate,
		DownTemplate: cfg.Migration.DownTemplate,
		Logger:       logger,
		Recorder:     recorder,
	})
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}
	return mgr, pool, nil
}
