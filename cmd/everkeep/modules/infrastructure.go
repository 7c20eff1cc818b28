package modules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	migrations "github.com/everkeep/everkeep/db"
	"github.com/everkeep/everkeep/internal/config"
	"github.com/everkeep/everkeep/internal/db"
	"github.com/everkeep/everkeep/internal/logger"
	"github.com/everkeep/everkeep/internal/store"
)

// InfraModule wires config, logging, the Postgres pool, migrations, and the
// store implementations.
var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideDBConn,
		fx.Annotate(store.NewPostgresContactStore, fx.As(new(store.ContactStore))),
		fx.Annotate(store.NewPostgresMessageStore, fx.As(new(store.MessageStore))),
		fx.Annotate(store.NewPostgresSuggestionStore, fx.As(new(store.SuggestionStore))),
		fx.Annotate(store.NewPostgresLinkStore, fx.As(new(store.LinkStore))),
	),
	fx.Invoke(applyMigrations),
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func applyMigrations(log *slog.Logger, cfg config.Config) error {
	migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	return db.RunMigrate(log, cfg.Postgres, migrationsFS, "up", nil)
}
