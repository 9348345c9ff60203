package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/repository"
)

// Open builds the backend named by cfg.Registry.Backend.
func Open(ctx context.Context, cfg *common.Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Registry.Backend)

	switch cfg.Registry.Backend {
	case common.BackendMemory, "":
		logger.Warn("using in-memory registry; entries are lost on exit")
		return NewMemory(), nil
	case common.BackendLevelDB:
		return OpenLedger(cfg.Registry.LevelDBPath, logger)
	case common.BackendSQLite:
		return OpenSQLite(ctx, cfg.Registry.SQLitePath, logger)
	case common.BackendPostgres:
		pool, err := repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		repo := repository.NewRegistryEntryRepository(pool, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			repository.Close(pool, logger)
			return nil, err
		}
		return repo, nil
	case common.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedis(client, cfg.Redis.Prefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}
}
