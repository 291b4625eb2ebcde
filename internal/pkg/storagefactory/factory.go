package storagefactory

import (
	"context"
	"fmt"

	"chatrelay/internal/config"
	"chatrelay/internal/pkg/mongodb"
	"chatrelay/internal/repository"
	"chatrelay/internal/repository/mongostore"
	"chatrelay/internal/repository/postgres"
	"chatrelay/internal/repository/sqlite"
)

// NewMirrorStore 根据配置创建镜像存储
// driver 为 none 时返回 (nil, nil)，调用方据此关闭镜像
func NewMirrorStore(ctx context.Context, cfg *config.Config) (repository.MirrorStore, error) {
	switch cfg.Mirror.Driver {
	case config.MirrorDriverSQLite:
		store, err := sqlite.New(cfg.Mirror.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.MirrorDriverPostgres:
		store, err := postgres.New(cfg.Mirror.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return store, nil
	case config.MirrorDriverMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("mongo uri is required for mirror driver mongo")
		}
		client, err := mongodb.New(ctx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return mongostore.New(client), nil
	case config.MirrorDriverNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported mirror driver: %s", cfg.Mirror.Driver)
	}
}
