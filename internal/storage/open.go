package storage

import (
	"context"
	"errors"
	"strings"

	"stagebot/pkg/logx"
)

// Open initializes the configured store and creates the schema if needed.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "postgres":
		return openPostgres(ctx, cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
