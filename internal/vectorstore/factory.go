package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/liliang-cn/paperchat/internal/config"
	"go.uber.org/zap"
)

// NewFromConfig opens the configured backend. The SQLite backend shares db
// with the relational repositories.
func NewFromConfig(ctx context.Context, cfg config.VectorConfig, db *sql.DB, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLiteStore(db, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
