// Package store holds the attendance table backends. Each one stores rows
// partitioned by date and is durable once Append returns.
package store

import (
	"context"
	"fmt"

	"github.com/andresmejia3/attendant/internal/config"
	"github.com/andresmejia3/attendant/internal/ledger"
)

// Resetter is implemented by backends that can drop all attendance data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case config.BackendCSV, "":
		return NewCSVStore(cfg.RecordsDir)
	case config.BackendPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL)
	case config.BackendSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Describe is a one-line description of where cfg stores attendance.
func Describe(cfg config.StoreConfig) string {
	switch cfg.Backend {
	case config.BackendPostgres:
		return "postgres"
	case config.BackendSQLite:
		return "sqlite " + cfg.SQLitePath
	default:
		return "csv " + cfg.RecordsDir
	}
}
