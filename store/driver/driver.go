// Package driver opens a store backend by name so that configuration files
// can pick the backend.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/plate/store"
	"github.com/xraph/plate/store/badger"
	"github.com/xraph/plate/store/memory"
	"github.com/xraph/plate/store/postgres"
	"github.com/xraph/plate/store/sqlite"
)

// Backend names.
const (
	Memory   = "memory"
	Postgres = "postgres"
	SQLite   = "sqlite"
	Badger   = "badger"
)

// Config selects and configures a backend.
type Config struct {
	// Driver is one of memory, postgres, sqlite or badger. Empty means memory.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for postgres and sqlite.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Path is the badger data directory. Empty runs badger in memory.
	Path string `json:"path" mapstructure:"path" yaml:"path"`
}

// Open constructs the backend named by cfg.Driver. The caller owns the
// returned store and must Close it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	switch name := strings.ToLower(cfg.Driver); name {
	case "", Memory:
		return memory.New(), nil
	case Postgres, "pg", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("plate/driver: %s requires a dsn", Postgres)
		}
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case SQLite, "sqlite3":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("plate/driver: %s requires a dsn", SQLite)
		}
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Badger:
		bc := badger.InMemoryConfig()
		if cfg.Path != "" {
			bc = badger.DefaultConfig(cfg.Path)
		}
		bc.Logger = logger
		s, err := badger.Open(bc)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("plate/driver: unknown driver %q", cfg.Driver)
	}
}
