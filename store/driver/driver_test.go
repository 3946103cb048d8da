package driver_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/plate/store/driver"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  driver.Config
	}{
		{"default", driver.Config{}},
		{"memory", driver.Config{Driver: "memory"}},
		{"sqlite", driver.Config{Driver: "sqlite", DSN: "file:" + filepath.Join(dir, "plate.db")}},
		{"badger in memory", driver.Config{Driver: "badger"}},
		{"badger on disk", driver.Config{Driver: "Badger", Path: filepath.Join(dir, "badger")}},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := driver.Open(ctx, tt.cfg, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if err := s.Migrate(ctx); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
			if err := s.Ping(ctx); err != nil {
				t.Fatalf("Ping: %v", err)
			}
		})
	}
}

func TestOpenRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  driver.Config
		want string
	}{
		{"unknown", driver.Config{Driver: "oracle"}, "unknown driver"},
		{"postgres without dsn", driver.Config{Driver: "postgres"}, "requires a dsn"},
		{"sqlite without dsn", driver.Config{Driver: "sqlite"}, "requires a dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := driver.Open(context.Background(), tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
