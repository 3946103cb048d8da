package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/plate/store"
	"github.com/xraph/plate/store/postgres"
	"github.com/xraph/plate/store/storetest"
)

// The suite needs a disposable database; point PLATE_POSTGRES_DSN at one.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("PLATE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PLATE_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		_, err = s.Pool().Exec(ctx,
			`TRUNCATE plate_audit, plate_genealogy, plate_reservations, plate_license_plates`)
		require.NoError(t, err)
		return s
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := os.Getenv("PLATE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PLATE_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	var applied int
	require.NoError(t, s.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM plate_migrations`).Scan(&applied))
	require.Equal(t, len(postgres.Migrations), applied)
}
