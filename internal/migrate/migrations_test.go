package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govpulse/internal/db"
)

func TestLoadMigrations_DialectsInStep(t *testing.T) {
	lite, err := loadMigrations(db.SQLite)
	require.NoError(t, err)
	pg, err := loadMigrations(db.Postgres)
	require.NoError(t, err)
	require.Len(t, pg, len(lite))
	for i := range lite {
		assert.Equal(t, lite[i].Version, pg[i].Version)
		assert.Equal(t, lite[i].Name, pg[i].Name)
	}
}

func TestMigrate_SQLiteIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(ctx, conn, dialect))
	require.NoError(t, Migrate(ctx, conn, dialect))

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM governance_signals`).Scan(&n))
	assert.Zero(t, n)
}
