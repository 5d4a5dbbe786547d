package migrations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRunClickhouseMigrations_CreatesDatabaseAndRecordsVersions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Application: Ready for connections").
					WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	// tokenfind does not exist yet; the runner creates it.
	dsn := fmt.Sprintf("clickhouse://%s:%s/tokenfind", host, port.Port())

	for run := 0; run < 2; run++ {
		conn, err := RunClickhouseMigrations(ctx, dsn)
		require.NoError(t, err, "run %d", run)

		var tables uint64
		require.NoError(t, conn.QueryRow(ctx,
			`SELECT count() FROM system.tables WHERE database = 'tokenfind' AND name = 'market_cap_updates'`,
		).Scan(&tables))
		assert.Equal(t, uint64(1), tables)

		var recorded uint64
		require.NoError(t, conn.QueryRow(ctx,
			`SELECT count() FROM schema_migrations FINAL WHERE version = '001_market_cap_updates.sql'`,
		).Scan(&recorded))
		assert.Equal(t, uint64(1), recorded, "run %d", run)

		require.NoError(t, conn.Close())
	}
}
