// Package postgrestest runs a throwaway, migrated PostgreSQL container for
// tests.
package postgrestest

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	migrations "github.com/openkcm/storyblok-proxy/sql"
)

const (
	DBHost     = "localhost"
	DBUser     = "postgres"
	DBPassword = "secret"
	DBName     = "storyblok_proxy"
	DBSSLMode  = "disable"
)

// Start runs a PostgreSQL container for the duration of the test, applies
// the migrations and returns a pool and the mapped port. The test is
// skipped when no container runtime is available.
func Start(t *testing.T) (*pgxpool.Pool, nat.Port) {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(DBName),
		postgres.WithUsername(DBUser),
		postgres.WithPassword(DBPassword),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "starting postgres container")

	port, err := container.MappedPort(ctx, nat.Port("5432"))
	require.NoError(t, err, "mapping postgres port")

	connStr := ConnStr(port)
	migrate(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "connecting to postgres")
	t.Cleanup(pool.Close)

	return pool, port
}

func ConnStr(port nat.Port) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		DBHost, DBUser, DBPassword, DBName, port.Port(), DBSSLMode)
}

func migrate(t *testing.T, connStr string) {
	t.Helper()

	db, err := goose.OpenDBWithDriver("pgx", connStr)
	require.NoError(t, err, "opening database for migrations")
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("pgx"))
	require.NoError(t, goose.UpContext(t.Context(), db, "."), "applying migrations")
}
