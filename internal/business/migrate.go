package business

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"

	// Register pgx driver
	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/openkcm/storyblok-proxy/internal/config"
	migrations "github.com/openkcm/storyblok-proxy/sql"
)

const migrationDialect = "pgx"

// MigrateMain brings the session table of the PostgreSQL backend up to date.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	if cfg.Sessions.Backend != config.SessionBackendPostgres {
		slogctx.Warn(ctx, "Sessions are not kept in PostgreSQL, migrating anyway", "backend", cfg.Sessions.Backend)
	}

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return fmt.Errorf("making connection string from config: %w", err)
	}

	db, unregister, err := openInstrumentedDB(connStr)
	if err != nil {
		return err
	}
	defer func() {
		unregister(ctx)
		_ = db.Close()
	}()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(migrationDialect); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	slogctx.Info(ctx, "Session schema is up to date", "version", version)

	return nil
}

// openInstrumentedDB opens a traced database/sql handle and registers its
// pool statistics as metrics.
func openInstrumentedDB(connStr string) (*sql.DB, func(context.Context), error) {
	dbSystemName := semconv.DBSystemNamePostgreSQL

	db, err := otelsql.Open(migrationDialect, connStr, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		return nil, nil, oops.In("main").Wrapf(err, "opening DB connection")
	}

	reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	unregister := func(ctx context.Context) {
		if err := reg.Unregister(); err != nil {
			slogctx.Error(ctx, "failed to unregister db stats metrics", "error", err)
		}
	}

	return db, unregister, nil
}
