// Package sqlbase provides the base functionality for SQL database persistence.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// migrationLockKey serialises migrations across processes sharing a database.
const migrationLockKey int64 = 0x70666c6f77

// MigrationManager applies versioned schema migrations. A run holds a
// session advisory lock, so the API and the sweeper can start against the
// same database at once.
type MigrationManager struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations map[int]string
}

func NewMigrationManager(logger *slog.Logger, db *sql.DB, migrations map[int]string) *MigrationManager {
	return &MigrationManager{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

// RunMigrations brings the schema up to LatestVersion.
func (m *MigrationManager) RunMigrations(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	_, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey)
	if err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}

	defer func() {
		_, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
		if err != nil {
			m.logger.WarnContext(ctx, "failed to release migration lock", "error", err)
		}
	}()

	_, err = conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := currentVersion(ctx, conn)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "checking schema", "version", current, "latest", m.LatestVersion())

	for _, version := range slices.Sorted(maps.Keys(m.migrations)) {
		if version <= current {
			continue
		}

		err := m.apply(ctx, conn, version)
		if err != nil {
			return err
		}

		m.logger.InfoContext(ctx, "migration applied", "version", version)
	}

	return nil
}

// LatestVersion returns the highest registered migration version.
func (m *MigrationManager) LatestVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return slices.Max(slices.Collect(maps.Keys(m.migrations)))
}

// CurrentVersion returns the version recorded in schema_migrations.
func (m *MigrationManager) CurrentVersion(ctx context.Context) (int, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	return currentVersion(ctx, conn)
}

func currentVersion(ctx context.Context, conn *sql.Conn) (int, error) {
	var version int

	err := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query current schema version: %w", err)
	}

	return version, nil
}

func (m *MigrationManager) apply(ctx context.Context, conn *sql.Conn, version int) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, m.migrations[version])
	if err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", version, err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", version, err)
	}

	return nil
}
