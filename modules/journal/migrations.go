package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// migration is one forward-only schema change.
type migration struct {
	Version string
	SQL     string
}

var migrations = []migration{
	{
		Version: "0001_entries",
		SQL: `CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			time INTEGER NOT NULL,
			data TEXT
		)`,
	},
	{
		Version: "0002_entries_indexes",
		SQL: `CREATE INDEX IF NOT EXISTS entries_type ON entries (type);
			CREATE INDEX IF NOT EXISTS entries_time ON entries (time)`,
	},
	{
		Version: "0003_entries_instance",
		SQL: `ALTER TABLE entries ADD COLUMN instance_id TEXT;
			CREATE INDEX IF NOT EXISTS entries_instance ON entries (instance_id)`,
	},
}

// migrate applies pending migrations in version order, each in its own
// transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("%w: create migrations table: %w", ErrMigrationFailed, err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: query applied migrations: %w", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("%w: scan migration row: %w", ErrMigrationFailed, err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate migration rows: %w", ErrMigrationFailed, err)
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin %s: %w", ErrMigrationFailed, m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("%w: execute %s: %w", ErrMigrationFailed, m.Version, err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("%w: record %s: %w", ErrMigrationFailed, m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", ErrMigrationFailed, m.Version, err)
	}
	return nil
}
