package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"retz/internal/store"
)

//go:embed schema.sql
var ddl string

//go:embed migrations/*.sql
var migrationFS embed.FS

var requiredTables = []string{"users", "applications", "jobs", "properties"}

// checkSerializable refuses to start against a backend that does not
// advertise SERIALIZABLE isolation (hard requirement, §4.A). It opens
// a real SERIALIZABLE transaction and reads back what the backend
// actually granted, rather than trusting that a backend which merely
// answers a query supports the isolation level it claims.
func checkSerializable(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return &store.IsolationUnsupported{Backend: fmt.Sprintf("backend rejected SERIALIZABLE isolation: %v", err)}
	}
	defer tx.Rollback()

	var txIso string
	if err := tx.QueryRowContext(ctx, "SHOW transaction_isolation").Scan(&txIso); err != nil {
		return &store.IsolationUnsupported{Backend: fmt.Sprintf("unable to verify isolation level: %v", err)}
	}
	if txIso != "serializable" {
		return &store.IsolationUnsupported{Backend: fmt.Sprintf("backend granted %q isolation, not serializable", txIso)}
	}
	return nil
}

// bootstrapSchema probes for the presence of all four tables. If none
// are present it runs the shipped DDL; if all are present it proceeds;
// any other combination is a fatal SchemaPartial.
func (s *Store) bootstrapSchema(ctx context.Context) error {
	present, err := s.tablesPresent(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, ok := range present {
		if ok {
			count++
		}
	}

	switch count {
	case len(requiredTables):
		return nil
	case 0:
		_, err := s.db.ExecContext(ctx, ddl)
		return store.WrapStoreError("bootstrapSchema", err)
	default:
		return &store.SchemaPartial{
			UsersExist:        present["users"],
			ApplicationsExist: present["applications"],
			JobsExist:         present["jobs"],
			PropertiesExist:   present["properties"],
		}
	}
}

// tablesPresent checks information_schema for each required table,
// accepting both lower- and upper-case names for portability (§6).
func (s *Store) tablesPresent(ctx context.Context) (map[string]bool, error) {
	present := make(map[string]bool, len(requiredTables))
	for _, t := range requiredTables {
		var name string
		err := s.db.QueryRowContext(ctx, `
			SELECT table_name FROM information_schema.tables
			WHERE lower(table_name) = lower($1) LIMIT 1`, t).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			present[t] = false
		case err != nil:
			return nil, store.WrapStoreError("tablesPresent", err)
		default:
			present[t] = true
		}
	}
	return present, nil
}

// Migrate runs any versioned migrations embedded under migrations/ on
// top of the bootstrap DDL. This is an optional upgrade path for
// deployments that want schema evolution tracked explicitly; Retz's
// DDL itself is a single script per §6, so a fresh database never
// needs it.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
