package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_vendor_aliases",
		Up:      migration002AddVendorAliases,
	},
	{
		Version: 3,
		Name:    "add_confirmed_match_indexes",
		Up:      migration003AddConfirmedMatchIndexes,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version, migration.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if needed
func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// getAppliedMigrations returns the set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// migration001InitialSchema creates the core matching tables
func migration001InitialSchema(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE receipts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount REAL NOT NULL,
			date DATETIME NOT NULL,
			vendor TEXT NOT NULL DEFAULT '',
			extracted INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'unmatched',
			matched_transaction_id TEXT,
			matched_group_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount REAL NOT NULL,
			date DATETIME NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			group_id TEXT,
			status TEXT NOT NULL DEFAULT 'unmatched',
			matched_receipt_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE transaction_groups (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			combined_amount REAL NOT NULL,
			display_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'unmatched',
			matched_receipt_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE matches (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			receipt_id TEXT NOT NULL,
			transaction_id TEXT,
			group_id TEXT,
			status TEXT NOT NULL DEFAULT 'proposed',
			score INTEGER NOT NULL,
			amount_score INTEGER NOT NULL,
			date_score INTEGER NOT NULL,
			vendor_score INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			alias_id INTEGER,
			manual INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			confirmed_at DATETIME,
			confirmed_by TEXT,
			unmatched_at DATETIME,
			version INTEGER NOT NULL DEFAULT 1,
			CHECK ((transaction_id IS NULL) != (group_id IS NULL))
		)`,
		`CREATE INDEX idx_receipts_user_status ON receipts(user_id, status)`,
		`CREATE INDEX idx_transactions_user_status ON transactions(user_id, status)`,
		`CREATE INDEX idx_transactions_date ON transactions(date)`,
		`CREATE INDEX idx_groups_user_status ON transaction_groups(user_id, status)`,
		`CREATE INDEX idx_matches_receipt ON matches(receipt_id)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migration002AddVendorAliases creates the learned vendor alias table
func migration002AddVendorAliases(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE vendor_aliases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			pattern TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			gl_code TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			match_count INTEGER NOT NULL DEFAULT 1,
			last_matched_at DATETIME NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, pattern)
		)`,
		`CREATE INDEX idx_aliases_last_matched ON vendor_aliases(last_matched_at)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migration003AddConfirmedMatchIndexes adds the partial unique indexes that
// enforce the one-confirmed-match rule per receipt, transaction and group.
// These hold even when two confirms race past the application-level check.
func migration003AddConfirmedMatchIndexes(tx *sql.Tx) error {
	statements := []string{
		`CREATE UNIQUE INDEX idx_matches_confirmed_receipt
			ON matches(receipt_id) WHERE status = 'confirmed'`,
		`CREATE UNIQUE INDEX idx_matches_confirmed_transaction
			ON matches(transaction_id) WHERE status = 'confirmed' AND transaction_id IS NOT NULL`,
		`CREATE UNIQUE INDEX idx_matches_confirmed_group
			ON matches(group_id) WHERE status = 'confirmed' AND group_id IS NOT NULL`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
