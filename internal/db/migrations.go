package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id                        TEXT     PRIMARY KEY,
		owner_id                  TEXT     NOT NULL,
		destination               TEXT     NOT NULL,
		start_date                DATETIME NOT NULL,
		end_date                  DATETIME NOT NULL,
		travel_group              TEXT     NOT NULL DEFAULT '',
		interests                 TEXT     NOT NULL DEFAULT '',
		budget                    TEXT     NOT NULL DEFAULT '',
		transportation            TEXT     NOT NULL DEFAULT '',
		flight_json               TEXT,
		accommodation_json        TEXT,
		regeneration_instructions TEXT     NOT NULL DEFAULT '',
		status                    TEXT     NOT NULL DEFAULT 'pending_generation'
		                          CHECK (status IN ('pending_generation', 'generating', 'generated', 'error')),
		error_message             TEXT     NOT NULL DEFAULT '',
		created_at                DATETIME NOT NULL,
		updated_at                DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_owner ON plans(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status)`,
	`CREATE TABLE IF NOT EXISTS itineraries (
		plan_id       TEXT     PRIMARY KEY REFERENCES plans(id) ON DELETE CASCADE,
		owner_id      TEXT     NOT NULL,
		days_json     TEXT     NOT NULL,
		total_cost    TEXT     NOT NULL DEFAULT '',
		general_notes TEXT     NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_itineraries_owner ON itineraries(owner_id, plan_id)`,
	`CREATE TABLE IF NOT EXISTS location_cache (
		location     TEXT     NOT NULL,
		region       TEXT     NOT NULL,
		lat          REAL     NOT NULL,
		lng          REAL     NOT NULL,
		display_name TEXT     NOT NULL DEFAULT '',
		map_url      TEXT     NOT NULL DEFAULT '',
		provider     TEXT     NOT NULL DEFAULT '',
		place_id     TEXT     NOT NULL DEFAULT '',
		metadata     TEXT,
		updated_at   DATETIME NOT NULL,
		PRIMARY KEY (location, region)
	)`,
	`CREATE TABLE IF NOT EXISTS geocode_queue (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		itinerary_id TEXT     NOT NULL,
		location     TEXT     NOT NULL,
		region       TEXT     NOT NULL,
		status       TEXT     NOT NULL DEFAULT 'pending'
		             CHECK (status IN ('pending', 'completed', 'failed')),
		retries      INTEGER  NOT NULL DEFAULT 0,
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_geocode_queue_due ON geocode_queue(status, retries)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		name         TEXT     NOT NULL,
		key_prefix   TEXT     NOT NULL,
		key_hash     TEXT     NOT NULL UNIQUE,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions (idempotent, checks if the column exists first)
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"api_keys", "owner_id", "TEXT NOT NULL DEFAULT ''"},
	}

	for _, cm := range columnMigrations {
		if err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			return nil // column already exists
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating columns: %w", err)
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
