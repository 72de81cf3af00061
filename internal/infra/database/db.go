package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const createCycleTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	team_id                      TEXT        NOT NULL,
	cycle_id                     TEXT        NOT NULL,
	reward_cycle_start_date      TIMESTAMPTZ NULL,
	reward_cycle_end_date        TIMESTAMPTZ NULL,
	is_recurring                 SMALLINT    NOT NULL DEFAULT 0,
	range_of_occurrence          SMALLINT    NOT NULL DEFAULT 0,
	range_of_occurrence_end_date TIMESTAMPTZ NULL,
	number_of_occurrences        INTEGER     NOT NULL DEFAULT 0,
	reward_cycle_state           SMALLINT    NOT NULL DEFAULT 0,
	result_published             SMALLINT    NOT NULL DEFAULT 0,
	result_published_on          TIMESTAMPTZ NULL,
	superseded_by                TEXT        NULL,
	created_on                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_by_object_id         TEXT        NOT NULL DEFAULT '',
	created_by_principal_name    TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (team_id, cycle_id)
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (result_published) WHERE superseded_by IS NULL;
`

// EnsureSchema creates the reward cycle table and its index if they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB, tableName string) error {
	if tableName == "" {
		tableName = defaultCycleTableName
	}
	stmt := fmt.Sprintf(createCycleTableSQL,
		pq.QuoteIdentifier(tableName),
		pq.QuoteIdentifier(tableName+"_schedulable_idx"),
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to ensure schema for %s: %w", tableName, err)
	}
	return nil
}
