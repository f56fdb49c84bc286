package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection
func Open(dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// CreateTables creates the history tables if they don't exist
func CreateTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sweeps (
			id TEXT PRIMARY KEY,
			trigger VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS event_checks (
			id SERIAL PRIMARY KEY,
			sweep_id TEXT REFERENCES sweeps(id) ON DELETE CASCADE,
			event_url TEXT NOT NULL,
			label TEXT NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			attempts INTEGER DEFAULT 0,
			offers INTEGER DEFAULT 0,
			qualifying INTEGER DEFAULT 0,
			total_quantity INTEGER DEFAULT 0,
			block_reason TEXT,
			error TEXT,
			checked_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alert_history (
			id SERIAL PRIMARY KEY,
			event_url TEXT NOT NULL,
			artist TEXT NOT NULL,
			date_label TEXT NOT NULL,
			location TEXT NOT NULL,
			max_price DECIMAL(10,2) NOT NULL,
			total_quantity INTEGER NOT NULL,
			matches TEXT NOT NULL,
			message TEXT NOT NULL,
			sent_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_event_checks_url ON event_checks (event_url, checked_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_sent ON alert_history (sent_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
