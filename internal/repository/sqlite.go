package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which the threshold checks rely on.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS spots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			danger_level TEXT NOT NULL DEFAULT 'SAFE',
			danger_reasons TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			spot_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			severity TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			reporter_id TEXT NOT NULL,
			status TEXT NOT NULL,
			confirmations TEXT NOT NULL DEFAULT '[]',
			moderated_by TEXT NOT NULL DEFAULT '',
			moderation_note TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS proposals (
			id TEXT PRIMARY KEY,
			spot_id TEXT NOT NULL,
			triggering_alert_id TEXT NOT NULL DEFAULT '',
			proposed_by TEXT NOT NULL,
			status TEXT NOT NULL,
			danger_level TEXT NOT NULL,
			danger_reasons TEXT NOT NULL DEFAULT '[]',
			votes_approve TEXT NOT NULL DEFAULT '[]',
			votes_reject TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			resolved_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_spot_id ON alerts(spot_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_active_report
			ON alerts(spot_id, reporter_id, reason) WHERE status != 'DISMISSED';
		CREATE INDEX IF NOT EXISTS idx_proposals_spot_id ON proposals(spot_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_proposals_open
			ON proposals(spot_id) WHERE status = 'PROPOSED';
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList[T any](raw string) ([]T, error) {
	out := []T{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
