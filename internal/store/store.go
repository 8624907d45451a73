package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the single shared mutable resource of a consolidation run. All
// merge and rollback writes go through WithTx so a partial failure never
// leaves mixed state.
type Store struct {
	db   *sql.DB
	path string
}

func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_entities (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		org_id TEXT NOT NULL,
		source_interview_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		consolidated_into TEXT,
		extracted_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_raw_type_org ON raw_entities(entity_type, org_id);
	CREATE INDEX IF NOT EXISTS idx_raw_consolidated ON raw_entities(consolidated_into);

	CREATE TABLE IF NOT EXISTS consolidated_entities (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		org_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		audit_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consolidated_type_org ON consolidated_entities(entity_type, org_id);
	CREATE INDEX IF NOT EXISTS idx_consolidated_audit ON consolidated_entities(audit_id);

	CREATE TABLE IF NOT EXISTS entity_snapshots (
		id TEXT PRIMARY KEY,
		audit_id TEXT NOT NULL,
		raw_entity_id TEXT NOT NULL,
		consolidated_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_audit ON entity_snapshots(audit_id);

	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		relationship_type TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		audit_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_audit ON relationships(audit_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		org_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		audit_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_audit ON patterns(audit_id);

	CREATE TABLE IF NOT EXISTS audit_runs (
		audit_id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		entity_types TEXT NOT NULL,
		status TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		rolled_back_at TIMESTAMP,
		rollback_reason TEXT,
		report TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside one transaction, rolling back on error or panic.
// This is the only write path for merge and rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
