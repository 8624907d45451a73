package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/inquora/distill/internal/model"
)

// ReplaceRelationships swaps the derived relationship set for one run.
// Discovery is idempotent, so delete-and-rewrite is safe.
func (s *Store) ReplaceRelationships(ctx context.Context, auditID string, rels []model.Relationship) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE audit_id = ?`, auditID); err != nil {
			return fmt.Errorf("failed to clear relationships: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relationships (id, relationship_type, from_id, to_id, org_id, payload, audit_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rels {
			r := &rels[i]
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to serialize relationship: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, r.ID, string(r.Type), r.FromID, r.ToID, r.OrgID,
				string(payload), r.AuditID, r.CreatedAt); err != nil {
				return fmt.Errorf("failed to save relationship %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) RelationshipsByOrg(ctx context.Context, orgID string) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM relationships WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []model.Relationship
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r model.Relationship
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("corrupt relationship payload: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// ReplacePatterns swaps the derived pattern set for one run.
func (s *Store) ReplacePatterns(ctx context.Context, auditID string, patterns []model.Pattern) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM patterns WHERE audit_id = ?`, auditID); err != nil {
			return fmt.Errorf("failed to clear patterns: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO patterns (id, kind, org_id, payload, audit_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range patterns {
			p := &patterns[i]
			payload, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to serialize pattern: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, p.ID, string(p.Kind), p.OrgID,
				string(payload), p.AuditID, p.CreatedAt); err != nil {
				return fmt.Errorf("failed to save pattern %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) PatternsByOrg(ctx context.Context, orgID string) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM patterns WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p model.Pattern
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("corrupt pattern payload: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
