package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/inquora/distill/internal/model"
)

// SaveRawEntity inserts or replaces one extracted mention. Ingestion-side
// only; consolidation never rewrites extracted content.
func (s *Store) SaveRawEntity(ctx context.Context, e *model.RawEntity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize raw entity %s: %w", e.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO raw_entities
			(id, entity_type, org_id, source_interview_id, payload, consolidated_into, extracted_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		e.ID, string(e.Type), e.OrgID, e.SourceInterviewID, string(payload), e.ExtractedAt)
	if err != nil {
		return fmt.Errorf("failed to save raw entity %s: %w", e.ID, err)
	}
	return nil
}

// UnconsolidatedByType loads the raw entities of one type and org that no
// prior run has absorbed.
func (s *Store) UnconsolidatedByType(ctx context.Context, orgID string, t model.EntityType) ([]model.RawEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM raw_entities
		WHERE entity_type = ? AND org_id = ? AND consolidated_into IS NULL
		ORDER BY id`,
		string(t), orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw entities: %w", err)
	}
	defer rows.Close()

	var entities []model.RawEntity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e model.RawEntity
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("corrupt raw entity payload: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// MarkConsolidatedTx ties absorbed raw entities to their consolidated id,
// inside the merge transaction.
func MarkConsolidatedTx(ctx context.Context, tx *sql.Tx, rawIDs []string, consolidatedID string) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE raw_entities SET consolidated_into = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range rawIDs {
		if _, err := stmt.ExecContext(ctx, consolidatedID, id); err != nil {
			return fmt.Errorf("failed to mark raw entity %s consolidated: %w", id, err)
		}
	}
	return nil
}

// SaveConsolidatedTx persists one consolidated entity inside the merge
// transaction.
func SaveConsolidatedTx(ctx context.Context, tx *sql.Tx, e *model.ConsolidatedEntity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize consolidated entity: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO consolidated_entities (id, entity_type, org_id, payload, audit_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.OrgID, string(payload), e.AuditID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save consolidated entity %s: %w", e.ID, err)
	}
	return nil
}

// ConsolidatedByOrg loads the full consolidated set for one org, all types.
func (s *Store) ConsolidatedByOrg(ctx context.Context, orgID string) ([]model.ConsolidatedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM consolidated_entities WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidated entities: %w", err)
	}
	defer rows.Close()
	return scanConsolidated(rows)
}

// ConsolidatedByAudit loads everything one run produced.
func (s *Store) ConsolidatedByAudit(ctx context.Context, auditID string) ([]model.ConsolidatedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM consolidated_entities WHERE audit_id = ? ORDER BY id`, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidated entities: %w", err)
	}
	defer rows.Close()
	return scanConsolidated(rows)
}

func scanConsolidated(rows *sql.Rows) ([]model.ConsolidatedEntity, error) {
	var entities []model.ConsolidatedEntity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e model.ConsolidatedEntity
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("corrupt consolidated payload: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
