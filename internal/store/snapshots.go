package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/inquora/distill/internal/model"
)

// SaveSnapshotTx writes one pre-merge snapshot inside the merge transaction.
// Snapshots are write-once: an existing id is an error, not an upsert.
func SaveSnapshotTx(ctx context.Context, tx *sql.Tx, snap *model.EntitySnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entity_snapshots (id, audit_id, raw_entity_id, consolidated_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.AuditID, snap.RawEntityID, snap.ConsolidatedID, string(snap.Payload), snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.RawEntityID, err)
	}
	return nil
}

// SnapshotsByAudit returns every snapshot a run wrote, for rollback.
func (s *Store) SnapshotsByAudit(ctx context.Context, auditID string) ([]model.EntitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, audit_id, raw_entity_id, consolidated_id, payload, created_at
		FROM entity_snapshots WHERE audit_id = ? ORDER BY id`, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.EntitySnapshot
	for rows.Next() {
		var snap model.EntitySnapshot
		var payload string
		if err := rows.Scan(&snap.ID, &snap.AuditID, &snap.RawEntityID, &snap.ConsolidatedID, &payload, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.Payload = []byte(payload)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// RestoreSnapshotTx puts the raw entity row back exactly as captured and
// clears its consolidation mark.
func RestoreSnapshotTx(ctx context.Context, tx *sql.Tx, snap *model.EntitySnapshot) error {
	var e model.RawEntity
	if err := json.Unmarshal(snap.Payload, &e); err != nil {
		return fmt.Errorf("corrupt snapshot %s: %w", snap.ID, err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO raw_entities
			(id, entity_type, org_id, source_interview_id, payload, consolidated_into, extracted_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		e.ID, string(e.Type), e.OrgID, e.SourceInterviewID, string(snap.Payload), e.ExtractedAt)
	if err != nil {
		return fmt.Errorf("failed to restore raw entity %s: %w", e.ID, err)
	}
	return nil
}

// DeleteRunOutputTx removes every derived record a run produced: the
// consolidated entities plus the regenerable relationships and patterns.
// Snapshots stay; only retention cleanup deletes those.
func DeleteRunOutputTx(ctx context.Context, tx *sql.Tx, auditID string) error {
	for _, table := range []string{"consolidated_entities", "relationships", "patterns"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE audit_id = ?`, table), auditID); err != nil {
			return fmt.Errorf("failed to delete %s for run %s: %w", table, auditID, err)
		}
	}
	return nil
}

// PurgeSnapshots deletes snapshots for rolled-back or aged-out runs.
// Retention policy cleanup only; never called during normal operation.
func (s *Store) PurgeSnapshots(ctx context.Context, auditID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entity_snapshots WHERE audit_id = ?`, auditID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge snapshots: %w", err)
	}
	return res.RowsAffected()
}
