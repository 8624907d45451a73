package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/inquora/distill/internal/model"
)

// CreateAuditRun records a new run in status active before any merge writes.
func (s *Store) CreateAuditRun(ctx context.Context, rec *model.AuditRecord) error {
	types := make([]string, len(rec.EntityTypes))
	for i, t := range rec.EntityTypes {
		types[i] = string(t)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (audit_id, org_id, entity_types, status, dry_run, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.AuditID, rec.OrgID, strings.Join(types, ","), string(rec.Status), rec.DryRun, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit run: %w", err)
	}
	return nil
}

// FinishAuditRun seals a run with its terminal status and report.
func (s *Store) FinishAuditRun(ctx context.Context, auditID string, status model.RunStatus, report *model.RunReport) error {
	var reportJSON interface{}
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to serialize report: %w", err)
		}
		reportJSON = string(b)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE audit_runs SET status = ?, finished_at = ?, report = ? WHERE audit_id = ?`,
		string(status), time.Now().UTC(), reportJSON, auditID)
	if err != nil {
		return fmt.Errorf("failed to finish audit run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("audit run %s: %w", auditID, ErrNotFound)
	}
	return nil
}

// MarkRolledBackTx flips the run to rolled_back inside the rollback
// transaction, guarding against double rollback at the SQL level.
func MarkRolledBackTx(ctx context.Context, tx *sql.Tx, auditID, reason string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE audit_runs SET status = ?, rolled_back_at = ?, rollback_reason = ?
		WHERE audit_id = ? AND status != ?`,
		string(model.RunRolledBack), time.Now().UTC(), reason, auditID, string(model.RunRolledBack))
	if err != nil {
		return fmt.Errorf("failed to mark run rolled back: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("audit run %s not updatable: %w", auditID, ErrNotFound)
	}
	return nil
}

// GetAuditRun fetches one run, ErrNotFound if the id is unknown.
func (s *Store) GetAuditRun(ctx context.Context, auditID string) (*model.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT audit_id, org_id, entity_types, status, dry_run, started_at, finished_at,
		       rolled_back_at, rollback_reason, report
		FROM audit_runs WHERE audit_id = ?`, auditID)
	rec, err := scanAuditRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audit run %s: %w", auditID, ErrNotFound)
	}
	return rec, err
}

// ListAuditRuns enumerates runs, newest first.
func (s *Store) ListAuditRuns(ctx context.Context) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT audit_id, org_id, entity_types, status, dry_run, started_at, finished_at,
		       rolled_back_at, rollback_reason, report
		FROM audit_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	defer rows.Close()

	var recs []model.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditRun(row rowScanner) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	var types, status string
	var finishedAt, rolledBackAt sql.NullTime
	var reason, report sql.NullString

	err := row.Scan(&rec.AuditID, &rec.OrgID, &types, &status, &rec.DryRun, &rec.StartedAt,
		&finishedAt, &rolledBackAt, &reason, &report)
	if err != nil {
		return nil, err
	}

	rec.Status = model.RunStatus(status)
	for _, t := range strings.Split(types, ",") {
		if t != "" {
			rec.EntityTypes = append(rec.EntityTypes, model.EntityType(t))
		}
	}
	if finishedAt.Valid {
		rec.FinishedAt = finishedAt.Time
	}
	if rolledBackAt.Valid {
		t := rolledBackAt.Time
		rec.RolledBackAt = &t
	}
	if reason.Valid {
		rec.RollbackReason = reason.String
	}
	if report.Valid && report.String != "" {
		var r model.RunReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("corrupt report for run %s: %w", rec.AuditID, err)
		}
		rec.Report = &r
	}
	return &rec, nil
}
