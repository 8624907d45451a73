// Package rollback undoes a consolidation run from its snapshots. The
// restore is one transaction: raw entities come back exactly as captured,
// the run's derived records disappear, and the run flips to rolled_back.
// Either all of that happens or none of it does.
package rollback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

var (
	ErrNotConfirmed      = errors.New("rollback requires explicit confirmation")
	ErrAlreadyRolledBack = errors.New("run already rolled back")
)

// GraphCleaner removes a run's projection from the graph database after the
// relational rollback commits.
type GraphCleaner interface {
	RemoveRun(ctx context.Context, auditID string) error
}

type Manager struct {
	store *store.Store
	graph GraphCleaner
}

func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

func (m *Manager) WithGraphCleaner(g GraphCleaner) *Manager {
	m.graph = g
	return m
}

// Result summarizes what a rollback restored.
type Result struct {
	AuditID          string `json:"audit_id"`
	EntitiesRestored int    `json:"entities_restored"`
	Reason           string `json:"reason"`
}

// Rollback restores every entity a run consolidated. confirm must be true;
// rollback is destructive to the run's output and callers opt in per call.
// A second rollback of the same run returns ErrAlreadyRolledBack.
func (m *Manager) Rollback(ctx context.Context, auditID, reason string, confirm bool) (*Result, error) {
	if !confirm {
		return nil, ErrNotConfirmed
	}

	rec, err := m.store.GetAuditRun(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if rec.Status == model.RunRolledBack {
		return nil, fmt.Errorf("run %s: %w", auditID, ErrAlreadyRolledBack)
	}
	if rec.DryRun {
		return nil, fmt.Errorf("run %s was a dry run, nothing to roll back", auditID)
	}

	snaps, err := m.store.SnapshotsByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}

	err = m.store.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range snaps {
			if err := store.RestoreSnapshotTx(ctx, tx, &snaps[i]); err != nil {
				return err
			}
		}
		if err := store.DeleteRunOutputTx(ctx, tx, auditID); err != nil {
			return err
		}
		return store.MarkRolledBackTx(ctx, tx, auditID, reason)
	})
	if err != nil {
		return nil, fmt.Errorf("rollback of run %s failed, no changes applied: %w", auditID, err)
	}

	// Graph cleanup is best effort: the projection can be rebuilt, the
	// relational rollback above cannot be repeated.
	if m.graph != nil {
		if err := m.graph.RemoveRun(ctx, auditID); err != nil {
			log.Printf("Warning: failed to remove graph projection for run %s: %v", auditID, err)
		}
	}

	log.Printf("Rolled back run %s: restored %d entities (%s)", auditID, len(snaps), reason)
	return &Result{AuditID: auditID, EntitiesRestored: len(snaps), Reason: reason}, nil
}
