package rollback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquora/distill/internal/consolidate/consensus"
	"github.com/inquora/distill/internal/consolidate/merge"
	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

// seedMergedRun runs a real merge so rollback operates on genuine snapshots.
func seedMergedRun(t *testing.T, st *store.Store, auditID string) []model.RawEntity {
	t.Helper()
	ctx := context.Background()

	members := []model.RawEntity{
		{ID: "pp-1", Type: model.TypePainPoint, SourceInterviewID: "int-1",
			OrgID: "org-1", Name: "late invoicing", Description: "invoices leave weeks late",
			ExtractedAt: time.Now().UTC().Truncate(time.Second)},
		{ID: "pp-2", Type: model.TypePainPoint, SourceInterviewID: "int-2",
			OrgID: "org-1", Name: "late invoicing",
			ExtractedAt: time.Now().UTC().Truncate(time.Second)},
	}
	for i := range members {
		require.NoError(t, st.SaveRawEntity(ctx, &members[i]))
	}

	require.NoError(t, st.CreateAuditRun(ctx, &model.AuditRecord{
		AuditID: auditID, OrgID: "org-1",
		EntityTypes: []model.EntityType{model.TypePainPoint},
		Status:      model.RunActive, StartedAt: time.Now().UTC(),
	}))

	cluster := &model.DuplicateCluster{Members: members, Primary: 0}
	_, err := merge.NewMerger(st).Merge(ctx, auditID, cluster, &consensus.Result{Confidence: 0.4})
	require.NoError(t, err)
	require.NoError(t, st.FinishAuditRun(ctx, auditID, model.RunCompleted, nil))
	return members
}

func TestRollbackRestoresRawEntities(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "rollback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	seedMergedRun(t, st, "run-1")

	res, err := NewManager(st).Rollback(ctx, "run-1", "merged unrelated pain points", true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntitiesRestored)

	// Both raw entities are unconsolidated again.
	raw, err := st.UnconsolidatedByType(ctx, "org-1", model.TypePainPoint)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	// The run's consolidated output is gone.
	consolidated, err := st.ConsolidatedByAudit(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, consolidated)

	rec, err := st.GetAuditRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunRolledBack, rec.Status)
	assert.Equal(t, "merged unrelated pain points", rec.RollbackReason)
	require.NotNil(t, rec.RolledBackAt)
}

func TestDoubleRollbackIsAnError(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "rollback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	seedMergedRun(t, st, "run-1")

	_, err = NewManager(st).Rollback(ctx, "run-1", "first", true)
	require.NoError(t, err)

	_, err = NewManager(st).Rollback(ctx, "run-1", "second", true)
	assert.ErrorIs(t, err, ErrAlreadyRolledBack)
}

func TestRollbackRequiresConfirmation(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "rollback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = NewManager(st).Rollback(context.Background(), "run-1", "oops", false)
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestRollbackUnknownRun(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "rollback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = NewManager(st).Rollback(context.Background(), "no-such-run", "oops", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
