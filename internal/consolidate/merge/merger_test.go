package merge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquora/distill/internal/consolidate/consensus"
	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mention(id, interview, name, desc string) model.RawEntity {
	return model.RawEntity{
		ID: id, Type: model.TypePainPoint, SourceInterviewID: interview,
		OrgID: "org-1", Name: name, Description: desc,
		ExtractedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestMergeWritesSnapshotAndConsolidated(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	members := []model.RawEntity{
		mention("pp-1", "int-1", "late invoicing", "invoices leave weeks late"),
		mention("pp-2", "int-2", "late invoicing", ""),
	}
	for i := range members {
		require.NoError(t, st.SaveRawEntity(ctx, &members[i]))
	}

	cluster := &model.DuplicateCluster{Members: members, Primary: 0}
	verdict := &consensus.Result{Confidence: 0.4}

	m := NewMerger(st)
	entity, err := m.Merge(ctx, "run-1", cluster, verdict)
	require.NoError(t, err)

	assert.Equal(t, 2, entity.SourceCount)
	assert.ElementsMatch(t, []string{"int-1", "int-2"}, entity.MentionedIn)
	assert.Equal(t, "invoices leave weeks late", entity.Description)
	assert.NoError(t, entity.CheckInvariants())

	// One snapshot per absorbed member, tagged with the run.
	snaps, err := st.SnapshotsByAudit(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	// Members no longer show up as unconsolidated.
	remaining, err := st.UnconsolidatedByType(ctx, "org-1", model.TypePainPoint)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// The consolidated record is queryable by run.
	got, err := st.ConsolidatedByAudit(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entity.ID, got[0].ID)
}

func TestSourceCountCountsInterviewsNotMentions(t *testing.T) {
	// Two mentions from the same interview corroborate nothing extra.
	cluster := &model.DuplicateCluster{
		Members: []model.RawEntity{
			mention("pp-1", "int-1", "late invoicing", ""),
			mention("pp-2", "int-1", "invoicing always late", ""),
		},
	}
	entity, err := Consolidate("run-1", cluster, &consensus.Result{Confidence: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 1, entity.SourceCount)
	assert.Equal(t, []string{"int-1"}, entity.MentionedIn)
}

func TestConsolidateEmptyClusterFails(t *testing.T) {
	_, err := Consolidate("run-1", &model.DuplicateCluster{}, &consensus.Result{})
	assert.Error(t, err)
}

func TestConsolidateCarriesContradiction(t *testing.T) {
	cluster := &model.DuplicateCluster{
		Members: []model.RawEntity{
			mention("pp-1", "int-1", "late invoicing", ""),
			mention("pp-2", "int-2", "late invoicing", ""),
		},
	}
	verdict := &consensus.Result{
		Confidence:           0.35,
		Contradiction:        true,
		ConflictingSourceIDs: []string{"int-2"},
	}
	entity, err := Consolidate("run-1", cluster, verdict)
	require.NoError(t, err)
	assert.True(t, entity.ContradictionFlag)
	assert.Equal(t, []string{"int-2"}, entity.ContradictingSourceIDs)
	assert.Equal(t, 0.35, entity.ConsensusConfidence)
}

func TestMergeDetailsUnionsAndConcatenates(t *testing.T) {
	ac := func(id, interview, budget string) model.RawEntity {
		return model.RawEntity{
			ID: id, Type: model.TypeAutomationCandidate, SourceInterviewID: interview,
			OrgID: "org-1", Name: "auto-reconciliation",
			Details: &model.Details{AutomationCandidate: &model.AutomationCandidateDetails{
				BudgetRange: budget,
			}},
		}
	}
	cluster := &model.DuplicateCluster{
		Members: []model.RawEntity{
			ac("ac-1", "int-1", "10k-20k"),
			ac("ac-2", "int-2", "25k-40k"),
		},
	}
	entity, err := Consolidate("run-1", cluster, &consensus.Result{Confidence: 0.2})
	require.NoError(t, err)
	require.NotNil(t, entity.Details)
	require.NotNil(t, entity.Details.AutomationCandidate)
	assert.Equal(t, "10k-20k; 25k-40k", entity.Details.AutomationCandidate.BudgetRange)
}
