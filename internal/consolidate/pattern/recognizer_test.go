package pattern

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/model"
)

func testCfg() config.PatternConfig {
	return config.Default().Patterns
}

func entity(id string, t model.EntityType, name string, interviews ...string) model.ConsolidatedEntity {
	return model.ConsolidatedEntity{
		ID: id, Type: t, OrgID: "org-1", Name: name,
		SourceCount: len(interviews), MentionedIn: interviews,
	}
}

func causes(from, to string) model.Relationship {
	return model.Relationship{
		ID: from + "->" + to, Type: model.RelCauses,
		FromID: from, FromType: model.TypeSystem,
		ToID: to, ToType: model.TypePainPoint, OrgID: "org-1",
	}
}

func TestRecurringIssueAtFloor(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		entity("pp-1", model.TypePainPoint, "late invoicing", "int-1", "int-2", "int-3"),
		entity("pp-2", model.TypePainPoint, "slow onboarding", "int-4", "int-5"),
		// Widen the interview universe so pp-1's share stays below priority.
		entity("sys-1", model.TypeSystem, "SAP",
			"int-1", "int-2", "int-3", "int-4", "int-5", "int-6", "int-7", "int-8", "int-9", "int-10", "int-11"),
	}

	got, err := NewRecognizer(testCfg(), "run-1").Recognize(context.Background(), entities, nil)
	require.NoError(t, err)

	var recurring []model.Pattern
	for _, p := range got {
		if p.Kind == model.PatternRecurringIssue {
			recurring = append(recurring, p)
		}
	}
	// pp-1 (3 interviews) and sys-1 (11) qualify; pp-2 (2) does not.
	require.Len(t, recurring, 2)
	for _, p := range recurring {
		assert.NotEqual(t, "pp-2", p.EntityIDs[0])
	}
}

func TestHighPriorityTracksInterviewShare(t *testing.T) {
	// 3 of 4 interviews mention the pain point: well above the 30% bar.
	entities := []model.ConsolidatedEntity{
		entity("pp-1", model.TypePainPoint, "late invoicing", "int-1", "int-2", "int-3"),
		entity("pp-2", model.TypePainPoint, "slow onboarding", "int-4"),
	}

	got, err := NewRecognizer(testCfg(), "run-1").Recognize(context.Background(), entities, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].HighPriority)
	assert.InDelta(t, 0.75, got[0].Strength, 1e-9)
}

func TestProblematicSystemNeedsDistinctPainPoints(t *testing.T) {
	interviews := []string{"int-1", "int-2", "int-3", "int-4", "int-5"}
	entities := []model.ConsolidatedEntity{
		{ID: "sys-1", Type: model.TypeSystem, OrgID: "org-1", Name: "SAP",
			SourceCount: 1, MentionedIn: interviews[:1]},
	}
	for i, pp := range []string{"pp-1", "pp-2", "pp-3", "pp-4", "pp-5"} {
		entities = append(entities, entity(pp, model.TypePainPoint, "issue "+pp, interviews[i]))
	}

	rels := []model.Relationship{
		causes("sys-1", "pp-1"), causes("sys-1", "pp-2"), causes("sys-1", "pp-3"),
		causes("sys-1", "pp-4"), causes("sys-1", "pp-5"),
		// Duplicate edge from another rule must not inflate the count.
		{ID: "dup", Type: model.RelCauses, FromID: "sys-1", FromType: model.TypeSystem,
			ToID: "pp-1", ToType: model.TypePainPoint, OrgID: "org-1"},
	}

	got, err := NewRecognizer(testCfg(), "run-1").Recognize(context.Background(), entities, rels)
	require.NoError(t, err)

	var sysPatterns []model.Pattern
	for _, p := range got {
		if p.Kind == model.PatternProblematicSystem {
			sysPatterns = append(sysPatterns, p)
		}
	}
	require.Len(t, sysPatterns, 1)
	p := sysPatterns[0]
	assert.Equal(t, "sys-1", p.EntityIDs[0])
	assert.Len(t, p.EntityIDs, 6)
	assert.True(t, p.HighPriority)
}

func TestProblematicSystemBelowFloorIgnored(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		entity("sys-1", model.TypeSystem, "SAP", "int-1"),
		entity("pp-1", model.TypePainPoint, "outages", "int-1"),
		entity("pp-2", model.TypePainPoint, "slow reports", "int-2"),
	}
	rels := []model.Relationship{causes("sys-1", "pp-1"), causes("sys-1", "pp-2")}

	got, err := NewRecognizer(testCfg(), "run-1").Recognize(context.Background(), entities, rels)
	require.NoError(t, err)
	for _, p := range got {
		assert.NotEqual(t, model.PatternProblematicSystem, p.Kind)
	}
}

func TestPositivePainPointDoesNotCountAgainstSystem(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		entity("sys-1", model.TypeSystem, "SAP", "int-1"),
	}
	for i := 1; i <= 5; i++ {
		pp := entity(fmt.Sprintf("pp-%d", i), model.TypePainPoint, "item", "int-1")
		if i == 5 {
			pp.Details = &model.Details{PainPoint: &model.PainPointDetails{
				Sentiment: model.SentimentPositive,
			}}
		}
		entities = append(entities, pp)
	}
	rels := []model.Relationship{
		causes("sys-1", "pp-1"), causes("sys-1", "pp-2"), causes("sys-1", "pp-3"),
		causes("sys-1", "pp-4"), causes("sys-1", "pp-5"),
	}

	// Only 4 negative links remain, one short of the floor.
	got, err := NewRecognizer(testCfg(), "run-1").Recognize(context.Background(), entities, rels)
	require.NoError(t, err)
	for _, p := range got {
		assert.NotEqual(t, model.PatternProblematicSystem, p.Kind)
	}
}

func TestPatternIDsAreStableAcrossRuns(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		entity("pp-1", model.TypePainPoint, "late invoicing", "int-1", "int-2", "int-3"),
	}
	r := NewRecognizer(testCfg(), "run-1")

	first, err := r.Recognize(context.Background(), entities, nil)
	require.NoError(t, err)
	second, err := r.Recognize(context.Background(), entities, nil)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}
