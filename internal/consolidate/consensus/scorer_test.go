package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/model"
)

type mockLLM struct {
	response string
	err      error
}

func (m *mockLLM) Generate(_ context.Context, _ string) (string, error) {
	return m.response, m.err
}

func member(id, interview string, t model.EntityType, name string, details *model.Details) model.RawEntity {
	return model.RawEntity{
		ID: id, Type: t, SourceInterviewID: interview, OrgID: "org-1",
		Name: name, Details: details,
	}
}

func systemMention(id, interview string, s model.Sentiment) model.RawEntity {
	return member(id, interview, model.TypeSystem, "SAP",
		&model.Details{System: &model.SystemDetails{Sentiment: s, Vendor: "SAP SE"}})
}

func clusterOf(members ...model.RawEntity) *model.DuplicateCluster {
	return &model.DuplicateCluster{Members: members}
}

func TestConfidenceScalesWithSources(t *testing.T) {
	s := NewScorer(config.Default().Consensus)
	ctx := context.Background()

	// Five corroborating sources, all agreeing on the vendor key field:
	// 5/10 + 0.1 agreement bonus.
	var members []model.RawEntity
	for i := 0; i < 5; i++ {
		members = append(members, systemMention(
			string(rune('a'+i)), "int-"+string(rune('1'+i)), model.SentimentNegative))
	}
	res := s.Score(ctx, clusterOf(members...))
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.False(t, res.Contradiction)
	assert.True(t, res.Agreement)
}

func TestSingleSourcePenalty(t *testing.T) {
	s := NewScorer(config.Default().Consensus)
	res := s.Score(context.Background(), clusterOf(systemMention("a", "int-1", "")))
	// 1/10 - 0.2 penalty, clamped at 0.
	assert.Equal(t, 0.0, res.Confidence)
}

func TestConfidenceSaturates(t *testing.T) {
	cfg := config.Default().Consensus
	s := NewScorer(cfg)
	var members []model.RawEntity
	for i := 0; i < 30; i++ {
		members = append(members, member(
			string(rune('a'+i)), "int-"+string(rune('a'+i)), model.TypePainPoint, "late invoicing", nil))
	}
	res := s.Score(context.Background(), clusterOf(members...))
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestMixedSentimentFlagsContradiction(t *testing.T) {
	// Spec scenario: 4 negative + 1 positive mention of the same system.
	s := NewScorer(config.Default().Consensus)
	cluster := clusterOf(
		systemMention("a", "int-1", model.SentimentNegative),
		systemMention("b", "int-2", model.SentimentNegative),
		systemMention("c", "int-3", model.SentimentNegative),
		systemMention("d", "int-4", model.SentimentNegative),
		systemMention("e", "int-5", model.SentimentPositive),
	)
	res := s.Score(context.Background(), cluster)

	assert.True(t, res.Contradiction)
	assert.Equal(t, []string{"int-5"}, res.ConflictingSourceIDs)
	// 5/10 - 0.15 contradiction + 0.1 agreement (same vendor everywhere).
	assert.InDelta(t, 0.45, res.Confidence, 1e-9)
}

func TestLexiconSentimentFallback(t *testing.T) {
	// No extractor polarity: the lexicon reads it off the free text.
	cluster := clusterOf(
		member("a", "int-1", model.TypeSystem, "SAP", nil),
		member("b", "int-2", model.TypeSystem, "SAP", nil),
	)
	cluster.Members[0].Description = "el sistema se cae seguido"
	cluster.Members[1].Description = "funciona bien para nosotros"

	s := NewScorer(config.Default().Consensus)
	res := s.Score(context.Background(), cluster)
	assert.True(t, res.Contradiction)
}

func TestKPITargetConflict(t *testing.T) {
	kpi := func(id, interview, target string) model.RawEntity {
		return member(id, interview, model.TypeKPI, "DSO",
			&model.Details{KPI: &model.KPIDetails{Unit: "days", Target: target}})
	}
	s := NewScorer(config.Default().Consensus)

	res := s.Score(context.Background(), clusterOf(
		kpi("a", "int-1", "30"), kpi("b", "int-2", "30"), kpi("c", "int-3", "45")))
	assert.True(t, res.Contradiction)
	assert.Equal(t, []string{"int-3"}, res.ConflictingSourceIDs)

	res = s.Score(context.Background(), clusterOf(
		kpi("a", "int-1", "30"), kpi("b", "int-2", "30")))
	assert.False(t, res.Contradiction)
}

func TestConfidenceBounds(t *testing.T) {
	cfg := config.Default().Consensus
	cfg.SingleSourcePenalty = 1.0
	cfg.ContradictionPenalty = 1.0
	s := NewScorer(cfg)

	res := s.Score(context.Background(), clusterOf(systemMention("a", "int-1", "")))
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestReviewerClearsFalsePositive(t *testing.T) {
	s := NewScorer(config.Default().Consensus).
		WithReviewer(NewReviewer(&mockLLM{response: `{"contradiction": false, "reason": "emphasis only"}`}))
	cluster := clusterOf(
		systemMention("a", "int-1", model.SentimentNegative),
		systemMention("b", "int-2", model.SentimentPositive),
	)
	res := s.Score(context.Background(), cluster)
	assert.False(t, res.Contradiction)
	assert.Empty(t, res.ConflictingSourceIDs)
}

func TestReviewerFailureKeepsHeuristicFlag(t *testing.T) {
	s := NewScorer(config.Default().Consensus).
		WithReviewer(NewReviewer(&mockLLM{err: errors.New("rate limited")}))
	cluster := clusterOf(
		systemMention("a", "int-1", model.SentimentNegative),
		systemMention("b", "int-2", model.SentimentPositive),
	)
	res := s.Score(context.Background(), cluster)
	assert.True(t, res.Contradiction)
}

func TestReviewerConfirms(t *testing.T) {
	r := NewReviewer(&mockLLM{response: "Sure.\n```json\n{\"contradiction\": true, \"reason\": \"opposite claims\"}\n```"})
	cluster := clusterOf(
		systemMention("a", "int-1", model.SentimentNegative),
		systemMention("b", "int-2", model.SentimentPositive),
	)
	confirmed, err := r.Confirm(context.Background(), cluster, []string{"int-2"})
	require.NoError(t, err)
	assert.True(t, confirmed)
}
