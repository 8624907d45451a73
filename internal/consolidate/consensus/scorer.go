// Package consensus scores how well-corroborated a duplicate cluster is and
// flags materially conflicting mentions. It never resolves a contradiction;
// it only surfaces one.
package consensus

import (
	"context"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/model"
)

// Result carries the scorer's verdict for one cluster.
type Result struct {
	Confidence           float64
	Contradiction        bool
	ConflictingSourceIDs []string
	// Agreement is true when every member states the same value for the
	// type's key field.
	Agreement bool
}

type Scorer struct {
	cfg config.ConsensusConfig
	// reviewer, when set, re-checks heuristic contradiction flags with an
	// LLM. It can clear a flag, never raise one.
	reviewer *Reviewer
}

func NewScorer(cfg config.ConsensusConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) WithReviewer(r *Reviewer) *Scorer {
	s.reviewer = r
	return s
}

// Score computes consensus confidence:
//
//	min(1, source_count/divisor) - single_source_penalty - contradiction_penalty + agreement_bonus
//
// clamped to [0,1]. Every constant comes from configuration.
func (s *Scorer) Score(ctx context.Context, cluster *model.DuplicateCluster) *Result {
	res := &Result{}

	sourceCount := len(cluster.InterviewIDs())
	res.Confidence = math.Min(1.0, float64(sourceCount)/s.cfg.Divisor)

	if sourceCount == 1 {
		res.Confidence -= s.cfg.SingleSourcePenalty
	}

	res.Contradiction, res.ConflictingSourceIDs = detectContradiction(cluster)
	if res.Contradiction && s.reviewer != nil {
		confirmed, err := s.reviewer.Confirm(ctx, cluster, res.ConflictingSourceIDs)
		if err != nil {
			log.Printf("Warning: contradiction review failed, keeping heuristic flag: %v", err)
		} else if !confirmed {
			res.Contradiction = false
			res.ConflictingSourceIDs = nil
		}
	}
	if res.Contradiction {
		res.Confidence -= s.cfg.ContradictionPenalty
	}

	res.Agreement = keyFieldAgreement(cluster)
	if res.Agreement {
		res.Confidence += s.cfg.AgreementBonus
	}

	res.Confidence = math.Max(0, math.Min(1, res.Confidence))
	return res
}

// detectContradiction applies the type-specific conflict rules and returns
// the interview ids on the minority side of the conflict.
func detectContradiction(cluster *model.DuplicateCluster) (bool, []string) {
	switch cluster.PrimaryEntity().Type {
	case model.TypeSystem, model.TypePainPoint:
		return sentimentConflict(cluster)
	case model.TypeKPI:
		return valueConflict(cluster, func(e *model.RawEntity) string {
			if e.Details != nil && e.Details.KPI != nil {
				return e.Details.KPI.Target
			}
			return ""
		})
	case model.TypeTeamStructure:
		return valueConflict(cluster, func(e *model.RawEntity) string {
			if e.Details != nil && e.Details.TeamStructure != nil && e.Details.TeamStructure.Headcount > 0 {
				return strconv.Itoa(e.Details.TeamStructure.Headcount)
			}
			return ""
		})
	}
	return false, nil
}

// sentimentConflict flags clusters with mixed polarity, e.g. a system four
// interviewees blame and one praises. The minority side is reported so the
// audit trail shows which sources disagree.
func sentimentConflict(cluster *model.DuplicateCluster) (bool, []string) {
	var negatives, positives []string
	for i := range cluster.Members {
		m := &cluster.Members[i]
		switch sentimentOf(m) {
		case model.SentimentNegative:
			negatives = append(negatives, m.SourceInterviewID)
		case model.SentimentPositive:
			positives = append(positives, m.SourceInterviewID)
		}
	}
	if len(negatives) == 0 || len(positives) == 0 {
		return false, nil
	}
	minority := positives
	if len(negatives) < len(positives) {
		minority = negatives
	}
	sort.Strings(minority)
	return true, minority
}

// valueConflict flags clusters whose members state different non-empty
// values for a structured field (KPI targets, headcounts).
func valueConflict(cluster *model.DuplicateCluster, field func(*model.RawEntity) string) (bool, []string) {
	byValue := make(map[string][]string)
	for i := range cluster.Members {
		m := &cluster.Members[i]
		if v := field(m); v != "" {
			byValue[v] = append(byValue[v], m.SourceInterviewID)
		}
	}
	if len(byValue) <= 1 {
		return false, nil
	}
	// Minority sides: everything but the most-attested value.
	var majorityValue string
	majority := -1
	values := make([]string, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	sort.Strings(values) // deterministic majority pick on ties
	for _, v := range values {
		if len(byValue[v]) > majority {
			majority = len(byValue[v])
			majorityValue = v
		}
	}
	var conflicting []string
	for _, v := range values {
		if v != majorityValue {
			conflicting = append(conflicting, byValue[v]...)
		}
	}
	sort.Strings(conflicting)
	return true, conflicting
}

// keyFieldAgreement reports whether all members state the same value for
// the type's key field. Requires at least two members with the field set.
func keyFieldAgreement(cluster *model.DuplicateCluster) bool {
	var values []string
	for i := range cluster.Members {
		if v := keyField(&cluster.Members[i]); v != "" {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return false
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func keyField(e *model.RawEntity) string {
	if e.Details == nil {
		return ""
	}
	switch {
	case e.Details.PainPoint != nil:
		return e.Details.PainPoint.Department
	case e.Details.Process != nil:
		return e.Details.Process.Department
	case e.Details.System != nil:
		return e.Details.System.Vendor
	case e.Details.KPI != nil:
		return e.Details.KPI.Unit
	case e.Details.AutomationCandidate != nil:
		return e.Details.AutomationCandidate.AddressesPainPointID
	case e.Details.TeamStructure != nil:
		return e.Details.TeamStructure.Department
	}
	return ""
}
