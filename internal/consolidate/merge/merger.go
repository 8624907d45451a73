// Package merge turns a duplicate cluster into one consolidated entity.
// The mechanism is uniform across entity types: snapshot every member, mark
// the members absorbed, write the consolidated record — all in one
// transaction, so a failure partway leaves no partial state.
package merge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/inquora/distill/internal/consolidate/consensus"
	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

type Merger struct {
	store *store.Store
}

func NewMerger(st *store.Store) *Merger {
	return &Merger{store: st}
}

// Merge consolidates one cluster under the run's audit id. A transient
// store failure is retried once; the second failure propagates so the
// orchestrator can fail the run rather than commit a partial one.
func (m *Merger) Merge(ctx context.Context, auditID string, cluster *model.DuplicateCluster, verdict *consensus.Result) (*model.ConsolidatedEntity, error) {
	entity, err := Consolidate(auditID, cluster, verdict)
	if err != nil {
		return nil, err
	}

	if err := m.write(ctx, auditID, cluster, entity); err != nil {
		log.Printf("Warning: merge transaction for %s failed, retrying once: %v", entity.ID, err)
		if err = m.write(ctx, auditID, cluster, entity); err != nil {
			return nil, fmt.Errorf("merge failed for cluster with primary %s: %w",
				cluster.PrimaryEntity().ID, err)
		}
	}
	return entity, nil
}

func (m *Merger) write(ctx context.Context, auditID string, cluster *model.DuplicateCluster, entity *model.ConsolidatedEntity) error {
	return m.store.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		memberIDs := make([]string, 0, len(cluster.Members))
		for i := range cluster.Members {
			member := &cluster.Members[i]
			payload, err := json.Marshal(member)
			if err != nil {
				return fmt.Errorf("failed to snapshot raw entity %s: %w", member.ID, err)
			}
			snap := &model.EntitySnapshot{
				ID:             uuid.New().String(),
				AuditID:        auditID,
				RawEntityID:    member.ID,
				ConsolidatedID: entity.ID,
				Payload:        payload,
				CreatedAt:      now,
			}
			if err := store.SaveSnapshotTx(ctx, tx, snap); err != nil {
				return err
			}
			memberIDs = append(memberIDs, member.ID)
		}
		if err := store.MarkConsolidatedTx(ctx, tx, memberIDs, entity.ID); err != nil {
			return err
		}
		return store.SaveConsolidatedTx(ctx, tx, entity)
	})
}

// Consolidate builds the merged record without touching the store. Canonical
// name comes from the primary member; the description strategy varies by
// entity type.
func Consolidate(auditID string, cluster *model.DuplicateCluster, verdict *consensus.Result) (*model.ConsolidatedEntity, error) {
	if cluster.Size() == 0 {
		return nil, fmt.Errorf("cannot consolidate an empty cluster")
	}
	primary := cluster.PrimaryEntity()

	entity := &model.ConsolidatedEntity{
		ID:                     uuid.New().String(),
		Type:                   primary.Type,
		OrgID:                  primary.OrgID,
		Name:                   primary.Name,
		Description:            canonicalDescription(cluster),
		Details:                mergeDetails(cluster),
		SourceCount:            len(cluster.InterviewIDs()),
		MentionedIn:            cluster.InterviewIDs(),
		ConsensusConfidence:    verdict.Confidence,
		ContradictionFlag:      verdict.Contradiction,
		ContradictingSourceIDs: verdict.ConflictingSourceIDs,
		AuditID:                auditID,
		CreatedAt:              time.Now().UTC(),
	}
	if err := entity.CheckInvariants(); err != nil {
		return nil, err
	}
	return entity, nil
}

// canonicalDescription prefers the most detailed member description.
func canonicalDescription(cluster *model.DuplicateCluster) string {
	best := cluster.PrimaryEntity().Description
	for i := range cluster.Members {
		if d := cluster.Members[i].Description; len(d) > len(best) {
			best = d
		}
	}
	return best
}

// mergeDetails enriches the primary's typed details with what other
// members add. Budget-like ranges concatenate; list fields union; scalar
// fields keep the primary's value (contradictions are the scorer's job).
func mergeDetails(cluster *model.DuplicateCluster) *model.Details {
	primary := cluster.PrimaryEntity()
	if primary.Details == nil {
		return nil
	}
	merged := *primary.Details

	switch {
	case merged.PainPoint != nil:
		pp := *merged.PainPoint
		for i := range cluster.Members {
			if d := cluster.Members[i].Details; d != nil && d.PainPoint != nil {
				pp.RelatedSystems = unionStrings(pp.RelatedSystems, d.PainPoint.RelatedSystems)
			}
		}
		merged.PainPoint = &pp

	case merged.Process != nil:
		pr := *merged.Process
		for i := range cluster.Members {
			if d := cluster.Members[i].Details; d != nil && d.Process != nil {
				pr.SystemsUsed = unionStrings(pr.SystemsUsed, d.Process.SystemsUsed)
				pr.PainPointRefs = unionStrings(pr.PainPointRefs, d.Process.PainPointRefs)
			}
		}
		merged.Process = &pr

	case merged.System != nil:
		sys := *merged.System
		for i := range cluster.Members {
			if d := cluster.Members[i].Details; d != nil && d.System != nil {
				sys.UsedBy = unionStrings(sys.UsedBy, d.System.UsedBy)
			}
		}
		merged.System = &sys

	case merged.AutomationCandidate != nil:
		ac := *merged.AutomationCandidate
		for i := range cluster.Members {
			if d := cluster.Members[i].Details; d != nil && d.AutomationCandidate != nil {
				ac.BudgetRange = concatRange(ac.BudgetRange, d.AutomationCandidate.BudgetRange)
			}
		}
		merged.AutomationCandidate = &ac

	case merged.TeamStructure != nil:
		ts := *merged.TeamStructure
		for i := range cluster.Members {
			if d := cluster.Members[i].Details; d != nil && d.TeamStructure != nil {
				ts.Roles = unionStrings(ts.Roles, d.TeamStructure.Roles)
			}
		}
		merged.TeamStructure = &ts
	}
	return &merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// concatRange keeps distinct numeric ranges side by side instead of
// guessing which one is right.
func concatRange(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a == b {
		return a
	}
	return a + "; " + b
}
