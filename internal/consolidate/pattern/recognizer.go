// Package pattern scans the consolidated set for corpus-level signals:
// issues raised independently across many interviews and systems that
// accumulate negative pain-point links. It reads the consolidated set and
// never mutates it.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/model"
)

type Recognizer struct {
	cfg     config.PatternConfig
	auditID string
}

func NewRecognizer(cfg config.PatternConfig, auditID string) *Recognizer {
	return &Recognizer{cfg: cfg, auditID: auditID}
}

// Recognize derives patterns from the consolidated entities and the
// discovered relationships. Output order is deterministic.
func (r *Recognizer) Recognize(ctx context.Context, entities []model.ConsolidatedEntity, rels []model.Relationship) ([]model.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	totalInterviews := countInterviews(entities)
	var patterns []model.Pattern
	patterns = append(patterns, r.recurringIssues(entities, totalInterviews)...)
	patterns = append(patterns, r.problematicSystems(entities, rels, totalInterviews)...)

	sort.Slice(patterns, func(a, b int) bool { return patterns[a].ID < patterns[b].ID })
	return patterns, nil
}

// recurringIssues flags any entity mentioned independently in at least
// recurring_floor interviews. Pain points dominate in practice but the rule
// applies to every type: a process named by ten interviewees is signal too.
func (r *Recognizer) recurringIssues(entities []model.ConsolidatedEntity, totalInterviews int) []model.Pattern {
	var patterns []model.Pattern
	for i := range entities {
		e := &entities[i]
		if e.SourceCount < r.cfg.RecurringFloor {
			continue
		}
		share := share(e.SourceCount, totalInterviews)
		patterns = append(patterns, model.Pattern{
			ID:           patternID(model.PatternRecurringIssue, e.OrgID, e.ID),
			Kind:         model.PatternRecurringIssue,
			Name:         fmt.Sprintf("recurring: %s", e.Name),
			OrgID:        e.OrgID,
			EntityIDs:    []string{e.ID},
			Strength:     share,
			HighPriority: share >= r.cfg.PriorityShare,
			AuditID:      r.auditID,
			CreatedAt:    time.Now().UTC(),
		})
	}
	return patterns
}

// problematicSystems flags systems linked to at least problematic_link_floor
// distinct negative pain points through discovered CAUSES edges.
func (r *Recognizer) problematicSystems(entities []model.ConsolidatedEntity, rels []model.Relationship, totalInterviews int) []model.Pattern {
	byID := make(map[string]*model.ConsolidatedEntity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	causedBy := make(map[string]map[string]bool) // system id -> pain point ids
	for i := range rels {
		rel := &rels[i]
		if rel.Type != model.RelCauses {
			continue
		}
		sys, ok := byID[rel.FromID]
		if !ok || sys.Type != model.TypeSystem {
			continue
		}
		pp, ok := byID[rel.ToID]
		if !ok || pp.Type != model.TypePainPoint || !negativePainPoint(pp) {
			continue
		}
		if causedBy[sys.ID] == nil {
			causedBy[sys.ID] = make(map[string]bool)
		}
		causedBy[sys.ID][pp.ID] = true
	}

	var patterns []model.Pattern
	for sysID, ppIDs := range causedBy {
		if len(ppIDs) < r.cfg.ProblematicLinkFloor {
			continue
		}
		sys := byID[sysID]
		ids := make([]string, 0, len(ppIDs)+1)
		ids = append(ids, sysID)
		for id := range ppIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids[1:])

		strength := share(len(ppIDs), totalInterviews)
		patterns = append(patterns, model.Pattern{
			ID:           patternID(model.PatternProblematicSystem, sys.OrgID, sysID),
			Kind:         model.PatternProblematicSystem,
			Name:         fmt.Sprintf("problematic system: %s", sys.Name),
			OrgID:        sys.OrgID,
			EntityIDs:    ids,
			Strength:     strength,
			HighPriority: strength >= r.cfg.PriorityShare,
			AuditID:      r.auditID,
			CreatedAt:    time.Now().UTC(),
		})
	}
	return patterns
}

// negativePainPoint treats missing polarity as negative: a pain point is a
// complaint unless the extractor explicitly marked it otherwise.
func negativePainPoint(e *model.ConsolidatedEntity) bool {
	if e.Details != nil && e.Details.PainPoint != nil {
		return e.Details.PainPoint.Sentiment != model.SentimentPositive
	}
	return true
}

func countInterviews(entities []model.ConsolidatedEntity) int {
	seen := make(map[string]bool)
	for i := range entities {
		for _, id := range entities[i].MentionedIn {
			seen[id] = true
		}
	}
	return len(seen)
}

func share(count, total int) float64 {
	if total == 0 {
		return 0
	}
	s := float64(count) / float64(total)
	if s > 1 {
		s = 1
	}
	return s
}

func patternID(kind model.PatternKind, orgID, entityID string) string {
	name := fmt.Sprintf("%s|%s|%s", kind, orgID, entityID)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
