// Package relate infers typed edges between consolidated entities of
// different types. Rules are independent and additive; a pair may carry
// several relationship types. Discovery is deterministic and idempotent so
// the relationship set can be refreshed without re-merging.
package relate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inquora/distill/internal/consolidate/similarity"
	"github.com/inquora/distill/internal/model"
)

// Rule names, recorded on every edge for the audit trail.
const (
	RuleExplicitReference = "explicit_reference"
	RuleSystemList        = "system_list"
	RuleKeywordMention    = "keyword_mention"
	RuleKPITarget         = "kpi_target"
)

// Confidence by match strength: structured references beat list fields,
// list fields beat free-text keyword hits.
const (
	confExplicit = 0.95
	confList     = 0.85
	confKeyword  = 0.65
)

type Discoverer struct {
	auditID string
}

func NewDiscoverer(auditID string) *Discoverer {
	return &Discoverer{auditID: auditID}
}

// Discover runs every rule over the consolidated set. rawIndex maps raw
// entity ids to the consolidated entity that absorbed them, resolving
// foreign-key-like attributes that still point at extraction-time ids.
// Entities from different orgs are never related.
func (d *Discoverer) Discover(ctx context.Context, entities []model.ConsolidatedEntity, rawIndex map[string]string) ([]model.Relationship, error) {
	byID := make(map[string]*model.ConsolidatedEntity, len(entities))
	byType := make(map[model.EntityType][]*model.ConsolidatedEntity)
	for i := range entities {
		e := &entities[i]
		byID[e.ID] = e
		byType[e.Type] = append(byType[e.Type], e)
	}

	seen := make(map[string]bool)
	var rels []model.Relationship
	add := func(relType model.RelationshipType, rule string, confidence float64, from, to *model.ConsolidatedEntity) {
		if from.OrgID != to.OrgID || from.ID == to.ID {
			return
		}
		id := edgeID(relType, rule, from.ID, to.ID)
		if seen[id] {
			return
		}
		seen[id] = true
		rels = append(rels, model.Relationship{
			ID:         id,
			Type:       relType,
			FromID:     from.ID,
			FromType:   from.Type,
			ToID:       to.ID,
			ToType:     to.Type,
			OrgID:      from.OrgID,
			Confidence: confidence,
			Rule:       rule,
			AuditID:    d.auditID,
			CreatedAt:  time.Now().UTC(),
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.discoverUses(byType, add)
	d.discoverCauses(byType, add)
	d.discoverMeasures(byType, add)
	d.discoverAddresses(byType, byID, rawIndex, add)

	sort.Slice(rels, func(a, b int) bool { return rels[a].ID < rels[b].ID })
	return rels, nil
}

type addFunc func(model.RelationshipType, string, float64, *model.ConsolidatedEntity, *model.ConsolidatedEntity)

// discoverUses links processes to the systems they run on, from the
// structured systems_used list or from the system's name appearing in the
// process description.
func (d *Discoverer) discoverUses(byType map[model.EntityType][]*model.ConsolidatedEntity, add addFunc) {
	systems := byType[model.TypeSystem]
	for _, proc := range byType[model.TypeProcess] {
		var listed []string
		if proc.Details != nil && proc.Details.Process != nil {
			listed = proc.Details.Process.SystemsUsed
		}
		for _, sys := range systems {
			if nameInList(sys.Name, listed) {
				add(model.RelUses, RuleSystemList, confList, proc, sys)
			} else if mentionsName(proc.Description, sys.Name) {
				add(model.RelUses, RuleKeywordMention, confKeyword, proc, sys)
			}
		}
	}
}

// discoverCauses links systems to the negative pain points that name them.
func (d *Discoverer) discoverCauses(byType map[model.EntityType][]*model.ConsolidatedEntity, add addFunc) {
	systems := byType[model.TypeSystem]
	for _, pp := range byType[model.TypePainPoint] {
		var related []string
		if pp.Details != nil && pp.Details.PainPoint != nil {
			related = pp.Details.PainPoint.RelatedSystems
		}
		for _, sys := range systems {
			if nameInList(sys.Name, related) {
				add(model.RelCauses, RuleSystemList, confList, sys, pp)
			} else if mentionsName(pp.Name+" "+pp.Description, sys.Name) {
				add(model.RelCauses, RuleKeywordMention, confKeyword, sys, pp)
			}
		}
	}
}

// discoverMeasures links KPIs to the processes they track.
func (d *Discoverer) discoverMeasures(byType map[model.EntityType][]*model.ConsolidatedEntity, add addFunc) {
	processes := byType[model.TypeProcess]
	for _, kpi := range byType[model.TypeKPI] {
		var target string
		if kpi.Details != nil && kpi.Details.KPI != nil {
			target = kpi.Details.KPI.MeasuresProcess
		}
		for _, proc := range processes {
			if target != "" && namesMatch(target, proc.Name) {
				add(model.RelMeasures, RuleKPITarget, confList, kpi, proc)
			} else if mentionsName(kpi.Description, proc.Name) {
				add(model.RelMeasures, RuleKeywordMention, confKeyword, kpi, proc)
			}
		}
	}
}

// discoverAddresses links automation candidates to the pain points they
// target, preferring the explicit addresses_pain_point_id attribute.
func (d *Discoverer) discoverAddresses(byType map[model.EntityType][]*model.ConsolidatedEntity, byID map[string]*model.ConsolidatedEntity, rawIndex map[string]string, add addFunc) {
	painPoints := byType[model.TypePainPoint]
	for _, ac := range byType[model.TypeAutomationCandidate] {
		var refID string
		if ac.Details != nil && ac.Details.AutomationCandidate != nil {
			refID = ac.Details.AutomationCandidate.AddressesPainPointID
		}
		if refID != "" {
			if consolidatedID, ok := rawIndex[refID]; ok {
				if pp, ok := byID[consolidatedID]; ok {
					add(model.RelAddresses, RuleExplicitReference, confExplicit, ac, pp)
					continue
				}
			}
		}
		for _, pp := range painPoints {
			if mentionsName(ac.Description, pp.Name) {
				add(model.RelAddresses, RuleKeywordMention, confKeyword, ac, pp)
			}
		}
	}
}

// edgeID derives a stable id from the edge's identity, so re-running
// discovery reproduces the same records byte for byte.
func edgeID(t model.RelationshipType, rule, from, to string) string {
	name := fmt.Sprintf("%s|%s|%s|%s", t, rule, from, to)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func namesMatch(a, b string) bool {
	return similarity.Normalize(a) == similarity.Normalize(b)
}

func nameInList(name string, list []string) bool {
	n := similarity.Normalize(name)
	for _, item := range list {
		if similarity.Normalize(item) == n {
			return true
		}
	}
	return false
}

// mentionsName reports whether text contains the name as a whole phrase.
func mentionsName(text, name string) bool {
	t := similarity.Normalize(text)
	n := similarity.Normalize(name)
	if t == "" || n == "" {
		return false
	}
	idx := strings.Index(t, n)
	for idx >= 0 {
		beforeOK := idx == 0 || t[idx-1] == ' '
		end := idx + len(n)
		afterOK := end == len(t) || t[end] == ' '
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(t[idx+1:], n)
		if next < 0 {
			break
		}
		idx += 1 + next
	}
	return false
}
