package consolidate

import (
	"context"
	"fmt"

	"github.com/inquora/distill/internal/model"
)

// Validate re-checks consolidation output against the store. With an audit
// id it validates that run; with an empty id it sweeps every recorded run.
// It reports findings instead of failing fast so one broken record does not
// hide the rest.
func (o *Orchestrator) Validate(ctx context.Context, auditID string) ([]model.ValidationCheck, error) {
	if auditID == "" {
		return o.validateAll(ctx)
	}
	return o.validateOne(ctx, auditID)
}

// validateAll runs the per-run checks over every recorded run, prefixing
// each check name with its audit id.
func (o *Orchestrator) validateAll(ctx context.Context) ([]model.ValidationCheck, error) {
	runs, err := o.store.ListAuditRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return []model.ValidationCheck{{
			Name: "run_state", Passed: true, Warning: true,
			Detail: "no runs recorded, nothing to validate",
		}}, nil
	}

	var checks []model.ValidationCheck
	for i := range runs {
		runChecks, err := o.validateOne(ctx, runs[i].AuditID)
		if err != nil {
			return nil, err
		}
		for _, c := range runChecks {
			c.Name = runs[i].AuditID + "/" + c.Name
			checks = append(checks, c)
		}
	}
	return checks, nil
}

func (o *Orchestrator) validateOne(ctx context.Context, auditID string) ([]model.ValidationCheck, error) {
	rec, err := o.store.GetAuditRun(ctx, auditID)
	if err != nil {
		return nil, err
	}

	if rec.Status == model.RunRolledBack || rec.DryRun {
		return []model.ValidationCheck{{
			Name: "run_state", Passed: true, Warning: true,
			Detail: fmt.Sprintf("run is %s (dry_run=%v), no output to validate", rec.Status, rec.DryRun),
		}}, nil
	}

	entities, err := o.store.ConsolidatedByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}

	var checks []model.ValidationCheck
	checks = append(checks, checkInvariants(entities))
	checks = append(checks, checkOrgScope(rec.OrgID, entities))

	snapCheck, err := o.checkSnapshotCoverage(ctx, auditID, entities)
	if err != nil {
		return nil, err
	}
	checks = append(checks, snapCheck)

	relCheck, err := o.checkRelationshipEndpoints(ctx, rec.OrgID)
	if err != nil {
		return nil, err
	}
	checks = append(checks, relCheck)

	checks = append(checks, checkOutputPresent(rec, entities))
	return checks, nil
}

// checkInvariants runs every consolidated entity's own invariant set.
func checkInvariants(entities []model.ConsolidatedEntity) model.ValidationCheck {
	for i := range entities {
		if err := entities[i].CheckInvariants(); err != nil {
			return model.ValidationCheck{
				Name:   "consolidated_invariants",
				Detail: fmt.Sprintf("entity %s: %v", entities[i].ID, err),
			}
		}
	}
	return model.ValidationCheck{Name: "consolidated_invariants", Passed: true}
}

// checkOrgScope verifies nothing leaked across the org boundary.
func checkOrgScope(orgID string, entities []model.ConsolidatedEntity) model.ValidationCheck {
	for i := range entities {
		if entities[i].OrgID != orgID {
			return model.ValidationCheck{
				Name:   "org_isolation",
				Detail: fmt.Sprintf("entity %s belongs to org %s, run is scoped to %s", entities[i].ID, entities[i].OrgID, orgID),
			}
		}
	}
	return model.ValidationCheck{Name: "org_isolation", Passed: true}
}

// checkSnapshotCoverage verifies every snapshot points at a consolidated
// entity the run actually produced, so rollback can always restore.
func (o *Orchestrator) checkSnapshotCoverage(ctx context.Context, auditID string, entities []model.ConsolidatedEntity) (model.ValidationCheck, error) {
	snaps, err := o.store.SnapshotsByAudit(ctx, auditID)
	if err != nil {
		return model.ValidationCheck{}, err
	}
	byID := make(map[string]bool, len(entities))
	for i := range entities {
		byID[entities[i].ID] = true
	}
	for i := range snaps {
		if !byID[snaps[i].ConsolidatedID] {
			return model.ValidationCheck{
				Name:   "snapshot_coverage",
				Detail: fmt.Sprintf("snapshot %s references missing consolidated entity %s", snaps[i].ID, snaps[i].ConsolidatedID),
			}, nil
		}
	}
	return model.ValidationCheck{Name: "snapshot_coverage", Passed: true}, nil
}

// checkRelationshipEndpoints verifies every stored edge stays inside the org
// and points at live consolidated entities.
func (o *Orchestrator) checkRelationshipEndpoints(ctx context.Context, orgID string) (model.ValidationCheck, error) {
	rels, err := o.store.RelationshipsByOrg(ctx, orgID)
	if err != nil {
		return model.ValidationCheck{}, err
	}
	entities, err := o.store.ConsolidatedByOrg(ctx, orgID)
	if err != nil {
		return model.ValidationCheck{}, err
	}
	byID := make(map[string]bool, len(entities))
	for i := range entities {
		byID[entities[i].ID] = true
	}
	for i := range rels {
		r := &rels[i]
		if r.OrgID != orgID || !byID[r.FromID] || !byID[r.ToID] {
			return model.ValidationCheck{
				Name:   "relationship_endpoints",
				Detail: fmt.Sprintf("relationship %s (%s -> %s) has a dangling or cross-org endpoint", r.ID, r.FromID, r.ToID),
			}, nil
		}
	}
	return model.ValidationCheck{Name: "relationship_endpoints", Passed: true}, nil
}

// checkOutputPresent flags runs whose report claims work but whose output is
// missing from the store.
func checkOutputPresent(rec *model.AuditRecord, entities []model.ConsolidatedEntity) model.ValidationCheck {
	if rec.Report != nil && rec.Report.EntitiesProcessed > 0 && len(entities) == 0 {
		return model.ValidationCheck{
			Name:   "output_present",
			Detail: fmt.Sprintf("report counts %d processed entities but the store holds no consolidated output", rec.Report.EntitiesProcessed),
		}
	}
	return model.ValidationCheck{Name: "output_present", Passed: true}
}
