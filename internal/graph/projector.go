// Package graph mirrors a run's consolidated output into Memgraph. The
// relational store stays the source of truth; the graph is a queryable
// projection and can always be rebuilt from it.
package graph

import (
	"context"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/model"
)

type Projector struct {
	driver neo4j.DriverWithContext
}

// NewProjector connects to Memgraph over Bolt and verifies the connection
// before any run depends on it.
func NewProjector(ctx context.Context, cfg config.MemgraphConfig) (*Projector, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach graph database at %s: %w", cfg.URI, err)
	}
	log.Printf("Connected to graph database at %s", cfg.URI)
	return &Projector{driver: driver}, nil
}

func (p *Projector) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

// Project upserts the run's entities, relationships and patterns. Every
// statement is a MERGE keyed on uuid, so projecting the same run twice is a
// no-op and a refreshed run overwrites in place.
func (p *Projector) Project(ctx context.Context, auditID string, entities []model.ConsolidatedEntity, rels []model.Relationship, patterns []model.Pattern) error {
	for i := range entities {
		e := &entities[i]
		if err := p.run(ctx, upsertEntityQuery, map[string]any{
			"uuid":          e.ID,
			"entity_type":   string(e.Type),
			"org_id":        e.OrgID,
			"name":          e.Name,
			"description":   e.Description,
			"source_count":  e.SourceCount,
			"confidence":    e.ConsensusConfidence,
			"contradiction": e.ContradictionFlag,
			"audit_id":      auditID,
		}); err != nil {
			return fmt.Errorf("failed to project entity %s: %w", e.ID, err)
		}
	}

	for i := range rels {
		r := &rels[i]
		if err := p.run(ctx, upsertRelationshipQuery, map[string]any{
			"uuid":       r.ID,
			"from_uuid":  r.FromID,
			"to_uuid":    r.ToID,
			"kind":       string(r.Type),
			"org_id":     r.OrgID,
			"confidence": r.Confidence,
			"rule":       r.Rule,
			"audit_id":   auditID,
		}); err != nil {
			return fmt.Errorf("failed to project relationship %s: %w", r.ID, err)
		}
	}

	for i := range patterns {
		pat := &patterns[i]
		if err := p.run(ctx, upsertPatternQuery, map[string]any{
			"uuid":          pat.ID,
			"kind":          string(pat.Kind),
			"org_id":        pat.OrgID,
			"name":          pat.Name,
			"strength":      pat.Strength,
			"high_priority": pat.HighPriority,
			"audit_id":      auditID,
		}); err != nil {
			return fmt.Errorf("failed to project pattern %s: %w", pat.ID, err)
		}
		for _, entityID := range pat.EntityIDs {
			if err := p.run(ctx, linkPatternQuery, map[string]any{
				"pattern_uuid": pat.ID,
				"entity_uuid":  entityID,
			}); err != nil {
				return fmt.Errorf("failed to link pattern %s to %s: %w", pat.ID, entityID, err)
			}
		}
	}

	log.Printf("Projected run %s: %d entities, %d relationships, %d patterns",
		auditID, len(entities), len(rels), len(patterns))
	return nil
}

// RemoveRun deletes a run's projection, used after rollback.
func (p *Projector) RemoveRun(ctx context.Context, auditID string) error {
	if err := p.run(ctx, deleteRunQuery, map[string]any{"audit_id": auditID}); err != nil {
		return fmt.Errorf("failed to remove projection for run %s: %w", auditID, err)
	}
	return nil
}

func (p *Projector) run(ctx context.Context, query string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, p.driver, query, params, neo4j.EagerResultTransformer)
	return err
}
