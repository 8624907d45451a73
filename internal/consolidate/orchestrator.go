// Package consolidate drives a full consolidation run over an org's raw
// entities: duplicate detection, consensus scoring, merging, relationship
// discovery and pattern recognition, all recorded under one audit id.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/consolidate/consensus"
	"github.com/inquora/distill/internal/consolidate/detect"
	"github.com/inquora/distill/internal/consolidate/merge"
	"github.com/inquora/distill/internal/consolidate/pattern"
	"github.com/inquora/distill/internal/consolidate/relate"
	"github.com/inquora/distill/internal/consolidate/similarity"
	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

// GraphProjector pushes a run's output into the graph database. Projection
// failures degrade a run, they never fail it; the relational store stays the
// source of truth.
type GraphProjector interface {
	Project(ctx context.Context, auditID string, entities []model.ConsolidatedEntity, rels []model.Relationship, patterns []model.Pattern) error
}

type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	matcher   *similarity.Matcher
	scorer    *consensus.Scorer
	projector GraphProjector
}

func NewOrchestrator(cfg *config.Config, st *store.Store, matcher *similarity.Matcher, scorer *consensus.Scorer) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: st, matcher: matcher, scorer: scorer}
}

func (o *Orchestrator) WithProjector(p GraphProjector) *Orchestrator {
	o.projector = p
	return o
}

// RunRequest selects what one consolidation run covers. An empty EntityTypes
// means every known type. DryRun computes the full report without writing
// anything beyond the audit record.
type RunRequest struct {
	OrgID       string             `json:"org_id"`
	EntityTypes []model.EntityType `json:"entity_types,omitempty"`
	DryRun      bool               `json:"dry_run,omitempty"`
}

// typeOutcome carries one type's detection and scoring results from the
// parallel phase into the serialized merge phase.
type typeOutcome struct {
	entityType model.EntityType
	processed  int
	skipped    []model.SkippedItem
	clusters   []model.DuplicateCluster
	verdicts   []*consensus.Result
	detect     *detect.Result
	err        error
}

// Run executes one consolidation run end to end and returns its report.
// Detection and scoring run in parallel across entity types; merges are
// serialized so each one commits or aborts alone. A cancelled context stops
// the run between merges, never inside one, and seals the run as cancelled.
func (o *Orchestrator) Run(ctx context.Context, req *RunRequest) (*model.RunReport, error) {
	if req.OrgID == "" {
		return nil, fmt.Errorf("run request missing org_id")
	}
	types := req.EntityTypes
	if len(types) == 0 {
		types = model.AllEntityTypes()
	}
	for _, t := range types {
		if _, err := model.ParseEntityType(string(t)); err != nil {
			return nil, err
		}
	}

	auditID := uuid.New().String()
	started := time.Now()
	report := &model.RunReport{
		AuditID: auditID,
		PerType: make(map[model.EntityType]model.TypeStats, len(types)),
	}

	if err := o.store.CreateAuditRun(ctx, &model.AuditRecord{
		AuditID:     auditID,
		OrgID:       req.OrgID,
		EntityTypes: types,
		Status:      model.RunActive,
		DryRun:      req.DryRun,
		StartedAt:   started.UTC(),
	}); err != nil {
		return nil, err
	}
	log.Printf("Run %s started for org %s (%d types, dry_run=%v)", auditID, req.OrgID, len(types), req.DryRun)

	outcomes := make([]typeOutcome, len(types))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency.TypeWorkers)
	for idx, t := range types {
		idx, t := idx, t
		g.Go(func() error {
			outcomes[idx] = o.detectType(gctx, req.OrgID, t)
			// A type failure is a skip, not a run failure; only cancellation
			// stops the other types.
			if outcomes[idx].err != nil && gctx.Err() != nil {
				return outcomes[idx].err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return o.seal(auditID, report, started, model.RunCancelled, fmt.Errorf("run %s cancelled during detection: %w", auditID, err))
	}

	consolidated, rawIndex, err := o.mergePhase(ctx, auditID, req.DryRun, outcomes, report)
	if err != nil {
		status := model.RunFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = model.RunCancelled
		}
		return o.seal(auditID, report, started, status, err)
	}

	// Zero output from non-empty input means every entity was dropped
	// somewhere; that is a failure, never an empty success.
	if report.EntitiesProcessed > 0 && len(consolidated) == 0 {
		err := fmt.Errorf("run %s produced no consolidated output from %d entities", auditID, report.EntitiesProcessed)
		return o.seal(auditID, report, started, model.RunFailed, err)
	}

	rels, err := relate.NewDiscoverer(auditID).Discover(ctx, consolidated, rawIndex)
	if err != nil {
		return o.seal(auditID, report, started, model.RunCancelled, err)
	}
	patterns, err := pattern.NewRecognizer(o.cfg.Patterns, auditID).Recognize(ctx, consolidated, rels)
	if err != nil {
		return o.seal(auditID, report, started, model.RunCancelled, err)
	}
	if !req.DryRun {
		if err := o.store.ReplaceRelationships(ctx, auditID, rels); err != nil {
			return o.seal(auditID, report, started, model.RunFailed, err)
		}
		if err := o.store.ReplacePatterns(ctx, auditID, patterns); err != nil {
			return o.seal(auditID, report, started, model.RunFailed, err)
		}
	}
	report.RelationshipsDiscovered = len(rels)
	report.PatternsFound = len(patterns)

	if total := len(consolidated); total > 0 {
		var sum float64
		for i := range consolidated {
			sum += consolidated[i].ConsensusConfidence
		}
		report.AvgConfidence = sum / float64(total)
	}
	report.CacheHitRate = o.matcher.CacheHitRate()

	if o.projector != nil && !req.DryRun {
		if err := o.projector.Project(ctx, auditID, consolidated, rels, patterns); err != nil {
			report.AddWarning(fmt.Sprintf("graph projection failed: %v", err))
		}
	}

	rep, _ := o.seal(auditID, report, started, model.RunCompleted, nil)
	log.Printf("Run %s completed: %d processed, %d merged, %d relationships, %d patterns",
		auditID, report.EntitiesProcessed, report.EntitiesMerged, len(rels), len(patterns))
	return rep, nil
}

// detectType loads, partitions and scores one entity type. Malformed
// mentions are excluded before clustering and surfaced in the outcome;
// they never reach a consolidated entity.
func (o *Orchestrator) detectType(ctx context.Context, orgID string, t model.EntityType) typeOutcome {
	out := typeOutcome{entityType: t}

	entities, err := o.store.UnconsolidatedByType(ctx, orgID, t)
	if err != nil {
		out.err = fmt.Errorf("loading %s entities: %w", t, err)
		return out
	}
	out.processed = len(entities)

	valid := make([]model.RawEntity, 0, len(entities))
	for i := range entities {
		if err := entities[i].Validate(); err != nil {
			log.Printf("Warning: excluding malformed %s entity from run: %v", t, err)
			out.skipped = append(out.skipped, model.SkippedItem{
				EntityID: entities[i].ID, Type: string(t), Reason: err.Error(),
			})
			continue
		}
		valid = append(valid, entities[i])
	}
	if len(valid) == 0 {
		return out
	}

	res, err := detect.NewDetector(o.matcher, o.cfg).Detect(ctx, t, valid)
	if err != nil {
		out.err = fmt.Errorf("detecting %s duplicates: %w", t, err)
		return out
	}
	out.detect = res
	out.clusters = res.Clusters
	out.verdicts = make([]*consensus.Result, len(res.Clusters))
	for i := range res.Clusters {
		out.verdicts[i] = o.scorer.Score(ctx, &res.Clusters[i])
	}
	return out
}

// mergePhase serializes the cluster merges and aggregates per-type stats.
// The sqlite store admits one writer at a time, so merging per type in
// parallel would only contend on the write lock. It returns the consolidated
// set plus the raw-id index relationship discovery uses to resolve
// extraction-time references.
func (o *Orchestrator) mergePhase(ctx context.Context, auditID string, dryRun bool, outcomes []typeOutcome, report *model.RunReport) ([]model.ConsolidatedEntity, map[string]string, error) {
	merger := merge.NewMerger(o.store)
	var consolidated []model.ConsolidatedEntity
	rawIndex := make(map[string]string)

	for i := range outcomes {
		out := &outcomes[i]
		stats := model.TypeStats{Processed: out.processed}
		report.EntitiesProcessed += out.processed

		if out.err != nil {
			stats.Skipped = out.processed
			report.Skipped = append(report.Skipped, model.SkippedItem{
				Type: string(out.entityType), Reason: out.err.Error(),
			})
			report.AddWarning(fmt.Sprintf("type %s skipped: %v", out.entityType, out.err))
			report.PerType[out.entityType] = stats
			continue
		}
		if len(out.skipped) > 0 {
			stats.Skipped = len(out.skipped)
			report.Skipped = append(report.Skipped, out.skipped...)
			report.AddWarning(fmt.Sprintf("%d malformed %s entities excluded", len(out.skipped), out.entityType))
		}
		if out.detect != nil {
			report.EmbeddingCallsSaved += out.detect.EmbeddingCallsSaved
			if out.detect.Degraded {
				report.AddWarning(fmt.Sprintf("embedding service degraded during %s detection, lexical-only fallback used", out.entityType))
			}
		}

		for ci := range out.clusters {
			if err := ctx.Err(); err != nil {
				report.PerType[out.entityType] = stats
				return nil, nil, fmt.Errorf("run %s cancelled before merging %s cluster: %w", auditID, out.entityType, err)
			}

			cluster := &out.clusters[ci]
			verdict := out.verdicts[ci]
			if verdict.Contradiction {
				report.ContradictionsDetected++
			}

			var entity *model.ConsolidatedEntity
			var err error
			if dryRun {
				entity, err = merge.Consolidate(auditID, cluster, verdict)
			} else {
				entity, err = merger.Merge(ctx, auditID, cluster, verdict)
			}
			if err != nil {
				report.PerType[out.entityType] = stats
				return nil, nil, fmt.Errorf("run %s: %w", auditID, err)
			}

			if cluster.Size() > 1 {
				stats.Duplicates++
				stats.Merged++
				report.DuplicatesFound += cluster.Size()
				report.EntitiesMerged++
			} else {
				stats.Singletons++
			}
			consolidated = append(consolidated, *entity)
			for mi := range cluster.Members {
				rawIndex[cluster.Members[mi].ID] = entity.ID
			}
		}
		report.PerType[out.entityType] = stats
	}
	return consolidated, rawIndex, nil
}

// seal records the run's terminal status and report. Sealing uses a fresh
// context: a cancelled run still gets its status written.
func (o *Orchestrator) seal(auditID string, report *model.RunReport, started time.Time, status model.RunStatus, cause error) (*model.RunReport, error) {
	report.ProcessingTimeMs = time.Since(started).Milliseconds()
	if err := o.store.FinishAuditRun(context.Background(), auditID, status, report); err != nil {
		log.Printf("Warning: failed to seal run %s as %s: %v", auditID, status, err)
		if cause == nil {
			cause = err
		}
	}
	return report, cause
}
