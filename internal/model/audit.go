package model

import "time"

// RunStatus is the lifecycle state of one consolidation run.
type RunStatus string

const (
	RunActive     RunStatus = "active"
	RunCompleted  RunStatus = "completed"
	RunCancelled  RunStatus = "cancelled"
	RunFailed     RunStatus = "failed"
	RunRolledBack RunStatus = "rolled_back"
)

// AuditRecord is one row per consolidation run, the unit of rollback.
type AuditRecord struct {
	AuditID        string       `json:"audit_id"`
	OrgID          string       `json:"org_id"`
	EntityTypes    []EntityType `json:"entity_types"`
	Status         RunStatus    `json:"status"`
	DryRun         bool         `json:"dry_run"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at,omitempty"`
	RolledBackAt   *time.Time   `json:"rolled_back_at,omitempty"`
	RollbackReason string       `json:"rollback_reason,omitempty"`
	Report         *RunReport   `json:"report,omitempty"`
}

// SkippedItem records an entity or cluster the run excluded, with the reason.
// Surfaced in the report so partial failure is never silent.
type SkippedItem struct {
	EntityID string `json:"entity_id,omitempty"`
	Type     string `json:"entity_type,omitempty"`
	Reason   string `json:"reason"`
}

// TypeStats aggregates per-entity-type counters for one run.
type TypeStats struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates_found"`
	Merged     int `json:"entities_merged"`
	Singletons int `json:"passed_through"`
	Skipped    int `json:"skipped"`
}

// RunReport is the metrics object threaded through the orchestrator and
// returned to callers; there is no process-wide accumulator.
type RunReport struct {
	AuditID                 string  `json:"audit_id"`
	EntitiesProcessed       int     `json:"entities_processed"`
	DuplicatesFound         int     `json:"duplicates_found"`
	EntitiesMerged          int     `json:"entities_merged"`
	ContradictionsDetected  int     `json:"contradictions_detected"`
	RelationshipsDiscovered int     `json:"relationships_discovered"`
	PatternsFound           int     `json:"patterns_found"`
	AvgConfidence           float64 `json:"avg_confidence"`
	ProcessingTimeMs        int64   `json:"processing_time_ms"`
	CacheHitRate            float64 `json:"cache_hit_rate"`

	// EmbeddingCallsSaved counts pairs the lexical short-circuits decided
	// without touching the embedding service.
	EmbeddingCallsSaved int                      `json:"embedding_calls_saved"`
	PerType             map[EntityType]TypeStats `json:"per_type"`
	Degraded            bool                     `json:"degraded"`
	Skipped             []SkippedItem            `json:"skipped,omitempty"`
	Warnings            []string                 `json:"warnings,omitempty"`
}

// AddWarning marks the run degraded and records why.
func (r *RunReport) AddWarning(msg string) {
	r.Degraded = true
	r.Warnings = append(r.Warnings, msg)
}

// ValidationCheck is one pass/fail result from post-run validation.
type ValidationCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Warning bool   `json:"warning,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
