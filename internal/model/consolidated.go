package model

import (
	"fmt"
	"time"
)

// DuplicateCluster groups same-type mentions judged to denote one real-world
// object. It exists only for the duration of a consolidation run.
type DuplicateCluster struct {
	Members []RawEntity
	// Primary indexes the highest-information member in Members; canonical
	// fields of the consolidated entity come from it.
	Primary int
	// PairScores records the similarity that linked each non-primary member
	// into the cluster, keyed by raw entity id.
	PairScores map[string]float64
}

func (c *DuplicateCluster) PrimaryEntity() RawEntity {
	return c.Members[c.Primary]
}

func (c *DuplicateCluster) Size() int { return len(c.Members) }

// InterviewIDs returns the distinct source interviews across members.
func (c *DuplicateCluster) InterviewIDs() []string {
	seen := make(map[string]bool, len(c.Members))
	var ids []string
	for _, m := range c.Members {
		if !seen[m.SourceInterviewID] {
			seen[m.SourceInterviewID] = true
			ids = append(ids, m.SourceInterviewID)
		}
	}
	return ids
}

// ConsolidatedEntity is the merged output of one cluster. It is never
// mutated in place after creation; corrections go through rollback and
// re-merge.
type ConsolidatedEntity struct {
	ID                     string     `json:"id"`
	Type                   EntityType `json:"entity_type"`
	OrgID                  string     `json:"org_id"`
	Name                   string     `json:"name"`
	Description            string     `json:"description,omitempty"`
	Details                *Details   `json:"details,omitempty"`
	SourceCount            int        `json:"source_count"`
	MentionedIn            []string   `json:"mentioned_in_interviews"`
	ConsensusConfidence    float64    `json:"consensus_confidence"`
	ContradictionFlag      bool       `json:"contradiction_flag"`
	ContradictingSourceIDs []string   `json:"contradicting_source_ids,omitempty"`
	AuditID                string     `json:"audit_id"`
	CreatedAt              time.Time  `json:"created_at"`
}

// CheckInvariants enforces the source-accounting and confidence bounds.
func (e *ConsolidatedEntity) CheckInvariants() error {
	if e.SourceCount < 1 {
		return fmt.Errorf("consolidated entity %s: source_count %d < 1", e.ID, e.SourceCount)
	}
	if e.SourceCount != len(e.MentionedIn) {
		return fmt.Errorf("consolidated entity %s: source_count %d != %d interviews",
			e.ID, e.SourceCount, len(e.MentionedIn))
	}
	if e.ConsensusConfidence < 0 || e.ConsensusConfidence > 1 {
		return fmt.Errorf("consolidated entity %s: confidence %.3f out of [0,1]", e.ID, e.ConsensusConfidence)
	}
	return nil
}

// EntitySnapshot is the verbatim pre-merge copy of one absorbed raw entity,
// written inside the merge transaction and read only by rollback.
type EntitySnapshot struct {
	ID             string `json:"id"`
	AuditID        string `json:"audit_id"`
	RawEntityID    string `json:"raw_entity_id"`
	ConsolidatedID string `json:"consolidated_id"`

	// Payload is the JSON-encoded RawEntity exactly as it stood pre-merge.
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
