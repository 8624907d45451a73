package model

import "time"

// RelationshipType tags a discovered edge between consolidated entities.
type RelationshipType string

const (
	RelUses      RelationshipType = "USES"
	RelCauses    RelationshipType = "CAUSES"
	RelMeasures  RelationshipType = "MEASURES"
	RelAddresses RelationshipType = "ADDRESSES"
)

// Relationship is a typed edge between two consolidated entities. Derived
// and regenerable: safe to delete and recompute from the consolidated set.
type Relationship struct {
	ID         string           `json:"id"`
	Type       RelationshipType `json:"relationship_type"`
	FromID     string           `json:"from_id"`
	FromType   EntityType       `json:"from_type"`
	ToID       string           `json:"to_id"`
	ToType     EntityType       `json:"to_type"`
	OrgID      string           `json:"org_id"`
	Confidence float64          `json:"confidence"`
	// Rule names the discovery rule that produced the edge.
	Rule      string    `json:"rule"`
	AuditID   string    `json:"audit_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PatternKind names a cross-entity observation class.
type PatternKind string

const (
	PatternRecurringIssue     PatternKind = "recurring_issue"
	PatternProblematicSystem  PatternKind = "problematic_system"
)

// Pattern is a corpus-level signal referencing the consolidated entities
// that support it. Derived and regenerable.
type Pattern struct {
	ID           string      `json:"id"`
	Kind         PatternKind `json:"kind"`
	Name         string      `json:"name"`
	OrgID        string      `json:"org_id"`
	EntityIDs    []string    `json:"entity_ids"`
	Strength     float64     `json:"strength"`
	HighPriority bool        `json:"high_priority"`
	AuditID      string      `json:"audit_id"`
	CreatedAt    time.Time   `json:"created_at"`
}
