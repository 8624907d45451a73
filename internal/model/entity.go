package model

import (
	"fmt"
	"time"
)

// EntityType classifies what kind of real-world object a mention describes.
type EntityType string

const (
	TypePainPoint           EntityType = "pain_point"
	TypeProcess             EntityType = "process"
	TypeSystem              EntityType = "system"
	TypeKPI                 EntityType = "kpi"
	TypeAutomationCandidate EntityType = "automation_candidate"
	TypeTeamStructure       EntityType = "team_structure"
)

// AllEntityTypes lists every known type in processing order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		TypePainPoint,
		TypeProcess,
		TypeSystem,
		TypeKPI,
		TypeAutomationCandidate,
		TypeTeamStructure,
	}
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	for _, known := range AllEntityTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type: %q", s)
}

// Sentiment is the extractor's polarity judgement on a mention.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// RawEntity is one extracted mention from a single interview. The extraction
// subsystem owns these records; consolidation reads them and never mutates
// the extracted content.
type RawEntity struct {
	ID                string                 `json:"id"`
	Type              EntityType             `json:"entity_type"`
	SourceInterviewID string                 `json:"source_interview_id"`
	OrgID             string                 `json:"org_id"`
	Name              string                 `json:"name"`
	Description       string                 `json:"description,omitempty"`
	Details           *Details               `json:"details,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	ExtractedAt       time.Time              `json:"extracted_at"`
}

// Details is the typed extension carried by a RawEntity. Exactly one branch
// is set, matching the entity's type; extractors that emit only free text
// leave it nil.
type Details struct {
	PainPoint           *PainPointDetails           `json:"pain_point,omitempty"`
	Process             *ProcessDetails             `json:"process,omitempty"`
	System              *SystemDetails              `json:"system,omitempty"`
	KPI                 *KPIDetails                 `json:"kpi,omitempty"`
	AutomationCandidate *AutomationCandidateDetails `json:"automation_candidate,omitempty"`
	TeamStructure       *TeamStructureDetails       `json:"team_structure,omitempty"`
}

type PainPointDetails struct {
	Sentiment  Sentiment `json:"sentiment,omitempty"`
	Impact     string    `json:"impact,omitempty"`
	Frequency  string    `json:"frequency,omitempty"`
	Department string    `json:"department,omitempty"`
	// Systems named by the interviewee as involved in the pain.
	RelatedSystems []string `json:"related_systems,omitempty"`
}

type ProcessDetails struct {
	Department    string   `json:"department,omitempty"`
	Steps         []string `json:"steps,omitempty"`
	SystemsUsed   []string `json:"systems_used,omitempty"`
	CycleTime     string   `json:"cycle_time,omitempty"`
	PainPointRefs []string `json:"pain_point_refs,omitempty"`
}

type SystemDetails struct {
	Vendor    string    `json:"vendor,omitempty"`
	Category  string    `json:"category,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	UsedBy    []string  `json:"used_by,omitempty"`
}

type KPIDetails struct {
	Unit             string `json:"unit,omitempty"`
	Target           string `json:"target,omitempty"`
	Current          string `json:"current,omitempty"`
	MeasuresProcess  string `json:"measures_process,omitempty"`
	ReportingCadence string `json:"reporting_cadence,omitempty"`
}

type AutomationCandidateDetails struct {
	AddressesPainPointID string `json:"addresses_pain_point_id,omitempty"`
	EstimatedEffort      string `json:"estimated_effort,omitempty"`
	EstimatedBenefit     string `json:"estimated_benefit,omitempty"`
	BudgetRange          string `json:"budget_range,omitempty"`
}

type TeamStructureDetails struct {
	Department string   `json:"department,omitempty"`
	Headcount  int      `json:"headcount,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	ReportsTo  string   `json:"reports_to,omitempty"`
}

// Validate reports whether the mention carries the fields clustering needs.
// Entities failing validation are excluded from the run, not fatal to it.
func (e *RawEntity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("raw entity missing id")
	}
	if _, err := ParseEntityType(string(e.Type)); err != nil {
		return fmt.Errorf("raw entity %s: %w", e.ID, err)
	}
	if e.SourceInterviewID == "" {
		return fmt.Errorf("raw entity %s: missing source_interview_id", e.ID)
	}
	if e.OrgID == "" {
		return fmt.Errorf("raw entity %s: missing org_id", e.ID)
	}
	if e.Name == "" {
		return fmt.Errorf("raw entity %s: missing name", e.ID)
	}
	return nil
}

// Text is the representation similarity runs over: name plus description.
func (e *RawEntity) Text() string {
	if e.Description == "" {
		return e.Name
	}
	return e.Name + " " + e.Description
}

// Sentiment returns the extractor polarity for types that carry one.
func (e *RawEntity) Sentiment() Sentiment {
	if e.Details == nil {
		return ""
	}
	switch {
	case e.Details.PainPoint != nil:
		return e.Details.PainPoint.Sentiment
	case e.Details.System != nil:
		return e.Details.System.Sentiment
	}
	return ""
}
