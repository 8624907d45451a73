package relate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquora/distill/internal/model"
)

func consolidated(id string, t model.EntityType, org, name, desc string, details *model.Details) model.ConsolidatedEntity {
	return model.ConsolidatedEntity{
		ID: id, Type: t, OrgID: org, Name: name, Description: desc, Details: details,
		SourceCount: 1, MentionedIn: []string{"int-1"},
	}
}

func TestCausesFromRelatedSystemsList(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		consolidated("sys-1", model.TypeSystem, "org-1", "SAP", "", nil),
		consolidated("pp-1", model.TypePainPoint, "org-1", "frequent outages",
			"the ERP keeps going down", &model.Details{PainPoint: &model.PainPointDetails{
				Sentiment: model.SentimentNegative, RelatedSystems: []string{"sap"},
			}}),
	}

	rels, err := NewDiscoverer("run-1").Discover(context.Background(), entities, nil)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, model.RelCauses, rels[0].Type)
	assert.Equal(t, "sys-1", rels[0].FromID)
	assert.Equal(t, "pp-1", rels[0].ToID)
	assert.Equal(t, RuleSystemList, rels[0].Rule)
}

func TestUsesFromDescriptionKeyword(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		consolidated("sys-1", model.TypeSystem, "org-1", "Salesforce", "", nil),
		consolidated("proc-1", model.TypeProcess, "org-1", "lead intake",
			"reps capture every lead in Salesforce manually", nil),
	}

	rels, err := NewDiscoverer("run-1").Discover(context.Background(), entities, nil)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, model.RelUses, rels[0].Type)
	assert.Equal(t, RuleKeywordMention, rels[0].Rule)
	// Keyword hits carry less confidence than structured references.
	assert.Less(t, rels[0].Confidence, 0.95)
}

func TestAddressesViaExplicitReference(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		consolidated("pp-1", model.TypePainPoint, "org-1", "manual reconciliation", "", nil),
		consolidated("ac-1", model.TypeAutomationCandidate, "org-1", "auto-reconciliation bot", "",
			&model.Details{AutomationCandidate: &model.AutomationCandidateDetails{
				AddressesPainPointID: "raw-pp-7",
			}}),
	}
	// The explicit attribute still points at the extraction-time id; the
	// raw index resolves it to the consolidated record.
	rawIndex := map[string]string{"raw-pp-7": "pp-1"}

	rels, err := NewDiscoverer("run-1").Discover(context.Background(), entities, rawIndex)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, model.RelAddresses, rels[0].Type)
	assert.Equal(t, RuleExplicitReference, rels[0].Rule)
	assert.Equal(t, 0.95, rels[0].Confidence)
}

func TestMeasuresKPIToProcess(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		consolidated("proc-1", model.TypeProcess, "org-1", "Order Fulfillment", "", nil),
		consolidated("kpi-1", model.TypeKPI, "org-1", "fulfillment cycle time", "",
			&model.Details{KPI: &model.KPIDetails{MeasuresProcess: "order fulfillment"}}),
	}

	rels, err := NewDiscoverer("run-1").Discover(context.Background(), entities, nil)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, model.RelMeasures, rels[0].Type)
	assert.Equal(t, "kpi-1", rels[0].FromID)
}

func TestOrgIsolationIsHard(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		consolidated("sys-1", model.TypeSystem, "org-1", "SAP", "", nil),
		consolidated("pp-1", model.TypePainPoint, "org-2", "SAP outages",
			"SAP fails daily", &model.Details{PainPoint: &model.PainPointDetails{
				RelatedSystems: []string{"SAP"},
			}}),
	}

	rels, err := NewDiscoverer("run-1").Discover(context.Background(), entities, nil)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	entities := []model.ConsolidatedEntity{
		consolidated("sys-1", model.TypeSystem, "org-1", "SAP", "", nil),
		consolidated("pp-1", model.TypePainPoint, "org-1", "SAP outages", "SAP fails daily", nil),
		consolidated("proc-1", model.TypeProcess, "org-1", "invoicing",
			"posted in SAP", nil),
	}

	d := NewDiscoverer("run-1")
	first, err := d.Discover(context.Background(), entities, nil)
	require.NoError(t, err)
	second, err := d.Discover(context.Background(), entities, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Type, second[i].Type)
	}
}

func TestWholePhraseMatchOnly(t *testing.T) {
	// "SAP" must not match inside "SAPient consulting".
	entities := []model.ConsolidatedEntity{
		consolidated("sys-1", model.TypeSystem, "org-1", "SAP", "", nil),
		consolidated("pp-1", model.TypePainPoint, "org-1", "vendor costs",
			"sapient consulting fees keep climbing", nil),
	}

	rels, err := NewDiscoverer("run-1").Discover(context.Background(), entities, nil)
	require.NoError(t, err)
	assert.Empty(t, rels)
}
