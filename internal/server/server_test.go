package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/consolidate"
	"github.com/inquora/distill/internal/consolidate/consensus"
	"github.com/inquora/distill/internal/consolidate/rollback"
	"github.com/inquora/distill/internal/consolidate/similarity"
	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	matcher := similarity.NewMatcher(nil, time.Hour)
	scorer := consensus.NewScorer(cfg.Consensus)
	orchestrator := consolidate.NewOrchestrator(cfg, st, matcher, scorer)
	return New(orchestrator, rollback.NewManager(st), st), st
}

func seedPainPoints(t *testing.T, st *store.Store) {
	t.Helper()
	for _, e := range []model.RawEntity{
		{ID: "pp-1", Type: model.TypePainPoint, OrgID: "org-1", SourceInterviewID: "int-1",
			Name: "late invoicing", ExtractedAt: time.Now().UTC()},
		{ID: "pp-2", Type: model.TypePainPoint, OrgID: "org-1", SourceInterviewID: "int-2",
			Name: "late invoicing", ExtractedAt: time.Now().UTC()},
	} {
		require.NoError(t, st.SaveRawEntity(context.Background(), &e))
	}
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartRunReturnsReport(t *testing.T) {
	s, st := newTestServer(t)
	seedPainPoints(t, st)

	w := doJSON(t, s, http.MethodPost, "/runs", gin.H{"org_id": "org-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report model.RunReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.EntitiesProcessed)
	assert.Equal(t, 1, report.EntitiesMerged)
	assert.NotEmpty(t, report.AuditID)

	// The report stays retrievable by run id.
	w = doJSON(t, s, http.MethodGet, "/runs/"+report.AuditID+"/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartRunRequiresOrg(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/runs", gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStartRunRejectsUnknownType(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/runs", gin.H{
		"org_id": "org-1", "entity_types": []string{"galaxy"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRollbackLifecycle(t *testing.T) {
	s, st := newTestServer(t)
	seedPainPoints(t, st)

	w := doJSON(t, s, http.MethodPost, "/runs", gin.H{"org_id": "org-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var report model.RunReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))

	// Unconfirmed rollback is refused.
	w = doJSON(t, s, http.MethodPost, "/rollback", gin.H{
		"audit_id": report.AuditID, "reason": "bad merge",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Confirmed rollback succeeds once.
	w = doJSON(t, s, http.MethodPost, "/rollback", gin.H{
		"audit_id": report.AuditID, "reason": "bad merge", "confirm": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The second attempt conflicts.
	w = doJSON(t, s, http.MethodPost, "/rollback", gin.H{
		"audit_id": report.AuditID, "reason": "again", "confirm": true,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRollbackUnknownRun(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/rollback", gin.H{
		"audit_id": "no-such-run", "reason": "oops", "confirm": true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/runs/no-such-run/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	seedPainPoints(t, st)

	w := doJSON(t, s, http.MethodPost, "/runs", gin.H{"org_id": "org-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var report model.RunReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))

	w = doJSON(t, s, http.MethodPost, "/validate", gin.H{"audit_id": report.AuditID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Passed bool                    `json:"passed"`
		Checks []model.ValidationCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Passed)
	assert.NotEmpty(t, resp.Checks)
}

func TestValidateWithoutAuditID(t *testing.T) {
	s, st := newTestServer(t)
	seedPainPoints(t, st)

	w := doJSON(t, s, http.MethodPost, "/runs", gin.H{"org_id": "org-1"})
	require.Equal(t, http.StatusOK, w.Code)

	// The audit id is optional; omitting it validates every recorded run,
	// with or without a request body.
	for _, body := range []any{gin.H{}, nil} {
		w = doJSON(t, s, http.MethodPost, "/validate", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Passed bool                    `json:"passed"`
			Checks []model.ValidationCheck `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Passed)
		assert.NotEmpty(t, resp.Checks)
	}
}
