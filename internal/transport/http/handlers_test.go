package httptransport_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"custodia/internal/domain"
	"custodia/internal/jwtauth"
	"custodia/internal/report"
	"custodia/internal/trail"
	httptransport "custodia/internal/transport/http"
	"custodia/internal/transport/http/mocks"
	dErrors "custodia/pkg/domain-errors"
)

type testEnv struct {
	trail     *mocks.MockTrailService
	risk      *mocks.MockRiskAssessor
	anomalies *mocks.MockAnomalyDetector
	reports   *mocks.MockReportBuilder
	alerts    *mocks.MockAlertService
	router    http.Handler
	token     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)

	env := &testEnv{
		trail:     mocks.NewMockTrailService(ctrl),
		risk:      mocks.NewMockRiskAssessor(ctrl),
		anomalies: mocks.NewMockAnomalyDetector(ctrl),
		reports:   mocks.NewMockReportBuilder(ctrl),
		alerts:    mocks.NewMockAlertService(ctrl),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := jwtauth.New("test-signing-key", "custodia-test")
	token, err := auth.GenerateToken("auditor-1", time.Hour)
	require.NoError(t, err)
	env.token = token

	handler := httptransport.NewHandler(httptransport.Services{
		Trail:     env.trail,
		Risk:      env.risk,
		Anomalies: env.anomalies,
		Reports:   env.reports,
		Alerts:    env.alerts,
	}, logger)
	env.router = httptransport.NewRouter(handler, auth, logger, nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRecordEvent(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e domain.AuditEvent) (domain.AuditEvent, error) {
			assert.Equal(t, domain.EventAccess, e.EventType)
			assert.Equal(t, "U1", e.SubjectID)
			assert.Equal(t, "auditor-1", e.ActingUserID, "acting user defaults to the token subject")
			e.ID = "e-1"
			return e, nil
		})

	w := env.do(t, http.MethodPost, "/trail/events",
		`{"eventType":"access","subjectId":"U1","processingPurpose":"support lookup"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	var got domain.AuditEvent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "e-1", got.ID)
}

func TestRecordEventMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/trail/events", `{"eventType":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordEventValidationError(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().Record(gomock.Any(), gomock.Any()).
		Return(domain.AuditEvent{}, dErrors.New(dErrors.CodeBadRequest, "event requires subjectId"))

	w := env.do(t, http.MethodPost, "/trail/events", `{"eventType":"access"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "bad_request", body["error"])
}

func TestQueryEventsFilterParsing(t *testing.T) {
	env := newTestEnv(t)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	env.trail.EXPECT().Query(gomock.Any(), trail.Filter{
		SubjectID: "U1", Start: start, End: end, Limit: 10,
	}).Return([]domain.AuditEvent{{ID: "e1"}}, nil)

	w := env.do(t, http.MethodGet,
		"/trail/events?subject_id=U1&start=2026-07-01T00:00:00Z&end=2026-07-02T00:00:00Z&limit=10", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}

func TestQueryEventsRejectsBadParams(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/trail/events?start=yesterday",
		"/trail/events?limit=-1",
		"/trail/events?limit=ten",
	} {
		w := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestQueryEventsUnavailable(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().Query(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnavailable, "store unreachable"))

	w := env.do(t, http.MethodGet, "/trail/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecordConsent(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().RecordConsent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c domain.ConsentRecord) (domain.ConsentRecord, error) {
			c.ConsentID = "c-1"
			return c, nil
		})

	w := env.do(t, http.MethodPost, "/trail/consents",
		`{"subjectId":"U1","consentType":"marketing","purpose":"newsletter"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	var got domain.ConsentRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "c-1", got.ConsentID)
}

func TestWithdrawConsent(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().Withdraw(gomock.Any(), "c-1", "subject request").Return(nil)

	w := env.do(t, http.MethodPost, "/trail/consents/c-1/withdraw", `{"reason":"subject request"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWithdrawConsentNoBody(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().Withdraw(gomock.Any(), "c-1", "").Return(nil)

	w := env.do(t, http.MethodPost, "/trail/consents/c-1/withdraw", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListConsents(t *testing.T) {
	env := newTestEnv(t)

	env.trail.EXPECT().Consents(gomock.Any(), "U1").
		Return([]domain.ConsentRecord{{ConsentID: "c1"}, {ConsentID: "c2"}}, nil)

	w := env.do(t, http.MethodGet, "/trail/consents?subject_id=U1", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
}

func TestAssessRisk(t *testing.T) {
	env := newTestEnv(t)

	env.risk.EXPECT().Assess(gomock.Any(), "U1", time.Time{}, time.Time{}).
		Return(domain.RiskAssessment{
			SubjectID:        "U1",
			OverallRiskScore: 30,
			RiskLevel:        domain.RiskMedium,
		}, nil)

	w := env.do(t, http.MethodGet, "/risk/assessment?subject_id=U1", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.RiskAssessment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, domain.RiskMedium, got.RiskLevel)
}

func TestAssessRiskFailsClosed(t *testing.T) {
	env := newTestEnv(t)

	env.risk.EXPECT().Assess(gomock.Any(), "", time.Time{}, time.Time{}).
		Return(domain.RiskAssessment{}, dErrors.New(dErrors.CodeUnavailable, "store unreachable"))

	w := env.do(t, http.MethodGet, "/risk/assessment", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDetectAnomalies(t *testing.T) {
	env := newTestEnv(t)

	env.anomalies.EXPECT().Detect(gomock.Any(), "", time.Time{}, time.Time{}).
		Return([]domain.Anomaly{{AnomalyType: domain.AnomalyBulkExport, RiskScore: 90}}, nil)

	w := env.do(t, http.MethodGet, "/anomalies", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Anomalies []domain.Anomaly `json:"anomalies"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Anomalies, 1)
	assert.Equal(t, 90, body.Anomalies[0].RiskScore)
}

func TestComplianceReport(t *testing.T) {
	env := newTestEnv(t)

	env.reports.EXPECT().Build(gomock.Any(), "U1", time.Time{}, time.Time{}).
		Return(report.Report{SubjectID: "U1", TotalEvents: 4, Partial: true}, nil)

	w := env.do(t, http.MethodGet, "/reports/compliance?subject_id=U1", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got report.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.True(t, got.Partial)
	assert.Equal(t, 4, got.TotalEvents)
}

func TestRealtimeAlertsWindow(t *testing.T) {
	env := newTestEnv(t)

	env.alerts.EXPECT().Realtime(gomock.Any(), 72*time.Hour).
		Return([]domain.Alert{{Type: domain.AlertTypeConsentIssue}}, nil)

	w := env.do(t, http.MethodGet, "/alerts/realtime?window=72h", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}

func TestRealtimeAlertsDefaultWindow(t *testing.T) {
	env := newTestEnv(t)

	env.alerts.EXPECT().Realtime(gomock.Any(), time.Duration(0)).Return(nil, nil)

	w := env.do(t, http.MethodGet, "/alerts/realtime", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRealtimeAlertsRejectsBadWindow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/alerts/realtime?window=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/trail/events", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, target)
	}
}
