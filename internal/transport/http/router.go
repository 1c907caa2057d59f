// Package httptransport is the thin HTTP layer. Handlers decode, delegate
// to domain services, and encode; business logic stays out of this package.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/domain"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/internal/report"
	"custodia/internal/trail"
	"custodia/pkg/platform/httputil"
)

const requestTimeout = 30 * time.Second

// TrailService is the event and consent store surface used by handlers.
type TrailService interface {
	Record(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	RecordConsent(ctx context.Context, record domain.ConsentRecord) (domain.ConsentRecord, error)
	Withdraw(ctx context.Context, consentID, reason string) error
	Query(ctx context.Context, f trail.Filter) ([]domain.AuditEvent, error)
	Consents(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error)
}

// RiskAssessor computes risk assessments on demand.
type RiskAssessor interface {
	Assess(ctx context.Context, subjectID string, start, end time.Time) (domain.RiskAssessment, error)
}

// AnomalyDetector runs the pattern detectors over a window.
type AnomalyDetector interface {
	Detect(ctx context.Context, subjectID string, start, end time.Time) ([]domain.Anomaly, error)
}

// ReportBuilder assembles compliance reports.
type ReportBuilder interface {
	Build(ctx context.Context, subjectID string, start, end time.Time) (report.Report, error)
}

// AlertService produces realtime alerts over a trailing window.
type AlertService interface {
	Realtime(ctx context.Context, window time.Duration) ([]domain.Alert, error)
}

// Services bundles the domain services the router exposes.
type Services struct {
	Trail     TrailService
	Risk      RiskAssessor
	Anomalies AnomalyDetector
	Reports   ReportBuilder
	Alerts    AlertService
}

// Handler wires the API routes to domain services.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler constructs the HTTP handler set.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// NewRouter builds the full route tree. Everything except /healthz and
// /metrics sits behind bearer-token auth.
func NewRouter(h *Handler, validator middleware.TokenValidator, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(m))

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)

		r.Post("/trail/events", h.HandleRecordEvent)
		r.Get("/trail/events", h.HandleQueryEvents)
		r.Post("/trail/consents", h.HandleRecordConsent)
		r.Post("/trail/consents/{id}/withdraw", h.HandleWithdrawConsent)
		r.Get("/trail/consents", h.HandleListConsents)

		r.Get("/risk/assessment", h.HandleAssessRisk)
		r.Get("/anomalies", h.HandleDetectAnomalies)
		r.Get("/reports/compliance", h.HandleComplianceReport)
		r.Get("/alerts/realtime", h.HandleRealtimeAlerts)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
