package httptransport

import (
	"net/http"
	"time"

	"custodia/internal/platform/middleware"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

// HandleAssessRisk handles GET /risk/assessment.
func (h *Handler) HandleAssessRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	assessment, err := h.svc.Risk.Assess(ctx, filter.SubjectID, filter.Start, filter.End)
	if err != nil {
		h.logger.ErrorContext(ctx, "risk assessment failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", filter.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, assessment)
}

// HandleDetectAnomalies handles GET /anomalies.
func (h *Handler) HandleDetectAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	anomalies, err := h.svc.Anomalies.Detect(ctx, filter.SubjectID, filter.Start, filter.End)
	if err != nil {
		h.logger.ErrorContext(ctx, "anomaly detection failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", filter.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// HandleComplianceReport handles GET /reports/compliance.
func (h *Handler) HandleComplianceReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rep, err := h.svc.Reports.Build(ctx, filter.SubjectID, filter.Start, filter.End)
	if err != nil {
		h.logger.ErrorContext(ctx, "building compliance report failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", filter.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, rep)
}

// HandleRealtimeAlerts handles GET /alerts/realtime. An optional window
// query parameter (Go duration, e.g. 72h) overrides the default.
func (h *Handler) HandleRealtimeAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "window must be a positive duration"))
			return
		}
		window = parsed
	}

	alerts, err := h.svc.Alerts.Realtime(ctx, window)
	if err != nil {
		h.logger.ErrorContext(ctx, "realtime alert scan failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
