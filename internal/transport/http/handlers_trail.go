package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/domain"
	"custodia/internal/platform/middleware"
	"custodia/internal/trail"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

// HandleRecordEvent handles POST /trail/events.
func (h *Handler) HandleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, ok := httputil.Decode[domain.AuditEvent](w, r)
	if !ok {
		return
	}
	if event.ActingUserID == "" {
		event.ActingUserID = middleware.GetUserID(ctx)
	}

	recorded, err := h.svc.Trail.Record(ctx, event)
	if err != nil {
		h.logger.ErrorContext(ctx, "recording event failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", event.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, recorded)
}

// HandleQueryEvents handles GET /trail/events.
func (h *Handler) HandleQueryEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.svc.Trail.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "querying events failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", filter.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// HandleRecordConsent handles POST /trail/consents.
func (h *Handler) HandleRecordConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, ok := httputil.Decode[domain.ConsentRecord](w, r)
	if !ok {
		return
	}

	recorded, err := h.svc.Trail.RecordConsent(ctx, record)
	if err != nil {
		h.logger.ErrorContext(ctx, "recording consent failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", record.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, recorded)
}

type withdrawRequest struct {
	Reason string `json:"reason,omitempty"`
}

// HandleWithdrawConsent handles POST /trail/consents/{id}/withdraw.
// Withdrawal is idempotent; repeating it returns the same 204.
func (h *Handler) HandleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	consentID := chi.URLParam(r, "id")
	if consentID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "consent id required"))
		return
	}

	var req withdrawRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = httputil.Decode[withdrawRequest](w, r); !ok {
			return
		}
	}

	if err := h.svc.Trail.Withdraw(ctx, consentID, req.Reason); err != nil {
		h.logger.ErrorContext(ctx, "withdrawing consent failed",
			"request_id", middleware.GetRequestID(ctx),
			"consent_id", consentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListConsents handles GET /trail/consents.
func (h *Handler) HandleListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := r.URL.Query().Get("subject_id")

	consents, err := h.svc.Trail.Consents(ctx, subjectID)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing consents failed",
			"request_id", middleware.GetRequestID(ctx),
			"subject_id", subjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"consents": consents,
		"count":    len(consents),
	})
}

// filterFromQuery parses subject_id, start, end (RFC 3339) and limit.
func filterFromQuery(r *http.Request) (trail.Filter, error) {
	q := r.URL.Query()
	f := trail.Filter{SubjectID: q.Get("subject_id")}

	var err error
	if f.Start, err = parseTimeParam(q.Get("start")); err != nil {
		return trail.Filter{}, dErrors.New(dErrors.CodeBadRequest, "start must be RFC 3339")
	}
	if f.End, err = parseTimeParam(q.Get("end")); err != nil {
		return trail.Filter{}, dErrors.New(dErrors.CodeBadRequest, "end must be RFC 3339")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return trail.Filter{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer")
		}
		f.Limit = limit
	}
	return f, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
