// Package alerts turns detector output and consent state into realtime
// alerts for dashboards.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custodia/internal/domain"
	"custodia/internal/platform/redis"
	"custodia/internal/trail"
)

// DefaultWindow is the trailing window scanned when the caller does not
// specify one.
const DefaultWindow = 24 * time.Hour

// alertsChannel is the Redis pub/sub channel dashboards subscribe to.
const alertsChannel = "custodia:alerts"

// TrailReader is the strict read path. Alerts fail closed when the trail is
// unreadable; a quiet dashboard during an outage would be mistaken for a
// clean one.
type TrailReader interface {
	Query(ctx context.Context, f trail.Filter) ([]domain.AuditEvent, error)
	Consents(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error)
}

// AnomalyDetector runs the pattern detectors over a window.
type AnomalyDetector interface {
	Detect(ctx context.Context, subjectID string, start, end time.Time) ([]domain.Anomaly, error)
}

// Recorder appends meta events back onto the trail.
type Recorder interface {
	Record(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
}

// Service produces realtime alerts from the trailing event window.
type Service struct {
	reader          TrailReader
	detector        AnomalyDetector
	recorder        Recorder
	redis           *redis.Client
	logger          *slog.Logger
	consentValidity time.Duration
	now             func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRedis publishes each alert snapshot to Redis for dashboards. A nil
// client disables publishing.
func WithRedis(c *redis.Client) Option {
	return func(s *Service) { s.redis = c }
}

// WithRecorder records an anomaly_detected meta event per run that found
// anomalies.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithConsentValidity overrides the consent validity window.
func WithConsentValidity(d time.Duration) Option {
	return func(s *Service) { s.consentValidity = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the alerts service.
func New(reader TrailReader, detector AnomalyDetector, opts ...Option) *Service {
	s := &Service{
		reader:          reader,
		detector:        detector,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		consentValidity: domain.DefaultConsentValidity,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Realtime scans the trailing window and returns alerts: detector anomalies
// mapped to severities, plus consent findings for processing that continued
// after a subject withdrew consent. window <= 0 uses DefaultWindow.
func (s *Service) Realtime(ctx context.Context, window time.Duration) ([]domain.Alert, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	now := s.now()
	start := now.Add(-window)

	anomalies, err := s.detector.Detect(ctx, "", start, now)
	if err != nil {
		return nil, fmt.Errorf("detecting anomalies for alerts: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(anomalies))
	for _, a := range anomalies {
		alerts = append(alerts, s.fromAnomaly(a, now))
	}

	consentAlerts, err := s.consentFindings(ctx, start, now)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, consentAlerts...)

	if len(alerts) > 0 {
		s.noteRun(ctx, alerts, now)
	}
	s.publish(ctx, alerts)
	return alerts, nil
}

func (s *Service) fromAnomaly(a domain.Anomaly, now time.Time) domain.Alert {
	alert := domain.Alert{
		ID:         uuid.NewString(),
		SubjectID:  a.SubjectID,
		Message:    a.Description,
		Events:     a.Events,
		DetectedAt: now,
	}
	switch a.AnomalyType {
	case domain.AnomalyUnusualAccess:
		alert.Type = domain.AlertTypeBulkAccess
		alert.Severity = domain.AlertCritical
	case domain.AnomalyBulkExport:
		alert.Type = domain.AlertTypeBulkExport
		alert.Severity = domain.AlertCritical
	case domain.AnomalySuspiciousDeletion:
		alert.Type = domain.AlertTypeDeletion
		alert.Severity = domain.AlertCritical
	case domain.AnomalyConsentPattern:
		alert.Type = domain.AlertTypeConsentIssue
		alert.Severity = domain.AlertWarning
	}
	return alert
}

// consentFindings flags subjects whose data kept being processed inside the
// window after their consent was withdrawn, with no other consent still
// active. One alert per subject carrying the offending events.
func (s *Service) consentFindings(ctx context.Context, start, end time.Time) ([]domain.Alert, error) {
	consents, err := s.reader.Consents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading consents for alerts: %w", err)
	}

	withdrawnAt := make(map[string]time.Time)
	hasActive := make(map[string]bool)
	for _, c := range consents {
		if c.Active(end, s.consentValidity) {
			hasActive[c.SubjectID] = true
			continue
		}
		if c.WithdrawnAt == nil {
			continue
		}
		if t, ok := withdrawnAt[c.SubjectID]; !ok || c.WithdrawnAt.After(t) {
			withdrawnAt[c.SubjectID] = *c.WithdrawnAt
		}
	}

	var alerts []domain.Alert
	for subject, wAt := range withdrawnAt {
		if hasActive[subject] {
			continue
		}
		events, err := s.reader.Query(ctx, trail.Filter{SubjectID: subject, Start: start, End: end})
		if err != nil {
			return nil, fmt.Errorf("loading events for consent finding: %w", err)
		}
		var offending []domain.AuditEvent
		for _, e := range events {
			if e.EventType == domain.EventConsentGiven || e.EventType == domain.EventConsentWithdrawn {
				continue
			}
			if e.Timestamp.After(wAt) {
				offending = append(offending, e)
			}
		}
		if len(offending) == 0 {
			continue
		}
		alerts = append(alerts, domain.Alert{
			ID:        uuid.NewString(),
			Type:      domain.AlertTypeConsentIssue,
			Severity:  domain.AlertWarning,
			SubjectID: subject,
			Message: fmt.Sprintf("%d processing events after consent withdrawal with no active consent",
				len(offending)),
			Events:     offending,
			DetectedAt: end,
		})
	}
	return alerts, nil
}

// noteRun appends a meta event marking that this run produced alerts.
// Detection history stays reconstructable from the trail itself.
func (s *Service) noteRun(ctx context.Context, alerts []domain.Alert, now time.Time) {
	if s.recorder == nil {
		return
	}
	_, err := s.recorder.Record(ctx, domain.AuditEvent{
		EventType:         domain.EventAnomalyDetected,
		SubjectID:         domain.CrossSubject,
		ProcessingPurpose: "compliance monitoring",
		Timestamp:         now,
		Details: domain.EventDetails{
			Operation: fmt.Sprintf("alert scan produced %d alerts", len(alerts)),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "recording alert scan event failed", "error", err)
	}
}

// publish pushes the alert snapshot to the Redis channel, best effort.
func (s *Service) publish(ctx context.Context, alerts []domain.Alert) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(alerts)
	if err != nil {
		s.logger.WarnContext(ctx, "marshaling alerts for redis failed", "error", err)
		return
	}
	if err := s.redis.Publish(ctx, alertsChannel, payload).Err(); err != nil {
		s.logger.WarnContext(ctx, "publishing alerts to redis failed", "error", err)
	}
}
