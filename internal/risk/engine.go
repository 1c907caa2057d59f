// Package risk computes per-subject and global regulatory risk from the
// audit trail. Assessments are derived state: computed fresh from the trail
// for every request and never cached. Reads go through the trail's strict
// path so an unreachable store yields an error, not a silently-low score.
package risk

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/domain"
	"custodia/internal/platform/metrics"
	"custodia/internal/trail"
)

// Sub-score weights. They weigh the *risk* contribution (100 - subscore) of
// each category into the overall score.
const (
	weightConsent      = 0.30
	weightMinimization = 0.25
	weightAccess       = 0.20
	weightRetention    = 0.15
	weightPortability  = 0.10
)

const (
	retentionHorizon = 730 * 24 * time.Hour
	workdayStartHour = 6
	workdayEndHour   = 22
)

// TrailReader is the read-only slice of the trail the engine consumes.
type TrailReader interface {
	Query(ctx context.Context, f trail.Filter) ([]domain.AuditEvent, error)
	Consents(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error)
}

// Engine scores regulatory risk over a timeframe of trail data.
type Engine struct {
	reader          TrailReader
	logger          *slog.Logger
	metrics         *metrics.Metrics
	consentValidity time.Duration
	now             func() time.Time
	tracer          trace.Tracer
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConsentValidity overrides the window within which a consent is active.
func WithConsentValidity(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.consentValidity = d
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds a risk engine over the given trail reader.
func New(reader TrailReader, opts ...Option) *Engine {
	e := &Engine{
		reader:          reader,
		logger:          slog.Default(),
		consentValidity: domain.DefaultConsentValidity,
		now:             time.Now,
		tracer:          otel.Tracer("custodia/risk"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess computes the five sub-scores and the weighted overall risk for the
// subject (global when subjectID is empty) over [start, end]. It fails closed:
// if the trail cannot be read the error propagates and no score is returned.
func (e *Engine) Assess(ctx context.Context, subjectID string, start, end time.Time) (domain.RiskAssessment, error) {
	ctx, span := e.tracer.Start(ctx, "risk.Assess")
	defer span.End()

	if end.IsZero() {
		end = e.now()
	}

	events, err := e.reader.Query(ctx, trail.Filter{SubjectID: subjectID, Start: start, End: end})
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	consents, err := e.reader.Consents(ctx, subjectID)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RiskAssessment{}, err
	}

	span.SetAttributes(
		attribute.Int("events", len(events)),
		attribute.Int("consents", len(consents)),
	)

	now := e.now()
	scores := domain.CategoryScores{
		DataMinimization:  e.scoreDataMinimization(events),
		ConsentCompliance: e.scoreConsentCompliance(events, consents, now),
		RetentionPolicy:   e.scoreRetention(events, now),
		AccessControl:     e.scoreAccessControl(events),
		DataPortability:   e.scoreDataPortability(events),
	}

	overall := overallRisk(scores)
	assessment := domain.RiskAssessment{
		SubjectID:        subjectID,
		OverallRiskScore: overall,
		RiskLevel:        domain.RiskLevelFor(overall),
		CategoryScores:   scores,
		Recommendations:  recommendationsFor(scores),
		Alerts:           alertsFor(scores, overall, now),
		AssessedAt:       now,
		WindowStart:      start,
		WindowEnd:        end,
	}

	if e.metrics != nil {
		e.metrics.Assessments.Inc()
	}
	e.logger.DebugContext(ctx, "risk assessment computed",
		"subject_id", subjectID,
		"overall", overall,
		"level", assessment.RiskLevel,
	)
	return assessment, nil
}

// scoreDataMinimization penalizes heavy access to sensitive categories and
// access-dominated processing.
func (e *Engine) scoreDataMinimization(events []domain.AuditEvent) int {
	score := 100
	var accessCount, sensitiveAccess int
	for _, ev := range events {
		if ev.EventType != domain.EventAccess {
			continue
		}
		accessCount++
		if touchesSensitive(ev) {
			sensitiveAccess++
		}
	}
	if accessCount > 0 && float64(sensitiveAccess) > 0.3*float64(accessCount) {
		score -= 25
	}
	if len(events) > 0 && float64(accessCount) > 0.7*float64(len(events)) {
		score -= 20
	}
	return domain.ClampScore(score)
}

// scoreConsentCompliance accumulates deductions per distinct subject touched
// in the window: processing without any active consent, and consents that
// silently aged past the validity window.
func (e *Engine) scoreConsentCompliance(events []domain.AuditEvent, consents []domain.ConsentRecord, now time.Time) int {
	score := 100

	subjects := make(map[string]struct{})
	for _, ev := range events {
		subjects[ev.SubjectID] = struct{}{}
	}
	bySubject := make(map[string][]domain.ConsentRecord)
	for _, c := range consents {
		bySubject[c.SubjectID] = append(bySubject[c.SubjectID], c)
	}

	for subject := range subjects {
		var hasActive, hasExpired bool
		for _, c := range bySubject[subject] {
			if c.Active(now, e.consentValidity) {
				hasActive = true
			}
			if c.Expired(now, e.consentValidity) {
				hasExpired = true
			}
		}
		if !hasActive {
			score -= 20
		}
		if hasExpired {
			score -= 10
		}
	}
	return domain.ClampScore(score)
}

// scoreRetention penalizes stale events and a low deletion rate.
func (e *Engine) scoreRetention(events []domain.AuditEvent, now time.Time) int {
	score := 100
	var stale, deletions int
	for _, ev := range events {
		if now.Sub(ev.Timestamp) > retentionHorizon {
			stale++
		}
		if ev.EventType == domain.EventDelete {
			deletions++
		}
	}
	stalePenalty := 5 * stale
	if stalePenalty > 50 {
		stalePenalty = 50
	}
	score -= stalePenalty

	if len(events) > 0 && float64(deletions)/float64(len(events)) < 0.10 {
		score -= 15
	}
	return domain.ClampScore(score)
}

// scoreAccessControl penalizes denied access attempts and after-hours
// processing volume.
func (e *Engine) scoreAccessControl(events []domain.AuditEvent) int {
	score := 100
	var unauthorized, afterHours int
	for _, ev := range events {
		if ev.EventType == domain.EventAccess && ev.Details.AccessGranted != nil && !*ev.Details.AccessGranted {
			unauthorized++
		}
		hour := ev.Timestamp.Hour()
		if hour < workdayStartHour || hour >= workdayEndHour {
			afterHours++
		}
	}
	total := len(events)
	if total > 0 && float64(unauthorized) > 0.05*float64(total) {
		score -= 20
	}
	if total > 0 && float64(afterHours) > 0.20*float64(total) {
		score -= 15
	}
	return domain.ClampScore(score)
}

// scoreDataPortability rewards exercised export rights and penalizes their
// absence. The two zero-export penalties overlap and can both fire for the
// same window; that is the documented policy, kept verbatim pending product
// review rather than silently consolidated.
func (e *Engine) scoreDataPortability(events []domain.AuditEvent) int {
	score := 100
	var exports, updates int
	for _, ev := range events {
		switch ev.EventType {
		case domain.EventExport:
			exports++
		case domain.EventUpdate:
			updates++
		}
	}
	if exports > 0 {
		score += 10
	}
	if exports == 0 && updates > 10 {
		score -= 25
	}
	if exports == 0 && len(events) > 10 {
		score -= 30
	}
	return domain.ClampScore(score)
}

func touchesSensitive(ev domain.AuditEvent) bool {
	for _, c := range ev.DataCategories {
		if c == domain.CategoryBiometric || c == domain.CategorySpecialCategory {
			return true
		}
	}
	return false
}

// overallRisk is the weighted sum of risk contributions (100 - subscore).
func overallRisk(s domain.CategoryScores) int {
	risk := float64(100-s.ConsentCompliance)*weightConsent +
		float64(100-s.DataMinimization)*weightMinimization +
		float64(100-s.AccessControl)*weightAccess +
		float64(100-s.RetentionPolicy)*weightRetention +
		float64(100-s.DataPortability)*weightPortability
	return domain.ClampScore(int(math.Round(risk)))
}
