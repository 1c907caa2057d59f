// Package report aggregates trail data into compliance summaries for
// dashboards and CLIs. It counts and lists; scoring and detection stay with
// the risk and anomaly packages.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"custodia/internal/domain"
	"custodia/internal/retention"
	"custodia/internal/trail"
)

// TrailReader is the degraded read path. The reporter prefers incomplete
// data over no report, so both calls tolerate persistence being down.
type TrailReader interface {
	QueryDegraded(ctx context.Context, f trail.Filter) ([]domain.AuditEvent, bool, error)
	ConsentsDegraded(ctx context.Context, subjectID string) ([]domain.ConsentRecord, bool, error)
}

// Report is the aggregate view over a subject (or all subjects) and window.
type Report struct {
	SubjectID       string                   `json:"subjectId,omitempty"`
	PeriodStart     time.Time                `json:"periodStart"`
	PeriodEnd       time.Time                `json:"periodEnd"`
	GeneratedAt     time.Time                `json:"generatedAt"`
	TotalEvents     int                      `json:"totalEvents"`
	EventCounts     map[domain.EventType]int `json:"eventCounts"`
	Events          []domain.AuditEvent      `json:"events"`
	Consents        []domain.ConsentRecord   `json:"consents"`
	ActiveConsents  int                      `json:"activeConsents"`
	Recommendations []domain.Recommendation  `json:"recommendations"`
	Partial         bool                     `json:"partial"`
	Note            string                   `json:"note,omitempty"`
}

// Reporter builds compliance reports from the trail.
type Reporter struct {
	reader          TrailReader
	logger          *slog.Logger
	rules           []domain.RetentionRule
	consentValidity time.Duration
	now             func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithRetentionRules sets the retention policy checked by the
// recommendation rules.
func WithRetentionRules(rules []domain.RetentionRule) Option {
	return func(r *Reporter) { r.rules = rules }
}

// WithConsentValidity overrides the consent validity window.
func WithConsentValidity(d time.Duration) Option {
	return func(r *Reporter) { r.consentValidity = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// New constructs a Reporter.
func New(reader TrailReader, opts ...Option) *Reporter {
	r := &Reporter{
		reader:          reader,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		rules:           retention.Defaults(),
		consentValidity: domain.DefaultConsentValidity,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build assembles a report for the subject and window. A zero subjectID
// covers all subjects; zero times leave the window unbounded on that side.
// When the durable store is unreachable the report is served from the
// in-memory buffer and labeled Partial rather than failing outright.
func (r *Reporter) Build(ctx context.Context, subjectID string, start, end time.Time) (Report, error) {
	events, eventsDegraded, err := r.reader.QueryDegraded(ctx, trail.Filter{
		SubjectID: subjectID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return Report{}, fmt.Errorf("loading events for report: %w", err)
	}
	consents, consentsDegraded, err := r.reader.ConsentsDegraded(ctx, subjectID)
	if err != nil {
		return Report{}, fmt.Errorf("loading consents for report: %w", err)
	}

	now := r.now()
	rep := Report{
		SubjectID:   subjectID,
		PeriodStart: start,
		PeriodEnd:   end,
		GeneratedAt: now,
		TotalEvents: len(events),
		EventCounts: make(map[domain.EventType]int, len(events)),
		Events:      events,
		Consents:    consents,
	}
	for _, e := range events {
		rep.EventCounts[e.EventType]++
	}
	for _, c := range consents {
		if c.Active(now, r.consentValidity) {
			rep.ActiveConsents++
		}
	}
	if eventsDegraded || consentsDegraded {
		rep.Partial = true
		rep.Note = "durable store unavailable; report generated from the in-memory buffer and may be incomplete"
		r.logger.WarnContext(ctx, "report served from degraded reads", "subjectID", subjectID)
	}

	rep.Recommendations = r.complianceRecommendations(rep, now)
	return rep, nil
}

// staleEventLimit is how many year-old events a window may contain before
// the reporter recommends an archival review.
const staleEventLimit = 100

// complianceRecommendations is the reporter's own rule set. The risk engine
// carries a separate table with different thresholds; the two are produced
// by independent call paths and are allowed to diverge. Do not merge them.
func (r *Reporter) complianceRecommendations(rep Report, now time.Time) []domain.Recommendation {
	var recs []domain.Recommendation

	processing := rep.TotalEvents - rep.EventCounts[domain.EventConsentGiven] - rep.EventCounts[domain.EventConsentWithdrawn]
	if processing > 0 && rep.ActiveConsents == 0 {
		recs = append(recs, domain.Recommendation{
			Category:    "consent",
			Priority:    domain.PriorityHigh,
			Description: "data processing recorded without any active consent; obtain or refresh consent before further processing",
		})
	}

	yearAgo := now.AddDate(-1, 0, 0)
	stale := 0
	for _, e := range rep.Events {
		if e.Timestamp.Before(yearAgo) {
			stale++
		}
	}
	if stale > staleEventLimit {
		recs = append(recs, domain.Recommendation{
			Category:    "retention",
			Priority:    domain.PriorityMedium,
			Description: fmt.Sprintf("%d audit events are older than one year; review archival and deletion policy", stale),
		})
	}

	if breached := r.retentionBreaches(rep.Events, now); len(breached) > 0 {
		recs = append(recs, domain.Recommendation{
			Category:    "retention",
			Priority:    domain.PriorityMedium,
			Description: fmt.Sprintf("events touching %s exceed the configured retention period", strings.Join(breached, ", ")),
		})
	}

	return recs
}

// retentionBreaches returns the sorted categories with at least one event
// older than their retention period.
func (r *Reporter) retentionBreaches(events []domain.AuditEvent, now time.Time) []string {
	breached := make(map[domain.DataCategory]bool)
	for _, e := range events {
		for _, cat := range e.DataCategories {
			if breached[cat] {
				continue
			}
			rule, ok := retention.Lookup(r.rules, cat)
			if !ok {
				continue
			}
			cutoff := now.AddDate(0, 0, -rule.RetentionPeriodDays)
			if e.Timestamp.Before(cutoff) {
				breached[cat] = true
			}
		}
	}
	out := make([]string, 0, len(breached))
	for cat := range breached {
		out = append(out, string(cat))
	}
	sort.Strings(out)
	return out
}

// ExecutiveSummary renders a short text block for the report.
func ExecutiveSummary(rep Report) string {
	var b strings.Builder

	scope := "all subjects"
	if rep.SubjectID != "" {
		scope = "subject " + rep.SubjectID
	}
	fmt.Fprintf(&b, "Compliance report for %s, generated %s.\n",
		scope, rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Events in period: %d. Consent records: %d (%d active).\n",
		rep.TotalEvents, len(rep.Consents), rep.ActiveConsents)

	if len(rep.EventCounts) > 0 {
		types := make([]string, 0, len(rep.EventCounts))
		for t := range rep.EventCounts {
			types = append(types, string(t))
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, t := range types {
			parts = append(parts, fmt.Sprintf("%s=%d", t, rep.EventCounts[domain.EventType(t)]))
		}
		fmt.Fprintf(&b, "By type: %s.\n", strings.Join(parts, ", "))
	}

	switch {
	case len(rep.Recommendations) == 0:
		b.WriteString("No compliance findings.\n")
	default:
		fmt.Fprintf(&b, "Findings (%d):\n", len(rep.Recommendations))
		for _, rec := range rep.Recommendations {
			fmt.Fprintf(&b, "  [%s] %s\n", rec.Priority, rec.Description)
		}
	}

	if rep.Partial {
		b.WriteString("Note: " + rep.Note + "\n")
	}
	return b.String()
}
