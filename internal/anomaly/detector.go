// Package anomaly runs independent pattern detectors over a time window of
// trail events. Each detector is a pure function of the immutable event
// snapshot; they run concurrently and never mutate shared state. Findings
// are ephemeral: recomputed per run, never persisted as canonical state.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"custodia/internal/domain"
	"custodia/internal/platform/metrics"
	"custodia/internal/trail"
)

// Detector thresholds. Tuned to the processing volumes of a profile service;
// deployments with different baselines adjust here.
const (
	hourlyAccessLimit     = 50
	bulkExportLimit       = 5
	deletionBurstSize     = 10
	deletionBurstInterval = 60 * time.Second
	dailyWithdrawalLimit  = 5
)

// EventSource is the read-only slice of the trail the detector consumes.
type EventSource interface {
	Query(ctx context.Context, f trail.Filter) ([]domain.AuditEvent, error)
}

// Detector coordinates the four pattern detectors.
type Detector struct {
	source  EventSource
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures the Detector.
type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New builds a detector over the given event source.
func New(source EventSource, opts ...Option) *Detector {
	d := &Detector{
		source: source,
		logger: slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer("custodia/anomaly"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect loads the window snapshot once and runs all detectors against it
// concurrently. Results are sorted by descending risk score. A failed read
// fails the whole run: a partial detection is worse than none.
func (d *Detector) Detect(ctx context.Context, subjectID string, start, end time.Time) ([]domain.Anomaly, error) {
	ctx, span := d.tracer.Start(ctx, "anomaly.Detect")
	defer span.End()

	if end.IsZero() {
		end = d.now()
	}

	events, err := d.source.Query(ctx, trail.Filter{SubjectID: subjectID, Start: start, End: end})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", len(events)))

	detectedAt := d.now()
	detectors := []func([]domain.AuditEvent, time.Time) []domain.Anomaly{
		detectUnusualAccess,
		detectBulkExport,
		detectDeletionBursts,
		detectConsentWithdrawalSpikes,
	}

	var mu sync.Mutex
	var anomalies []domain.Anomaly
	g, gctx := errgroup.WithContext(ctx)
	for _, detect := range detectors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found := detect(events, detectedAt)
			mu.Lock()
			anomalies = append(anomalies, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].RiskScore > anomalies[j].RiskScore
	})

	if d.metrics != nil {
		d.metrics.DetectionRuns.Inc()
	}
	d.logger.DebugContext(ctx, "detection run complete",
		"subject_id", subjectID,
		"events", len(events),
		"anomalies", len(anomalies),
	)
	return anomalies, nil
}

// detectUnusualAccess buckets access events by (subject, hour-of-day) and
// flags buckets whose volume exceeds the hourly limit.
func detectUnusualAccess(events []domain.AuditEvent, detectedAt time.Time) []domain.Anomaly {
	type bucketKey struct {
		subject string
		hour    int
	}
	buckets := make(map[bucketKey][]domain.AuditEvent)
	for _, ev := range events {
		if ev.EventType != domain.EventAccess {
			continue
		}
		key := bucketKey{subject: ev.SubjectID, hour: ev.Timestamp.Hour()}
		buckets[key] = append(buckets[key], ev)
	}

	var anomalies []domain.Anomaly
	for key, bucket := range buckets {
		count := len(bucket)
		if count <= hourlyAccessLimit {
			continue
		}
		confidence := int(math.Round(math.Min(100, float64(count)/float64(hourlyAccessLimit)*80)))
		anomalies = append(anomalies, domain.Anomaly{
			SubjectID:   key.subject,
			AnomalyType: domain.AnomalyUnusualAccess,
			Confidence:  domain.ClampScore(confidence),
			Description: fmt.Sprintf("%d access events for subject %s in hour %02d:00", count, key.subject, key.hour),
			RiskScore:   domain.ClampScore(count * 2),
			Events:      bucket,
			DetectedAt:  detectedAt,
		})
	}
	return anomalies
}

// detectBulkExport groups export events by subject and flags subjects whose
// export volume exceeds the window limit.
func detectBulkExport(events []domain.AuditEvent, detectedAt time.Time) []domain.Anomaly {
	exports := make(map[string][]domain.AuditEvent)
	for _, ev := range events {
		if ev.EventType == domain.EventExport {
			exports[ev.SubjectID] = append(exports[ev.SubjectID], ev)
		}
	}

	var anomalies []domain.Anomaly
	for subject, bucket := range exports {
		count := len(bucket)
		if count <= bulkExportLimit {
			continue
		}
		anomalies = append(anomalies, domain.Anomaly{
			SubjectID:   subject,
			AnomalyType: domain.AnomalyBulkExport,
			Confidence:  85,
			Description: fmt.Sprintf("%d data exports for subject %s in the window", count, subject),
			RiskScore:   domain.ClampScore(count * 15),
			Events:      bucket,
			DetectedAt:  detectedAt,
		})
	}
	return anomalies
}

// detectDeletionBursts flags runs of deletions packed tighter than the burst
// interval. One anomaly is reported per disjoint qualifying window: after a
// hit the scan resumes past it rather than re-reporting every overlap.
func detectDeletionBursts(events []domain.AuditEvent, detectedAt time.Time) []domain.Anomaly {
	var deletions []domain.AuditEvent
	for _, ev := range events {
		if ev.EventType == domain.EventDelete {
			deletions = append(deletions, ev)
		}
	}
	sort.SliceStable(deletions, func(i, j int) bool {
		return deletions[i].Timestamp.Before(deletions[j].Timestamp)
	})

	var anomalies []domain.Anomaly
	for i := 0; i+deletionBurstSize <= len(deletions); i++ {
		window := deletions[i : i+deletionBurstSize]
		span := window[deletionBurstSize-1].Timestamp.Sub(window[0].Timestamp)
		if span >= deletionBurstInterval {
			continue
		}
		anomalies = append(anomalies, domain.Anomaly{
			SubjectID:   domain.CrossSubject,
			AnomalyType: domain.AnomalySuspiciousDeletion,
			Confidence:  90,
			Description: fmt.Sprintf("%d deletions within %s", deletionBurstSize, span.Round(time.Second)),
			RiskScore:   85,
			Events:      append([]domain.AuditEvent(nil), window...),
			DetectedAt:  detectedAt,
		})
		i += deletionBurstSize - 1
	}
	return anomalies
}

// detectConsentWithdrawalSpikes buckets withdrawals by calendar day and
// flags days whose volume exceeds the daily limit.
func detectConsentWithdrawalSpikes(events []domain.AuditEvent, detectedAt time.Time) []domain.Anomaly {
	withdrawals := make(map[string][]domain.AuditEvent)
	for _, ev := range events {
		if ev.EventType == domain.EventConsentWithdrawn {
			day := ev.Timestamp.Format("2006-01-02")
			withdrawals[day] = append(withdrawals[day], ev)
		}
	}

	var anomalies []domain.Anomaly
	for day, bucket := range withdrawals {
		count := len(bucket)
		if count <= dailyWithdrawalLimit {
			continue
		}
		anomalies = append(anomalies, domain.Anomaly{
			SubjectID:   domain.CrossSubject,
			AnomalyType: domain.AnomalyConsentPattern,
			Confidence:  85,
			Description: fmt.Sprintf("%d consent withdrawals on %s", count, day),
			RiskScore:   domain.ClampScore(count * 15),
			Events:      bucket,
			DetectedAt:  detectedAt,
		})
	}
	return anomalies
}
