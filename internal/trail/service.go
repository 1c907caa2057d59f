// Package trail is the event and consent store: the only stateful component
// of the engine. Every write lands in a bounded in-memory buffer first and is
// then attempted against the durable persistence collaborator. Persistence
// failures are absorbed, logged, and counted - losing the durable copy is
// recoverable, losing the audit record in-flight is not.
package trail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"custodia/internal/classify"
	"custodia/internal/domain"
	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

const defaultBufferCap = 10000

// Service owns all AuditEvent and ConsentRecord instances. Other components
// receive read-only snapshots and never mutate them.
type Service struct {
	persistence Persistence
	classifier  *classify.Classifier

	events *eventBuffer

	consentMu sync.RWMutex
	consents  map[string][]*domain.ConsentRecord // by subject, append order
	byID      map[string]*domain.ConsentRecord

	sink         Sink
	logger       *slog.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	bufferCap    int
	now          func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSink attaches a best-effort fan-out sink for recorded events.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithBufferCap overrides the per-subject in-memory event cap.
func WithBufferCap(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.bufferCap = capacity
		}
	}
}

// WithStoreTimeout bounds each persistence call so a hung collaborator
// degrades to memory-only instead of blocking the caller.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds the trail service. persistence may be nil, in which case the
// engine runs memory-only and the buffer is the store of record.
func New(persistence Persistence, classifier *classify.Classifier, opts ...Option) *Service {
	s := &Service{
		persistence:  persistence,
		classifier:   classifier,
		consents:     make(map[string][]*domain.ConsentRecord),
		byID:         make(map[string]*domain.ConsentRecord),
		logger:       slog.Default(),
		storeTimeout: 5 * time.Second,
		bufferCap:    defaultBufferCap,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = newEventBuffer(s.bufferCap, func() {
		if s.metrics != nil {
			s.metrics.BufferEvictions.Inc()
		}
	})
	return s
}

// Record appends one audit event: validate, enrich, buffer, then attempt the
// durable write. Persistence failures are never raised to the caller.
func (s *Service) Record(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if err := event.Validate(); err != nil {
		return domain.AuditEvent{}, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if len(event.DataCategories) == 0 {
		event.DataCategories = s.classifier.Classify(event.Details.AffectedFields)
	}
	event.Details.Before = s.redact(event.Details.Before)
	event.Details.After = s.redact(event.Details.After)

	s.events.append(event)
	if s.metrics != nil {
		s.metrics.EventsRecorded.Inc()
	}

	s.persistEvent(ctx, event)

	if s.sink != nil {
		s.sink.Offer(ctx, event)
	}
	return event, nil
}

// RecordConsent appends one consent record under the same durability policy.
func (s *Service) RecordConsent(ctx context.Context, record domain.ConsentRecord) (domain.ConsentRecord, error) {
	if err := record.Validate(); err != nil {
		return domain.ConsentRecord{}, err
	}
	if record.ConsentID == "" {
		record.ConsentID = uuid.NewString()
	}
	if record.GivenAt.IsZero() {
		record.GivenAt = s.now()
	}

	s.consentMu.Lock()
	stored := record
	s.consents[record.SubjectID] = append(s.consents[record.SubjectID], &stored)
	s.byID[record.ConsentID] = &stored
	s.consentMu.Unlock()

	if s.metrics != nil {
		s.metrics.ConsentsRecorded.Inc()
	}

	if s.persistence != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		if err := s.persistence.InsertConsent(callCtx, record); err != nil {
			s.noteWriteFailure(ctx, "consent", record.ConsentID, err)
		}
	}
	return record, nil
}

// Withdraw marks a consent withdrawn. It is idempotent: withdrawing an
// already-withdrawn consent, or an unknown consent ID, is a no-op.
func (s *Service) Withdraw(ctx context.Context, consentID, reason string) error {
	withdrawnAt := s.now()

	s.consentMu.Lock()
	record, known := s.byID[consentID]
	var subjectID string
	alreadyWithdrawn := false
	if known {
		subjectID = record.SubjectID
		if record.WithdrawnAt != nil {
			alreadyWithdrawn = true
		} else {
			at := withdrawnAt
			record.WithdrawnAt = &at
		}
	}
	s.consentMu.Unlock()

	if alreadyWithdrawn {
		return nil
	}

	// The durable copy may hold consents this instance never buffered, so the
	// withdrawal is attempted even for locally unknown IDs.
	if s.persistence != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		if err := s.persistence.WithdrawConsent(callCtx, consentID, withdrawnAt); err != nil {
			s.noteWriteFailure(ctx, "withdrawal", consentID, err)
		}
	}

	if known {
		_, err := s.Record(ctx, domain.AuditEvent{
			EventType:         domain.EventConsentWithdrawn,
			SubjectID:         subjectID,
			LawfulBasis:       domain.BasisConsent,
			ProcessingPurpose: reason,
			Timestamp:         withdrawnAt,
			Details:           domain.EventDetails{Operation: "withdrawConsent"},
		})
		return err
	}
	return nil
}

// Query is the strict read path used by the scorer and detector: durable
// store only, failure returns a typed unavailable error so consumers fail
// closed instead of scoring partial data.
func (s *Service) Query(ctx context.Context, f Filter) ([]domain.AuditEvent, error) {
	if s.persistence == nil {
		return s.events.query(f), nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	events, err := s.persistence.QueryEvents(callCtx, f)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "audit store unreachable", sentinel.ErrUnavailable)
	}
	return events, nil
}

// QueryDegraded is the availability-first read path used by the reporter:
// durable store preferred, transparent buffer fallback on failure. The
// returned bool reports that the result came from memory.
func (s *Service) QueryDegraded(ctx context.Context, f Filter) ([]domain.AuditEvent, bool, error) {
	if s.persistence == nil {
		return s.events.query(f), false, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	events, err := s.persistence.QueryEvents(callCtx, f)
	if err != nil {
		if s.metrics != nil {
			s.metrics.FallbackReads.Inc()
		}
		s.logger.WarnContext(ctx, "serving events from memory buffer",
			"error", err,
		)
		return s.events.query(f), true, nil
	}
	return events, false, nil
}

// Consents returns consent records, strict read path. An empty subjectID
// returns all records.
func (s *Service) Consents(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error) {
	if s.persistence == nil {
		return s.memoryConsents(subjectID), nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	records, err := s.persistence.QueryConsents(callCtx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "consent store unreachable", sentinel.ErrUnavailable)
	}
	return records, nil
}

// ConsentsDegraded mirrors QueryDegraded for consent records.
func (s *Service) ConsentsDegraded(ctx context.Context, subjectID string) ([]domain.ConsentRecord, bool, error) {
	if s.persistence == nil {
		return s.memoryConsents(subjectID), false, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	records, err := s.persistence.QueryConsents(callCtx, subjectID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.FallbackReads.Inc()
		}
		s.logger.WarnContext(ctx, "serving consents from memory buffer",
			"error", err,
		)
		return s.memoryConsents(subjectID), true, nil
	}
	return records, false, nil
}

// Close releases the sink, if any.
func (s *Service) Close() error {
	if s.sink != nil {
		return s.sink.Close()
	}
	return nil
}

func (s *Service) memoryConsents(subjectID string) []domain.ConsentRecord {
	s.consentMu.RLock()
	defer s.consentMu.RUnlock()

	var out []domain.ConsentRecord
	if subjectID != "" {
		for _, r := range s.consents[subjectID] {
			out = append(out, *r)
		}
		return out
	}
	for _, records := range s.consents {
		for _, r := range records {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Service) persistEvent(ctx context.Context, event domain.AuditEvent) {
	if s.persistence == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.persistence.InsertEvent(callCtx, event); err != nil {
		s.noteWriteFailure(ctx, "event", event.ID, err)
	}
}

// noteWriteFailure records a degraded durable write: kept silent to callers
// but observable through logs and the fallback counters.
func (s *Service) noteWriteFailure(ctx context.Context, kind, id string, err error) {
	if s.metrics != nil {
		s.metrics.PersistFailures.Inc()
		s.metrics.FallbackWrites.Inc()
	}
	s.logger.WarnContext(ctx, "durable write failed, retained in memory",
		"kind", kind,
		"id", id,
		"error", err,
	)
}

// redact replaces sensitive field values in a snapshot so special-category
// data never round-trips through the trail.
func (s *Service) redact(snapshot map[string]any) map[string]any {
	if len(snapshot) == 0 {
		return snapshot
	}
	out := make(map[string]any, len(snapshot))
	for field, value := range snapshot {
		if s.classifier.SensitiveField(field) {
			out[field] = domain.RedactedValue
			continue
		}
		out[field] = value
	}
	return out
}
