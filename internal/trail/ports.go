package trail

import (
	"context"
	"time"

	"custodia/internal/domain"
)

// Filter narrows event queries. Zero values mean "unbounded"; Limit <= 0
// means no limit. Results are always in ascending timestamp order.
type Filter struct {
	SubjectID string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Matches reports whether an event falls inside the filter.
func (f Filter) Matches(e domain.AuditEvent) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Persistence is the external durable-store collaborator. The trail treats
// any error as "unavailable" and degrades per its durability policy; it
// never interprets collaborator errors beyond that.
type Persistence interface {
	InsertEvent(ctx context.Context, event domain.AuditEvent) error
	InsertConsent(ctx context.Context, record domain.ConsentRecord) error
	WithdrawConsent(ctx context.Context, consentID string, withdrawnAt time.Time) error
	QueryEvents(ctx context.Context, filter Filter) ([]domain.AuditEvent, error)
	QueryConsents(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error)
}

// Sink receives a best-effort copy of every recorded event, e.g. a Kafka
// topic feeding SIEM pipelines. Offer must never block the recording path.
type Sink interface {
	Offer(ctx context.Context, event domain.AuditEvent)
	Close() error
}
