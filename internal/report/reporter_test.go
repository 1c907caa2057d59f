package report

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/domain"
	"custodia/internal/trail"
	dErrors "custodia/pkg/domain-errors"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type fakeTrail struct {
	events   []domain.AuditEvent
	consents []domain.ConsentRecord
	degraded bool
	err      error
}

func (f *fakeTrail) QueryDegraded(_ context.Context, filter trail.Filter) ([]domain.AuditEvent, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	var out []domain.AuditEvent
	for _, e := range f.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, f.degraded, nil
}

func (f *fakeTrail) ConsentsDegraded(_ context.Context, subjectID string) ([]domain.ConsentRecord, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	var out []domain.ConsentRecord
	for _, c := range f.consents {
		if subjectID == "" || c.SubjectID == subjectID {
			out = append(out, c)
		}
	}
	return out, f.degraded, nil
}

func accessEvent(id, subject string, ts time.Time) domain.AuditEvent {
	return domain.AuditEvent{
		ID:             id,
		EventType:      domain.EventAccess,
		SubjectID:      subject,
		DataCategories: []domain.DataCategory{domain.CategoryContact},
		Timestamp:      ts,
	}
}

func activeConsent(id, subject string) domain.ConsentRecord {
	return domain.ConsentRecord{
		ConsentID:   id,
		SubjectID:   subject,
		ConsentType: "marketing",
		Purpose:     "newsletter",
		LawfulBasis: domain.BasisConsent,
		GivenAt:     testNow.Add(-24 * time.Hour),
	}
}

func TestBuildCountsByType(t *testing.T) {
	src := &fakeTrail{
		events: []domain.AuditEvent{
			accessEvent("e1", "U1", testNow.Add(-3*time.Hour)),
			accessEvent("e2", "U1", testNow.Add(-2*time.Hour)),
			{ID: "e3", EventType: domain.EventExport, SubjectID: "U1",
				DataCategories: []domain.DataCategory{domain.CategoryContact},
				Timestamp:      testNow.Add(-time.Hour)},
		},
		consents: []domain.ConsentRecord{activeConsent("c1", "U1")},
	}
	reporter := New(src, WithClock(func() time.Time { return testNow }))

	rep, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.TotalEvents)
	assert.Equal(t, 2, rep.EventCounts[domain.EventAccess])
	assert.Equal(t, 1, rep.EventCounts[domain.EventExport])
	assert.Equal(t, 1, rep.ActiveConsents)
	assert.False(t, rep.Partial)
	assert.Empty(t, rep.Recommendations)
}

func TestBuildFlagsProcessingWithoutConsent(t *testing.T) {
	src := &fakeTrail{
		events: []domain.AuditEvent{accessEvent("e1", "U1", testNow.Add(-time.Hour))},
	}
	reporter := New(src, WithClock(func() time.Time { return testNow }))

	rep, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, rep.Recommendations, 1)
	assert.Equal(t, "consent", rep.Recommendations[0].Category)
	assert.Equal(t, domain.PriorityHigh, rep.Recommendations[0].Priority)
}

func TestBuildConsentEventsAloneNeedNoConsent(t *testing.T) {
	// A trail holding only consent lifecycle events is not processing.
	src := &fakeTrail{
		events: []domain.AuditEvent{{
			ID: "e1", EventType: domain.EventConsentWithdrawn, SubjectID: "U1",
			DataCategories: []domain.DataCategory{domain.CategoryBasicIdentity},
			Timestamp:      testNow.Add(-time.Hour),
		}},
	}
	reporter := New(src, WithClock(func() time.Time { return testNow }))

	rep, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rep.Recommendations)
}

func TestBuildFlagsStaleEventVolume(t *testing.T) {
	src := &fakeTrail{consents: []domain.ConsentRecord{activeConsent("c1", "U1")}}
	old := testNow.AddDate(-1, 0, -30)
	for i := 0; i < staleEventLimit+1; i++ {
		e := accessEvent(fmt.Sprintf("e%d", i), "U1", old.Add(time.Duration(i)*time.Minute))
		// Preferences carries no retention rule, so only the stale-volume
		// rule fires here.
		e.DataCategories = []domain.DataCategory{domain.CategoryPreferences}
		src.events = append(src.events, e)
	}
	reporter := New(src, WithClock(func() time.Time { return testNow }))

	rep, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, rep.Recommendations, 1)
	assert.Equal(t, "retention", rep.Recommendations[0].Category)
	assert.Contains(t, rep.Recommendations[0].Description, "older than one year")
}

func TestBuildFlagsRetentionBreaches(t *testing.T) {
	src := &fakeTrail{
		consents: []domain.ConsentRecord{activeConsent("c1", "U1")},
		events: []domain.AuditEvent{{
			ID: "e1", EventType: domain.EventAccess, SubjectID: "U1",
			DataCategories: []domain.DataCategory{domain.CategoryBiometric},
			// Biometric retention defaults to 180 days.
			Timestamp: testNow.AddDate(0, 0, -200),
		}},
	}
	reporter := New(src, WithClock(func() time.Time { return testNow }))

	rep, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, rep.Recommendations, 1)
	assert.Contains(t, rep.Recommendations[0].Description, "biometric")
}

func TestBuildMarksPartialOnDegradedReads(t *testing.T) {
	src := &fakeTrail{
		events:   []domain.AuditEvent{accessEvent("e1", "U1", testNow.Add(-time.Hour))},
		consents: []domain.ConsentRecord{activeConsent("c1", "U1")},
		degraded: true,
	}
	reporter := New(src, WithClock(func() time.Time { return testNow }))

	rep, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.True(t, rep.Partial)
	assert.NotEmpty(t, rep.Note)
}

func TestBuildPropagatesReadErrors(t *testing.T) {
	src := &fakeTrail{err: dErrors.New(dErrors.CodeInternal, "boom")}
	reporter := New(src)

	_, err := reporter.Build(context.Background(), "U1", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestExecutiveSummary(t *testing.T) {
	rep := Report{
		SubjectID:   "U1",
		GeneratedAt: testNow,
		TotalEvents: 3,
		EventCounts: map[domain.EventType]int{
			domain.EventAccess: 2,
			domain.EventExport: 1,
		},
		Consents:       []domain.ConsentRecord{activeConsent("c1", "U1")},
		ActiveConsents: 1,
		Recommendations: []domain.Recommendation{{
			Category: "consent", Priority: domain.PriorityHigh, Description: "refresh consent",
		}},
		Partial: true,
		Note:    "buffer only",
	}

	text := ExecutiveSummary(rep)
	assert.Contains(t, text, "subject U1")
	assert.Contains(t, text, "Events in period: 3")
	assert.Contains(t, text, "access=2, export=1")
	assert.Contains(t, text, "[HIGH] refresh consent")
	assert.True(t, strings.Contains(text, "buffer only"))
}

func TestExecutiveSummaryCleanReport(t *testing.T) {
	text := ExecutiveSummary(Report{GeneratedAt: testNow})
	assert.Contains(t, text, "all subjects")
	assert.Contains(t, text, "No compliance findings")
}
