package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodia/pkg/domain-errors"
)

func TestAuditEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	event := AuditEvent{
		ID:                "evt-1",
		EventType:         EventUpdate,
		SubjectID:         "subj-1",
		ActingUserID:      "admin-7",
		LawfulBasis:       BasisConsent,
		ProcessingPurpose: "profile maintenance",
		DataCategories:    []DataCategory{CategoryContact, CategoryPreferences},
		Timestamp:         ts,
		IPAddress:         "203.0.113.9",
		Details: EventDetails{
			Operation:      "updateProfile",
			AffectedFields: []string{"email", "newsletter"},
			Before:         map[string]any{"email": "old@example.com"},
			After:          map[string]any{"email": "new@example.com"},
			Encrypted:      true,
		},
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded AuditEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event, decoded)
}

func TestConsentRecordRoundTrip(t *testing.T) {
	withdrawn := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	record := ConsentRecord{
		ConsentID:   "cons-1",
		SubjectID:   "subj-1",
		ConsentType: "marketing",
		Purpose:     "newsletter",
		LawfulBasis: BasisConsent,
		GivenAt:     withdrawn.Add(-30 * 24 * time.Hour),
		WithdrawnAt: &withdrawn,
		Version:     "2",
		Details:     ConsentDetails{Explicit: true, Granular: true, Withdrawable: true},
	}

	raw, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded ConsentRecord
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, record, decoded)
}

func TestAuditEventValidate(t *testing.T) {
	base := AuditEvent{
		EventType: EventAccess,
		SubjectID: "subj-1",
		Timestamp: time.Now(),
	}
	assert.NoError(t, base.Validate())

	missingSubject := base
	missingSubject.SubjectID = ""
	assert.True(t, dErrors.Is(missingSubject.Validate(), dErrors.CodeBadRequest))

	badType := base
	badType.EventType = "telemetry"
	assert.True(t, dErrors.Is(badType.Validate(), dErrors.CodeBadRequest))

	badBasis := base
	badBasis.LawfulBasis = "curiosity"
	assert.True(t, dErrors.Is(badBasis.Validate(), dErrors.CodeBadRequest))
}

func TestConsentActiveAndExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	fresh := ConsentRecord{SubjectID: "s", Purpose: "p", GivenAt: now.Add(-24 * time.Hour)}
	assert.True(t, fresh.Active(now, DefaultConsentValidity))
	assert.False(t, fresh.Expired(now, DefaultConsentValidity))

	stale := ConsentRecord{SubjectID: "s", Purpose: "p", GivenAt: now.Add(-400 * 24 * time.Hour)}
	assert.False(t, stale.Active(now, DefaultConsentValidity))
	assert.True(t, stale.Expired(now, DefaultConsentValidity))

	withdrawnAt := now.Add(-time.Hour)
	withdrawn := ConsentRecord{SubjectID: "s", Purpose: "p", GivenAt: now.Add(-24 * time.Hour), WithdrawnAt: &withdrawnAt}
	assert.False(t, withdrawn.Active(now, DefaultConsentValidity))
	assert.False(t, withdrawn.Expired(now, DefaultConsentValidity))
}

func TestConsentValidateRejectsWithdrawalBeforeGrant(t *testing.T) {
	given := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	early := given.Add(-time.Minute)
	record := ConsentRecord{SubjectID: "s", Purpose: "p", GivenAt: given, WithdrawnAt: &early}
	assert.True(t, dErrors.Is(record.Validate(), dErrors.CodeBadRequest))
}

func TestRiskLevelBands(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelFor(0))
	assert.Equal(t, RiskLow, RiskLevelFor(25))
	assert.Equal(t, RiskMedium, RiskLevelFor(26))
	assert.Equal(t, RiskMedium, RiskLevelFor(50))
	assert.Equal(t, RiskHigh, RiskLevelFor(75))
	assert.Equal(t, RiskCritical, RiskLevelFor(76))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-5))
	assert.Equal(t, 42, ClampScore(42))
	assert.Equal(t, 100, ClampScore(153))
}
