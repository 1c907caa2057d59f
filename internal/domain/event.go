package domain

import (
	"time"

	dErrors "custodia/pkg/domain-errors"
)

// EventType classifies an audit event by the processing action it records.
type EventType string

const (
	EventAccess                  EventType = "access"
	EventUpdate                  EventType = "update"
	EventDelete                  EventType = "delete"
	EventExport                  EventType = "export"
	EventConsentGiven            EventType = "consent_given"
	EventConsentWithdrawn        EventType = "consent_withdrawn"
	EventPrivacySettingsUpdated  EventType = "privacy_settings_updated"
	EventDataBreachDetected      EventType = "data_breach_detected"
	EventRectification           EventType = "rectification"
	EventRestriction             EventType = "restriction"
	EventPortability             EventType = "portability"

	// EventAnomalyDetected is a meta event: a detection run recording its own
	// findings back into the trail so detection history is auditable.
	EventAnomalyDetected EventType = "anomaly_detected"
)

var eventTypes = map[EventType]struct{}{
	EventAccess:                 {},
	EventUpdate:                 {},
	EventDelete:                 {},
	EventExport:                 {},
	EventConsentGiven:           {},
	EventConsentWithdrawn:       {},
	EventPrivacySettingsUpdated: {},
	EventDataBreachDetected:     {},
	EventRectification:          {},
	EventRestriction:            {},
	EventPortability:            {},
	EventAnomalyDetected:        {},
}

// Valid reports whether the event type is a known enum value.
func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

// LawfulBasis is one of the six Art. 6 legal grounds for processing.
type LawfulBasis string

const (
	BasisConsent             LawfulBasis = "consent"
	BasisContract            LawfulBasis = "contract"
	BasisLegalObligation     LawfulBasis = "legal_obligation"
	BasisVitalInterests      LawfulBasis = "vital_interests"
	BasisPublicTask          LawfulBasis = "public_task"
	BasisLegitimateInterests LawfulBasis = "legitimate_interests"
)

var lawfulBases = map[LawfulBasis]struct{}{
	BasisConsent:             {},
	BasisContract:            {},
	BasisLegalObligation:     {},
	BasisVitalInterests:      {},
	BasisPublicTask:          {},
	BasisLegitimateInterests: {},
}

func (b LawfulBasis) Valid() bool {
	_, ok := lawfulBases[b]
	return ok
}

// BoolPtr is a convenience for the tri-state detail flags.
func BoolPtr(v bool) *bool { return &v }

// RedactedValue replaces sensitive field values in before/after snapshots so
// the trail itself never becomes a secondary copy of special-category data.
const RedactedValue = "[REDACTED]"

// EventDetails is the free-form payload attached to an audit event. Only the
// fields relevant to the recorded operation are populated.
type EventDetails struct {
	Operation      string         `json:"operation,omitempty"`
	AffectedFields []string       `json:"affectedFields,omitempty"`
	Before         map[string]any `json:"before,omitempty"`
	After          map[string]any `json:"after,omitempty"`
	Encrypted      bool           `json:"encrypted,omitempty"`
	// AccessGranted is tri-state: nil when the event is not an access
	// decision, otherwise the outcome. A recorded denial is what the
	// access-control sub-score counts as unauthorized.
	AccessGranted  *bool          `json:"accessGranted,omitempty"`
	ExportFormat   string         `json:"exportFormat,omitempty"`
	ExportSize     int64          `json:"exportSize,omitempty"`
	Anonymized     bool           `json:"anonymized,omitempty"`
}

// AuditEvent is an immutable fact about one personal-data-processing action.
// Once recorded it is never mutated; consumers receive read-only views.
type AuditEvent struct {
	ID                string         `json:"id"`
	EventType         EventType      `json:"eventType"`
	SubjectID         string         `json:"subjectId"`
	ActingUserID      string         `json:"actingUserId,omitempty"`
	LawfulBasis       LawfulBasis    `json:"lawfulBasis,omitempty"`
	ProcessingPurpose string         `json:"processingPurpose,omitempty"`
	DataCategories    []DataCategory `json:"dataCategories"`
	Timestamp         time.Time      `json:"timestamp"`
	IPAddress         string         `json:"ipAddress,omitempty"`
	UserAgent         string         `json:"userAgent,omitempty"`
	SessionID         string         `json:"sessionId,omitempty"`
	Details           EventDetails   `json:"details"`
}

// Validate enforces the API-boundary rules: malformed events are rejected
// before they reach the store, never partially recorded.
func (e AuditEvent) Validate() error {
	if e.SubjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "audit event requires subjectId")
	}
	if !e.EventType.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown event type")
	}
	if e.LawfulBasis != "" && !e.LawfulBasis.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown lawful basis")
	}
	for _, c := range e.DataCategories {
		if !c.Valid() {
			return dErrors.New(dErrors.CodeBadRequest, "unknown data category")
		}
	}
	return nil
}
