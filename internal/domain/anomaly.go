package domain

import "time"

// AnomalyType names a pattern detector.
type AnomalyType string

const (
	AnomalyUnusualAccess      AnomalyType = "unusual_access_pattern"
	AnomalyBulkExport         AnomalyType = "bulk_data_export"
	AnomalySuspiciousDeletion AnomalyType = "suspicious_deletion"
	AnomalyConsentPattern     AnomalyType = "consent_anomaly"
)

// CrossSubject is the SubjectID sentinel for anomalies that span subjects.
const CrossSubject = "*"

// Anomaly is a detected deviation from expected processing volume or pattern.
// It is ephemeral: recomputed per detection run, never persisted as canonical
// state. Confidence and RiskScore are always within [0,100].
type Anomaly struct {
	SubjectID   string       `json:"subjectId"`
	AnomalyType AnomalyType  `json:"anomalyType"`
	Confidence  int          `json:"confidence"`
	Description string       `json:"description"`
	RiskScore   int          `json:"riskScore"`
	Events      []AuditEvent `json:"events,omitempty"`
	DetectedAt  time.Time    `json:"detectedAt"`
}

// ClampScore bounds detector arithmetic to the [0,100] contract.
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
