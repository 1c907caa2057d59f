package domain

import "time"

// RiskLevel bands the overall risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelFor bands an overall risk score: higher score means higher risk.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Priority orders recommendations for dashboards.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Recommendation is an actionable finding attached to an assessment or report.
type Recommendation struct {
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
	Description string   `json:"description"`
}

// CategoryScores are the five sub-scores, each 0-100 where 100 is best.
type CategoryScores struct {
	DataMinimization  int `json:"dataMinimization"`
	ConsentCompliance int `json:"consentCompliance"`
	RetentionPolicy   int `json:"retentionPolicy"`
	AccessControl     int `json:"accessControl"`
	DataPortability   int `json:"dataPortability"`
}

// RiskAssessment is derived state: recomputed on demand from the trail and
// never cached beyond the request.
type RiskAssessment struct {
	SubjectID        string           `json:"subjectId,omitempty"`
	OverallRiskScore int              `json:"overallRiskScore"`
	RiskLevel        RiskLevel        `json:"riskLevel"`
	CategoryScores   CategoryScores   `json:"categoryScores"`
	Recommendations  []Recommendation `json:"recommendations"`
	Alerts           []Alert          `json:"alerts"`
	AssessedAt       time.Time        `json:"assessedAt"`
	WindowStart      time.Time        `json:"windowStart"`
	WindowEnd        time.Time        `json:"windowEnd"`
}

// AlertSeverity ranks realtime alerts.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "WARNING"
	AlertCritical AlertSeverity = "CRITICAL"
)

// Alert is a realtime finding mapped from detector output or consent checks.
type Alert struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	SubjectID  string        `json:"subjectId,omitempty"`
	Message    string        `json:"message"`
	Events     []AuditEvent  `json:"events,omitempty"`
	DetectedAt time.Time     `json:"detectedAt"`
}

// Alert types produced by the realtime path.
const (
	AlertTypeBulkAccess   = "BULK_ACCESS"
	AlertTypeBulkExport   = "BULK_EXPORT"
	AlertTypeConsentIssue = "CONSENT_ISSUE"
	AlertTypeDeletion     = "SUSPICIOUS_DELETION"
)
