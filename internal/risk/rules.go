package risk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodia/internal/domain"
)

// riskRecommendationRules maps sub-score thresholds to recommendations.
// NOTE: the compliance reporter carries its own, independently maintained
// rule set (internal/report). The duplication is deliberate: the two are
// produced by different call paths and are allowed to diverge. Do not merge.
var riskRecommendationRules = []struct {
	name      string
	score     func(domain.CategoryScores) int
	threshold int
	priority  domain.Priority
	category  string
	text      string
}{
	{
		name:      "consent-compliance",
		score:     func(s domain.CategoryScores) int { return s.ConsentCompliance },
		threshold: 80,
		priority:  domain.PriorityHigh,
		category:  "consent_compliance",
		text:      "Improve consent compliance: subjects are being processed without active, current consent",
	},
	{
		name:      "data-minimization",
		score:     func(s domain.CategoryScores) int { return s.DataMinimization },
		threshold: 70,
		priority:  domain.PriorityMedium,
		category:  "data_minimization",
		text:      "Reduce access to biometric and special-category data, or narrow the processing to what the purpose requires",
	},
	{
		name:      "access-control",
		score:     func(s domain.CategoryScores) int { return s.AccessControl },
		threshold: 80,
		priority:  domain.PriorityHigh,
		category:  "access_control",
		text:      "Review access controls: denied access attempts or after-hours processing exceed tolerances",
	},
	{
		name:      "retention",
		score:     func(s domain.CategoryScores) int { return s.RetentionPolicy },
		threshold: 70,
		priority:  domain.PriorityMedium,
		category:  "retention_policy",
		text:      "Enforce the retention schedule: stale records are accumulating and deletions are rare",
	},
	{
		name:      "portability",
		score:     func(s domain.CategoryScores) int { return s.DataPortability },
		threshold: 70,
		priority:  domain.PriorityLow,
		category:  "data_portability",
		text:      "Provide and promote data export tooling so portability rights are exercisable",
	},
}

// recommendationsFor evaluates every rule independently; rules may fire in
// combination.
func recommendationsFor(scores domain.CategoryScores) []domain.Recommendation {
	var recs []domain.Recommendation
	for _, rule := range riskRecommendationRules {
		if rule.score(scores) < rule.threshold {
			recs = append(recs, domain.Recommendation{
				Category:    rule.category,
				Priority:    rule.priority,
				Description: rule.text,
			})
		}
	}
	return recs
}

// alertsFor raises alerts for the severe end of the sub-score spectrum.
func alertsFor(scores domain.CategoryScores, overall int, now time.Time) []domain.Alert {
	var alerts []domain.Alert

	if scores.ConsentCompliance < 50 {
		alerts = append(alerts, domain.Alert{
			ID:         uuid.NewString(),
			Type:       domain.AlertTypeConsentIssue,
			Severity:   domain.AlertCritical,
			Message:    fmt.Sprintf("Consent compliance sub-score at %d: widespread processing without valid consent", scores.ConsentCompliance),
			DetectedAt: now,
		})
	}
	if scores.AccessControl < 50 {
		alerts = append(alerts, domain.Alert{
			ID:         uuid.NewString(),
			Type:       domain.AlertTypeBulkAccess,
			Severity:   domain.AlertWarning,
			Message:    fmt.Sprintf("Access control sub-score at %d: unauthorized or after-hours access is elevated", scores.AccessControl),
			DetectedAt: now,
		})
	}
	if domain.RiskLevelFor(overall) == domain.RiskCritical {
		alerts = append(alerts, domain.Alert{
			ID:         uuid.NewString(),
			Type:       "OVERALL_RISK",
			Severity:   domain.AlertCritical,
			Message:    fmt.Sprintf("Overall risk score %d is CRITICAL", overall),
			DetectedAt: now,
		})
	}
	return alerts
}
