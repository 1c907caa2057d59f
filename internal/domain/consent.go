package domain

import (
	"time"

	dErrors "custodia/pkg/domain-errors"
)

// DefaultConsentValidity is how long a consent remains active after it is
// given, absent an explicit withdrawal.
const DefaultConsentValidity = 365 * 24 * time.Hour

// ConsentDetails documents how the consent was collected.
type ConsentDetails struct {
	Explicit      bool   `json:"explicit"`
	Granular      bool   `json:"granular"`
	Withdrawable  bool   `json:"withdrawable"`
	Documentation string `json:"documentation,omitempty"`
}

// ConsentRecord captures a subject's decision for a specific purpose.
// WithdrawnAt, once set, is never unset or moved earlier than GivenAt.
type ConsentRecord struct {
	ConsentID   string         `json:"consentId"`
	SubjectID   string         `json:"subjectId"`
	ConsentType string         `json:"consentType"`
	Purpose     string         `json:"purpose"`
	LawfulBasis LawfulBasis    `json:"lawfulBasis,omitempty"`
	GivenAt     time.Time      `json:"givenAt"`
	WithdrawnAt *time.Time     `json:"withdrawnAt,omitempty"`
	Version     string         `json:"version,omitempty"`
	Details     ConsentDetails `json:"details"`
}

// Active reports whether the consent is in force at now: not withdrawn and
// given within the validity window.
func (c ConsentRecord) Active(now time.Time, validity time.Duration) bool {
	if c.WithdrawnAt != nil {
		return false
	}
	return now.Sub(c.GivenAt) <= validity
}

// Expired reports a consent that was never withdrawn but whose GivenAt is
// older than the validity window.
func (c ConsentRecord) Expired(now time.Time, validity time.Duration) bool {
	return c.WithdrawnAt == nil && now.Sub(c.GivenAt) > validity
}

// Validate enforces the API-boundary rules for consent records.
func (c ConsentRecord) Validate() error {
	if c.SubjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "consent record requires subjectId")
	}
	if c.Purpose == "" {
		return dErrors.New(dErrors.CodeBadRequest, "consent record requires purpose")
	}
	if c.LawfulBasis != "" && !c.LawfulBasis.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown lawful basis")
	}
	if c.WithdrawnAt != nil && c.WithdrawnAt.Before(c.GivenAt) {
		return dErrors.New(dErrors.CodeBadRequest, "withdrawnAt precedes givenAt")
	}
	return nil
}
