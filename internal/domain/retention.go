package domain

// RetentionRule is static policy loaded at startup and read-only at runtime.
type RetentionRule struct {
	DataCategory          DataCategory `json:"dataCategory"`
	RetentionPeriodDays   int          `json:"retentionPeriodDays"`
	LawfulBasis           LawfulBasis  `json:"lawfulBasis,omitempty"`
	DeletionConditions    []string     `json:"deletionConditions,omitempty"`
	AnonymizationRequired bool         `json:"anonymizationRequired"`
}
