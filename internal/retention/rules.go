// Package retention loads static data-retention policy. Rules are read at
// startup and never change at runtime.
package retention

import (
	"encoding/json"
	"fmt"
	"os"

	"custodia/internal/domain"
)

// Defaults returns the built-in retention policy used when no rules file is
// configured.
func Defaults() []domain.RetentionRule {
	return []domain.RetentionRule{
		{DataCategory: domain.CategoryBasicIdentity, RetentionPeriodDays: 730, AnonymizationRequired: false},
		{DataCategory: domain.CategoryContact, RetentionPeriodDays: 730, AnonymizationRequired: false},
		{DataCategory: domain.CategoryBehavioral, RetentionPeriodDays: 365, AnonymizationRequired: true},
		{DataCategory: domain.CategoryFinancial, RetentionPeriodDays: 2555, LawfulBasis: domain.BasisLegalObligation, AnonymizationRequired: true},
		{DataCategory: domain.CategoryHealth, RetentionPeriodDays: 365, AnonymizationRequired: true},
		{DataCategory: domain.CategoryBiometric, RetentionPeriodDays: 180, AnonymizationRequired: true},
		{DataCategory: domain.CategorySpecialCategory, RetentionPeriodDays: 180, AnonymizationRequired: true},
	}
}

// Load reads retention rules from a JSON file. An empty path yields the
// built-in defaults.
func Load(path string) ([]domain.RetentionRule, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading retention rules: %w", err)
	}

	var rules []domain.RetentionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing retention rules: %w", err)
	}
	for i, r := range rules {
		if !r.DataCategory.Valid() {
			return nil, fmt.Errorf("retention rule %d: unknown data category %q", i, r.DataCategory)
		}
		if r.RetentionPeriodDays <= 0 {
			return nil, fmt.Errorf("retention rule %d: retention period must be positive", i)
		}
	}
	return rules, nil
}

// Lookup returns the rule for a category, if one exists.
func Lookup(rules []domain.RetentionRule, category domain.DataCategory) (domain.RetentionRule, bool) {
	for _, r := range rules {
		if r.DataCategory == category {
			return r, true
		}
	}
	return domain.RetentionRule{}, false
}
