// Package classify maps raw profile field names to semantic data categories.
// Classification is pure and total: unknown fields resolve to the configured
// default category rather than failing. The default is deliberately a policy
// knob, not a constant, because over-classifying as identity data is a safety
// bias some deployments will want to tune.
package classify

import (
	"sort"
	"strings"

	"custodia/internal/domain"
)

// fieldCategories is the built-in field name table. Lookup is exact after
// lowercasing; prefix rules below catch common composite names.
var fieldCategories = map[string]domain.DataCategory{
	"first_name":    domain.CategoryBasicIdentity,
	"last_name":     domain.CategoryBasicIdentity,
	"full_name":     domain.CategoryBasicIdentity,
	"username":      domain.CategoryBasicIdentity,
	"national_id":   domain.CategoryBasicIdentity,
	"date_of_birth": domain.CategoryBasicIdentity,

	"email":        domain.CategoryContact,
	"phone":        domain.CategoryContact,
	"phone_number": domain.CategoryContact,
	"address":      domain.CategoryContact,
	"city":         domain.CategoryContact,
	"postal_code":  domain.CategoryContact,
	"country":      domain.CategoryContact,

	"gender":         domain.CategoryDemographic,
	"age":            domain.CategoryDemographic,
	"nationality":    domain.CategoryDemographic,
	"marital_status": domain.CategoryDemographic,

	"employer":   domain.CategoryProfessional,
	"job_title":  domain.CategoryProfessional,
	"occupation": domain.CategoryProfessional,
	"department": domain.CategoryProfessional,
	"salary":     domain.CategoryFinancial,

	"last_login":    domain.CategoryBehavioral,
	"login_count":   domain.CategoryBehavioral,
	"page_views":    domain.CategoryBehavioral,
	"search_history": domain.CategoryBehavioral,

	"fingerprint":  domain.CategoryBiometric,
	"face_id":      domain.CategoryBiometric,
	"voice_sample": domain.CategoryBiometric,
	"avatar":       domain.CategoryBiometric,

	"language":      domain.CategoryPreferences,
	"timezone":      domain.CategoryPreferences,
	"theme":         domain.CategoryPreferences,
	"newsletter":    domain.CategoryPreferences,
	"notifications": domain.CategoryPreferences,

	"friends":       domain.CategorySocial,
	"followers":     domain.CategorySocial,
	"social_links":  domain.CategorySocial,
	"linkedin":      domain.CategorySocial,

	"iban":           domain.CategoryFinancial,
	"credit_card":    domain.CategoryFinancial,
	"bank_account":   domain.CategoryFinancial,
	"payment_method": domain.CategoryFinancial,

	"blood_type":    domain.CategoryHealth,
	"allergies":     domain.CategoryHealth,
	"medical_notes": domain.CategoryHealth,

	"religion":          domain.CategorySpecialCategory,
	"political_opinion": domain.CategorySpecialCategory,
	"ethnicity":         domain.CategorySpecialCategory,
	"sexual_orientation": domain.CategorySpecialCategory,
	"trade_union":       domain.CategorySpecialCategory,
}

// prefixCategories catches composite names like "billing_address" or
// "health_insurance_number" that the exact table misses.
var prefixCategories = []struct {
	prefix   string
	category domain.DataCategory
}{
	{"health_", domain.CategoryHealth},
	{"medical_", domain.CategoryHealth},
	{"payment_", domain.CategoryFinancial},
	{"billing_", domain.CategoryFinancial},
	{"biometric_", domain.CategoryBiometric},
	{"social_", domain.CategorySocial},
	{"preference_", domain.CategoryPreferences},
}

// Classifier resolves field names to data categories.
type Classifier struct {
	defaultCategory domain.DataCategory
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithDefaultCategory overrides the category assigned to unknown fields.
func WithDefaultCategory(c domain.DataCategory) Option {
	return func(cl *Classifier) {
		cl.defaultCategory = c
	}
}

// New builds a classifier. Unknown fields default to basic identity.
func New(opts ...Option) *Classifier {
	cl := &Classifier{defaultCategory: domain.CategoryBasicIdentity}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Classify returns the sorted, de-duplicated category set for the given
// fields. It never returns an empty set: an empty field list yields the
// default category so downstream consumers can rely on the invariant.
func (cl *Classifier) Classify(fields []string) []domain.DataCategory {
	seen := make(map[domain.DataCategory]struct{})
	for _, field := range fields {
		seen[cl.classifyOne(field)] = struct{}{}
	}
	if len(seen) == 0 {
		seen[cl.defaultCategory] = struct{}{}
	}

	categories := make([]domain.DataCategory, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories
}

// SensitiveField reports whether a single field name resolves to a category
// whose values must be redacted from snapshots.
func (cl *Classifier) SensitiveField(field string) bool {
	return cl.classifyOne(field).Sensitive()
}

func (cl *Classifier) classifyOne(field string) domain.DataCategory {
	name := strings.ToLower(strings.TrimSpace(field))
	if category, ok := fieldCategories[name]; ok {
		return category
	}
	for _, rule := range prefixCategories {
		if strings.HasPrefix(name, rule.prefix) {
			return rule.category
		}
	}
	return cl.defaultCategory
}
