package domain

// DataCategory is a semantic grouping of profile fields. Categories drive
// classification, scoring, and snapshot redaction.
type DataCategory string

const (
	CategoryBasicIdentity   DataCategory = "basic_identity"
	CategoryContact         DataCategory = "contact"
	CategoryDemographic     DataCategory = "demographic"
	CategoryProfessional    DataCategory = "professional"
	CategoryBehavioral      DataCategory = "behavioral"
	CategoryBiometric       DataCategory = "biometric"
	CategoryPreferences     DataCategory = "preferences"
	CategorySocial          DataCategory = "social"
	CategoryFinancial       DataCategory = "financial"
	CategoryHealth          DataCategory = "health"
	CategorySpecialCategory DataCategory = "special_category"
)

var dataCategories = map[DataCategory]struct{}{
	CategoryBasicIdentity:   {},
	CategoryContact:         {},
	CategoryDemographic:     {},
	CategoryProfessional:    {},
	CategoryBehavioral:      {},
	CategoryBiometric:       {},
	CategoryPreferences:     {},
	CategorySocial:          {},
	CategoryFinancial:       {},
	CategoryHealth:          {},
	CategorySpecialCategory: {},
}

func (c DataCategory) Valid() bool {
	_, ok := dataCategories[c]
	return ok
}

// Sensitive reports whether values in this category must never appear in
// snapshot payloads. Biometric and special-category data also carry extra
// weight in the data-minimization sub-score.
func (c DataCategory) Sensitive() bool {
	switch c {
	case CategoryBiometric, CategoryFinancial, CategoryHealth, CategorySpecialCategory:
		return true
	}
	return false
}
