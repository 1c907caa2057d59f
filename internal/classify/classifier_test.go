package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"custodia/internal/domain"
)

func TestClassifyKnownFields(t *testing.T) {
	cl := New()

	tests := []struct {
		name   string
		fields []string
		want   []domain.DataCategory
	}{
		{
			name:   "contact and preferences",
			fields: []string{"email", "newsletter"},
			want:   []domain.DataCategory{domain.CategoryContact, domain.CategoryPreferences},
		},
		{
			name:   "case insensitive",
			fields: []string{"EMAIL", "Phone_Number"},
			want:   []domain.DataCategory{domain.CategoryContact},
		},
		{
			name:   "prefix rules",
			fields: []string{"health_insurance_number", "billing_address"},
			want:   []domain.DataCategory{domain.CategoryFinancial, domain.CategoryHealth},
		},
		{
			name:   "special category",
			fields: []string{"religion", "ethnicity"},
			want:   []domain.DataCategory{domain.CategorySpecialCategory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cl.Classify(tt.fields))
		})
	}
}

func TestClassifyNeverEmpty(t *testing.T) {
	cl := New()

	assert.Equal(t, []domain.DataCategory{domain.CategoryBasicIdentity}, cl.Classify(nil))
	assert.Equal(t, []domain.DataCategory{domain.CategoryBasicIdentity}, cl.Classify([]string{}))
	assert.Equal(t, []domain.DataCategory{domain.CategoryBasicIdentity}, cl.Classify([]string{"zorp"}))
}

func TestClassifyConfigurableDefault(t *testing.T) {
	cl := New(WithDefaultCategory(domain.CategoryBehavioral))

	assert.Equal(t, []domain.DataCategory{domain.CategoryBehavioral}, cl.Classify([]string{"zorp"}))
	// Known fields are unaffected by the default.
	assert.Equal(t, []domain.DataCategory{domain.CategoryContact}, cl.Classify([]string{"email"}))
}
