package retention

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/domain"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	rules, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, rules)

	rule, ok := Lookup(rules, domain.CategoryBiometric)
	require.True(t, ok)
	assert.True(t, rule.AnonymizationRequired)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	body := `[{"dataCategory":"health","retentionPeriodDays":90,"anonymizationRequired":true}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	rules, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.CategoryHealth, rules[0].DataCategory)
	assert.Equal(t, 90, rules[0].RetentionPeriodDays)
}

func TestLoadRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown category", `[{"dataCategory":"astrology","retentionPeriodDays":30}]`},
		{"non-positive period", `[{"dataCategory":"contact","retentionPeriodDays":0}]`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLookupMiss(t *testing.T) {
	_, ok := Lookup(nil, domain.CategoryContact)
	assert.False(t, ok)
}
