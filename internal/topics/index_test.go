package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-gateway/internal/common/logger"
)

func TestBuildIndex_EveryKeywordResolvesToItsTopic(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	idx := BuildIndex(reg, logger.NewNoOpLogger())

	for _, topic := range reg.All() {
		for _, kw := range topic.AllKeywords() {
			owner, ok := idx.Lookup(kw)
			require.True(t, ok, "keyword %q not indexed", kw)
			assert.Equal(t, topic.ID, owner, "keyword %q", kw)
		}
	}
}

func TestBuildIndex_FirstTopicWinsOnConflict(t *testing.T) {
	reg, err := Parse([]byte(`
topics:
  identity:
    guardrail_keywords:
      fr:
        - carte
        - carte d'identité
  transport:
    guardrail_keywords:
      fr:
        - carte
        - carte grise
`))
	require.NoError(t, err)

	idx := BuildIndex(reg, logger.NewNoOpLogger())

	owner, ok := idx.Lookup("carte")
	require.True(t, ok)
	assert.Equal(t, "identity", owner)

	owner, ok = idx.Lookup("carte grise")
	require.True(t, ok)
	assert.Equal(t, "transport", owner)
}

func TestKeywordIndex_MatchCounts(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	idx := BuildIndex(reg, logger.NewNoOpLogger())

	tests := []struct {
		name     string
		query    string
		expected map[string]int
	}{
		{
			name:     "single topic single keyword",
			query:    "Je veux renouveler mon passeport talent chercheur",
			expected: map[string]int{"immigration": 1},
		},
		{
			name:     "containment tolerates case and surrounding words",
			query:    "Mon EMPLOYEUR refuse de payer mes heures supplémentaires",
			expected: map[string]int{"labor": 2},
		},
		{
			name:     "vietnamese keyword with diacritics",
			query:    "Tôi cần gia hạn thị thực của tôi",
			expected: map[string]int{"immigration": 1},
		},
		{
			name:     "no match",
			query:    "Tu connais un bon resto pour manger un Phở ?",
			expected: map[string]int{},
		},
		{
			name:     "empty query",
			query:    "",
			expected: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, idx.MatchCounts(tt.query))
		})
	}
}

func TestKeywordIndex_FlatListMatchesLikePerLanguageList(t *testing.T) {
	flat, err := Parse([]byte(`
topics:
  taxes:
    guardrail_keywords:
      - impôts
      - tax
      - thuế
`))
	require.NoError(t, err)

	perLang, err := Parse([]byte(`
topics:
  taxes:
    guardrail_keywords:
      fr: [impôts, tax, thuế]
      en: [impôts, tax, thuế]
      vi: [impôts, tax, thuế]
`))
	require.NoError(t, err)

	flatIdx := BuildIndex(flat, logger.NewNoOpLogger())
	perLangIdx := BuildIndex(perLang, logger.NewNoOpLogger())

	for _, query := range []string{"je paie mes impôts", "income tax question", "thuế thu nhập", "resto"} {
		assert.Equal(t, perLangIdx.MatchCounts(query), flatIdx.MatchCounts(query), "query %q", query)
	}
}
