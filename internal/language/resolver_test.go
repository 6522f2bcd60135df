package language

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"admin-gateway/internal/common/logger"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(logger.NewNoOpLogger())

	tests := []struct {
		name       string
		detected   string
		userLang   string
		current    string
		hasHistory bool
		expected   string
	}{
		{
			name:     "no detection keeps current",
			detected: "",
			current:  Vietnamese,
			expected: Vietnamese,
		},
		{
			name:     "no detection and no current defaults to French",
			detected: "",
			current:  "",
			expected: French,
		},
		{
			name:     "frontend override beats detection",
			detected: "fr",
			userLang: "vi",
			current:  French,
			expected: Vietnamese,
		},
		{
			name:     "frontend override agreeing with detection",
			detected: "en",
			userLang: "en",
			current:  French,
			expected: English,
		},
		{
			name:       "fr detection while session is english is ignored",
			detected:   "fr",
			current:    English,
			hasHistory: true,
			expected:   English,
		},
		{
			name:     "first message switch to english",
			detected: "en",
			current:  French,
			expected: English,
		},
		{
			name:       "history based switch to vietnamese",
			detected:   "vi",
			current:    French,
			hasHistory: true,
			expected:   Vietnamese,
		},
		{
			name:     "plain french detection on french session",
			detected: "fr",
			current:  French,
			expected: French,
		},
		{
			name:     "full names accepted as input",
			detected: "Vietnamese",
			current:  French,
			expected: Vietnamese,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.detected, tt.userLang, tt.current, tt.hasHistory)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeAndCode(t *testing.T) {
	assert.Equal(t, French, Normalize("fr"))
	assert.Equal(t, English, Normalize("ENGLISH"))
	assert.Equal(t, Vietnamese, Normalize("vi"))
	assert.Equal(t, "klingon", Normalize("klingon"))

	assert.Equal(t, "fr", Code(French))
	assert.Equal(t, "en", Code("en"))
	assert.Equal(t, "vi", Code(Vietnamese))
	assert.Equal(t, "fr", Code("unknown"))
}
