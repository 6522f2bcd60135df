package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-gateway/internal/topics"
)

const testRegistry = `
topics:
  immigration:
    name: Immigration et séjour
    default_step: CLARIFICATION
    mandatory_variables:
      - name: nationality
        why: Residence rules differ between EU and non-EU nationals.
      - visa_type
      - duration_of_stay
    conditional_variables:
      - name: current_status
        why: A change of status requires proof of the current permit.
        when: changer de statut
    guardrail_keywords:
      fr: [visa, titre de séjour]
    rules:
      - Always ask for nationality before giving renewal steps.
      - Cite the relevant CESEDA article when one applies.
    exemplars:
      - input: Comment renouveler mon titre de séjour ?
        output: "Situation: vous détenez un titre de séjour..."
  taxes:
    guardrail_keywords:
      - impôts
global_rules:
  response_format:
    - Structure every answer as situation, steps, sources.
  disclaimer:
    - Always point the user to service-public.fr for the authoritative version.
`

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	reg, err := topics.Parse([]byte(testRegistry))
	require.NoError(t, err)
	return NewBuilder(reg)
}

func TestBuilder_BlockOrder(t *testing.T) {
	b := newTestBuilder(t)

	fragment := b.BuildFragment("immigration", nil, "Comment renouveler mon visa ?")

	rulesIdx := strings.Index(fragment, "RULES FOR THIS TOPIC:")
	varsIdx := strings.Index(fragment, "VARIABLES YOU MUST ASK FOR")
	exemplarIdx := strings.Index(fragment, "EXAMPLE for this topic:")

	require.NotEqual(t, -1, rulesIdx)
	require.NotEqual(t, -1, varsIdx)
	require.NotEqual(t, -1, exemplarIdx)
	assert.Less(t, rulesIdx, varsIdx)
	assert.Less(t, varsIdx, exemplarIdx)
}

func TestBuilder_KnownVariablesOmitted(t *testing.T) {
	b := newTestBuilder(t)

	profile := map[string]string{"nationality": "vietnamese"}
	fragment := b.BuildFragment("immigration", profile, "")

	assert.NotContains(t, fragment, "- nationality")
	assert.Contains(t, fragment, "- visa_type")
	assert.Contains(t, fragment, "- duration_of_stay")
}

func TestBuilder_VariableReasonsRendered(t *testing.T) {
	b := newTestBuilder(t)

	fragment := b.BuildFragment("immigration", nil, "")

	assert.Contains(t, fragment, "- nationality: Residence rules differ between EU and non-EU nationals.")
	assert.Contains(t, fragment, "- visa_type\n")
}

func TestBuilder_ConditionalVariableTriggeredByQuery(t *testing.T) {
	b := newTestBuilder(t)

	triggered := b.BuildFragment("immigration", nil, "Je veux changer de statut étudiant vers salarié")
	assert.Contains(t, triggered, "- current_status: A change of status requires proof of the current permit.")

	plain := b.BuildFragment("immigration", nil, "Comment renouveler mon visa ?")
	assert.NotContains(t, plain, "current_status")
	assert.NotEqual(t, plain, triggered)
}

func TestBuilder_ConditionalSurvivesCompleteProfile(t *testing.T) {
	b := newTestBuilder(t)

	profile := map[string]string{
		"nationality":      "vietnamese",
		"visa_type":        "student",
		"duration_of_stay": "2 years",
	}
	fragment := b.BuildFragment("immigration", profile, "je prépare un changer de statut")

	assert.Contains(t, fragment, "VARIABLES YOU MUST ASK FOR")
	assert.Contains(t, fragment, "- current_status")
	assert.NotContains(t, fragment, "- visa_type")
}

func TestBuilder_AllVariablesKnownDropsBlock(t *testing.T) {
	b := newTestBuilder(t)

	profile := map[string]string{
		"nationality":      "vietnamese",
		"visa_type":        "student",
		"duration_of_stay": "2 years",
	}
	fragment := b.BuildFragment("immigration", profile, "")

	assert.NotContains(t, fragment, "VARIABLES YOU MUST ASK FOR")
	assert.Contains(t, fragment, "RULES FOR THIS TOPIC:")
}

func TestBuilder_NoneValueCountsAsMissing(t *testing.T) {
	b := newTestBuilder(t)

	profile := map[string]string{"nationality": "None", "visa_type": ""}
	fragment := b.BuildFragment("immigration", profile, "")

	assert.Contains(t, fragment, "- nationality")
	assert.Contains(t, fragment, "- visa_type")
}

func TestBuilder_Idempotent(t *testing.T) {
	b := newTestBuilder(t)

	profile := map[string]string{"nationality": "french"}
	first := b.BuildFragment("immigration", profile, "renouvellement de visa")
	second := b.BuildFragment("immigration", profile, "renouvellement de visa")
	assert.Equal(t, first, second)
}

func TestBuilder_NoTopicFallsBackToGlobalRules(t *testing.T) {
	b := newTestBuilder(t)

	fragment := b.BuildFragment("", nil, "Bonjour")
	assert.NotEmpty(t, fragment)
	assert.Contains(t, fragment, "RESPONSE FORMAT:")
	assert.Contains(t, fragment, "service-public.fr")
	assert.NotContains(t, fragment, "RULES FOR THIS TOPIC:")

	unknown := b.BuildFragment("astrology", nil, "")
	assert.Equal(t, fragment, unknown)
}

func TestBuilder_GlobalRulesNeverEmpty(t *testing.T) {
	reg, err := topics.Parse([]byte("topics:\n  taxes:\n    guardrail_keywords: [impôts]\n"))
	require.NoError(t, err)
	b := NewBuilder(reg)

	assert.NotEmpty(t, b.BuildGlobalRules())
	assert.NotEmpty(t, b.BuildFragment("", nil, ""))
}

func TestBuilder_ExemplarsVerbatim(t *testing.T) {
	b := newTestBuilder(t)

	fragment := b.BuildFragment("immigration", nil, "")
	assert.Contains(t, fragment, "Input: Comment renouveler mon titre de séjour ?")
	assert.Contains(t, fragment, "Situation: vous détenez un titre de séjour...")
}
