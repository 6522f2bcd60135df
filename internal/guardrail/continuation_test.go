package guardrail

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"admin-gateway/internal/common/logger"
)

func TestHeuristicDetector(t *testing.T) {
	d := NewHeuristicDetector(5, logger.NewNoOpLogger())
	ctx := context.Background()

	nationality := &OutstandingClarification{
		Variable: "nationality",
		Question: "Quelle est votre nationalité ?",
	}

	tests := []struct {
		name        string
		query       string
		outstanding *OutstandingClarification
		expected    bool
	}{
		{
			name:        "no outstanding clarification is never a continuation",
			query:       "Je suis vietnamien",
			outstanding: nil,
			expected:    false,
		},
		{
			name:        "short answer to open clarification",
			query:       "Je suis vietnamien",
			outstanding: nationality,
			expected:    true,
		},
		{
			name:        "single word answer",
			query:       "Vietnamese",
			outstanding: nationality,
			expected:    true,
		},
		{
			name:        "long answer with plausible nationality value",
			query:       "Alors pour être précis je suis arrivé en France il y a deux ans et je suis vietnamien d'origine",
			outstanding: nationality,
			expected:    true,
		},
		{
			name:        "long unrelated rant is not a continuation",
			query:       "Peux-tu me donner la recette complète du bœuf bourguignon avec tous les détails de cuisson s'il te plaît",
			outstanding: nationality,
			expected:    false,
		},
		{
			name:        "empty query",
			query:       "   ",
			outstanding: nationality,
			expected:    false,
		},
		{
			name:  "duration answer with number",
			query: "Cela fait maintenant un peu plus de 3 ans que je vis ici sans interruption notable",
			outstanding: &OutstandingClarification{
				Variable: "duration_of_stay",
				Question: "Depuis combien de temps résidez-vous en France ?",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.IsContinuation(ctx, tt.query, tt.outstanding))
		})
	}
}

type stubChat struct {
	content string
	err     error
}

func (s *stubChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func TestModelDetector(t *testing.T) {
	log := logger.NewNoOpLogger()
	heuristic := NewHeuristicDetector(5, log)
	outstanding := &OutstandingClarification{Variable: "visa_type", Question: "Quel type de visa détenez-vous ?"}
	longAnswer := "Pour tout vous dire la situation est un peu compliquée depuis mon changement de statut l'année dernière"

	t.Run("model says yes", func(t *testing.T) {
		d := NewModelDetector(&stubChat{content: "YES"}, "gpt-4o-mini", heuristic, log)
		assert.True(t, d.IsContinuation(context.Background(), longAnswer, outstanding))
	})

	t.Run("model says no", func(t *testing.T) {
		d := NewModelDetector(&stubChat{content: "NO"}, "gpt-4o-mini", heuristic, log)
		assert.False(t, d.IsContinuation(context.Background(), longAnswer, outstanding))
	})

	t.Run("model failure keeps conservative heuristic result", func(t *testing.T) {
		d := NewModelDetector(&stubChat{err: errors.New("timeout")}, "gpt-4o-mini", heuristic, log)
		assert.False(t, d.IsContinuation(context.Background(), longAnswer, outstanding))
	})

	t.Run("short answers never reach the model", func(t *testing.T) {
		d := NewModelDetector(&stubChat{err: errors.New("unreachable")}, "gpt-4o-mini", heuristic, log)
		assert.True(t, d.IsContinuation(context.Background(), "Un visa étudiant", outstanding))
	})

	t.Run("nil outstanding short-circuits", func(t *testing.T) {
		d := NewModelDetector(&stubChat{content: "YES"}, "gpt-4o-mini", heuristic, log)
		assert.False(t, d.IsContinuation(context.Background(), "anything", nil))
	})
}
