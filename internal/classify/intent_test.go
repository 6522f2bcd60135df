package classify

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"admin-gateway/internal/common/logger"
)

type stubCompleter struct {
	content string
	err     error
	gotReq  openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.gotReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func TestIntentClassifier_ModelLabel(t *testing.T) {
	stub := &stubCompleter{content: " complex_procedure \n"}
	ic := NewIntentClassifier(stub, "gpt-4o-mini", logger.NewNoOpLogger())

	intent := ic.Classify(context.Background(), "How do I apply for a student visa?", nil)
	assert.Equal(t, IntentComplexProcedure, intent)
	assert.Equal(t, "gpt-4o-mini", stub.gotReq.Model)
}

func TestIntentClassifier_ModelFailureFallsBackToKeywords(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	ic := NewIntentClassifier(stub, "gpt-4o-mini", logger.NewNoOpLogger())

	intent := ic.Classify(context.Background(), "Help me fill Cerfa 12345", nil)
	assert.Equal(t, IntentFormFilling, intent)
}

func TestIntentClassifier_GarbageLabelFallsBackToKeywords(t *testing.T) {
	stub := &stubCompleter{content: "I think this is about visas."}
	ic := NewIntentClassifier(stub, "gpt-4o-mini", logger.NewNoOpLogger())

	intent := ic.Classify(context.Background(), "Quel est l'article de loi sur la sous-location ?", nil)
	assert.Equal(t, IntentLegalInquiry, intent)
}

func TestIntentClassifier_NilClientIsHeuristicOnly(t *testing.T) {
	ic := NewIntentClassifier(nil, "", logger.NewNoOpLogger())

	tests := []struct {
		query    string
		expected Intent
	}{
		{"Help me fill Cerfa 12345", IntentFormFilling},
		{"What does article 12 of the code civil say?", IntentLegalInquiry},
		{"Comment renouveler mon titre de séjour ?", IntentComplexProcedure},
		{"Combien coûte un passeport ?", IntentSimpleQA},
		{"Bonjour", IntentUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ic.Classify(context.Background(), tt.query, nil), "query %q", tt.query)
	}
}

func TestIntent_TopicHint(t *testing.T) {
	assert.Equal(t, "identity", IntentLegalInquiry.TopicHint())
	assert.Equal(t, "immigration", IntentFormFilling.TopicHint())
	assert.Equal(t, "", IntentSimpleQA.TopicHint())
	assert.Equal(t, "", IntentUnknown.TopicHint())
}
