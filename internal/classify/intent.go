package classify

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"admin-gateway/internal/common/logger"
)

// Intent is the coarse routing label for a turn.
type Intent string

const (
	IntentSimpleQA         Intent = "SIMPLE_QA"
	IntentComplexProcedure Intent = "COMPLEX_PROCEDURE"
	IntentFormFilling      Intent = "FORM_FILLING"
	IntentLegalInquiry     Intent = "LEGAL_INQUIRY"
	IntentUnknown          Intent = "UNKNOWN"
)

// TopicHint maps an intent to the topic it most plausibly belongs to, used as
// a tie-break hint for the topic classifier. Empty when the intent carries no
// topical signal.
func (i Intent) TopicHint() string {
	switch i {
	case IntentLegalInquiry:
		return "identity"
	case IntentFormFilling:
		return "immigration"
	}
	return ""
}

const intentSystemPrompt = `You are an intent classifier for a public administration assistant.
Classify the user's query into one of the following categories:

1. SIMPLE_QA: Simple factual questions about documents, costs, locations, or definitions.
2. COMPLEX_PROCEDURE: Questions about multi-step processes, personal situations, or how-to guides.
3. LEGAL_INQUIRY: Questions asking for specific laws, regulations, or legal text references.
4. FORM_FILLING: Explicit requests to help fill out a specific form.

If the user provides a STATEMENT that answers a previous question in the HISTORY
(e.g. "I live in Paris", "I am American", "Married"), classify it as
COMPLEX_PROCEDURE, never UNKNOWN.

Return ONLY the category name. Do not add any explanation.

HISTORY:
%s`

// ChatCompleter is the chat completion surface the classifier needs; satisfied
// by *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// IntentClassifier labels queries with a small model call, falling back to
// keyword heuristics when the model is unavailable or answers garbage.
type IntentClassifier struct {
	client ChatCompleter
	model  string
	logger logger.Logger
}

// NewIntentClassifier builds a classifier. A nil client means heuristic-only
// operation.
func NewIntentClassifier(client ChatCompleter, model string, log logger.Logger) *IntentClassifier {
	return &IntentClassifier{
		client: client,
		model:  model,
		logger: log.WithFields(map[string]interface{}{"component": "intent_classifier"}),
	}
}

// Classify labels a query given the last few turns of history. Model failure
// never propagates: the caller always gets a usable intent.
func (ic *IntentClassifier) Classify(ctx context.Context, query string, history []string) Intent {
	if ic.client == nil {
		return classifyByKeywords(query)
	}

	historyText := "No history."
	if len(history) > 0 {
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		historyText = strings.Join(recent, "\n")
	}

	resp, err := ic.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       ic.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(intentSystemPrompt, historyText)},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		ic.logger.Warn("intent model call failed, using keyword fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return classifyByKeywords(query)
	}
	if len(resp.Choices) == 0 {
		return classifyByKeywords(query)
	}

	label := Intent(strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content)))
	switch label {
	case IntentSimpleQA, IntentComplexProcedure, IntentFormFilling, IntentLegalInquiry, IntentUnknown:
		return label
	}

	ic.logger.Warn("intent model returned unknown label", map[string]interface{}{
		"label": resp.Choices[0].Message.Content,
	})
	return classifyByKeywords(query)
}

// classifyByKeywords is the zero-cost fallback used when no model is
// configured or the model call fails.
func classifyByKeywords(query string) Intent {
	q := strings.ToLower(query)

	for _, kw := range []string{"cerfa", "formulaire", "remplir", "fill", "form", "điền"} {
		if strings.Contains(q, kw) {
			return IntentFormFilling
		}
	}
	for _, kw := range []string{"article", "loi", "law", "code civil", "legal", "décret", "luật"} {
		if strings.Contains(q, kw) {
			return IntentLegalInquiry
		}
	}
	for _, kw := range []string{"comment", "how do i", "how to", "étapes", "procédure", "démarche", "làm thế nào", "thủ tục"} {
		if strings.Contains(q, kw) {
			return IntentComplexProcedure
		}
	}
	for _, kw := range []string{"combien", "how much", "où", "where", "qu'est-ce", "what is", "bao nhiêu", "ở đâu"} {
		if strings.Contains(q, kw) {
			return IntentSimpleQA
		}
	}
	return IntentUnknown
}
