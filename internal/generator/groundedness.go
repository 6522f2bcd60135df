package generator

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/retrieval"
)

const verifierSystemPrompt = `You are a factual verifier.
Does the provided Answer contain information that is NOT present or implied in the Context?
Respond only with 'SAFE' or 'HALLUCINATION'.`

// Verifier implements the groundedness signal with a small model call. The
// guardrail engine treats any error from here as "not grounded".
type Verifier struct {
	client ChatCompleter
	model  string
	logger logger.Logger
}

func NewVerifier(client ChatCompleter, model string, log logger.Logger) *Verifier {
	return &Verifier{
		client: client,
		model:  model,
		logger: log.WithFields(map[string]interface{}{"component": "groundedness", "model": model}),
	}
}

// IsGrounded reports whether the answer's claims are supported by the
// retrieved snippets.
func (v *Verifier) IsGrounded(ctx context.Context, answer string, snippets []retrieval.Snippet) (bool, error) {
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: verifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Context: " + renderSnippets(snippets) + "\n\nAnswer: " + answer},
		},
	})
	if err != nil {
		return false, err
	}
	if len(resp.Choices) == 0 {
		return false, nil
	}

	verdict := strings.ToUpper(resp.Choices[0].Message.Content)
	grounded := strings.Contains(verdict, "SAFE")
	if !grounded {
		v.logger.Warn("answer failed groundedness verification", map[string]interface{}{
			"verdict": strings.TrimSpace(resp.Choices[0].Message.Content),
		})
	}
	return grounded, nil
}
