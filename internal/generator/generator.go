// Package generator wraps the LLM collaborators: answer synthesis from the
// assembled prompt fragments and the groundedness verifier consumed by the
// guardrail's post-generation stage.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/retrieval"
)

// baseBackoff is doubled on every synthesis retry.
const baseBackoff = 200 * time.Millisecond

// ChatCompleter is satisfied by *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// DurationRecorder is satisfied by *observability.Observability.
type DurationRecorder interface {
	RecordLLMDuration(ctx context.Context, duration time.Duration, model string)
}

const answerSystemPrompt = `You are an assistant for public administration procedures in France.
Answer in %s.

%s

%s

Use ONLY the sources below. If the sources do not cover the question, say so
and ask for the missing detail instead of guessing.

SOURCES:
%s`

// Generator produces draft answers from the topic fragment, the global rules
// fragment and the retrieved sources.
type Generator struct {
	client     ChatCompleter
	model      string
	maxRetries int
	obs        DurationRecorder
	logger     logger.Logger
}

func NewGenerator(client ChatCompleter, model string, maxRetries int, obs DurationRecorder, log logger.Logger) *Generator {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Generator{
		client:     client,
		model:      model,
		maxRetries: maxRetries,
		obs:        obs,
		logger:     log.WithFields(map[string]interface{}{"component": "generator", "model": model}),
	}
}

// Input carries everything the generator needs for one turn.
type Input struct {
	Query          string
	TopicFragment  string
	GlobalFragment string
	Language       string
	History        []string
	Snippets       []retrieval.Snippet
}

// Generate synthesizes an answer. Transient failures are retried with
// exponential backoff; exhaustion maps to the standard LLM error codes.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	system := fmt.Sprintf(answerSystemPrompt,
		in.Language, in.TopicFragment, in.GlobalFragment, renderSnippets(in.Snippets))

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, line := range in.History {
		role := openai.ChatMessageRoleUser
		content := line
		if rest, ok := strings.CutPrefix(line, "assistant: "); ok {
			role = openai.ChatMessageRoleAssistant
			content = rest
		} else if rest, ok := strings.CutPrefix(line, "user: "); ok {
			content = rest
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: in.Query})

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << uint(attempt-1)
			g.logger.Warn("retrying answer synthesis", map[string]interface{}{
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", errors.NewLLMTimeoutError()
			}
		}

		callStart := time.Now()
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: messages,
		})
		if g.obs != nil {
			g.obs.RecordLLMDuration(ctx, time.Since(callStart), g.model)
		}
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", errors.NewLLMTimeoutError()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion")
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	return "", errors.NewLLMSynthesisFailedError(lastErr)
}

func renderSnippets(snippets []retrieval.Snippet) string {
	if len(snippets) == 0 {
		return "(no sources retrieved)"
	}
	var sb strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, s.Source, s.Text)
	}
	return strings.TrimSpace(sb.String())
}
