package guardrail

import (
	"context"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"admin-gateway/internal/common/logger"
)

// ContinuationDetector decides whether the current query directly answers the
// clarification question the system asked on the previous turn. Without it, a
// short on-topic answer like "Vietnamese" to "What is your nationality?" would
// fail keyword matching and be rejected as off-topic.
type ContinuationDetector interface {
	IsContinuation(ctx context.Context, query string, outstanding *OutstandingClarification) bool
}

// valuePatterns recognizes plausible answers to specific clarification
// variables across the supported languages. Deliberately loose: a false
// positive only bypasses the topic check once, and the groundedness stage
// still runs downstream.
var valuePatterns = map[string]*regexp.Regexp{
	"nationality":         regexp.MustCompile(`(?i)(je suis|i am|i'm|tôi là|người)\s+\S+|(ien(ne)?|ais(e)?|ois(e)?|ese|ian)\b`),
	"visa_type":           regexp.MustCompile(`(?i)visa|étudiant|student|salarié|talent|vls-ts|du học|lao động`),
	"residency_status":    regexp.MustCompile(`(?i)résident|resident|titre de séjour|carte de|thường trú|tạm trú`),
	"duration_of_stay":    regexp.MustCompile(`(?i)\d+\s*(an|ans|year|years|mois|month|months|năm|tháng)`),
	"location":            regexp.MustCompile(`(?i)(à|in|ở|tại)\s+\S+|paris|lyon|marseille`),
	"has_legal_residency": regexp.MustCompile(`(?i)^\s*(oui|non|yes|no|có|không)\b`),
}

// HeuristicDetector is the zero-cost implementation: an outstanding
// clarification plus either a short utterance or a plausible value for the
// requested variable counts as a continuation.
type HeuristicDetector struct {
	maxWords int
	logger   logger.Logger
}

func NewHeuristicDetector(maxWords int, log logger.Logger) *HeuristicDetector {
	if maxWords <= 0 {
		maxWords = 5
	}
	return &HeuristicDetector{
		maxWords: maxWords,
		logger:   log.WithFields(map[string]interface{}{"component": "continuation"}),
	}
}

func (d *HeuristicDetector) IsContinuation(_ context.Context, query string, outstanding *OutstandingClarification) bool {
	if outstanding == nil {
		return false
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false
	}

	if len(strings.Fields(trimmed)) <= d.maxWords {
		d.logger.Debug("continuation detected: short answer to open clarification", map[string]interface{}{
			"variable": outstanding.Variable,
		})
		return true
	}

	if p, ok := valuePatterns[outstanding.Variable]; ok && p.MatchString(trimmed) {
		d.logger.Debug("continuation detected: plausible value for requested variable", map[string]interface{}{
			"variable": outstanding.Variable,
		})
		return true
	}

	return false
}

const continuationSystemPrompt = `The assistant previously asked the user a clarification question.
Decide whether the user's new message is a direct answer to that question.
Respond with exactly YES or NO.`

// ModelDetector asks a small model when the heuristic alone is too blunt. Any
// model failure falls back to the heuristic result, never an error.
type ModelDetector struct {
	client    ChatCompleter
	model     string
	heuristic *HeuristicDetector
	logger    logger.Logger
}

// ChatCompleter is satisfied by *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func NewModelDetector(client ChatCompleter, model string, heuristic *HeuristicDetector, log logger.Logger) *ModelDetector {
	return &ModelDetector{
		client:    client,
		model:     model,
		heuristic: heuristic,
		logger:    log.WithFields(map[string]interface{}{"component": "continuation_model"}),
	}
}

func (d *ModelDetector) IsContinuation(ctx context.Context, query string, outstanding *OutstandingClarification) bool {
	if outstanding == nil {
		return false
	}
	if d.heuristic.IsContinuation(ctx, query, outstanding) {
		return true
	}

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: continuationSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Question: " + outstanding.Question + "\n\nUser message: " + query},
		},
	})
	if err != nil {
		d.logger.Warn("continuation model call failed, keeping heuristic result", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	if len(resp.Choices) == 0 {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content)), "YES")
}
