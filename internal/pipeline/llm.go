package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"admin-gateway/internal/common/errors"
)

// ChatCompleter is the chat completion surface the LLM steps need; satisfied
// by *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const goalExtractorPrompt = `You are a Goal Extractor for a public administration assistant.
Identify the user's PRIMARY administrative goal from the conversation.

Rules:
1. The goal should be a concise French administrative task (e.g. "Obtenir un permis de conduire", "Renouveler un titre de séjour").
2. GOAL LOCK: If a CURRENT GOAL is already established, PRESERVE IT unless the user EXPLICITLY says they want to do something completely different.
   - User providing personal info (nationality, residency, documents) does NOT change the goal.
   - User saying "I have a carte de séjour" while discussing a driving license = still the driving license goal.
3. Only change the goal if the user says something like "Actually, I want to..." or "Let's talk about..." with a new topic.
4. If no clear goal is found yet, return null.
5. Return ONLY the goal string (in French), nothing else. No explanation.

Current Goal (already established, preserve unless explicitly changed): %s

Conversation History:
%s`

// LLMGoalExtractor maintains the core goal with a small model call.
type LLMGoalExtractor struct {
	client ChatCompleter
	model  string
}

func NewLLMGoalExtractor(client ChatCompleter, model string) *LLMGoalExtractor {
	return &LLMGoalExtractor{client: client, model: model}
}

// ExtractGoal returns the established goal. A "null" or empty answer keeps the
// current goal.
func (g *LLMGoalExtractor) ExtractGoal(ctx context.Context, query string, history []string, currentGoal string) (string, error) {
	goal := currentGoal
	if goal == "" {
		goal = "None"
	}
	out, err := completeText(ctx, g.client, g.model, fmt.Sprintf(goalExtractorPrompt, goal, renderHistory(history)), query)
	if err != nil {
		return currentGoal, err
	}
	switch strings.ToLower(out) {
	case "", "null", "none":
		return currentGoal, nil
	}
	return out, nil
}

const queryRewriterPrompt = `You are a Goal-Anchored Query Rewriter for a public administration assistant.
Your task is to rewrite the CURRENT QUERY into a precise, standalone search query.

Rules:
1. CORE GOAL LOCK: If a CORE GOAL is provided, the rewritten query MUST remain anchored to it.
   - Example: Core Goal = "Obtenir un permis de conduire". User says "J'ai un titre de séjour".
   - BAD rewrite: "Renouvellement de carte de séjour"
   - GOOD rewrite: "Permis de conduire en France pour un résident légal vietnamien"
2. PRONOUN RESOLUTION: Replace pronouns (it, they, this) with specific entities from history.
3. ENTITY ENRICHMENT: Enrich the query with known user profile facts (nationality, residency).
4. STANDALONE: The rewritten query must be self-contained for a search index.
5. LANGUAGE: Keep the language of the CURRENT QUERY.
6. NO ANSWERS: Do NOT answer the question. Only rewrite it.

Core Goal (if known): %s

User Profile (known facts): %s

Conversation History (last turns):
%s`

// LLMQueryRewriter produces standalone search queries anchored to the core
// goal and known profile facts.
type LLMQueryRewriter struct {
	client ChatCompleter
	model  string
}

func NewLLMQueryRewriter(client ChatCompleter, model string) *LLMQueryRewriter {
	return &LLMQueryRewriter{client: client, model: model}
}

// Rewrite returns the query unchanged when there is no history and no goal to
// anchor to.
func (r *LLMQueryRewriter) Rewrite(ctx context.Context, query string, history []string, coreGoal string, profile map[string]string) (string, error) {
	if len(history) == 0 && coreGoal == "" {
		return query, nil
	}
	goal := coreGoal
	if goal == "" {
		goal = "Not yet determined"
	}
	system := fmt.Sprintf(queryRewriterPrompt, goal, renderProfile(profile), renderHistory(history))
	return completeText(ctx, r.client, r.model, system, query)
}

const profileExtractorPrompt = `You are a Profile Extractor for a public administration assistant.
Extract relevant user information from the conversation history and the latest query.

Target Fields:
- language (fr, en, vi)
- name
- age
- nationality (specific nationality, e.g. Française, Américaine, Vietnamienne)
- residency_status (e.g. Student, Worker, Retiree)
- has_legal_residency (true if the user says they live "legally", "régulièrement", "hợp pháp" in France, or has a valid titre de séjour / carte de séjour)
- visa_type (e.g. VLS-TS, Carte de Résident)
- duration_of_stay
- location (city or region in France)
- fiscal_residence (France, Etranger)
- income_source (France, Etranger, Mixte)

Inference rules (apply before extracting):
- "sống hợp pháp" / "living legally" / "en situation régulière" / "légalement" -> has_legal_residency = true
- "titre de séjour" / "carte de séjour" / "thẻ cư trú" / "visa valide" -> has_legal_residency = true, visa_type = stated type if mentioned
- If has_legal_residency = true and residency_status is unknown -> residency_status = "legal resident"

Rules:
1. Extract ONLY information clearly stated or logically implied by the user.
2. If a field is not mentioned, do NOT include it in the JSON.
3. Return a JSON object only, no explanation.

Conversation History:
%s`

// LLMProfileExtractor pulls profile facts from the conversation as JSON.
type LLMProfileExtractor struct {
	client ChatCompleter
	model  string
}

func NewLLMProfileExtractor(client ChatCompleter, model string) *LLMProfileExtractor {
	return &LLMProfileExtractor{client: client, model: model}
}

// Extract returns the profile fields the model found. Values are stringified;
// booleans become "true"/"false".
func (e *LLMProfileExtractor) Extract(ctx context.Context, query string, history []string) (map[string]string, error) {
	if query == "" && len(history) == 0 {
		return map[string]string{}, nil
	}
	out, err := completeText(ctx, e.client, e.model, fmt.Sprintf(profileExtractorPrompt, renderHistory(history)), query)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &raw); err != nil {
		return nil, errors.NewIntentParsingFailedError(err)
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			if v != "" && !strings.EqualFold(v, "null") {
				fields[key] = v
			}
		case bool:
			fields[key] = fmt.Sprintf("%t", v)
		case float64:
			fields[key] = strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
		default:
			fields[key] = fmt.Sprintf("%v", v)
		}
	}
	return fields, nil
}

func completeText(ctx context.Context, client ChatCompleter, model, system, user string) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.NewLLMSynthesisFailedError(fmt.Errorf("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func renderHistory(history []string) string {
	if len(history) == 0 {
		return "No history."
	}
	return strings.Join(history, "\n")
}

func renderProfile(profile map[string]string) string {
	if len(profile) == 0 {
		return "Unknown"
	}
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+profile[k])
	}
	return strings.Join(parts, ", ")
}

// stripCodeFence unwraps a markdown-fenced JSON block the model sometimes
// returns.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
