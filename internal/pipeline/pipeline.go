// Package pipeline runs the per-turn preprocessing sequence: goal extraction,
// goal-anchored query rewriting, contextual continuation detection, intent
// classification and profile extraction. Every step degrades to a safe default
// on failure so a broken model call never blocks a turn.
package pipeline

import (
	"context"
	"strings"

	"admin-gateway/internal/classify"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/conversation"
)

// shortAnswerMaxWords bounds what counts as a short reply to a pending
// question from the assistant.
const shortAnswerMaxWords = 5

// GoalExtractor identifies and maintains the user's core administrative goal.
// An empty result means the current goal stays in place.
type GoalExtractor interface {
	ExtractGoal(ctx context.Context, query string, history []string, currentGoal string) (string, error)
}

// QueryRewriter turns a conversational query into a standalone search query
// anchored to the core goal and the known user profile.
type QueryRewriter interface {
	Rewrite(ctx context.Context, query string, history []string, coreGoal string, profile map[string]string) (string, error)
}

// ProfileExtractor pulls user facts (nationality, residency, location) from
// the latest query and recent history.
type ProfileExtractor interface {
	Extract(ctx context.Context, query string, history []string) (map[string]string, error)
}

// Result carries the preprocessing outputs for one turn. All fields are safe
// to use even when individual steps failed.
type Result struct {
	RewrittenQuery string
	Intent         classify.Intent
	Extracted      map[string]string
	NewCoreGoal    string
	IsContinuation bool
}

// Pipeline is the stateless preprocessing sequence. It does not mutate the
// session state; the caller applies Result to the state after evaluation.
type Pipeline struct {
	goals   GoalExtractor
	rewrite QueryRewriter
	intents *classify.IntentClassifier
	profile ProfileExtractor
	logger  logger.Logger
}

// New builds a pipeline from its four steps. Goal, rewrite and profile steps
// may be nil, in which case they are skipped.
func New(goals GoalExtractor, rewrite QueryRewriter, intents *classify.IntentClassifier, profile ProfileExtractor, log logger.Logger) *Pipeline {
	return &Pipeline{
		goals:   goals,
		rewrite: rewrite,
		intents: intents,
		profile: profile,
		logger:  log.WithFields(map[string]interface{}{"component": "query_pipeline"}),
	}
}

// Run executes goal extraction, rewriting, continuation detection, intent
// classification and profile extraction for one turn.
func (p *Pipeline) Run(ctx context.Context, query string, state *conversation.SessionState) Result {
	history := state.RecentHistory(5)

	// Goal extraction runs before rewriting so the rewrite stays anchored.
	newGoal := state.CoreGoal
	if p.goals != nil {
		extracted, err := p.goals.ExtractGoal(ctx, query, history, state.CoreGoal)
		switch {
		case err != nil:
			p.logger.Error("goal extraction failed, keeping current goal", map[string]interface{}{
				"error": err.Error(),
			})
		case extracted != "" && extracted != state.CoreGoal:
			newGoal = extracted
			p.logger.Info("core goal updated", map[string]interface{}{"core_goal": newGoal})
		}
	}

	rewritten := query
	if p.rewrite != nil {
		out, err := p.rewrite.Rewrite(ctx, query, history, newGoal, state.Profile.AsMap())
		if err != nil {
			p.logger.Error("query rewrite failed, using raw query", map[string]interface{}{
				"error": err.Error(),
			})
		} else if strings.TrimSpace(out) != "" {
			rewritten = strings.TrimSpace(out)
		}
	}

	// A short reply to a pending assistant question is a continuation of the
	// current procedure, never a fresh topic.
	isContinuation := p.isContextualContinuation(query, state)

	var intent classify.Intent
	if isContinuation {
		intent = classify.IntentComplexProcedure
		p.logger.Info("contextual continuation, intent short-circuited", map[string]interface{}{
			"intent": string(intent),
		})
	} else if p.intents != nil {
		intent = p.intents.Classify(ctx, rewritten, history)
	} else {
		intent = classify.IntentUnknown
	}

	// Profile extraction reads the original query so the language signal stays
	// clean of rewrite artifacts.
	extracted := map[string]string{}
	if p.profile != nil {
		out, err := p.profile.Extract(ctx, query, history)
		if err != nil {
			p.logger.Error("profile extraction failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else if out != nil {
			extracted = out
		}
	}

	return Result{
		RewrittenQuery: rewritten,
		Intent:         intent,
		Extracted:      extracted,
		NewCoreGoal:    newGoal,
		IsContinuation: isContinuation,
	}
}

func (p *Pipeline) isContextualContinuation(query string, state *conversation.SessionState) bool {
	if len(strings.Fields(query)) > shortAnswerMaxWords {
		return false
	}
	if state.Outstanding != nil {
		return true
	}
	if len(state.Messages) == 0 {
		return false
	}
	last := state.Messages[len(state.Messages)-1]
	return last.Role == conversation.RoleAssistant && strings.Contains(last.Content, "?")
}
