package guardrail

import (
	"context"

	"admin-gateway/internal/classify"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/retrieval"
)

// GroundednessChecker is the external signal verifying that an answer is
// supported by the retrieved context. A network-backed implementation may fail
// or time out; the engine maps both to "not grounded".
type GroundednessChecker interface {
	IsGrounded(ctx context.Context, answer string, snippets []retrieval.Snippet) (bool, error)
}

// Engine composes the injection guard, continuation detector, topic
// classifier and groundedness signal into a per-turn verdict. It holds no
// per-turn state: both evaluate phases are pure functions of their inputs
// plus the immutable registry, so concurrent turns need no locking.
type Engine struct {
	classifier          *classify.Classifier
	continuation        ContinuationDetector
	injection           *InjectionGuard
	groundedness        GroundednessChecker
	injectionEnabled    bool
	groundednessEnabled bool
	logger              logger.Logger
}

type EngineOptions struct {
	InjectionEnabled    bool
	GroundednessEnabled bool
}

func NewEngine(
	classifier *classify.Classifier,
	continuation ContinuationDetector,
	injection *InjectionGuard,
	groundedness GroundednessChecker,
	opts EngineOptions,
	log logger.Logger,
) *Engine {
	return &Engine{
		classifier:          classifier,
		continuation:        continuation,
		injection:           injection,
		groundedness:        groundedness,
		injectionEnabled:    opts.InjectionEnabled,
		groundednessEnabled: opts.GroundednessEnabled,
		logger:              log.WithFields(map[string]interface{}{"component": "guardrail"}),
	}
}

// EvaluateTurn is the pre-generation phase. Stage order: injection guard,
// then continuation bypass, then topic classification. Continuation bypass
// takes absolute precedence over topic mismatch: a direct answer to our own
// clarification question is never rejected as off-topic.
func (e *Engine) EvaluateTurn(ctx context.Context, query string, turn TurnContext) Verdict {
	if e.injectionEnabled && e.injection != nil && e.injection.Detect(query) {
		return Verdict{Decision: DecisionReject, Reason: ReasonInjection}
	}

	if e.continuation != nil && turn.Outstanding != nil &&
		e.continuation.IsContinuation(ctx, query, turn.Outstanding) {
		e.logger.Info("continuation bypass applied", map[string]interface{}{
			"variable": turn.Outstanding.Variable,
			"topic":    turn.LockedTopic,
		})
		return Verdict{
			Decision:     DecisionApprove,
			Topic:        turn.LockedTopic,
			BypassReason: BypassContinuation,
		}
	}

	topic := e.classifier.DetectTopic(query, turn.IntentHint)
	if topic == "" {
		return Verdict{Decision: DecisionReject, Reason: ReasonOutOfScope}
	}

	return Verdict{Decision: DecisionApprove, Topic: topic}
}

// EvaluateAnswer is the post-generation phase. It only runs for approved
// verdicts with real retrieved context: with nothing retrieved there is
// nothing for the answer to contradict, so the stage is skipped. A failed or
// timed-out groundedness signal counts as not grounded; unsupported answers
// become a clarification request rather than a hard rejection.
func (e *Engine) EvaluateAnswer(ctx context.Context, verdict Verdict, answer string, snippets []retrieval.Snippet) Verdict {
	if !verdict.Approved() {
		return verdict
	}
	if !e.groundednessEnabled || e.groundedness == nil || len(snippets) == 0 {
		return verdict
	}

	grounded, err := e.groundedness.IsGrounded(ctx, answer, snippets)
	if err != nil {
		e.logger.Warn("groundedness signal failed, treating answer as not grounded", map[string]interface{}{
			"error": err.Error(),
		})
		grounded = false
	}
	if grounded {
		return verdict
	}

	return Verdict{
		Decision:     DecisionClarify,
		Topic:        verdict.Topic,
		Reason:       ReasonUngrounded,
		BypassReason: verdict.BypassReason,
	}
}
