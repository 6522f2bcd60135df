// Package guardrail decides, per conversation turn, whether a query proceeds
// to answer generation, is rejected, or triggers a clarification request.
package guardrail

// Decision is the guardrail outcome for a turn.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
	DecisionClarify Decision = "CLARIFY"
)

// Reason is the machine-usable category behind a non-approve decision.
type Reason string

const (
	ReasonOutOfScope Reason = "OUT_OF_SCOPE"
	ReasonInjection  Reason = "INJECTION"
	ReasonUngrounded Reason = "UNGROUNDED"
)

// BypassReason records why a guardrail stage was skipped.
type BypassReason string

const BypassContinuation BypassReason = "CONTINUATION"

// Verdict is created fresh per turn and never mutated after construction.
// EvaluateAnswer returns a new value rather than touching the original.
type Verdict struct {
	Decision     Decision     `json:"decision"`
	Topic        string       `json:"topic,omitempty"`
	Reason       Reason       `json:"reason,omitempty"`
	BypassReason BypassReason `json:"bypass_reason,omitempty"`
}

// Approved reports whether the turn may proceed to generation.
func (v Verdict) Approved() bool {
	return v.Decision == DecisionApprove
}

// OutstandingClarification names the profile variable the system asked for on
// the previous turn.
type OutstandingClarification struct {
	Variable string `json:"variable"`
	Question string `json:"question"`
}

// TurnContext is the slice of conversation state the guardrail reads. It is
// consumed, not owned: the conversation store defines its lifecycle.
type TurnContext struct {
	Outstanding *OutstandingClarification
	Profile     map[string]string
	LockedTopic string
	IntentHint  string
	Language    string
}
