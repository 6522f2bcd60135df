// Package conversation owns the Redis-backed session state: message history,
// accumulated user profile, locked goal and the outstanding clarification the
// guardrail reads on the next turn.
package conversation

import (
	"admin-gateway/internal/guardrail"
)

// Message is one conversation turn. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserProfile accumulates facts extracted from the conversation. Empty means
// unknown; the prompt builder treats "None" the same way.
type UserProfile struct {
	Language          string `json:"language,omitempty"`
	Name              string `json:"name,omitempty"`
	Age               string `json:"age,omitempty"`
	Nationality       string `json:"nationality,omitempty"`
	ResidencyStatus   string `json:"residency_status,omitempty"`
	HasLegalResidency string `json:"has_legal_residency,omitempty"`
	VisaType          string `json:"visa_type,omitempty"`
	DurationOfStay    string `json:"duration_of_stay,omitempty"`
	Location          string `json:"location,omitempty"`
	FiscalResidence   string `json:"fiscal_residence,omitempty"`
	IncomeSource      string `json:"income_source,omitempty"`
}

// AsMap flattens the profile for the prompt builder's missing-variable check.
// Only known fields are included.
func (p UserProfile) AsMap() map[string]string {
	out := make(map[string]string)
	put := func(key, value string) {
		if value != "" && value != "None" {
			out[key] = value
		}
	}
	put("language", p.Language)
	put("name", p.Name)
	put("age", p.Age)
	put("nationality", p.Nationality)
	put("residency_status", p.ResidencyStatus)
	put("has_legal_residency", p.HasLegalResidency)
	put("visa_type", p.VisaType)
	put("duration_of_stay", p.DurationOfStay)
	put("location", p.Location)
	put("fiscal_residence", p.FiscalResidence)
	put("income_source", p.IncomeSource)
	return out
}

// SessionState is the full per-session record persisted between turns.
type SessionState struct {
	SessionID   string      `json:"session_id"`
	Messages    []Message   `json:"messages"`
	Profile     UserProfile `json:"user_profile"`
	Intent      string      `json:"intent,omitempty"`
	CoreGoal    string      `json:"core_goal,omitempty"`
	LockedTopic string      `json:"locked_topic,omitempty"`

	// Outstanding is the clarification question the assistant asked on the
	// previous turn, cleared once answered.
	Outstanding *guardrail.OutstandingClarification `json:"outstanding_clarification,omitempty"`

	// InjectionRejections counts blocked injection attempts for escalation.
	InjectionRejections int `json:"injection_rejections,omitempty"`
}

// NewSessionState returns a fresh state for a session.
func NewSessionState(sessionID string) *SessionState {
	return &SessionState{SessionID: sessionID}
}

// AppendMessage records a turn in the history.
func (s *SessionState) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// RecentHistory returns up to n most recent messages rendered as
// "role: content" lines for model prompts.
func (s *SessionState) RecentHistory(n int) []string {
	msgs := s.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role+": "+m.Content)
	}
	return out
}

// TurnContext projects the session state into what the guardrail reads.
func (s *SessionState) TurnContext(intentHint string) guardrail.TurnContext {
	return guardrail.TurnContext{
		Outstanding: s.Outstanding,
		Profile:     s.Profile.AsMap(),
		LockedTopic: s.LockedTopic,
		IntentHint:  intentHint,
		Language:    s.Profile.Language,
	}
}
