package pipeline

import (
	"context"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-gateway/internal/classify"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/conversation"
	"admin-gateway/internal/guardrail"
)

type stubGoals struct {
	goal string
	err  error
}

func (s *stubGoals) ExtractGoal(_ context.Context, _ string, _ []string, current string) (string, error) {
	if s.err != nil {
		return current, s.err
	}
	return s.goal, nil
}

type stubRewriter struct {
	out      string
	err      error
	gotGoal  string
	gotQuery string
}

func (s *stubRewriter) Rewrite(_ context.Context, query string, _ []string, coreGoal string, _ map[string]string) (string, error) {
	s.gotGoal = coreGoal
	s.gotQuery = query
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

type stubProfile struct {
	fields   map[string]string
	err      error
	gotQuery string
}

func (s *stubProfile) Extract(_ context.Context, query string, _ []string) (map[string]string, error) {
	s.gotQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.fields, nil
}

func newTestPipeline(goals GoalExtractor, rewrite QueryRewriter, profile ProfileExtractor) *Pipeline {
	intents := classify.NewIntentClassifier(nil, "", logger.NewNoOpLogger())
	return New(goals, rewrite, intents, profile, logger.NewNoOpLogger())
}

func TestPipelineRunHappyPath(t *testing.T) {
	rewriter := &stubRewriter{out: "Permis de conduire en France pour un résident vietnamien"}
	profile := &stubProfile{fields: map[string]string{"nationality": "Vietnamienne"}}
	p := newTestPipeline(&stubGoals{goal: "Obtenir un permis de conduire"}, rewriter, profile)

	state := conversation.NewSessionState("s1")
	state.AppendMessage(conversation.RoleUser, "Je veux passer le permis de conduire")
	state.AppendMessage(conversation.RoleAssistant, "Voici les étapes principales.")

	res := p.Run(context.Background(), "Comment faire pour le permis ?", state)

	assert.Equal(t, "Obtenir un permis de conduire", res.NewCoreGoal)
	assert.Equal(t, rewriter.out, res.RewrittenQuery)
	assert.Equal(t, classify.IntentComplexProcedure, res.Intent)
	assert.Equal(t, "Vietnamienne", res.Extracted["nationality"])
	assert.False(t, res.IsContinuation)
}

func TestPipelineRewriteAnchoredToNewGoal(t *testing.T) {
	rewriter := &stubRewriter{out: "rewritten"}
	p := newTestPipeline(&stubGoals{goal: "Renouveler un titre de séjour"}, rewriter, &stubProfile{})

	state := conversation.NewSessionState("s1")
	state.CoreGoal = "Obtenir un permis de conduire"
	p.Run(context.Background(), "Actually I want to renew my residence permit instead", state)

	assert.Equal(t, "Renouveler un titre de séjour", rewriter.gotGoal)
}

func TestPipelineContinuationShortCircuit(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		setup        func(*conversation.SessionState)
		continuation bool
	}{
		{
			name:  "short answer after assistant question",
			query: "Oui",
			setup: func(s *conversation.SessionState) {
				s.AppendMessage(conversation.RoleAssistant, "Avez-vous un titre de séjour ?")
			},
			continuation: true,
		},
		{
			name:  "short answer with outstanding clarification",
			query: "Je suis vietnamien",
			setup: func(s *conversation.SessionState) {
				s.Outstanding = &guardrail.OutstandingClarification{
					Variable: "nationality",
					Question: "Quelle est votre nationalité ?",
				}
			},
			continuation: true,
		},
		{
			name:  "long answer after assistant question",
			query: "Je voudrais savoir comment déclarer mes impôts cette année en France",
			setup: func(s *conversation.SessionState) {
				s.AppendMessage(conversation.RoleAssistant, "Avez-vous un titre de séjour ?")
			},
			continuation: false,
		},
		{
			name:  "short query without pending question",
			query: "Les impôts",
			setup: func(s *conversation.SessionState) {
				s.AppendMessage(conversation.RoleAssistant, "Voici le récapitulatif.")
			},
			continuation: false,
		},
		{
			name:         "first turn short query",
			query:        "Bonjour",
			setup:        func(s *conversation.SessionState) {},
			continuation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(&stubGoals{}, &stubRewriter{out: tt.query}, &stubProfile{})
			state := conversation.NewSessionState("s1")
			tt.setup(state)

			res := p.Run(context.Background(), tt.query, state)

			assert.Equal(t, tt.continuation, res.IsContinuation)
			if tt.continuation {
				assert.Equal(t, classify.IntentComplexProcedure, res.Intent)
			}
		})
	}
}

func TestPipelineStepFailuresUseSafeDefaults(t *testing.T) {
	rewriter := &stubRewriter{err: fmt.Errorf("model unavailable")}
	profile := &stubProfile{err: fmt.Errorf("model unavailable")}
	p := newTestPipeline(&stubGoals{err: fmt.Errorf("model unavailable")}, rewriter, profile)

	state := conversation.NewSessionState("s1")
	state.CoreGoal = "Obtenir un permis de conduire"
	state.AppendMessage(conversation.RoleAssistant, "Voici les étapes.")

	res := p.Run(context.Background(), "Comment renouveler mon passeport avec la procédure en ligne", state)

	assert.Equal(t, "Obtenir un permis de conduire", res.NewCoreGoal)
	assert.Equal(t, "Comment renouveler mon passeport avec la procédure en ligne", res.RewrittenQuery)
	assert.Equal(t, classify.IntentComplexProcedure, res.Intent)
	assert.Empty(t, res.Extracted)
}

func TestPipelineProfileReadsOriginalQuery(t *testing.T) {
	rewriter := &stubRewriter{out: "standalone rewritten query about residence"}
	profile := &stubProfile{fields: map[string]string{}}
	p := newTestPipeline(&stubGoals{}, rewriter, profile)

	state := conversation.NewSessionState("s1")
	state.AppendMessage(conversation.RoleAssistant, "Bonjour, comment puis-je vous aider ?")

	p.Run(context.Background(), "Tôi sống hợp pháp ở Pháp", state)

	assert.Equal(t, "Tôi sống hợp pháp ở Pháp", profile.gotQuery)
	assert.Equal(t, "standalone rewritten query about residence", rewriter.gotQuery)
}

func TestPipelineNilStepsSkipped(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)
	state := conversation.NewSessionState("s1")

	res := p.Run(context.Background(), "Comment obtenir une carte vitale", state)

	assert.Equal(t, "Comment obtenir une carte vitale", res.RewrittenQuery)
	assert.Empty(t, res.NewCoreGoal)
	assert.NotNil(t, res.Extracted)
}

type scriptedChat struct {
	replies []string
	err     error
	gotReqs []openai.ChatCompletionRequest
}

func (s *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.gotReqs = append(s.gotReqs, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func TestLLMGoalExtractor(t *testing.T) {
	t.Run("new goal returned", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"Obtenir un permis de conduire"}}
		g := NewLLMGoalExtractor(chat, "gpt-4o-mini")

		goal, err := g.ExtractGoal(context.Background(), "je veux conduire", nil, "")

		require.NoError(t, err)
		assert.Equal(t, "Obtenir un permis de conduire", goal)
	})

	t.Run("null keeps current goal", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"null"}}
		g := NewLLMGoalExtractor(chat, "gpt-4o-mini")

		goal, err := g.ExtractGoal(context.Background(), "j'ai 30 ans", nil, "Renouveler un titre de séjour")

		require.NoError(t, err)
		assert.Equal(t, "Renouveler un titre de séjour", goal)
	})

	t.Run("model failure keeps current goal", func(t *testing.T) {
		chat := &scriptedChat{err: fmt.Errorf("boom")}
		g := NewLLMGoalExtractor(chat, "gpt-4o-mini")

		goal, err := g.ExtractGoal(context.Background(), "je veux conduire", nil, "Renouveler un titre de séjour")

		require.Error(t, err)
		assert.Equal(t, "Renouveler un titre de séjour", goal)
	})
}

func TestLLMQueryRewriter(t *testing.T) {
	t.Run("first turn passes through without model call", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"should not be used"}}
		r := NewLLMQueryRewriter(chat, "gpt-4o-mini")

		out, err := r.Rewrite(context.Background(), "Comment obtenir un visa ?", nil, "", nil)

		require.NoError(t, err)
		assert.Equal(t, "Comment obtenir un visa ?", out)
		assert.Empty(t, chat.gotReqs)
	})

	t.Run("anchored rewrite includes goal and profile", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"Permis de conduire pour résident vietnamien"}}
		r := NewLLMQueryRewriter(chat, "gpt-4o-mini")

		out, err := r.Rewrite(context.Background(), "J'ai un titre de séjour",
			[]string{"user: je veux le permis"},
			"Obtenir un permis de conduire",
			map[string]string{"nationality": "Vietnamienne"})

		require.NoError(t, err)
		assert.Equal(t, "Permis de conduire pour résident vietnamien", out)
		require.Len(t, chat.gotReqs, 1)
		system := chat.gotReqs[0].Messages[0].Content
		assert.Contains(t, system, "Obtenir un permis de conduire")
		assert.Contains(t, system, "nationality=Vietnamienne")
	})
}

func TestLLMProfileExtractor(t *testing.T) {
	t.Run("parses JSON fields", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"nationality": "Vietnamienne", "has_legal_residency": true, "age": 30, "name": null}`}}
		e := NewLLMProfileExtractor(chat, "gpt-4o-mini")

		fields, err := e.Extract(context.Background(), "Tôi sống hợp pháp ở Pháp", nil)

		require.NoError(t, err)
		assert.Equal(t, "Vietnamienne", fields["nationality"])
		assert.Equal(t, "true", fields["has_legal_residency"])
		assert.Equal(t, "30", fields["age"])
		assert.NotContains(t, fields, "name")
	})

	t.Run("unwraps fenced JSON", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"```json\n{\"location\": \"Lyon\"}\n```"}}
		e := NewLLMProfileExtractor(chat, "gpt-4o-mini")

		fields, err := e.Extract(context.Background(), "J'habite à Lyon", nil)

		require.NoError(t, err)
		assert.Equal(t, "Lyon", fields["location"])
	})

	t.Run("garbage output surfaces parsing error", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"not json at all"}}
		e := NewLLMProfileExtractor(chat, "gpt-4o-mini")

		_, err := e.Extract(context.Background(), "bonjour", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "INTENT_PARSING_FAILED")
	})

	t.Run("empty input skips model call", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"{}"}}
		e := NewLLMProfileExtractor(chat, "gpt-4o-mini")

		fields, err := e.Extract(context.Background(), "", nil)

		require.NoError(t, err)
		assert.Empty(t, fields)
		assert.Empty(t, chat.gotReqs)
	})
}
