// Package server exposes the gateway over HTTP: the chat endpoint running
// the full guardrail turn, plus health, readiness, metrics and pprof.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"admin-gateway/internal/audit"
	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/common/observability"
	"admin-gateway/internal/conversation"
	"admin-gateway/internal/generator"
	"admin-gateway/internal/guardrail"
	"admin-gateway/internal/language"
	"admin-gateway/internal/pipeline"
	"admin-gateway/internal/prompt"
	"admin-gateway/internal/retrieval"
	"admin-gateway/internal/workflow"
)

const escalationTimeout = 5 * time.Second

// ChatRequest is the inbound turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Language  string `json:"language,omitempty"`
}

// SourceRef points a client at one retrieved document.
type SourceRef struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// ChatResponse is the outbound turn.
type ChatResponse struct {
	SessionID    string      `json:"session_id"`
	Decision     string      `json:"decision"`
	Reason       string      `json:"reason,omitempty"`
	BypassReason string      `json:"bypass_reason,omitempty"`
	Topic        string      `json:"topic,omitempty"`
	Intent       string      `json:"intent"`
	Language     string      `json:"language"`
	Answer       string      `json:"answer"`
	Sources      []SourceRef `json:"sources,omitempty"`
	WorkflowKey  int64       `json:"workflow_instance_key,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// The collaborators the handler drives, narrowed to what it calls so tests
// can substitute each one.

type stateStore interface {
	Load(ctx context.Context, sessionID string) (*conversation.SessionState, error)
	Save(ctx context.Context, state *conversation.SessionState) error
}

type preprocessor interface {
	Run(ctx context.Context, query string, state *conversation.SessionState) pipeline.Result
}

type turnEvaluator interface {
	EvaluateTurn(ctx context.Context, query string, turn guardrail.TurnContext) guardrail.Verdict
	EvaluateAnswer(ctx context.Context, verdict guardrail.Verdict, answer string, snippets []retrieval.Snippet) guardrail.Verdict
}

type documentSearcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Snippet, error)
}

type answerer interface {
	Generate(ctx context.Context, in generator.Input) (string, error)
}

type instanceDispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, vars workflow.ProcessVariables) (int64, error)
}

type auditor interface {
	Insert(ctx context.Context, rec audit.Record) error
}

type injectionEscalator interface {
	ShouldEscalate(rejections int) bool
	EscalateInjection(ctx context.Context, sessionID string, rejections int) error
}

type spanStarter interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
}

// ChatHandler runs one guardrail turn per request.
type ChatHandler struct {
	store      stateStore
	pipeline   preprocessor
	engine     turnEvaluator
	prompts    *prompt.Builder
	retriever  documentSearcher
	generator  answerer
	dispatcher instanceDispatcher
	trail      auditor
	escalator  injectionEscalator
	languages  *language.Resolver
	obs        *observability.Observability
	tracer     spanStarter
	logger     logger.Logger
}

// ChatHandlerDeps collects the handler's collaborators. Dispatcher, trail and
// escalator are optional.
type ChatHandlerDeps struct {
	Store      stateStore
	Pipeline   preprocessor
	Engine     turnEvaluator
	Prompts    *prompt.Builder
	Retriever  documentSearcher
	Generator  answerer
	Dispatcher instanceDispatcher
	Trail      auditor
	Escalator  injectionEscalator
	Languages  *language.Resolver
	Obs        *observability.Observability
	Tracer     spanStarter
}

func NewChatHandler(deps ChatHandlerDeps, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		store:      deps.Store,
		pipeline:   deps.Pipeline,
		engine:     deps.Engine,
		prompts:    deps.Prompts,
		retriever:  deps.Retriever,
		generator:  deps.Generator,
		dispatcher: deps.Dispatcher,
		trail:      deps.Trail,
		escalator:  deps.Escalator,
		languages:  deps.Languages,
		obs:        deps.Obs,
		tracer:     deps.Tracer,
		logger:     log.WithFields(map[string]interface{}{"component": "chat_handler"}),
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.SessionID == "" || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id and query are required"})
		return
	}

	start := time.Now()
	ctx := r.Context()

	state, err := h.store.Load(ctx, req.SessionID)
	if err != nil {
		// A state store outage degrades to a stateless turn.
		h.logger.Error("state load failed, continuing with fresh session", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		state = conversation.NewSessionState(req.SessionID)
	}

	pctx, end := h.span(ctx, "pipeline.preprocess")
	res := h.pipeline.Run(pctx, req.Query, state)
	end()

	h.applyProfile(state, res.Extracted)
	lang := h.languages.Resolve(res.Extracted["language"], req.Language, state.Profile.Language, len(state.Messages) > 0)
	state.Profile.Language = lang

	turn := state.TurnContext(res.Intent.TopicHint())
	turn.Language = lang

	gctx, end := h.span(ctx, "guardrail.evaluate_turn")
	verdict := h.engine.EvaluateTurn(gctx, req.Query, turn)
	end()
	if h.obs != nil && verdict.Topic != "" {
		h.obs.RecordTopicDetection(ctx, verdict.Topic)
	}

	if !verdict.Approved() {
		h.respondRejected(ctx, w, req, state, res, verdict, lang, start)
		return
	}

	profile := state.Profile.AsMap()
	fragment := h.prompts.BuildFragment(verdict.Topic, profile, req.Query)
	global := h.prompts.BuildGlobalRules()

	var workflowKey int64
	if h.dispatcher != nil && h.dispatcher.Enabled() && workflow.ShouldDispatch(res.Intent) {
		wctx, end := h.span(ctx, "workflow.dispatch")
		key, err := h.dispatcher.Dispatch(wctx, workflow.ProcessVariables{
			SessionID:      req.SessionID,
			Query:          res.RewrittenQuery,
			Topic:          verdict.Topic,
			Intent:         string(res.Intent),
			TopicFragment:  fragment,
			GlobalFragment: global,
			Profile:        profile,
			Language:       lang,
			CoreGoal:       res.NewCoreGoal,
		})
		end()
		if err != nil {
			h.logger.Error("workflow dispatch failed, answering in-process", map[string]interface{}{
				"session_id": req.SessionID,
				"error":      err.Error(),
			})
		} else {
			workflowKey = key
		}
	}

	rctx, end := h.span(ctx, "retrieval.search")
	snippets, err := h.retriever.Search(rctx, res.RewrittenQuery)
	end()
	if err != nil {
		h.logger.Error("retrieval failed, generating without context", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		snippets = nil
	}

	lctx, end := h.span(ctx, "llm.generate")
	answer, err := h.generator.Generate(lctx, generator.Input{
		Query:          res.RewrittenQuery,
		TopicFragment:  fragment,
		GlobalFragment: global,
		Language:       lang,
		History:        state.RecentHistory(6),
		Snippets:       snippets,
	})
	end()
	if err != nil {
		h.logger.Error("answer generation failed", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "answer generation failed", Code: errCode(err)})
		return
	}

	actx, end := h.span(ctx, "guardrail.evaluate_answer")
	verdict = h.engine.EvaluateAnswer(actx, verdict, answer, snippets)
	end()

	if verdict.Decision == guardrail.DecisionClarify {
		answer = guardrail.MessageFor(verdict, lang)
	} else {
		answer = guardrail.AddDisclaimer(answer, lang)
	}

	h.updateState(state, req.Query, answer, res, verdict)
	h.persistAndAudit(ctx, state, req.Query, verdict, res, lang, start)

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:    req.SessionID,
		Decision:     string(verdict.Decision),
		Reason:       string(verdict.Reason),
		BypassReason: string(verdict.BypassReason),
		Topic:        verdict.Topic,
		Intent:       string(res.Intent),
		Language:     lang,
		Answer:       answer,
		Sources:      sourceRefs(snippets),
		WorkflowKey:  workflowKey,
	})
}

func (h *ChatHandler) respondRejected(ctx context.Context, w http.ResponseWriter, req ChatRequest, state *conversation.SessionState, res pipeline.Result, verdict guardrail.Verdict, lang string, start time.Time) {
	answer := guardrail.MessageFor(verdict, lang)

	if verdict.Reason == guardrail.ReasonInjection {
		state.InjectionRejections++
		if h.escalator != nil && h.escalator.ShouldEscalate(state.InjectionRejections) {
			escCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), escalationTimeout)
			defer cancel()
			if err := h.escalator.EscalateInjection(escCtx, req.SessionID, state.InjectionRejections); err != nil {
				h.logger.Error("injection escalation failed", map[string]interface{}{
					"session_id": req.SessionID,
					"error":      err.Error(),
				})
			}
		}
	}

	h.updateState(state, req.Query, answer, res, verdict)
	h.persistAndAudit(ctx, state, req.Query, verdict, res, lang, start)

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: req.SessionID,
		Decision:  string(verdict.Decision),
		Reason:    string(verdict.Reason),
		Intent:    string(res.Intent),
		Language:  lang,
		Answer:    answer,
	})
}

// applyProfile merges newly extracted facts into the session profile. A blank
// extraction never erases a known fact.
func (h *ChatHandler) applyProfile(state *conversation.SessionState, extracted map[string]string) {
	set := func(dst *string, key string) {
		if v, ok := extracted[key]; ok && v != "" && v != "None" {
			*dst = v
		}
	}
	set(&state.Profile.Language, "language")
	set(&state.Profile.Name, "name")
	set(&state.Profile.Age, "age")
	set(&state.Profile.Nationality, "nationality")
	set(&state.Profile.ResidencyStatus, "residency_status")
	set(&state.Profile.HasLegalResidency, "has_legal_residency")
	set(&state.Profile.VisaType, "visa_type")
	set(&state.Profile.DurationOfStay, "duration_of_stay")
	set(&state.Profile.Location, "location")
	set(&state.Profile.FiscalResidence, "fiscal_residence")
	set(&state.Profile.IncomeSource, "income_source")
}

func (h *ChatHandler) updateState(state *conversation.SessionState, query, answer string, res pipeline.Result, verdict guardrail.Verdict) {
	state.Intent = string(res.Intent)
	if res.NewCoreGoal != "" {
		state.CoreGoal = res.NewCoreGoal
	}

	if verdict.Approved() {
		state.LockedTopic = verdict.Topic

		// A continuation consumes the outstanding question; a new one is
		// recorded only when the answer actually asks for a missing variable.
		state.Outstanding = nil
		if strings.Contains(answer, "?") {
			if missing := h.prompts.Missing(verdict.Topic, state.Profile.AsMap()); len(missing) > 0 {
				state.Outstanding = &guardrail.OutstandingClarification{
					Variable: missing[0],
					Question: answer,
				}
			}
		}
	}

	state.AppendMessage(conversation.RoleUser, query)
	state.AppendMessage(conversation.RoleAssistant, answer)
}

func (h *ChatHandler) persistAndAudit(ctx context.Context, state *conversation.SessionState, query string, verdict guardrail.Verdict, res pipeline.Result, lang string, start time.Time) {
	if err := h.store.Save(ctx, state); err != nil {
		h.logger.Error("state save failed", map[string]interface{}{
			"session_id": state.SessionID,
			"error":      err.Error(),
		})
	}

	latency := time.Since(start)

	if h.trail != nil {
		if err := h.trail.Insert(ctx, audit.Record{
			SessionID: state.SessionID,
			Query:     query,
			Verdict:   verdict,
			Intent:    string(res.Intent),
			Language:  lang,
			Latency:   latency,
		}); err != nil {
			h.logger.Error("audit insert failed", map[string]interface{}{
				"session_id": state.SessionID,
				"error":      err.Error(),
			})
		}
	}

	if h.obs != nil {
		h.obs.RecordRequest(ctx, string(verdict.Decision))
		if verdict.Reason != "" {
			h.obs.RecordRejection(ctx, string(verdict.Reason))
		}
		h.obs.RecordPipelineDuration(ctx, latency, string(verdict.Decision))
	}
}

// span opens a stage span when a tracer is configured; the returned func ends
// it. Without a tracer the context passes through untouched.
func (h *ChatHandler) span(ctx context.Context, name string) (context.Context, func()) {
	if h.tracer == nil {
		return ctx, func() {}
	}
	sctx, sp := h.tracer.StartSpan(ctx, name)
	return sctx, func() { sp.End() }
}

func sourceRefs(snippets []retrieval.Snippet) []SourceRef {
	if len(snippets) == 0 {
		return nil
	}
	refs := make([]SourceRef, 0, len(snippets))
	for _, s := range snippets {
		refs = append(refs, SourceRef{Source: s.Source, Score: s.Score})
	}
	return refs
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errCode(err error) string {
	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) {
		return string(stdErr.Code)
	}
	return ""
}
