package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"admin-gateway/internal/classify"
	"admin-gateway/internal/common/config"
	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
)

// ProcessVariables is the payload handed to the workflow instance. Field names
// match the variables the BPMN process reads.
type ProcessVariables struct {
	SessionID      string            `json:"session_id"`
	Query          string            `json:"query"`
	Topic          string            `json:"topic"`
	Intent         string            `json:"intent"`
	TopicFragment  string            `json:"topic_fragment"`
	GlobalFragment string            `json:"global_fragment"`
	Profile        map[string]string `json:"user_profile"`
	Language       string            `json:"language"`
	CoreGoal       string            `json:"core_goal,omitempty"`
}

// Dispatcher starts workflow instances for turns that need the multi-step
// agent process.
type Dispatcher struct {
	client    zbc.Client
	processID string
	timeout   time.Duration
	logger    logger.Logger
}

// NewDispatcher builds a dispatcher. A nil client disables dispatching.
func NewDispatcher(client zbc.Client, cfg config.WorkflowConfig, log logger.Logger) *Dispatcher {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		client:    client,
		processID: cfg.ProcessID,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"component": "workflow_dispatcher"}),
	}
}

// Enabled reports whether dispatching is configured.
func (d *Dispatcher) Enabled() bool {
	return d.client != nil && d.processID != ""
}

// ShouldDispatch reports whether an intent requires the workflow engine.
func ShouldDispatch(intent classify.Intent) bool {
	return intent == classify.IntentComplexProcedure || intent == classify.IntentFormFilling
}

// Dispatch starts a new instance of the configured process with the turn's
// variables and returns the instance key.
func (d *Dispatcher) Dispatch(ctx context.Context, vars ProcessVariables) (int64, error) {
	if !d.Enabled() {
		return 0, errors.NewWorkflowDispatchFailedError(fmt.Errorf("dispatcher is not configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd, err := d.client.NewCreateInstanceCommand().
		BPMNProcessId(d.processID).
		LatestVersion().
		VariablesFromObject(vars)
	if err != nil {
		return 0, errors.NewWorkflowDispatchFailedError(err)
	}

	resp, err := cmd.Send(ctx)
	if err != nil {
		d.logger.Error("workflow instance creation failed", map[string]interface{}{
			"process_id": d.processID,
			"session_id": vars.SessionID,
			"error":      err.Error(),
		})
		return 0, errors.NewWorkflowDispatchFailedError(err)
	}

	key := resp.GetProcessInstanceKey()
	d.logger.Info("workflow instance created", map[string]interface{}{
		"process_id":   d.processID,
		"session_id":   vars.SessionID,
		"instance_key": key,
		"topic":        vars.Topic,
		"intent":       vars.Intent,
	})
	return key, nil
}
