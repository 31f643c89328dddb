// Package todotool implements the "todo" tool, the model-facing surface
// onto internal/orchestrator/taskqueue: it lets a conversation enqueue
// follow-up work for the orchestrator to dispatch, and query status of
// previously queued work. Grounded on spec §9's guidance to expose
// queued work by a weak, string-keyed handle rather than a live pointer,
// avoiding a cyclic reference between the tool registry and the
// orchestrator that owns the queue.
package todotool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/orchestrator/taskqueue"
	"github.com/codeforge/codeforge/internal/tool"
)

// Submitter is the narrow view of a taskqueue.Queue the todo tool needs;
// defined here (rather than importing *taskqueue.Queue directly into
// call sites) so tests can substitute a fake without standing up a real
// queue and executor.
type Submitter interface {
	Submit(task *taskqueue.QueuedTask) error
	Get(id string) (taskqueue.QueuedTask, bool)
}

// Tool implements tool.Tool for the "todo" id. It holds only a
// Submitter handle into the orchestrator's queue, never the queue's
// executor or worker state, so the tool registry and the orchestrator
// can be constructed independently of each other.
type Tool struct {
	Queue Submitter
	newID func() string
}

// New constructs the todo tool bound to queue.
func New(queue Submitter, newID func() string) *Tool {
	return &Tool{Queue: queue, newID: newID}
}

func (*Tool) ID() string { return "todo" }

func (*Tool) Description() string {
	return "Enqueues follow-up work for the orchestrator, or checks the status of previously queued work."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["add", "status"]},
			"prompt": {"type": "string"},
			"priority": {"type": "integer", "default": 0},
			"depends_on": {"type": "array", "items": {"type": "string"}},
			"capabilities": {"type": "array", "items": {"type": "string"}},
			"timeout_seconds": {"type": "integer"},
			"task_id": {"type": "string"}
		},
		"required": ["action"]
	}`)
}

func (t *Tool) Execute(_ context.Context, args map[string]any, _ tool.ExecutionContext) (tool.Result, error) {
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.add(args)
	case "status":
		return t.status(args)
	default:
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "action must be \"add\" or \"status\"")
	}
}

func (t *Tool) add(args map[string]any) (tool.Result, error) {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "prompt is required for action \"add\"")
	}

	priority := 0
	if v, ok := args["priority"].(float64); ok {
		priority = int(v)
	}
	timeout := time.Duration(0)
	if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
		timeout = time.Duration(v) * time.Second
	}

	task := &taskqueue.QueuedTask{
		ID:           t.newID(),
		Prompt:       prompt,
		Priority:     priority,
		DependsOn:    stringSlice(args["depends_on"]),
		Capabilities: stringSlice(args["capabilities"]),
		Timeout:      timeout,
	}
	if err := t.Queue.Submit(task); err != nil {
		return tool.Result{}, err
	}

	return tool.Result{
		Title:  "queued: " + prompt,
		Output: task.ID,
		Metadata: map[string]any{
			"task_id": task.ID,
		},
	}, nil
}

func (t *Tool) status(args map[string]any) (tool.Result, error) {
	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "task_id is required for action \"status\"")
	}
	task, ok := t.Queue.Get(taskID)
	if !ok {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "unknown task_id: "+taskID)
	}

	errMsg := ""
	if task.Err != nil {
		errMsg = task.Err.Error()
	}

	return tool.Result{
		Title:  taskID,
		Output: task.Result,
		Metadata: map[string]any{
			"status": string(task.Status),
			"error":  errMsg,
		},
	}, nil
}

func stringSlice(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
