// Package execution provides the per-invocation runtime that generated
// workflow programs call into: execution-index allocation, keyed variable
// storage, pull-executor registration, and instrumentation event emission.
//
// One Context belongs to exactly one workflow invocation and is destroyed
// with it; concurrent invocations of the same compiled workflow each own an
// independent Context.
package execution

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	fwerrors "github.com/synergenius-fw/flow-weaver-sub000/pkg/errors"
)

// ExecutionRecord is one activation of a node instance. An instance inside a
// repeating scope activates once per iteration, yielding one record each.
type ExecutionRecord struct {
	// ExecutionIndex is unique within the invocation and strictly increasing
	// in allocation order.
	ExecutionIndex int `json:"executionIndex"`
	// NodeID is the instance id.
	NodeID string `json:"id"`
	// NodeTypeName is the instance's node type.
	NodeTypeName string `json:"nodeTypeName"`
}

// PullExecutor produces the outputs of a lazily-triggered node on first
// demand. It runs at most once per invocation.
type PullExecutor func() (interface{}, error)

// Context is the runtime object one generated workflow invocation calls
// into. All bookkeeping is synchronous in effect; when the generated
// function is async, callers await the values the Context hands back, not
// the Context's internal state changes.
type Context struct {
	mu sync.Mutex

	runID    string
	workflow string
	mode     Mode
	sink     EventSink

	counter int
	records []ExecutionRecord

	vars map[string]interface{}

	pullExecutors map[string]PullExecutor
	pullResults   map[string]interface{}

	failed    bool
	completed bool
}

// NewContext creates a runtime context for one workflow invocation. A nil
// sink disables instrumentation delivery but keeps all bookkeeping intact.
func NewContext(workflow string, mode Mode, sink EventSink) *Context {
	if mode == "" {
		mode = ModeDebug
	}
	return &Context{
		runID:         uuid.New().String(),
		workflow:      workflow,
		mode:          mode,
		sink:          sink,
		vars:          make(map[string]interface{}),
		pullExecutors: make(map[string]PullExecutor),
		pullResults:   make(map[string]interface{}),
	}
}

// RunID returns the invocation's unique id.
func (c *Context) RunID() string {
	return c.runID
}

// Workflow returns the workflow name the context was created for.
func (c *Context) Workflow() string {
	return c.workflow
}

// Mode returns the instrumentation mode.
func (c *Context) Mode() Mode {
	return c.mode
}

// AddExecution allocates the next execution index for an activation of the
// given instance. Indices come from a single counter shared across all
// instances, so event consumers get a total order even across interleaved
// branches and iterations.
func (c *Context) AddExecution(nodeID, nodeTypeName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.counter
	c.counter++
	c.records = append(c.records, ExecutionRecord{
		ExecutionIndex: idx,
		NodeID:         nodeID,
		NodeTypeName:   nodeTypeName,
	})
	return idx
}

// Records returns a copy of the activation records in allocation order.
func (c *Context) Records() []ExecutionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ExecutionRecord, len(c.records))
	copy(out, c.records)
	return out
}

// key flattens an identifier into the storage key.
func key(id Identifier) string {
	var b strings.Builder
	b.WriteString(id.NodeID)
	b.WriteByte(0x1f)
	b.WriteString(id.PortName)
	b.WriteByte(0x1f)
	b.WriteString(strconv.Itoa(id.ExecutionIndex))
	if id.Scope != "" || id.Side != "" {
		b.WriteByte(0x1f)
		b.WriteString(id.Scope)
		b.WriteByte(0x1f)
		b.WriteString(string(id.Side))
	}
	return b.String()
}

// SetVariable stores a produced value under its identifier and emits a
// VARIABLE_SET event. Each key is written exactly once per invocation; a
// second write is a caller error.
func (c *Context) SetVariable(id Identifier, value interface{}) error {
	c.mu.Lock()
	k := key(id)
	if _, exists := c.vars[k]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s.%s[%d]", fwerrors.ErrDuplicateVariable, id.NodeID, id.PortName, id.ExecutionIndex)
	}
	c.vars[k] = value
	suppress := c.mode == ModeProduction && id.Side != ""
	c.mu.Unlock()

	if !suppress {
		c.send(VariableSetEvent{Type: EventVariableSet, Identifier: id, Value: value})
	}
	return nil
}

// GetVariable reads a previously stored value. A read on a key that was
// never set is surfaced as "not found", never as a silent default; the
// emitter inserts explicit fallbacks for unconnected optional ports instead.
func (c *Context) GetVariable(id Identifier) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[key(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s[%d]", fwerrors.ErrVariableNotFound, id.NodeID, id.PortName, id.ExecutionIndex)
	}
	return v, nil
}

// HasVariable reports whether the identifier was set, without treating a
// missing key as an error. Used by generated code to tolerate "not yet
// executed" reads of conditional instances.
func (c *Context) HasVariable(id Identifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.vars[key(id)]
	return ok
}

// RegisterPullExecutor registers the on-demand executor for a lazily
// triggered instance at the program point where its eager call would have
// appeared.
func (c *Context) RegisterPullExecutor(nodeID string, fn PullExecutor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pullExecutors[nodeID] = fn
}

// Pull invokes the registered executor for the instance on first demand and
// memoizes its result for the remainder of the invocation: at most one real
// execution per workflow run, re-derivable any number of times by readers.
func (c *Context) Pull(nodeID string) (interface{}, error) {
	c.mu.Lock()
	if v, ok := c.pullResults[nodeID]; ok {
		c.mu.Unlock()
		return v, nil
	}
	fn, ok := c.pullExecutors[nodeID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", fwerrors.ErrNoPullExecutor, nodeID)
	}

	v, err := fn()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pullResults[nodeID] = v
	c.mu.Unlock()
	return v, nil
}

// WasPulled reports whether the instance's executor has run.
func (c *Context) WasPulled(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pullResults[nodeID]
	return ok
}

// SendStatusChanged emits a STATUS_CHANGED event for one activation. A
// FAILED status marks the whole invocation as failed for the purpose of the
// final WORKFLOW_COMPLETED status; CANCELLED does not.
func (c *Context) SendStatusChanged(nodeID, nodeTypeName string, executionIndex int, status Status) {
	c.mu.Lock()
	if status == StatusFailed {
		c.failed = true
	}
	c.mu.Unlock()

	c.send(StatusChangedEvent{
		Type:           EventStatusChanged,
		ID:             nodeID,
		NodeTypeName:   nodeTypeName,
		ExecutionIndex: executionIndex,
		Status:         status,
	})
}

// SendWorkflowCompleted emits the WORKFLOW_COMPLETED event, exactly once,
// using the Exit instance's own execution index. The final status is FAILED
// when any activation failed during the invocation and SUCCEEDED otherwise.
func (c *Context) SendWorkflowCompleted(executionIndex int, result interface{}) Status {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return ""
	}
	c.completed = true
	status := StatusSucceeded
	if c.failed {
		status = StatusFailed
	}
	c.mu.Unlock()

	c.send(WorkflowCompletedEvent{
		Type:           EventWorkflowCompleted,
		Status:         status,
		ExecutionIndex: executionIndex,
		Result:         result,
	})
	return status
}

// Failed reports whether any activation failed so far.
func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *Context) send(ev Event) {
	if c.sink != nil {
		c.sink.SendEvent(ev)
	}
}
