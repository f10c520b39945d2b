package execution

import "sync"

// EventType discriminates the wire shape of an instrumentation event.
type EventType string

const (
	// EventStatusChanged reports a node activation status transition.
	EventStatusChanged EventType = "STATUS_CHANGED"
	// EventVariableSet reports a value written to a variable slot.
	EventVariableSet EventType = "VARIABLE_SET"
	// EventWorkflowCompleted reports the final workflow outcome.
	EventWorkflowCompleted EventType = "WORKFLOW_COMPLETED"
)

// Status is the lifecycle state of one node activation.
type Status string

const (
	// StatusRunning is emitted immediately before a node function is invoked.
	StatusRunning Status = "RUNNING"
	// StatusSucceeded is emitted after a node function returns successfully.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed is emitted when a node function throws or returns its
	// failure indicator.
	StatusFailed Status = "FAILED"
	// StatusCancelled is emitted for instances made unreachable by a branch
	// decision or an aborted sub-tree.
	StatusCancelled Status = "CANCELLED"
)

// Side disambiguates a scoped port's value as it enters vs. leaves the scope
// boundary.
type Side string

const (
	// SideStart marks values flowing from parent into a scope activation.
	SideStart Side = "start"
	// SideExit marks values flowing from a scope activation back to parent.
	SideExit Side = "exit"
)

// Mode selects how much instrumentation a context emits.
type Mode string

const (
	// ModeDebug emits every status and variable event, including
	// scope-boundary crossings.
	ModeDebug Mode = "debug"
	// ModeProduction suppresses scope-boundary VARIABLE_SET events while
	// preserving WORKFLOW_COMPLETED and status events.
	ModeProduction Mode = "production"
)

// Identifier addresses a single variable slot. Write-once per key in normal
// operation; read any number of times.
type Identifier struct {
	// NodeID is the owning instance id.
	NodeID string `json:"id"`
	// NodeTypeName is the instance's node type, when known.
	NodeTypeName string `json:"nodeTypeName,omitempty"`
	// PortName is the port the value belongs to.
	PortName string `json:"portName"`
	// ExecutionIndex is the activation the value belongs to.
	ExecutionIndex int `json:"executionIndex"`
	// Scope qualifies scoped port occurrences.
	Scope string `json:"scope,omitempty"`
	// Side disambiguates scope-boundary crossings.
	Side Side `json:"side,omitempty"`
}

// Event is one instrumentation record on the wire.
type Event interface {
	Kind() EventType
}

// StatusChangedEvent reports a node activation status transition.
type StatusChangedEvent struct {
	Type           EventType `json:"type"`
	ID             string    `json:"id"`
	NodeTypeName   string    `json:"nodeTypeName"`
	ExecutionIndex int       `json:"executionIndex"`
	Status         Status    `json:"status"`
}

// Kind implements Event.
func (e StatusChangedEvent) Kind() EventType { return EventStatusChanged }

// VariableSetEvent reports a value written to a variable slot.
type VariableSetEvent struct {
	Type       EventType   `json:"type"`
	Identifier Identifier  `json:"identifier"`
	Value      interface{} `json:"value"`
}

// Kind implements Event.
func (e VariableSetEvent) Kind() EventType { return EventVariableSet }

// WorkflowCompletedEvent reports the final workflow outcome. It is emitted
// exactly once per invocation, after the Exit instance's own status event,
// carrying the Exit instance's execution index.
type WorkflowCompletedEvent struct {
	Type           EventType   `json:"type"`
	Status         Status      `json:"status"`
	ExecutionIndex int         `json:"executionIndex"`
	Result         interface{} `json:"result"`
}

// Kind implements Event.
func (e WorkflowCompletedEvent) Kind() EventType { return EventWorkflowCompleted }

// EventSink receives instrumentation events in emission order.
type EventSink interface {
	SendEvent(event Event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(event Event)

// SendEvent implements EventSink.
func (f SinkFunc) SendEvent(event Event) { f(event) }

// CollectingSink buffers events in memory, preserving emission order.
type CollectingSink struct {
	mu     sync.Mutex
	events []Event
}

// SendEvent implements EventSink.
func (s *CollectingSink) SendEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the buffered events.
func (s *CollectingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// StatusEvents returns the buffered STATUS_CHANGED events for one instance.
func (s *CollectingSink) StatusEvents(nodeID string) []StatusChangedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StatusChangedEvent
	for _, ev := range s.events {
		if sc, ok := ev.(StatusChangedEvent); ok && sc.ID == nodeID {
			out = append(out, sc)
		}
	}
	return out
}
