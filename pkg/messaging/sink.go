// Package messaging streams workflow instrumentation events over NATS.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
)

// EventSink publishes execution events to a NATS subject as JSON. It
// implements execution.EventSink; publishing is fire-and-forget so a slow
// broker never blocks the running workflow, with failures surfaced through
// the logger and a drop counter.
type EventSink struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger

	dropped atomic.Int64
}

// NewEventSink creates a sink publishing to the given subject, typically
// "<prefix>.<runID>" so consumers can subscribe per invocation or with a
// wildcard.
func NewEventSink(conn *nats.Conn, subject string, logger *zap.Logger) (*EventSink, error) {
	if conn == nil {
		return nil, fmt.Errorf("messaging: connection cannot be nil")
	}
	if subject == "" {
		return nil, fmt.Errorf("messaging: subject cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{conn: conn, subject: subject, log: logger}, nil
}

// SendEvent implements execution.EventSink.
func (s *EventSink) SendEvent(event execution.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.dropped.Add(1)
		s.log.Error("failed to marshal event",
			zap.String("subject", s.subject),
			zap.String("event_type", string(event.Kind())),
			zap.Error(err))
		return
	}
	if err := s.conn.Publish(s.subject, payload); err != nil {
		s.dropped.Add(1)
		s.log.Error("failed to publish event",
			zap.String("subject", s.subject),
			zap.String("event_type", string(event.Kind())),
			zap.Error(err))
	}
}

// Dropped returns the number of events lost to marshal or publish failures.
func (s *EventSink) Dropped() int64 {
	return s.dropped.Load()
}

// Flush waits for buffered publishes to reach the server.
func (s *EventSink) Flush() error {
	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("messaging: flush: %w", err)
	}
	return nil
}
