// Package ipc defines the JSON-over-stdio protocol that strata serve
// speaks to a host application, plus the server and client for it.
//
// Messages are newline-delimited JSON envelopes. The server greets with
// HELLO, answers each REQ with a RES or an ERROR, may interleave EVENT
// messages, and sends BYE before the session ends. Requests are handled
// one at a time in arrival order.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/schema"
)

// ProtocolVersion identifies the wire protocol spoken by this package.
const ProtocolVersion = "1"

// MessageType represents the type of a protocol message.
type MessageType string

const (
	// MessageTypeHello is sent by the server once it is ready.
	MessageTypeHello MessageType = "HELLO"
	// MessageTypeRequest carries an operation from the host application.
	MessageTypeRequest MessageType = "REQ"
	// MessageTypeResponse carries a successful operation result.
	MessageTypeResponse MessageType = "RES"
	// MessageTypeEvent carries diagnostic output during a request.
	MessageTypeEvent MessageType = "EVENT"
	// MessageTypeError reports a failed request or a protocol fault.
	MessageTypeError MessageType = "ERROR"
	// MessageTypeBye announces the end of the session.
	MessageTypeBye MessageType = "BYE"
)

// OpType represents the document operation a request asks for.
type OpType string

const (
	// OpRead returns the composed document for its behavior mode.
	OpRead OpType = "read"
	// OpWrite persists a document tree.
	OpWrite OpType = "write"
	// OpValidate reports schema violations without writing anything.
	OpValidate OpType = "validate"
	// OpResolve returns the composed tree plus resolution counters.
	OpResolve OpType = "resolve"
)

// Message is the envelope carried by every protocol line.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HelloMessage is sent when the server is ready to receive requests.
type HelloMessage struct {
	Version  string            `json:"version"`
	Platform string            `json:"platform"`
	Arch     string            `json:"arch"`
	PID      int               `json:"pid"`
	Ops      map[string]bool   `json:"ops"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RequestMessage asks the server to perform one document operation.
type RequestMessage struct {
	ID       string            `json:"id"`
	Op       OpType            `json:"op"`
	DocType  string            `json:"type"`
	DocID    string            `json:"document"`
	Tree     engine.Document   `json:"tree,omitempty"`
	Timeout  int               `json:"timeout,omitempty"` // seconds, 0 = server default
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ResponseMessage carries the result of a successful request.
type ResponseMessage struct {
	RequestID  string             `json:"request_id"`
	Tree       engine.Document    `json:"tree,omitempty"`
	Path       string             `json:"path,omitempty"`
	Violations []schema.Violation `json:"violations,omitempty"`
	Stats      *ResolveStats      `json:"stats,omitempty"`
	Duration   float64            `json:"duration"` // seconds
}

// ResolveStats mirrors the engine's resolution counters on the wire.
type ResolveStats struct {
	BasesResolved     int `json:"bases_resolved"`
	FragmentsExpanded int `json:"fragments_expanded"`
	BasesHealed       int `json:"bases_healed"`
}

// EventMessage carries diagnostic output tied to a request.
type EventMessage struct {
	RequestID string `json:"request_id"`
	Level     string `json:"level"` // info, warn, debug
	Message   string `json:"message"`
}

// ErrorMessage reports a failed request. Code carries the engine's
// stable error code when the failure came out of document composition.
type ErrorMessage struct {
	RequestID  string             `json:"request_id,omitempty"`
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Violations []schema.Violation `json:"violations,omitempty"`
}

// ByeMessage is sent before the session ends.
type ByeMessage struct {
	Reason   string `json:"reason"`
	Requests int    `json:"requests"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeHello, MessageTypeRequest, MessageTypeResponse,
		MessageTypeEvent, MessageTypeError, MessageTypeBye:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the operation type is valid.
func (op OpType) Validate() error {
	switch op {
	case OpRead, OpWrite, OpValidate, OpResolve:
		return nil
	default:
		return fmt.Errorf("invalid operation: %s", op)
	}
}

// Validate checks if the request message is well formed.
func (req *RequestMessage) Validate() error {
	if req.ID == "" {
		return fmt.Errorf("request ID is required")
	}
	if err := req.Op.Validate(); err != nil {
		return err
	}
	if req.DocType == "" {
		return fmt.Errorf("document type is required")
	}
	if req.DocID == "" {
		return fmt.Errorf("document ID is required")
	}
	if req.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if req.Op == OpWrite && req.Tree == nil {
		return fmt.Errorf("write requests require a tree")
	}
	return nil
}

// Validate checks if the event message is well formed.
func (evt *EventMessage) Validate() error {
	if evt.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if evt.Level == "" {
		evt.Level = "info"
	}
	switch evt.Level {
	case "info", "warn", "debug":
		return nil
	default:
		return fmt.Errorf("invalid event level: %s", evt.Level)
	}
}
