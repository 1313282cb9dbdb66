package ipc

import (
	"testing"

	"github.com/strataconf/strata/pkg/engine"
)

func TestMessageTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		wantErr bool
	}{
		{"valid HELLO", MessageTypeHello, false},
		{"valid REQ", MessageTypeRequest, false},
		{"valid RES", MessageTypeResponse, false},
		{"valid EVENT", MessageTypeEvent, false},
		{"valid ERROR", MessageTypeError, false},
		{"valid BYE", MessageTypeBye, false},
		{"invalid type", MessageType("INVALID"), true},
		{"empty type", MessageType(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msgType.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("MessageType.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      OpType
		wantErr bool
	}{
		{"valid read", OpRead, false},
		{"valid write", OpWrite, false},
		{"valid validate", OpValidate, false},
		{"valid resolve", OpResolve, false},
		{"invalid op", OpType("delete"), true},
		{"empty op", OpType(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("OpType.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     *RequestMessage
		wantErr bool
	}{
		{
			name: "valid read",
			req: &RequestMessage{
				ID:      "req-1",
				Op:      OpRead,
				DocType: "settings",
				DocID:   "editor/settings",
			},
			wantErr: false,
		},
		{
			name: "valid write",
			req: &RequestMessage{
				ID:      "req-2",
				Op:      OpWrite,
				DocType: "settings",
				DocID:   "editor/settings",
				Tree:    engine.Document{"Theme": "dark"},
			},
			wantErr: false,
		},
		{
			name: "missing ID",
			req: &RequestMessage{
				Op:      OpRead,
				DocType: "settings",
				DocID:   "editor/settings",
			},
			wantErr: true,
		},
		{
			name: "invalid op",
			req: &RequestMessage{
				ID:      "req-3",
				Op:      OpType("delete"),
				DocType: "settings",
				DocID:   "editor/settings",
			},
			wantErr: true,
		},
		{
			name: "missing document type",
			req: &RequestMessage{
				ID:    "req-4",
				Op:    OpRead,
				DocID: "editor/settings",
			},
			wantErr: true,
		},
		{
			name: "missing document ID",
			req: &RequestMessage{
				ID:      "req-5",
				Op:      OpRead,
				DocType: "settings",
			},
			wantErr: true,
		},
		{
			name: "negative timeout",
			req: &RequestMessage{
				ID:      "req-6",
				Op:      OpRead,
				DocType: "settings",
				DocID:   "editor/settings",
				Timeout: -1,
			},
			wantErr: true,
		},
		{
			name: "write without tree",
			req: &RequestMessage{
				ID:      "req-7",
				Op:      OpWrite,
				DocType: "settings",
				DocID:   "editor/settings",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("RequestMessage.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		evt     *EventMessage
		wantErr bool
	}{
		{
			name:    "valid event",
			evt:     &EventMessage{RequestID: "req-1", Level: "info", Message: "Resolving"},
			wantErr: false,
		},
		{
			name:    "missing request ID",
			evt:     &EventMessage{Level: "info", Message: "Resolving"},
			wantErr: true,
		},
		{
			name:    "invalid level",
			evt:     &EventMessage{RequestID: "req-1", Level: "fatal", Message: "Resolving"},
			wantErr: true,
		},
		{
			name:    "empty level defaults to info",
			evt:     &EventMessage{RequestID: "req-1", Message: "Resolving"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("EventMessage.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.evt.RequestID != "" && tt.evt.Level == "" {
				t.Error("expected empty level to be defaulted")
			}
		})
	}
}
