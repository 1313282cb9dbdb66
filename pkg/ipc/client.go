package ipc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/schema"
)

// RequestError is a failure reported by the server for one request.
type RequestError struct {
	Code       string
	Message    string
	Violations []schema.Violation
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks the protocol from the host application's side. Requests
// are serialized: one request is in flight at a time.
type Client struct {
	encoder *Encoder
	decoder *Decoder
	w       io.Writer

	mu     sync.Mutex
	hello  *HelloMessage
	closed bool
}

// NewClient creates a client writing requests to w and reading server
// messages from r, typically the stdin and stdout of a serve process.
func NewClient(w io.Writer, r io.Reader) *Client {
	return &Client{
		encoder: NewEncoder(w),
		decoder: NewDecoder(r),
		w:       w,
	}
}

// Handshake waits for the server's HELLO message.
func (c *Client) Handshake(ctx context.Context, timeout time.Duration) (*HelloMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}
	if c.hello != nil {
		return c.hello, nil
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	helloCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	helloCh := make(chan *HelloMessage, 1)
	errCh := make(chan error, 1)

	go func() {
		msg, err := c.decoder.Decode()
		if err != nil {
			errCh <- err
			return
		}
		if msg.Type != MessageTypeHello {
			errCh <- fmt.Errorf("expected HELLO, got %s", msg.Type)
			return
		}
		var hello HelloMessage
		if err := ParsePayload(msg.Data, &hello); err != nil {
			errCh <- err
			return
		}
		helloCh <- &hello
	}()

	select {
	case <-helloCtx.Done():
		return nil, fmt.Errorf("timeout waiting for HELLO message")
	case err := <-errCh:
		return nil, fmt.Errorf("failed to receive HELLO: %w", err)
	case hello := <-helloCh:
		c.hello = hello
		return hello, nil
	}
}

// Hello returns the HELLO message received during the handshake.
func (c *Client) Hello() *HelloMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello
}

// Do sends a request and waits for its response, discarding events.
func (c *Client) Do(ctx context.Context, req *RequestMessage) (*ResponseMessage, error) {
	return c.DoWithEvents(ctx, req, nil)
}

// DoWithEvents sends a request and waits for its response, forwarding
// interleaved events to eventCh when it is non-nil.
func (c *Client) DoWithEvents(ctx context.Context, req *RequestMessage, eventCh chan<- *EventMessage) (*ResponseMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.encoder.EncodeRequest(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	for {
		msg, err := c.decoder.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		switch msg.Type {
		case MessageTypeEvent:
			var event EventMessage
			if err := ParsePayload(msg.Data, &event); err != nil {
				return nil, fmt.Errorf("failed to parse event: %w", err)
			}
			if eventCh != nil {
				eventCh <- &event
			}

		case MessageTypeResponse:
			var res ResponseMessage
			if err := ParsePayload(msg.Data, &res); err != nil {
				return nil, fmt.Errorf("failed to parse response: %w", err)
			}
			if res.RequestID != req.ID {
				return nil, fmt.Errorf("request ID mismatch: expected %s, got %s", req.ID, res.RequestID)
			}
			return &res, nil

		case MessageTypeError:
			var errMsg ErrorMessage
			if err := ParsePayload(msg.Data, &errMsg); err != nil {
				return nil, fmt.Errorf("failed to parse error: %w", err)
			}
			if errMsg.RequestID != "" && errMsg.RequestID != req.ID {
				return nil, fmt.Errorf("request ID mismatch: expected %s, got %s", req.ID, errMsg.RequestID)
			}
			return nil, &RequestError{
				Code:       errMsg.Code,
				Message:    errMsg.Message,
				Violations: errMsg.Violations,
			}

		case MessageTypeBye:
			return nil, fmt.Errorf("server closed the session")

		default:
			return nil, fmt.Errorf("unexpected message type: %s", msg.Type)
		}
	}
}

// Read returns the composed document for docID.
func (c *Client) Read(ctx context.Context, docType, docID string) (engine.Document, error) {
	res, err := c.Do(ctx, &RequestMessage{
		ID:      uuid.NewString(),
		Op:      OpRead,
		DocType: docType,
		DocID:   docID,
	})
	if err != nil {
		return nil, err
	}
	return res.Tree, nil
}

// Write persists tree as document docID and returns the file path.
func (c *Client) Write(ctx context.Context, docType, docID string, tree engine.Document) (string, error) {
	res, err := c.Do(ctx, &RequestMessage{
		ID:      uuid.NewString(),
		Op:      OpWrite,
		DocType: docType,
		DocID:   docID,
		Tree:    tree,
	})
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Validate reports the document's schema violations.
func (c *Client) Validate(ctx context.Context, docType, docID string) ([]schema.Violation, error) {
	res, err := c.Do(ctx, &RequestMessage{
		ID:      uuid.NewString(),
		Op:      OpValidate,
		DocType: docType,
		DocID:   docID,
	})
	if err != nil {
		return nil, err
	}
	return res.Violations, nil
}

// Resolve returns the composed tree plus resolution counters.
func (c *Client) Resolve(ctx context.Context, docType, docID string) (engine.Document, *ResolveStats, error) {
	res, err := c.Do(ctx, &RequestMessage{
		ID:      uuid.NewString(),
		Op:      OpResolve,
		DocType: docType,
		DocID:   docID,
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Tree, res.Stats, nil
}

// Close ends the session by closing the request stream when it is
// closable, which makes the server send BYE and exit its loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if closer, ok := c.w.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close request stream: %w", err)
		}
	}
	return nil
}
