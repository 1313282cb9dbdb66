package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/schema"
)

const defaultRequestTimeout = 30 * time.Second

// DocumentService is the document access surface the server dispatches
// requests onto. A workspace satisfies it.
type DocumentService interface {
	// Read returns the composed document under its mode's behaviors.
	Read(ctx context.Context, docType, docID string) (engine.Document, error)

	// Write persists a document tree and returns the file path.
	Write(ctx context.Context, docType, docID string, tree engine.Document) (string, error)

	// Validate composes the document and reports schema violations
	// without writing anything.
	Validate(ctx context.Context, docType, docID string) ([]schema.Violation, error)

	// Resolve returns the composed tree plus resolution counters,
	// bypassing mode behaviors.
	Resolve(ctx context.Context, docType, docID string) (engine.Document, engine.ResolveStats, error)
}

// Server answers protocol requests over an input/output stream pair,
// one request at a time.
type Server struct {
	service DocumentService
	encoder *Encoder
	decoder *Decoder
	logger  zerolog.Logger

	// Verbose makes the server emit a debug EVENT for every request.
	Verbose bool

	requests int
}

// NewServer creates a server reading requests from r and writing
// responses to w.
func NewServer(service DocumentService, r io.Reader, w io.Writer, logger zerolog.Logger) *Server {
	return &Server{
		service: service,
		encoder: NewEncoder(w),
		decoder: NewDecoder(r),
		logger:  logger.With().Str("component", "ipc-server").Logger(),
	}
}

// Serve greets the host application and answers requests until the
// input stream closes or ctx is cancelled. A malformed request line is
// answered with an ERROR message and does not end the session.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.encoder.EncodeHello(s.hello()); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}

	s.logger.Info().Msg("Serving document requests")

	for {
		select {
		case <-ctx.Done():
			s.sendBye("shutdown")
			return ctx.Err()
		default:
		}

		msg, err := s.decoder.Decode()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.sendBye("input_closed")
				return nil
			case errors.Is(err, ErrStream):
				s.sendBye("stream_error")
				return err
			default:
				s.encoder.EncodeError(&ErrorMessage{Code: "BAD_MESSAGE", Message: err.Error()})
				continue
			}
		}

		if msg.Type != MessageTypeRequest {
			s.encoder.EncodeError(&ErrorMessage{
				Code:    "BAD_MESSAGE",
				Message: fmt.Sprintf("expected REQ message, got %s", msg.Type),
			})
			continue
		}

		var req RequestMessage
		if err := ParsePayload(msg.Data, &req); err != nil {
			s.encoder.EncodeError(&ErrorMessage{Code: "BAD_MESSAGE", Message: err.Error()})
			continue
		}
		if err := req.Validate(); err != nil {
			s.encoder.EncodeError(&ErrorMessage{
				RequestID: req.ID,
				Code:      "INVALID_REQUEST",
				Message:   err.Error(),
			})
			continue
		}

		s.handleRequest(ctx, &req)
	}
}

func (s *Server) hello() *HelloMessage {
	return &HelloMessage{
		Version:  ProtocolVersion,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		PID:      os.Getpid(),
		Ops: map[string]bool{
			string(OpRead):     true,
			string(OpWrite):    true,
			string(OpValidate): true,
			string(OpResolve):  true,
		},
		Metadata: map[string]string{
			"default_timeout": defaultRequestTimeout.String(),
		},
	}
}

func (s *Server) handleRequest(ctx context.Context, req *RequestMessage) {
	s.requests++

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.Verbose {
		s.encoder.EncodeEvent(&EventMessage{
			RequestID: req.ID,
			Level:     "debug",
			Message:   fmt.Sprintf("%s %s/%s", req.Op, req.DocType, req.DocID),
		})
	}

	start := time.Now()
	res, err := s.dispatch(reqCtx, req)
	duration := time.Since(start)

	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			code = "OPERATION_FAILED"
		}

		errMsg := &ErrorMessage{RequestID: req.ID, Code: code, Message: err.Error()}
		var engineErr *engine.EngineError
		if errors.As(err, &engineErr) {
			errMsg.Violations = engineErr.Violations
		}

		s.logger.Debug().
			Str("request", req.ID).
			Str("op", string(req.Op)).
			Str("code", code).
			Err(err).
			Msg("Request failed")

		s.encoder.EncodeError(errMsg)
		return
	}

	res.RequestID = req.ID
	res.Duration = duration.Seconds()

	s.logger.Debug().
		Str("request", req.ID).
		Str("op", string(req.Op)).
		Dur("duration", duration).
		Msg("Request served")

	s.encoder.EncodeResponse(res)
}

func (s *Server) dispatch(ctx context.Context, req *RequestMessage) (*ResponseMessage, error) {
	switch req.Op {
	case OpRead:
		tree, err := s.service.Read(ctx, req.DocType, req.DocID)
		if err != nil {
			return nil, err
		}
		return &ResponseMessage{Tree: tree}, nil

	case OpWrite:
		path, err := s.service.Write(ctx, req.DocType, req.DocID, req.Tree)
		if err != nil {
			return nil, err
		}
		return &ResponseMessage{Path: path}, nil

	case OpValidate:
		violations, err := s.service.Validate(ctx, req.DocType, req.DocID)
		if err != nil {
			return nil, err
		}
		return &ResponseMessage{Violations: violations}, nil

	case OpResolve:
		tree, stats, err := s.service.Resolve(ctx, req.DocType, req.DocID)
		if err != nil {
			return nil, err
		}
		return &ResponseMessage{
			Tree: tree,
			Stats: &ResolveStats{
				BasesResolved:     stats.BasesResolved,
				FragmentsExpanded: stats.FragmentsExpanded,
				BasesHealed:       stats.BasesHealed,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s", req.Op)
	}
}

func (s *Server) sendBye(reason string) {
	s.encoder.EncodeBye(&ByeMessage{Reason: reason, Requests: s.requests})
}
