package ipc

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/schema"
)

// fakeService serves canned documents for server tests.
type fakeService struct {
	docs       map[string]engine.Document
	violations map[string][]schema.Violation
	stats      engine.ResolveStats
	writes     map[string]engine.Document
	failWith   error
}

func newFakeService() *fakeService {
	return &fakeService{
		docs:       map[string]engine.Document{},
		violations: map[string][]schema.Violation{},
		writes:     map[string]engine.Document{},
	}
}

func serviceKey(docType, docID string) string {
	return docType + "/" + docID
}

func (f *fakeService) Read(ctx context.Context, docType, docID string) (engine.Document, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	doc, ok := f.docs[serviceKey(docType, docID)]
	if !ok {
		return nil, engine.NewDocumentLoadFailedError(docID+".json", os.ErrNotExist)
	}
	return doc, nil
}

func (f *fakeService) Write(ctx context.Context, docType, docID string, tree engine.Document) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.writes[serviceKey(docType, docID)] = tree
	return "/workspace/" + docID + ".json", nil
}

func (f *fakeService) Validate(ctx context.Context, docType, docID string) ([]schema.Violation, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.violations[serviceKey(docType, docID)], nil
}

func (f *fakeService) Resolve(ctx context.Context, docType, docID string) (engine.Document, engine.ResolveStats, error) {
	if f.failWith != nil {
		return nil, engine.ResolveStats{}, f.failWith
	}
	doc, ok := f.docs[serviceKey(docType, docID)]
	if !ok {
		return nil, engine.ResolveStats{}, engine.NewDocumentLoadFailedError(docID+".json", os.ErrNotExist)
	}
	return doc, f.stats, nil
}

// startPair runs a server over in-memory pipes and returns a connected
// client.
func startPair(t *testing.T, svc DocumentService, verbose bool) *Client {
	t.Helper()

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	server := NewServer(svc, clientToServerR, serverToClientW, zerolog.New(nil).Level(zerolog.Disabled))
	server.Verbose = verbose

	done := make(chan struct{})
	go func() {
		server.Serve(context.Background())
		close(done)
	}()

	client := NewClient(clientToServerW, serverToClientR)
	t.Cleanup(func() {
		client.Close()
		serverToClientR.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})

	if _, err := client.Handshake(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	return client
}

func TestServer_Handshake(t *testing.T) {
	client := startPair(t, newFakeService(), false)

	hello := client.Hello()
	if hello == nil {
		t.Fatal("expected hello message")
	}
	if hello.Version != ProtocolVersion {
		t.Errorf("expected version %s, got %s", ProtocolVersion, hello.Version)
	}
	for _, op := range []OpType{OpRead, OpWrite, OpValidate, OpResolve} {
		if !hello.Ops[string(op)] {
			t.Errorf("expected op %s to be advertised", op)
		}
	}
	if hello.Metadata["default_timeout"] == "" {
		t.Error("expected default timeout in metadata")
	}
}

func TestServer_Read(t *testing.T) {
	svc := newFakeService()
	svc.docs["settings/editor/settings"] = engine.Document{
		"Theme":    "dark",
		"FontSize": float64(14),
	}
	client := startPair(t, svc, false)

	tree, err := client.Read(context.Background(), "settings", "editor/settings")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if tree["Theme"] != "dark" {
		t.Errorf("expected Theme 'dark', got %v", tree["Theme"])
	}
	if tree["FontSize"] != float64(14) {
		t.Errorf("expected FontSize 14, got %v", tree["FontSize"])
	}
}

func TestServer_ReadError(t *testing.T) {
	client := startPair(t, newFakeService(), false)

	_, err := client.Read(context.Background(), "settings", "missing")
	if err == nil {
		t.Fatal("expected error for missing document")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if reqErr.Code != engine.ErrCodeDocumentLoadFailed {
		t.Errorf("expected code %s, got %s", engine.ErrCodeDocumentLoadFailed, reqErr.Code)
	}
}

func TestServer_Write(t *testing.T) {
	svc := newFakeService()
	client := startPair(t, svc, false)

	tree := engine.Document{"Theme": "light"}
	path, err := client.Write(context.Background(), "settings", "editor/settings", tree)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if path != "/workspace/editor/settings.json" {
		t.Errorf("unexpected path: %s", path)
	}

	written := svc.writes["settings/editor/settings"]
	if written == nil || written["Theme"] != "light" {
		t.Errorf("expected tree to reach the service, got %v", written)
	}
}

func TestServer_Validate(t *testing.T) {
	svc := newFakeService()
	svc.violations["settings/editor/settings"] = []schema.Violation{
		{Kind: schema.MissingRequiredProperty, Path: "Theme"},
	}
	client := startPair(t, svc, false)

	violations, err := client.Validate(context.Background(), "settings", "editor/settings")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].Kind != schema.MissingRequiredProperty || violations[0].Path != "Theme" {
		t.Errorf("violation lost in transit: %+v", violations[0])
	}
}

func TestServer_Resolve(t *testing.T) {
	svc := newFakeService()
	svc.docs["settings/editor/settings"] = engine.Document{"Theme": "dark"}
	svc.stats = engine.ResolveStats{BasesResolved: 2, FragmentsExpanded: 1}
	client := startPair(t, svc, false)

	tree, stats, err := client.Resolve(context.Background(), "settings", "editor/settings")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if tree["Theme"] != "dark" {
		t.Errorf("expected Theme 'dark', got %v", tree["Theme"])
	}
	if stats == nil || stats.BasesResolved != 2 || stats.FragmentsExpanded != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestServer_ValidationErrorCarriesViolations(t *testing.T) {
	svc := newFakeService()
	svc.failWith = engine.NewMergedValidationFailedError("editor/settings.json", []schema.Violation{
		{Kind: schema.TypeMismatch, Path: "FontSize", Expected: "number", Actual: "string"},
	})
	client := startPair(t, svc, false)

	_, err := client.Read(context.Background(), "settings", "editor/settings")
	if err == nil {
		t.Fatal("expected error")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if len(reqErr.Violations) != 1 {
		t.Fatalf("expected 1 violation on the error, got %d", len(reqErr.Violations))
	}
	if reqErr.Violations[0].Path != "FontSize" {
		t.Errorf("violation lost in transit: %+v", reqErr.Violations[0])
	}
}

func TestServer_VerboseEvents(t *testing.T) {
	svc := newFakeService()
	svc.docs["settings/editor/settings"] = engine.Document{"Theme": "dark"}
	client := startPair(t, svc, true)

	eventCh := make(chan *EventMessage, 8)
	res, err := client.DoWithEvents(context.Background(), &RequestMessage{
		ID:      "req-events",
		Op:      OpRead,
		DocType: "settings",
		DocID:   "editor/settings",
	}, eventCh)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if res.Tree["Theme"] != "dark" {
		t.Errorf("expected document in response, got %v", res.Tree)
	}

	select {
	case event := <-eventCh:
		if event.Level != "debug" {
			t.Errorf("expected debug event, got %s", event.Level)
		}
		if event.RequestID != "req-events" {
			t.Errorf("expected event for req-events, got %s", event.RequestID)
		}
	default:
		t.Error("expected a verbose event")
	}
}

func TestServer_MalformedInputKeepsServing(t *testing.T) {
	svc := newFakeService()
	svc.docs["settings/editor"] = engine.Document{"Theme": "dark"}

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	server := NewServer(svc, clientToServerR, serverToClientW, zerolog.New(nil).Level(zerolog.Disabled))

	done := make(chan struct{})
	go func() {
		server.Serve(context.Background())
		close(done)
	}()
	defer func() {
		clientToServerW.Close()
		serverToClientR.Close()
		<-done
	}()

	enc := NewEncoder(clientToServerW)
	dec := NewDecoder(serverToClientR)

	msg, err := dec.Decode()
	if err != nil || msg.Type != MessageTypeHello {
		t.Fatalf("expected HELLO, got %v (%v)", msg, err)
	}

	// A line that is not JSON at all.
	if _, err := clientToServerW.Write([]byte("{broken\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	msg, err = dec.Decode()
	if err != nil || msg.Type != MessageTypeError {
		t.Fatalf("expected ERROR for broken line, got %v (%v)", msg, err)
	}

	// A request with no ID.
	if err := enc.Encode(MessageTypeRequest, map[string]any{"op": "read", "type": "settings", "document": "editor"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	msg, err = dec.Decode()
	if err != nil || msg.Type != MessageTypeError {
		t.Fatalf("expected ERROR for invalid request, got %v (%v)", msg, err)
	}
	var errMsg ErrorMessage
	if err := ParsePayload(msg.Data, &errMsg); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if errMsg.Code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %s", errMsg.Code)
	}

	// An envelope that is not a request.
	if err := enc.Encode(MessageTypeBye, &ByeMessage{Reason: "confused"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	msg, err = dec.Decode()
	if err != nil || msg.Type != MessageTypeError {
		t.Fatalf("expected ERROR for non-request, got %v (%v)", msg, err)
	}

	// The session still serves valid requests.
	if err := enc.Encode(MessageTypeRequest, &RequestMessage{
		ID: "req-1", Op: OpRead, DocType: "settings", DocID: "editor",
	}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	msg, err = dec.Decode()
	if err != nil || msg.Type != MessageTypeResponse {
		t.Fatalf("expected RES after recovery, got %v (%v)", msg, err)
	}
	var res ResponseMessage
	if err := ParsePayload(msg.Data, &res); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if res.RequestID != "req-1" {
		t.Errorf("expected request_id req-1, got %s", res.RequestID)
	}
}

func TestServer_ByeOnInputClose(t *testing.T) {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	server := NewServer(newFakeService(), clientToServerR, serverToClientW, zerolog.New(nil).Level(zerolog.Disabled))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background())
	}()

	dec := NewDecoder(serverToClientR)
	if msg, err := dec.Decode(); err != nil || msg.Type != MessageTypeHello {
		t.Fatalf("expected HELLO, got %v (%v)", msg, err)
	}

	clientToServerW.Close()

	msg, err := dec.Decode()
	if err != nil || msg.Type != MessageTypeBye {
		t.Fatalf("expected BYE, got %v (%v)", msg, err)
	}
	var bye ByeMessage
	if err := ParsePayload(msg.Data, &bye); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if bye.Reason != "input_closed" {
		t.Errorf("expected reason input_closed, got %s", bye.Reason)
	}

	if err := <-errCh; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
	serverToClientR.Close()
}
