package history

import (
	"context"
	"database/sql"
	"time"
)

// RevisionOperation represents the store mutation that produced a revision
type RevisionOperation string

const (
	// RevisionOperationWrite records an explicit caller write.
	RevisionOperationWrite RevisionOperation = "write"
	// RevisionOperationRepair records a sanitizer rewrite of a drifted document.
	RevisionOperationRepair RevisionOperation = "repair"
	// RevisionOperationDefault records the creation of a default document.
	RevisionOperationDefault RevisionOperation = "default"
)

// ReadOutcome represents how a document read concluded
type ReadOutcome string

const (
	ReadOutcomeOK             ReadOutcome = "ok"
	ReadOutcomeDefaultCreated ReadOutcome = "default_created"
	ReadOutcomeSanitized      ReadOutcome = "sanitized"
	ReadOutcomeFailed         ReadOutcome = "failed"
)

// DriftKind represents the category of a recorded drift finding
type DriftKind string

const (
	DriftKindUnknownProperty DriftKind = "unknown_property"
	DriftKindMissingProperty DriftKind = "missing_property"
	DriftKindTypeMismatch    DriftKind = "type_mismatch"
	DriftKindMigration       DriftKind = "migration"
)

// Revision is an immutable snapshot of a document as it was persisted
type Revision struct {
	ID           string            `json:"id"`
	Seq          int64             `json:"seq"`
	DocumentID   string            `json:"document_id"`
	DocumentType string            `json:"document_type"`
	Mode         string            `json:"mode"` // settings, state, output
	Operation    RevisionOperation `json:"operation"`
	Hash         string            `json:"hash"`                 // SHA256 of content
	Size         int64             `json:"size"`                 // content length in bytes
	Content      string            `json:"content"`              // JSON blob
	Migrations   *string           `json:"migrations,omitempty"` // JSON array
	Violations   *string           `json:"violations,omitempty"` // JSON array
	CreatedAt    time.Time         `json:"created_at"`
}

// Head tracks the latest persisted revision of a document
type Head struct {
	DocumentID   string    `json:"document_id"`
	DocumentType string    `json:"document_type"`
	Hash         string    `json:"hash"` // SHA256 of the latest content
	RevisionID   string    `json:"revision_id"`
	Revisions    int       `json:"revisions"` // total revisions recorded
	FirstWritten time.Time `json:"first_written"`
	LastWritten  time.Time `json:"last_written"`
}

// ReadRecord represents an append-only audit entry for a document read
type ReadRecord struct {
	ID           int64       `json:"id"`
	DocumentID   string      `json:"document_id"`
	DocumentType string      `json:"document_type"`
	Outcome      ReadOutcome `json:"outcome"`
	Error        *string     `json:"error,omitempty"`
	DurationMS   int64       `json:"duration_ms"`
	Timestamp    time.Time   `json:"timestamp"`
}

// DriftEvent records a single drift finding for a document
type DriftEvent struct {
	ID           int64     `json:"id"`
	DocumentID   string    `json:"document_id"`
	DocumentType string    `json:"document_type"`
	Kind         DriftKind `json:"kind"`
	PropertyPath string    `json:"property_path"`
	Detail       *string   `json:"detail,omitempty"`      // JSON blob
	RevisionID   *string   `json:"revision_id,omitempty"` // revision that repaired the drift, if any
	Timestamp    time.Time `json:"timestamp"`
}

// Store defines the interface for the revision history layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Revision operations
	RecordRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, id string) (*Revision, error)
	LatestRevision(ctx context.Context, documentID string) (*Revision, error)
	ListRevisions(ctx context.Context, documentID *string, operation *RevisionOperation, limit, offset int) ([]*Revision, error)
	PruneRevisions(ctx context.Context, documentID string, keep int) (int64, error)

	// Head operations
	GetHead(ctx context.Context, documentID string) (*Head, error)
	ListHeads(ctx context.Context, documentType *string, limit, offset int) ([]*Head, error)
	DeleteHead(ctx context.Context, documentID string) error

	// Read log operations
	AppendReadRecord(ctx context.Context, rec *ReadRecord) error
	ListReadRecords(ctx context.Context, documentID *string, outcome *ReadOutcome, limit, offset int) ([]*ReadRecord, error)

	// Drift operations
	AppendDriftEvent(ctx context.Context, event *DriftEvent) error
	ListDriftEvents(ctx context.Context, documentID *string, kind *DriftKind, limit, offset int) ([]*DriftEvent, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
