package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// RecordRevision stores a revision and advances the document head in a
// single transaction.
func (s *SQLiteStore) RecordRevision(ctx context.Context, rev *Revision) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// The head row must exist before the revision insert because of the
	// foreign key on revisions.document_id.
	headQuery := `
		INSERT INTO heads (document_id, document_type, hash, revision_id, revisions, first_written, last_written)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			document_type = excluded.document_type,
			hash = excluded.hash,
			revision_id = excluded.revision_id,
			revisions = heads.revisions + 1,
			last_written = excluded.last_written
	`

	_, err = tx.ExecContext(ctx, headQuery,
		rev.DocumentID,
		rev.DocumentType,
		rev.Hash,
		rev.ID,
		rev.CreatedAt,
		rev.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to upsert head: %w", err)
	}

	revisionQuery := `
		INSERT INTO revisions (id, document_id, document_type, mode, operation, hash, size, content, migrations, violations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, revisionQuery,
		rev.ID,
		rev.DocumentID,
		rev.DocumentType,
		rev.Mode,
		rev.Operation,
		rev.Hash,
		rev.Size,
		rev.Content,
		rev.Migrations,
		rev.Violations,
		rev.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert revision: %w", err)
	}

	// Get the auto-generated sequence number
	seq, err := result.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to get revision sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}

	rev.Seq = seq
	return nil
}

// GetRevision retrieves a revision by ID
func (s *SQLiteStore) GetRevision(ctx context.Context, id string) (*Revision, error) {
	query := `
		SELECT id, seq, document_id, document_type, mode, operation, hash, size, content, migrations, violations, created_at
		FROM revisions
		WHERE id = ?
	`

	rev := &Revision{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rev.ID,
		&rev.Seq,
		&rev.DocumentID,
		&rev.DocumentType,
		&rev.Mode,
		&rev.Operation,
		&rev.Hash,
		&rev.Size,
		&rev.Content,
		&rev.Migrations,
		&rev.Violations,
		&rev.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("revision not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}

	return rev, nil
}

// LatestRevision retrieves the most recent revision of a document
func (s *SQLiteStore) LatestRevision(ctx context.Context, documentID string) (*Revision, error) {
	query := `
		SELECT id, seq, document_id, document_type, mode, operation, hash, size, content, migrations, violations, created_at
		FROM revisions
		WHERE document_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`

	rev := &Revision{}
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&rev.ID,
		&rev.Seq,
		&rev.DocumentID,
		&rev.DocumentType,
		&rev.Mode,
		&rev.Operation,
		&rev.Hash,
		&rev.Size,
		&rev.Content,
		&rev.Migrations,
		&rev.Violations,
		&rev.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no revisions for document: %s", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest revision: %w", err)
	}

	return rev, nil
}

// ListRevisions lists revisions with optional filters and pagination,
// newest first
func (s *SQLiteStore) ListRevisions(ctx context.Context, documentID *string, operation *RevisionOperation, limit, offset int) ([]*Revision, error) {
	query := `
		SELECT id, seq, document_id, document_type, mode, operation, hash, size, content, migrations, violations, created_at
		FROM revisions
		WHERE (? IS NULL OR document_id = ?)
		  AND (? IS NULL OR operation = ?)
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, documentID, operation, operation, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	revisions := []*Revision{}
	for rows.Next() {
		rev := &Revision{}
		err := rows.Scan(
			&rev.ID,
			&rev.Seq,
			&rev.DocumentID,
			&rev.DocumentType,
			&rev.Mode,
			&rev.Operation,
			&rev.Hash,
			&rev.Size,
			&rev.Content,
			&rev.Migrations,
			&rev.Violations,
			&rev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return revisions, nil
}

// PruneRevisions deletes all but the newest keep revisions of a document
// and returns the number deleted. The head row is left in place; it still
// describes the latest write.
func (s *SQLiteStore) PruneRevisions(ctx context.Context, documentID string, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be non-negative, got %d", keep)
	}

	query := `
		DELETE FROM revisions
		WHERE document_id = ?
		  AND seq NOT IN (
			SELECT seq FROM revisions
			WHERE document_id = ?
			ORDER BY seq DESC
			LIMIT ?
		  )
	`

	result, err := s.db.ExecContext(ctx, query, documentID, documentID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune revisions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// GetHead retrieves the head row for a document
func (s *SQLiteStore) GetHead(ctx context.Context, documentID string) (*Head, error) {
	query := `
		SELECT document_id, document_type, hash, revision_id, revisions, first_written, last_written
		FROM heads
		WHERE document_id = ?
	`

	head := &Head{}
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&head.DocumentID,
		&head.DocumentType,
		&head.Hash,
		&head.RevisionID,
		&head.Revisions,
		&head.FirstWritten,
		&head.LastWritten,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("head not found: %s", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get head: %w", err)
	}

	return head, nil
}

// ListHeads lists document heads with optional type filter and pagination
func (s *SQLiteStore) ListHeads(ctx context.Context, documentType *string, limit, offset int) ([]*Head, error) {
	query := `
		SELECT document_id, document_type, hash, revision_id, revisions, first_written, last_written
		FROM heads
		WHERE (? IS NULL OR document_type = ?)
		ORDER BY last_written DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, documentType, documentType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list heads: %w", err)
	}
	defer rows.Close()

	heads := []*Head{}
	for rows.Next() {
		head := &Head{}
		err := rows.Scan(
			&head.DocumentID,
			&head.DocumentType,
			&head.Hash,
			&head.RevisionID,
			&head.Revisions,
			&head.FirstWritten,
			&head.LastWritten,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan head: %w", err)
		}
		heads = append(heads, head)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating heads: %w", err)
	}

	return heads, nil
}

// DeleteHead deletes a document head and, through the foreign key cascade,
// every revision recorded for it
func (s *SQLiteStore) DeleteHead(ctx context.Context, documentID string) error {
	query := `DELETE FROM heads WHERE document_id = ?`

	result, err := s.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete head: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("head not found: %s", documentID)
	}

	return nil
}

// AppendReadRecord appends a new entry to the read log
func (s *SQLiteStore) AppendReadRecord(ctx context.Context, rec *ReadRecord) error {
	query := `
		INSERT INTO read_log (document_id, document_type, outcome, error, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.DocumentID,
		rec.DocumentType,
		rec.Outcome,
		rec.Error,
		rec.DurationMS,
		rec.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append read record: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get read record ID: %w", err)
	}

	rec.ID = id
	return nil
}

// ListReadRecords retrieves read log entries with optional filters and
// pagination, newest first
func (s *SQLiteStore) ListReadRecords(ctx context.Context, documentID *string, outcome *ReadOutcome, limit, offset int) ([]*ReadRecord, error) {
	query := `
		SELECT id, document_id, document_type, outcome, error, duration_ms, timestamp
		FROM read_log
		WHERE (? IS NULL OR document_id = ?)
		  AND (? IS NULL OR outcome = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, documentID, outcome, outcome, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list read records: %w", err)
	}
	defer rows.Close()

	records := []*ReadRecord{}
	for rows.Next() {
		rec := &ReadRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.DocumentID,
			&rec.DocumentType,
			&rec.Outcome,
			&rec.Error,
			&rec.DurationMS,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan read record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating read records: %w", err)
	}

	return records, nil
}

// AppendDriftEvent appends a new drift finding to the log
func (s *SQLiteStore) AppendDriftEvent(ctx context.Context, event *DriftEvent) error {
	query := `
		INSERT INTO drift_events (document_id, document_type, kind, property_path, detail, revision_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.DocumentID,
		event.DocumentType,
		event.Kind,
		event.PropertyPath,
		event.Detail,
		event.RevisionID,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append drift event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get drift event ID: %w", err)
	}

	event.ID = id
	return nil
}

// ListDriftEvents retrieves drift findings with optional filters and
// pagination, newest first
func (s *SQLiteStore) ListDriftEvents(ctx context.Context, documentID *string, kind *DriftKind, limit, offset int) ([]*DriftEvent, error) {
	query := `
		SELECT id, document_id, document_type, kind, property_path, detail, revision_id, timestamp
		FROM drift_events
		WHERE (? IS NULL OR document_id = ?)
		  AND (? IS NULL OR kind = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, documentID, kind, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list drift events: %w", err)
	}
	defer rows.Close()

	events := []*DriftEvent{}
	for rows.Next() {
		event := &DriftEvent{}
		err := rows.Scan(
			&event.ID,
			&event.DocumentID,
			&event.DocumentType,
			&event.Kind,
			&event.PropertyPath,
			&event.Detail,
			&event.RevisionID,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drift event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drift events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is alive
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
