// Package history provides the revision history layer for strata.
// It includes SQLite-based storage with WAL mode, per-document head
// tracking for drift detection, and append-only read and drift logs
// covering every write, repair, and default creation.
package history
