package history_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/strataconf/strata/pkg/history"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := history.NewSQLiteStore(history.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_RecordRevision demonstrates recording document revisions.
func ExampleSQLiteStore_RecordRevision() {
	store, _ := history.NewSQLiteStore(history.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record two writes of the same document
	for _, theme := range []string{"dark", "light"} {
		rev, err := history.NewRevision("editor/settings", "settings", "settings",
			history.RevisionOperationWrite, map[string]any{"Theme": theme})
		if err != nil {
			log.Fatal(err)
		}
		if err := store.RecordRevision(ctx, rev); err != nil {
			log.Fatal(err)
		}
	}

	// The head tracks the latest revision
	head, err := store.GetHead(ctx, "editor/settings")
	if err != nil {
		log.Fatal(err)
	}

	latest, err := store.LatestRevision(ctx, "editor/settings")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Revisions: %d, Latest content: %s\n", head.Revisions, latest.Content)
	// Output: Revisions: 2, Latest content: {"Theme":"light"}
}

// ExampleSQLiteStore_PruneRevisions demonstrates trimming revision history.
func ExampleSQLiteStore_PruneRevisions() {
	store, _ := history.NewSQLiteStore(history.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record five revisions
	for i := 0; i < 5; i++ {
		rev, _ := history.NewRevision("editor/settings", "settings", "settings",
			history.RevisionOperationWrite, map[string]any{"Counter": i})
		if err := store.RecordRevision(ctx, rev); err != nil {
			log.Fatal(err)
		}
	}

	// Keep only the newest two
	deleted, err := store.PruneRevisions(ctx, "editor/settings", 2)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Pruned %d revisions\n", deleted)
	// Output: Pruned 3 revisions
}

// ExampleSQLiteStore_AppendDriftEvent demonstrates logging drift findings.
func ExampleSQLiteStore_AppendDriftEvent() {
	store, _ := history.NewSQLiteStore(history.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record a drift finding
	event := &history.DriftEvent{
		DocumentID:   "editor/settings",
		DocumentType: "settings",
		Kind:         history.DriftKindUnknownProperty,
		PropertyPath: "Obsolete",
		Timestamp:    time.Now().UTC(),
	}

	if err := store.AppendDriftEvent(ctx, event); err != nil {
		log.Fatal(err)
	}

	// Retrieve findings for the document
	docID := "editor/settings"
	events, err := store.ListDriftEvents(ctx, &docID, nil, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Findings: %d, Kind: %s, Property: %s\n",
		len(events), events[0].Kind, events[0].PropertyPath)
	// Output: Findings: 1, Kind: unknown_property, Property: Obsolete
}
