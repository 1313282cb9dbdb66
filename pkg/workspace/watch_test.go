package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// startWatch runs Watch in the background and returns a channel of
// notification batches plus the Watch error channel.
func startWatch(t *testing.T, ws *Workspace, ctx context.Context, debounce time.Duration) (<-chan []string, <-chan error) {
	t.Helper()

	batches := make(chan []string, 8)
	done := make(chan error, 1)
	go func() {
		done <- ws.Watch(ctx, debounce, func(_ context.Context, ids []string) {
			batches <- ids
		})
	}()

	// Give the watcher time to register the directory tree.
	time.Sleep(200 * time.Millisecond)
	return batches, done
}

// collectIDs drains batches until every wanted id was seen or the
// timeout expires.
func collectIDs(t *testing.T, batches <-chan []string, want []string, timeout time.Duration) {
	t.Helper()

	seen := make(map[string]bool)
	deadline := time.After(timeout)
	for {
		select {
		case ids := <-batches:
			if !sort.StringsAreSorted(ids) {
				t.Errorf("batch not sorted: %v", ids)
			}
			for _, id := range ids {
				seen[id] = true
			}
			missing := false
			for _, id := range want {
				if !seen[id] {
					missing = true
				}
			}
			if !missing {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v, saw %v", want, seen)
		}
	}
}

func TestWatch_NotifiesOnDocumentChange(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, map[string]string{
		"editor/settings.json": `{"Theme": "dark", "FontSize": 14}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches, done := startWatch(t, ws, ctx, 50*time.Millisecond)

	// Non-document noise alongside a real change.
	writeTestFile(t, filepath.Join(ws.Root(), "notes.txt"), "ignored")
	writeTestFile(t, filepath.Join(ws.Root(), "editor", "settings.json"), `{"Theme": "light", "FontSize": 12}`)

	select {
	case ids := <-batches:
		if len(ids) != 1 || ids[0] != "editor/settings" {
			t.Errorf("batch = %v, want [editor/settings]", ids)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestWatch_BatchesChanges(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, map[string]string{
		"editor/settings.json":  `{"Theme": "dark", "FontSize": 14}`,
		"desktop/settings.json": `{"Theme": "light", "FontSize": 12}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches, _ := startWatch(t, ws, ctx, 150*time.Millisecond)

	writeTestFile(t, filepath.Join(ws.Root(), "editor", "settings.json"), `{"Theme": "solar", "FontSize": 14}`)
	writeTestFile(t, filepath.Join(ws.Root(), "desktop", "settings.json"), `{"Theme": "solar", "FontSize": 12}`)
	writeTestFile(t, filepath.Join(ws.Root(), "editor", "settings.json"), `{"Theme": "mono", "FontSize": 14}`)

	collectIDs(t, batches, []string{"desktop/settings", "editor/settings"}, 3*time.Second)
}

func TestWatch_PicksUpNewDirectories(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches, _ := startWatch(t, ws, ctx, 50*time.Millisecond)

	if err := os.MkdirAll(filepath.Join(ws.Root(), "newapp"), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	// Let the watcher pick up the new directory before writing into it.
	time.Sleep(200 * time.Millisecond)
	writeTestFile(t, filepath.Join(ws.Root(), "newapp", "settings.json"), `{"Theme": "dark", "FontSize": 14}`)

	collectIDs(t, batches, []string{"newapp/settings"}, 3*time.Second)
}

func TestWatch_IgnoresHiddenDirectories(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, map[string]string{
		"editor/settings.json": `{"Theme": "dark", "FontSize": 14}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches, _ := startWatch(t, ws, ctx, 50*time.Millisecond)

	writeTestFile(t, filepath.Join(ws.Root(), ".cache", "settings.json"), `{"Theme": "x"}`)
	writeTestFile(t, filepath.Join(ws.Root(), "editor", "settings.json"), `{"Theme": "light", "FontSize": 12}`)

	// Only the visible document shows up.
	collectIDs(t, batches, []string{"editor/settings"}, 3*time.Second)
	select {
	case ids := <-batches:
		t.Errorf("unexpected extra batch: %v", ids)
	case <-time.After(300 * time.Millisecond):
	}
}
