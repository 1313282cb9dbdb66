package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/workspace"
)

func newWatchCommand() *cobra.Command {
	var (
		debounce time.Duration
		heal     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the workspace and revalidate on change",
		Long: `Watch the document root for changes and revalidate affected documents.

Changes are debounced into batches. Each batch revalidates the changed
documents plus everything that composes from them, so editing a shared
base re-checks its dependents too. With --heal, drifted settings
documents are sanitized as they change. Runs until interrupted.`,
		Example: `  # Watch with the default debounce window
  strata watch

  # Calmer batching for bulk edits
  strata watch --debounce 2s

  # Repair drifted settings documents as they appear
  strata watch --heal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Dur("debounce", debounce).Bool("heal", heal).Msg("Watching workspace")

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			fmt.Printf("Watching %s (Ctrl+C to stop)\n", ws.Root())

			return ws.Watch(ctx, debounce, func(ctx context.Context, ids []string) {
				revalidate(ctx, ws, ids, heal)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "batch window for change events")
	cmd.Flags().BoolVar(&heal, "heal", false, "sanitize drifted settings documents on change")

	return cmd
}

// revalidate checks the changed documents and every document composing
// from them, printing one line per result.
func revalidate(ctx context.Context, ws *workspace.Workspace, ids []string, heal bool) {
	log.Info().Strs("documents", ids).Msg("Changes detected")

	affected := append([]string(nil), ids...)
	graph, err := ws.BuildGraph()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to rebuild dependency graph")
	} else {
		affected = append(affected, graph.TransitiveDependents(ids...)...)
	}

	seen := make(map[string]bool, len(affected))
	for _, id := range affected {
		if seen[id] {
			continue
		}
		seen[id] = true

		// Bases and fragments outside every type pattern are not
		// validated directly; their dependents cover them.
		if _, err := ws.TypeFor(id); err != nil {
			continue
		}

		violations, err := ws.Validate(ctx, "", id)
		switch {
		case err != nil:
			fmt.Printf("✗ %s: %v\n", id, err)
		case len(violations) > 0:
			fmt.Printf("✗ %s\n", id)
			printViolations(violations)
			if heal {
				if err := ws.Heal(ctx, id); err != nil {
					fmt.Printf("✗ Failed to heal %s: %v\n", id, err)
				} else {
					fmt.Printf("✓ Healed %s\n", id)
				}
			}
		default:
			fmt.Printf("✓ %s\n", id)
		}
	}
}
