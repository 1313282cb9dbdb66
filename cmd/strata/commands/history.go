package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/history"
	"github.com/strataconf/strata/pkg/workspace"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the revision history",
		Long: `Inspect the workspace's revision history database.

Every write, repair, and default creation records a revision; every
read lands in the read log; drift runs with --record append to the
drift log.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryReadsCommand())
	cmd.AddCommand(newHistoryDriftCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// openHistory opens the workspace and returns its history store,
// erroring when history is disabled.
func openHistory(cmd *cobra.Command) (*workspace.Workspace, history.Store, error) {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	store := ws.History()
	if store == nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("history is disabled in this workspace")
	}
	return ws, store, nil
}

func newHistoryListCommand() *cobra.Command {
	var (
		operation string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list [document-id]",
		Short: "List recorded revisions",
		Example: `  # Latest revisions across the workspace
  strata history list

  # Revisions of one document
  strata history list editor/settings

  # Only sanitizer repairs
  strata history list --op repair`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var docID *string
			if len(args) == 1 {
				docID = &args[0]
			}
			var op *history.RevisionOperation
			if operation != "" {
				v := history.RevisionOperation(operation)
				op = &v
			}

			log.Info().Int("limit", limit).Msg("Listing revisions")

			ws, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			revisions, err := store.ListRevisions(cmd.Context(), docID, op, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(revisions)
			}
			if len(revisions) == 0 {
				fmt.Println("No revisions recorded")
				return nil
			}
			for _, rev := range revisions {
				fmt.Printf("%-36s  seq=%-4d %-7s %-8s %6dB  %s  %s\n",
					rev.ID, rev.Seq, rev.Operation, rev.Hash[:8], rev.Size,
					rev.CreatedAt.Format("2006-01-02 15:04:05"), rev.DocumentID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&operation, "op", "", "filter by operation (write, repair, default)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max revisions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "revisions to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <revision-id>",
		Short: "Show one revision's content",
		Example: `  # Print the document tree a revision captured
  strata history show 4f2c1a9e-8b0d-4c5e-9f17-3d2a6b8c0e41

  # Full revision record
  strata history show 4f2c1a9e-8b0d-4c5e-9f17-3d2a6b8c0e41 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			rev, err := store.GetRevision(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(rev)
			}

			var tree any
			if err := json.Unmarshal([]byte(rev.Content), &tree); err != nil {
				return fmt.Errorf("revision content is not valid JSON: %w", err)
			}
			return printJSON(tree)
		},
	}

	return cmd
}

func newHistoryReadsCommand() *cobra.Command {
	var (
		outcome string
		limit   int
		offset  int
	)

	cmd := &cobra.Command{
		Use:   "reads [document-id]",
		Short: "List recorded document reads",
		Example: `  # Latest reads across the workspace
  strata history reads

  # Failed reads of one document
  strata history reads editor/settings --outcome failed`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var docID *string
			if len(args) == 1 {
				docID = &args[0]
			}
			var oc *history.ReadOutcome
			if outcome != "" {
				v := history.ReadOutcome(outcome)
				oc = &v
			}

			ws, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			records, err := store.ListReadRecords(cmd.Context(), docID, oc, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No reads recorded")
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%-16s %4dms  %s  %s",
					rec.Outcome, rec.DurationMS,
					rec.Timestamp.Format("2006-01-02 15:04:05"), rec.DocumentID)
				if rec.Error != nil {
					line += "  " + *rec.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok, default_created, sanitized, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max reads to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "reads to skip")

	return cmd
}

func newHistoryDriftCommand() *cobra.Command {
	var (
		kind   string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "drift [document-id]",
		Short: "List recorded drift events",
		Example: `  # Latest drift findings
  strata history drift

  # Only type mismatches
  strata history drift --kind type_mismatch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var docID *string
			if len(args) == 1 {
				docID = &args[0]
			}
			var k *history.DriftKind
			if kind != "" {
				v := history.DriftKind(kind)
				k = &v
			}

			ws, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			events, err := store.ListDriftEvents(cmd.Context(), docID, k, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(events)
			}
			if len(events) == 0 {
				fmt.Println("No drift events recorded")
				return nil
			}
			for _, ev := range events {
				line := fmt.Sprintf("%-18s %-24s %s  %s",
					ev.Kind, ev.PropertyPath,
					ev.Timestamp.Format("2006-01-02 15:04:05"), ev.DocumentID)
				if ev.Detail != nil {
					line += "  " + *ev.Detail
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (unknown_property, missing_property, type_mismatch, migration)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max events to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "events to skip")

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var (
		keep int
	)

	cmd := &cobra.Command{
		Use:   "prune <document-id>",
		Short: "Prune old revisions of a document",
		Long: `Delete a document's oldest revisions, keeping only the most recent.

Writes prune automatically per the workspace's history.keep setting;
this command is for one-off cleanups with a different retention.`,
		Example: `  # Keep only the ten newest revisions
  strata history prune editor/settings --keep 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]

			log.Info().Str("document_id", docID).Int("keep", keep).Msg("Pruning revisions")

			ws, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			pruned, err := store.PruneRevisions(cmd.Context(), docID, keep)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Pruned %d revisions of %s\n", pruned, docID)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 10, "revisions to keep")

	return cmd
}
