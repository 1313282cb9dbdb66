package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newResolveCommand() *cobra.Command {
	var (
		docType   string
		withStats bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <document-id>",
		Short: "Resolve a document's composition",
		Long: `Resolve a document's inheritance chain and fragment inclusions and
print the merged tree, without validating, healing, or writing.

Useful for inspecting what a document composes to before it is read
through its behavior mode.`,
		Example: `  # Print the composed tree
  strata resolve editor/settings

  # Include composition counters in the output
  strata resolve editor/settings --stats`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]

			log.Info().
				Str("document_id", docID).
				Str("type", docType).
				Msg("Resolving document")

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			composed, stats, err := ws.Resolve(ctx, docType, docID)
			if err != nil {
				return err
			}

			log.Info().
				Int("bases_resolved", stats.BasesResolved).
				Int("fragments_expanded", stats.FragmentsExpanded).
				Msg("Document resolved")

			if withStats {
				return printJSON(map[string]any{
					"document": composed,
					"stats": map[string]int{
						"bases_resolved":     stats.BasesResolved,
						"fragments_expanded": stats.FragmentsExpanded,
					},
				})
			}
			return printJSON(composed)
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (default: resolved from patterns)")
	cmd.Flags().BoolVar(&withStats, "stats", false, "include composition counters in the output")

	return cmd
}
