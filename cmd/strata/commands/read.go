package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/engine"
)

func newReadCommand() *cobra.Command {
	var (
		docType string
	)

	cmd := &cobra.Command{
		Use:   "read <document-id>",
		Short: "Read a document",
		Long: `Read a document through its type's behavior mode and print the result.

Settings documents are composed (inheritance and fragments resolved),
validated, and healed on the way out. A missing settings or state
document is created from its schema defaults first.`,
		Example: `  # Read a document, resolving its type from the workspace config
  strata read editor/settings

  # Pin the document type explicitly
  strata read editor/settings --type settings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]

			log.Info().
				Str("document_id", docID).
				Str("type", docType).
				Msg("Reading document")

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			doc, err := ws.Read(ctx, docType, docID)
			if engine.CodeOf(err) == engine.ErrCodeDefaultCreated {
				// The store wrote the defaults to disk; a second read
				// returns them.
				fmt.Printf("Document %s did not exist, created from defaults\n", docID)
				doc, err = ws.Read(ctx, docType, docID)
			}
			if err != nil {
				return err
			}

			return printJSON(doc)
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (default: resolved from patterns)")

	return cmd
}
