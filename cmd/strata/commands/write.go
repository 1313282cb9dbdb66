package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/workspace"
)

func newWriteCommand() *cobra.Command {
	var (
		docType  string
		fromFile string
	)

	cmd := &cobra.Command{
		Use:   "write <document-id>",
		Short: "Write a document",
		Long: `Write a document tree to the workspace.

The tree is read as JSON from --file, or from stdin when --file is "-"
or omitted. Settings writes are validated against the type's schema and
every write passes the policy gate before touching disk.`,
		Example: `  # Write from a file
  strata write editor/settings --file editor.json

  # Write from stdin
  echo '{"Theme": "dark", "FontSize": 14}' | strata write editor/settings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]

			log.Info().
				Str("document_id", docID).
				Str("type", docType).
				Str("file", fromFile).
				Msg("Writing document")

			tree, err := readTree(fromFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			path, err := ws.Write(ctx, docType, docID, tree)
			var denied *workspace.DeniedError
			if errors.As(err, &denied) {
				fmt.Printf("✗ Write denied by policy:\n")
				for _, v := range denied.Violations {
					fmt.Printf("  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
				}
				return err
			}
			if err != nil {
				return err
			}

			fmt.Printf("✓ Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (default: resolved from patterns)")
	cmd.Flags().StringVarP(&fromFile, "file", "f", "-", "input file path, \"-\" for stdin")

	return cmd
}

// readTree loads a JSON document tree from a file or stdin.
func readTree(path string) (engine.Document, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var tree engine.Document
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}
	return tree, nil
}
