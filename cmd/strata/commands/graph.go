package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var (
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the workspace dependency graph",
		Long: `Build the workspace-wide dependency graph from $extends and $include
references and render it in DOT format for Graphviz tools.

Nodes are grouped by validation level; extends edges are solid, include
edges dashed. Referenced files that do not exist appear as missing
nodes.`,
		Example: `  # Print the graph to stdout
  strata graph

  # Write a DOT file and render it
  strata graph --out workspace.dot
  dot -Tsvg workspace.dot -o workspace.svg

  # Structured graph output
  strata graph --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("out", outFile).Msg("Building dependency graph")

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			graph, err := ws.BuildGraph()
			if err != nil {
				return err
			}

			log.Info().
				Int("nodes", len(graph.Nodes)).
				Int("edges", len(graph.Edges)).
				Int("depth", graph.Depth).
				Msg("Graph built")

			if jsonOutput {
				return printJSON(graph)
			}

			dot := graph.ToDOT()
			if outFile == "" {
				fmt.Print(dot)
				return nil
			}
			if err := os.WriteFile(outFile, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("failed to write DOT file: %w", err)
			}
			fmt.Printf("✓ Wrote %s\n", outFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output DOT file (default: stdout)")

	return cmd
}
