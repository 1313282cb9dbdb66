package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/generate"
	"github.com/strataconf/strata/pkg/policy"
	"github.com/strataconf/strata/pkg/workspace"
)

func newGenCommand() *cobra.Command {
	var (
		params  []string
		timeout time.Duration
		dryRun  bool
		docType string
	)

	cmd := &cobra.Command{
		Use:   "gen <script>",
		Short: "Generate documents from a Starlark script",
		Long: `Evaluate a Starlark generation script and write the documents it
produces into the workspace.

The script must define a module-level "documents" dict mapping document
identifiers to trees. Parameters passed with --param are bound as
global names. Generated documents pass the policy gate before they are
written, and every write lands in the revision history.`,
		Example: `  # Generate documents from a script
  strata gen profiles.star

  # Bind script parameters (values parse as JSON, else as strings)
  strata gen profiles.star --param env=prod --param replicas=3

  # Preview without writing
  strata gen profiles.star --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath := args[0]

			log.Info().
				Str("script", scriptPath).
				Strs("params", params).
				Bool("dry_run", dryRun).
				Msg("Generating documents")

			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}
			bound, err := parseParams(params)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			name := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
			evaluator := generate.NewEvaluator(log.Logger, timeout)
			result, err := evaluator.Evaluate(ctx, name, string(script), bound)
			if err != nil {
				return err
			}

			log.Info().
				Int("documents", len(result.Documents)).
				Dur("execution_time", result.ExecutionTime).
				Msg("Script evaluated")

			ids := make([]string, 0, len(result.Documents))
			for id := range result.Documents {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			if dryRun {
				out := make(map[string]any, len(ids))
				for _, id := range ids {
					out[id] = result.Documents[id]
				}
				return printJSON(out)
			}

			var failed int
			for _, id := range ids {
				tree := result.Documents[id]

				if err := gateGenerate(ctx, ws, docType, id, tree); err != nil {
					fmt.Printf("✗ %s: %v\n", id, err)
					failed++
					continue
				}

				path, err := ws.Write(ctx, docType, id, tree)
				if err != nil {
					fmt.Printf("✗ %s: %v\n", id, err)
					failed++
					continue
				}
				fmt.Printf("✓ Wrote %s\n", path)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "script parameter as key=value, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "script execution timeout")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print generated documents without writing")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type for generated documents")

	return cmd
}

// gateGenerate runs the generate-operation policy gate for one
// document. The write gate still runs when the document is persisted.
func gateGenerate(ctx context.Context, ws *workspace.Workspace, docType, docID string, tree engine.Document) error {
	if ws.Policies() == nil {
		return nil
	}

	var t *workspace.TypeConfig
	if docType != "" {
		named, ok := ws.Config().TypeByName(docType)
		if !ok {
			return fmt.Errorf("unknown document type %q", docType)
		}
		t = named
	} else {
		resolved, err := ws.TypeFor(docID)
		if err != nil {
			return err
		}
		t = resolved
	}

	gate, err := ws.Policies().EvaluateGenerate(ctx, docID, t.Name, engine.BehaviorMode(t.Mode), tree, &policy.PolicyContext{
		Workspace: ws.Root(),
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !gate.Allowed {
		return &workspace.DeniedError{DocumentID: docID, Operation: "generate", Violations: gate.Violations}
	}
	return nil
}

// parseParams turns key=value pairs into script globals. Values parse
// as JSON where possible so numbers and booleans keep their kind.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
