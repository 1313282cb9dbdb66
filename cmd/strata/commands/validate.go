package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/schema"
	"github.com/strataconf/strata/pkg/workspace"
)

func newValidateCommand() *cobra.Command {
	var (
		docType     string
		parallel    int
		failFast    bool
		constraints bool
	)

	cmd := &cobra.Command{
		Use:   "validate [document-id]",
		Short: "Validate documents against their schemas",
		Long: `Validate one document, or every typed document in the workspace.

Without arguments the whole workspace is validated in dependency order:
bases and fragments before the documents composed from them, documents
within a level in parallel. Nothing is created, healed, or rewritten.

The command exits non-zero when any document is invalid.`,
		Example: `  # Validate the whole workspace
  strata validate

  # Validate a single document
  strata validate editor/settings

  # Include CUE constraint checks and stop at the first failing level
  strata validate --constraints --fail-fast`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			if len(args) == 1 {
				return validateOne(cmd, ws, docType, args[0])
			}

			log.Info().
				Int("parallel", parallel).
				Bool("fail_fast", failFast).
				Bool("constraints", constraints).
				Msg("Validating workspace")

			report, err := ws.ValidateAll(ctx, workspace.RunnerOptions{
				MaxParallel: parallel,
				FailFast:    failFast,
				Constraints: constraints,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printBatchReport(report)
			}

			if !report.OK() {
				return fmt.Errorf("%d of %d documents failed validation",
					report.Summary.Invalid+report.Summary.Errored, report.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type for single-document validation")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "max documents validated concurrently per level")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop after the first failing dependency level")
	cmd.Flags().BoolVar(&constraints, "constraints", false, "also check CUE constraints")

	return cmd
}

func validateOne(cmd *cobra.Command, ws *workspace.Workspace, docType, docID string) error {
	log.Info().
		Str("document_id", docID).
		Str("type", docType).
		Msg("Validating document")

	violations, err := ws.Validate(cmd.Context(), docType, docID)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(map[string]any{
			"document_id": docID,
			"violations":  violations,
		}); err != nil {
			return err
		}
	} else if len(violations) == 0 {
		fmt.Printf("✓ %s\n", docID)
	} else {
		fmt.Printf("✗ %s\n", docID)
		printViolations(violations)
	}

	if len(violations) > 0 {
		return fmt.Errorf("%s has %d violations", docID, len(violations))
	}
	return nil
}

func printBatchReport(report *workspace.BatchReport) {
	for i := range report.Reports {
		r := &report.Reports[i]
		switch {
		case r.Err != "":
			fmt.Printf("✗ %s: %s\n", r.DocumentID, r.Err)
		case len(r.Violations) > 0:
			fmt.Printf("✗ %s\n", r.DocumentID)
			printViolations(r.Violations)
		default:
			fmt.Printf("✓ %s\n", r.DocumentID)
		}
	}

	fmt.Printf("\nValidated %d documents in %s: %d valid, %d invalid, %d errored\n",
		report.Summary.Total, report.Duration.Round(time.Millisecond),
		report.Summary.Valid, report.Summary.Invalid, report.Summary.Errored)
}

func printViolations(violations []schema.Violation) {
	for i := range violations {
		fmt.Printf("    %s\n", violations[i].String())
	}
}
