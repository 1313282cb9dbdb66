package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/workspace"
)

func newDriftCommand() *cobra.Command {
	var (
		types  []string
		record bool
		heal   bool
	)

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Report schema drift in stored documents",
		Long: `Report how stored settings documents disagree with their schemas:
unknown properties, missing required properties, type mismatches, and
the migrations a healing read would apply.

Detection alone modifies nothing. With --heal each drifted document is
sanitized and rewritten; with --record every finding is appended to the
history store's drift log.

The command exits non-zero when drift is found and not healed.`,
		Example: `  # Report drift across all settings types
  strata drift

  # Restrict to one type and record findings in history
  strata drift --type settings --record

  # Repair drifted documents in place
  strata drift --heal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Strs("types", types).
				Bool("record", record).
				Bool("heal", heal).
				Msg("Computing drift")

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			report, err := ws.ComputeDrift(ctx, workspace.DriftOptions{
				Types:  types,
				Record: record,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printDriftReport(report)
			}

			if heal {
				return healDrift(cmd, ws, report)
			}
			if report.Summary.Drifted > 0 || report.Summary.Errored > 0 {
				return fmt.Errorf("drift detected in %d of %d documents",
					report.Summary.Drifted+report.Summary.Errored, report.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "restrict to the named settings types")
	cmd.Flags().BoolVar(&record, "record", false, "append findings to the history drift log")
	cmd.Flags().BoolVar(&heal, "heal", false, "sanitize and rewrite drifted documents")

	return cmd
}

func printDriftReport(report *workspace.DriftReport) {
	for i := range report.Documents {
		d := &report.Documents[i]
		switch {
		case d.Err != "":
			fmt.Printf("✗ %s: %s\n", d.DocumentID, d.Err)
		case d.Clean():
			fmt.Printf("✓ %s\n", d.DocumentID)
		default:
			fmt.Printf("~ %s\n", d.DocumentID)
			for _, p := range d.Unknown {
				fmt.Printf("    unknown property %s\n", p)
			}
			for _, p := range d.Missing {
				fmt.Printf("    missing required property %s\n", p)
			}
			for j := range d.Mismatches {
				fmt.Printf("    %s\n", d.Mismatches[j].String())
			}
			for _, m := range d.Migrations {
				fmt.Printf("    pending migration %s at %s\n", m.Rule, m.Path)
			}
		}
	}

	s := report.Summary
	fmt.Printf("\nInspected %d documents: %d clean, %d drifted, %d errored\n",
		s.Total, s.Clean, s.Drifted, s.Errored)
}

// healDrift repairs every drifted document from the report and reports
// what could not be fixed.
func healDrift(cmd *cobra.Command, ws *workspace.Workspace, report *workspace.DriftReport) error {
	var failed int
	for i := range report.Documents {
		d := &report.Documents[i]
		if d.Clean() {
			continue
		}
		if d.Err != "" {
			failed++
			continue
		}
		if err := ws.Heal(cmd.Context(), d.DocumentID); err != nil {
			fmt.Printf("✗ Failed to heal %s: %v\n", d.DocumentID, err)
			failed++
			continue
		}
		fmt.Printf("✓ Healed %s\n", d.DocumentID)
	}
	if failed > 0 {
		return fmt.Errorf("%d documents could not be healed", failed)
	}
	return nil
}
