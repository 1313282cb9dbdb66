package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/policy"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test write policies",
		Long: `Inspect the policies gating document writes and test documents
against them without writing anything.

The builtin policies always load; the workspace config can add Rego
files on top.`,
	}

	cmd.AddCommand(newPolicyListCommand())
	cmd.AddCommand(newPolicyCheckCommand())

	return cmd
}

func newPolicyListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded policies",
		Example: `  # List every loaded policy
  strata policy list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			eng := ws.Policies()
			if eng == nil {
				return fmt.Errorf("policies are disabled in this workspace")
			}

			policies := eng.ListPolicies()
			if jsonOutput {
				return printJSON(policies)
			}

			for i := range policies {
				p := &policies[i]
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-24s %-8s %-9s %s\n", p.Name, p.Severity, state, p.Description)
				if len(p.Tags) > 0 {
					fmt.Printf("%-24s tags: %s\n", "", strings.Join(p.Tags, ", "))
				}
			}
			return nil
		},
	}

	return cmd
}

func newPolicyCheckCommand() *cobra.Command {
	var (
		docType  string
		fromFile string
	)

	cmd := &cobra.Command{
		Use:   "check <document-id>",
		Short: "Test a document against the write gate",
		Long: `Evaluate the write-gate policies against a document tree without
writing it. The tree comes from --file or stdin; with neither, the
document's stored content is checked.`,
		Example: `  # Check a stored document
  strata policy check editor/settings

  # Check a candidate tree before writing it
  strata policy check editor/settings --file candidate.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]

			log.Info().
				Str("document_id", docID).
				Str("file", fromFile).
				Msg("Checking policies")

			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			eng := ws.Policies()
			if eng == nil {
				return fmt.Errorf("policies are disabled in this workspace")
			}

			var tree engine.Document
			if fromFile != "" {
				tree, err = readTree(fromFile)
			} else {
				tree, _, err = ws.Resolve(ctx, docType, docID)
			}
			if err != nil {
				return err
			}

			t, err := ws.TypeFor(docID)
			if docType != "" {
				named, ok := ws.Config().TypeByName(docType)
				if !ok {
					return fmt.Errorf("unknown document type %q", docType)
				}
				t, err = named, nil
			}
			if err != nil {
				return err
			}

			result, err := eng.EvaluateWrite(ctx, docID, t.Name, engine.BehaviorMode(t.Mode), tree, &policy.PolicyContext{
				Workspace: ws.Root(),
				Timestamp: time.Now(),
			})
			if err != nil {
				return fmt.Errorf("policy evaluation failed: %w", err)
			}

			if jsonOutput {
				return printJSON(result)
			}

			for _, v := range result.Violations {
				fmt.Printf("[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
			}
			for _, w := range result.Warnings {
				fmt.Printf("[warning] %s\n", w)
			}
			if result.Allowed {
				fmt.Printf("✓ %s passes %d policies\n", docID, len(result.EvaluatedPolicies))
				return nil
			}
			return fmt.Errorf("write of %s would be denied", docID)
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (default: resolved from patterns)")
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "candidate tree to check instead of the stored document")

	return cmd
}
