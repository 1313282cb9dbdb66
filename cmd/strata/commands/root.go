package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/workspace"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// buildVersion labels telemetry with the binary version.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata - Composable Configuration Document Engine",
		Long: `Strata manages workspaces of JSON configuration documents that compose
through inheritance and fragment inclusion.

Features:
  - Document inheritance via $extends with child-wins deep merge
  - List fragment splicing via $include
  - Typed schemas with validation and drift healing
  - CUE constraint checks on resolved documents
  - SQLite-backed revision history and read auditing
  - Rego policy gates on writes
  - SFTP workspace sync and a line-delimited JSON serve mode`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "workspace config file path (default: locate strata.yaml upward)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newReadCommand())
	rootCmd.AddCommand(newWriteCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newGenCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newPushCommand())
	rootCmd.AddCommand(newPullCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// loadConfig resolves the workspace configuration, either from the
// --config flag or by walking upward from the working directory.
func loadConfig() (*workspace.Config, error) {
	path := configPath
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path, err = workspace.Locate(cwd)
		if err != nil {
			return nil, err
		}
	}
	return workspace.Load(path)
}

// openWorkspace loads the configuration and opens the workspace.
// Callers must Close the returned workspace.
func openWorkspace(ctx context.Context) (*workspace.Workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return workspace.Open(ctx, cfg, log.Logger)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
