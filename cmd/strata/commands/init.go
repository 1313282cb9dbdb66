package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/history"
	"github.com/strataconf/strata/pkg/workspace"
)

const initConfigTemplate = `# Strata workspace configuration

version: 1
name: %s

# Document root directory, relative to this file.
root: docs

# Document types. Patterns match document identifiers (paths without
# the .json extension); the first matching type wins.
types:
  - name: settings
    pattern: "**/settings"
    mode: settings
    schema: schemas/settings.yaml
  - name: state
    pattern: "**/state"
    mode: state
    schema: schemas/state.yaml

# Revision history database.
history:
  path: .strata/history.db
  keep: 50
`

const initSettingsManifest = `name: settings
version: "1"
reference: https://strata.dev/schemas/settings/v1
shape:
  kind: object
  required: [Theme, FontSize]
  properties:
    Theme:
      kind: string
      default: light
    FontSize:
      kind: number
      default: 12
    Plugins:
      kind: list
      elem:
        kind: string
`

const initStateManifest = `name: state
version: "1"
shape:
  kind: object
  required: [LastOpened]
  properties:
    LastOpened:
      kind: string
      default: ""
`

const initBaseDocument = `{
  "Theme": "light",
  "FontSize": 12
}
`

const initSampleDocument = `{
  "$extends": "../defaults/settings",
  "FontSize": 14,
  "Plugins": [{"$include": "../fragments/plugins"}]
}
`

const initSampleFragment = `{
  "Items": ["spellcheck"]
}
`

func newInitCommand() *cobra.Command {
	var (
		name string
		bare bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a Strata workspace",
		Long: `Initialize a new Strata workspace with configuration, schema manifests,
and a revision history database.

Unless --bare is given, sample documents demonstrating inheritance and
fragment inclusion are created under the document root.`,
		Example: `  # Initialize the current directory
  strata init

  # Initialize a new directory without sample documents
  strata init ./configs --bare

  # Initialize with an explicit workspace name
  strata init --name desktop-configs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("failed to resolve directory: %w", err)
			}
			if name == "" {
				name = filepath.Base(absDir)
			}

			log.Info().
				Str("dir", absDir).
				Str("name", name).
				Bool("bare", bare).
				Msg("Initializing workspace")

			ctx := cmd.Context()

			cfgPath := filepath.Join(absDir, workspace.ConfigFileName)
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("workspace already initialized: %s exists", cfgPath)
			}

			fmt.Printf("Initializing Strata workspace in %s\n\n", absDir)

			// Step 1: Create directory structure
			dirs := []string{
				filepath.Join(absDir, "docs"),
				filepath.Join(absDir, "schemas"),
				filepath.Join(absDir, ".strata"),
			}
			if !bare {
				dirs = append(dirs,
					filepath.Join(absDir, "docs", "defaults"),
					filepath.Join(absDir, "docs", "fragments"),
					filepath.Join(absDir, "docs", "app"),
				)
			}

			for _, d := range dirs {
				if err := os.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
				fmt.Printf("✓ Created directory: %s\n", d)
			}

			// Step 2: Write workspace config
			configContent := fmt.Sprintf(initConfigTemplate, name)
			if err := os.WriteFile(cfgPath, []byte(configContent), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Printf("✓ Created config file: %s\n", cfgPath)

			// Step 3: Write schema manifests
			manifests := []struct {
				path    string
				content string
			}{
				{filepath.Join(absDir, "schemas", "settings.yaml"), initSettingsManifest},
				{filepath.Join(absDir, "schemas", "state.yaml"), initStateManifest},
			}
			for _, m := range manifests {
				if err := os.WriteFile(m.path, []byte(m.content), 0o644); err != nil {
					return fmt.Errorf("failed to write schema manifest: %w", err)
				}
				fmt.Printf("✓ Created schema manifest: %s\n", m.path)
			}

			// Step 4: Write sample documents
			if !bare {
				samples := []struct {
					path    string
					content string
				}{
					{filepath.Join(absDir, "docs", "defaults", "settings.json"), initBaseDocument},
					{filepath.Join(absDir, "docs", "fragments", "plugins.json"), initSampleFragment},
					{filepath.Join(absDir, "docs", "app", "settings.json"), initSampleDocument},
				}
				for _, s := range samples {
					if err := os.WriteFile(s.path, []byte(s.content), 0o644); err != nil {
						return fmt.Errorf("failed to write sample document: %w", err)
					}
					fmt.Printf("✓ Created sample document: %s\n", s.path)
				}
			}

			// Step 5: Initialize history database
			dbPath := filepath.Join(absDir, ".strata", "history.db")
			store, err := history.NewSQLiteStore(history.Config{Path: dbPath})
			if err != nil {
				return fmt.Errorf("failed to create history store: %w", err)
			}
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize history database: %w", err)
			}
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("failed to close history database: %w", err)
			}
			fmt.Printf("✓ Initialized history database: %s\n", dbPath)

			// Step 6: Verify the workspace opens
			cfg, err := workspace.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("scaffolded config failed to load: %w", err)
			}
			ws, err := workspace.Open(ctx, cfg, log.Logger)
			if err != nil {
				return fmt.Errorf("scaffolded workspace failed to open: %w", err)
			}
			if err := ws.Close(); err != nil {
				return fmt.Errorf("failed to close workspace: %w", err)
			}
			fmt.Printf("✓ Workspace opens cleanly\n")

			// Done
			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Read a document (creates defaults on first read):\n")
			fmt.Printf("     strata read app/settings\n\n")
			fmt.Printf("  2. Validate the workspace:\n")
			fmt.Printf("     strata validate\n\n")
			fmt.Printf("  3. Check for schema drift:\n")
			fmt.Printf("     strata drift\n\n")

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "workspace name (default: directory name)")
	cmd.Flags().BoolVar(&bare, "bare", false, "skip sample documents")

	return cmd
}
