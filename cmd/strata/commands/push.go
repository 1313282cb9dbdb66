package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/remote"
	"github.com/strataconf/strata/pkg/workspace"
)

func newPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push [remote]",
		Short: "Push the workspace to a sync remote",
		Long: `Mirror the local document root to a configured SFTP remote.

Hidden entries are skipped, so local state such as .strata never leaves
the machine. Files already matching the remote copy by size and
modification time are not re-uploaded. The remote name may be omitted
when the workspace configures exactly one remote.`,
		Example: `  # Push to the only configured remote
  strata push

  # Push to a named remote
  strata push staging`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, "push")
		},
	}

	return cmd
}

// runSync connects to the selected remote and mirrors the document
// root in the given direction.
func runSync(cmd *cobra.Command, args []string, direction string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	remoteCfg, err := selectRemote(cfg, args)
	if err != nil {
		return err
	}

	log.Info().
		Str("remote", remoteCfg.Name).
		Str("host", remoteCfg.Address()).
		Str("direction", direction).
		Msg("Syncing workspace")

	client, err := remote.NewClient(remoteCfg, log.Logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	var result *remote.Result
	if direction == "push" {
		result, err = client.Push(ctx, cfg.AbsRoot())
	} else {
		result, err = client.Pull(ctx, cfg.AbsRoot())
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	verb := "Pushed to"
	if direction == "pull" {
		verb = "Pulled from"
	}
	fmt.Printf("✓ %s %s: %d files transferred, %d up to date, %d bytes in %s\n",
		verb, result.Remote, result.Transferred,
		result.Skipped, result.Bytes, result.Duration.Round(time.Millisecond))
	return nil
}

// selectRemote picks the named remote, or the sole configured one when
// no name is given.
func selectRemote(cfg *workspace.Config, args []string) (*remote.Config, error) {
	if len(args) == 1 {
		remoteCfg, ok := cfg.Remote(args[0])
		if !ok {
			return nil, fmt.Errorf("unknown remote %q", args[0])
		}
		return remoteCfg, nil
	}

	switch len(cfg.Remotes) {
	case 0:
		return nil, fmt.Errorf("no remotes configured")
	case 1:
		return &cfg.Remotes[0], nil
	default:
		names := make([]string, len(cfg.Remotes))
		for i := range cfg.Remotes {
			names[i] = cfg.Remotes[i].Name
		}
		return nil, fmt.Errorf("multiple remotes configured (%s), name one", strings.Join(names, ", "))
	}
}
