package commands

import (
	"github.com/spf13/cobra"
)

func newPullCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull [remote]",
		Short: "Pull the workspace from a sync remote",
		Long: `Mirror a configured SFTP remote's document tree back into the local
document root.

Hidden entries are skipped and up-to-date local files are kept. The
remote name may be omitted when the workspace configures exactly one
remote.`,
		Example: `  # Pull from the only configured remote
  strata pull

  # Pull from a named remote
  strata pull staging`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, "pull")
		},
	}

	return cmd
}
