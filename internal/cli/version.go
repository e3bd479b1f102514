package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by release builds; local builds report "dev".
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tp", Version)
		},
	}
}
