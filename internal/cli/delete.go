package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a plan and its itinerary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().DeletePlan(commandContext(cmd), args[0]); err != nil {
				return fmt.Errorf("deleting plan: %w", err)
			}
			if isJSON() {
				return printJSON(os.Stdout, map[string]string{"deleted": args[0]})
			}
			fmt.Printf("Plan %s deleted.\n", args[0])
			return nil
		},
	}
}
