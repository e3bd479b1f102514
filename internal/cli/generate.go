package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "generate <id>",
		Short: "Start itinerary generation for a plan",
		Long:  "Queue generation for a pending plan. Use --wait to follow progress until the itinerary is ready.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newAPIClient().Generate(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("starting generation: %w", err)
			}
			if wait {
				return runWatch(cmd, p.ID)
			}
			if isJSON() {
				return printJSON(os.Stdout, p)
			}
			fmt.Printf("Generation started for plan %s.\n", p.ID)
			fmt.Printf("Run 'tp watch %s' to follow progress.\n", p.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the itinerary")
	return cmd
}

func newRegenerateCmd() *cobra.Command {
	var (
		instructions string
		wait         bool
	)

	cmd := &cobra.Command{
		Use:   "regenerate <id>",
		Short: "Replace a plan's itinerary",
		Long:  "Discard the current itinerary and generate a new one, optionally guided by extra instructions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newAPIClient().Regenerate(commandContext(cmd), args[0], instructions)
			if err != nil {
				return fmt.Errorf("starting regeneration: %w", err)
			}
			if wait {
				return runWatch(cmd, p.ID)
			}
			if isJSON() {
				return printJSON(os.Stdout, p)
			}
			fmt.Printf("Regeneration started for plan %s.\n", p.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "what to change in the new itinerary")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the itinerary")
	return cmd
}
