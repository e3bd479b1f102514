package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/plan"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and inspect travel plans",
	}
	cmd.AddCommand(newPlanCreateCmd(), newPlanListCmd(), newPlanShowCmd())
	return cmd
}

type planFlags struct {
	destination    string
	dates          string
	group          string
	interests      string
	budget         string
	transportation string
	flightBooked   bool
	flightDetails  string
	stayBooked     bool
	stayDetails    string
}

// request converts the flags into a plan request. Booking details imply
// the booking exists.
func (f planFlags) request() plan.Request {
	req := plan.Request{
		Destination:    f.destination,
		Dates:          f.dates,
		TravelGroup:    f.group,
		Interests:      f.interests,
		Budget:         f.budget,
		Transportation: f.transportation,
	}
	if f.flightBooked || f.flightDetails != "" {
		req.Flight = &plan.Booking{Booked: true, Details: f.flightDetails}
	}
	if f.stayBooked || f.stayDetails != "" {
		req.Accommodation = &plan.Booking{Booked: true, Details: f.stayDetails}
	}
	return req
}

func newPlanCreateCmd() *cobra.Command {
	var f planFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a travel plan",
		Long:  "Create a plan in pending_generation status. Run 'tp generate <id>' to build its itinerary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := f.request()
			if err := req.Validate(); err != nil {
				return err
			}

			p, err := newAPIClient().CreatePlan(commandContext(cmd), req)
			if err != nil {
				return fmt.Errorf("creating plan: %w", err)
			}

			if isJSON() {
				return printJSON(os.Stdout, p)
			}
			fmt.Println("Plan created.")
			printPlanSummary(os.Stdout, p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.destination, "destination", "d", "", "where the trip goes (required)")
	cmd.Flags().StringVar(&f.dates, "dates", "", `date range, "DD/MM/YYYY - DD/MM/YYYY" (required)`)
	cmd.Flags().StringVar(&f.group, "group", "", "solo, couple, family, or friends")
	cmd.Flags().StringVar(&f.interests, "interests", "", "free-text interests")
	cmd.Flags().StringVar(&f.budget, "budget", "", "budget description")
	cmd.Flags().StringVar(&f.transportation, "transportation", "", "preferred way of getting around")
	cmd.Flags().BoolVar(&f.flightBooked, "flight-booked", false, "flights are already booked")
	cmd.Flags().StringVar(&f.flightDetails, "flight-details", "", "booked flight details")
	cmd.Flags().BoolVar(&f.stayBooked, "accommodation-booked", false, "accommodation is already booked")
	cmd.Flags().StringVar(&f.stayDetails, "accommodation-details", "", "booked accommodation details")

	return cmd
}

func newPlanListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := newAPIClient().ListPlans(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("listing plans: %w", err)
			}
			if isJSON() {
				return printJSON(os.Stdout, plans)
			}
			return printPlanTable(os.Stdout, plans)
		},
	}
}

func newPlanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a plan and its itinerary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			c := newAPIClient()

			p, err := c.GetPlan(ctx, args[0])
			if err != nil {
				return err
			}
			view, err := c.PlanStatus(ctx, args[0])
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(os.Stdout, map[string]any{
					"plan":      p,
					"itinerary": view.Itinerary,
				})
			}

			printPlanSummary(os.Stdout, p)
			if view.Itinerary != nil {
				fmt.Println()
				printItinerary(os.Stdout, view.Itinerary)
			}
			return nil
		},
	}
}
