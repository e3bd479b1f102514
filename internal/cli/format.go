package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/plan"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPlanSummary prints a single plan in text format.
func printPlanSummary(w io.Writer, p *plan.Plan) {
	fmt.Fprintf(w, "Plan %s\n", p.ID)
	fmt.Fprintf(w, "  Destination: %s\n", p.Destination)
	fmt.Fprintf(w, "  Dates:       %s (%d days)\n", p.Dates(), p.Days())
	if p.TravelGroup != "" {
		fmt.Fprintf(w, "  Group:       %s\n", p.TravelGroup)
	}
	if p.Budget != "" {
		fmt.Fprintf(w, "  Budget:      %s\n", p.Budget)
	}
	if p.Interests != "" {
		fmt.Fprintf(w, "  Interests:   %s\n", p.Interests)
	}
	if p.RegenerationInstructions != "" {
		fmt.Fprintf(w, "  Requests:    %s\n", p.RegenerationInstructions)
	}
	fmt.Fprintf(w, "  Status:      %s\n", p.Status)
	if p.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error:       %s\n", p.ErrorMessage)
	}
}

// printPlanTable prints a list of plans as a formatted table.
func printPlanTable(out io.Writer, plans []*plan.Plan) error {
	if len(plans) == 0 {
		fmt.Fprintln(out, "No plans found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tDESTINATION\tDATES\tSTATUS"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "--\t-----------\t-----\t------"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}
	for _, p := range plans {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.ID, truncate(p.Destination, 40), p.Dates(), p.Status); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Fprintf(out, "\nTotal: %d plans\n", len(plans))
	return nil
}

// printItinerary prints the day-by-day itinerary in text format.
func printItinerary(w io.Writer, it *itinerary.Itinerary) {
	for i, day := range it.DailyPlans {
		fmt.Fprintf(w, "Day %d: %s", i, day.Date)
		if day.DailyCost != "" {
			fmt.Fprintf(w, " (%s)", day.DailyCost)
		}
		fmt.Fprintln(w)
		for _, a := range day.Activities {
			fmt.Fprintf(w, "  %-6s %s\n", a.Time, a.Activity)
			if a.Location != "" {
				fmt.Fprintf(w, "         at %s\n", formatLocation(a))
			}
			if a.Duration != "" || a.Cost != "" {
				fmt.Fprintf(w, "         %s\n", joinNonEmpty(" · ", a.Duration, a.Cost, a.Transportation))
			}
			if a.Notes != "" {
				fmt.Fprintf(w, "         %s\n", a.Notes)
			}
		}
		fmt.Fprintln(w)
	}
	if it.TotalCost != "" {
		fmt.Fprintf(w, "Total cost: %s\n", it.TotalCost)
	}
	if it.GeneralNotes != "" {
		fmt.Fprintf(w, "Notes: %s\n", it.GeneralNotes)
	}
	if n := it.Unresolved(); n > 0 {
		fmt.Fprintf(w, "%d activities are still waiting for location data.\n", n)
	}
}

// printStatus prints a status view in text format.
func printStatus(w io.Writer, planID string, view *job.StatusView) {
	fmt.Fprintf(w, "Plan %s: %s\n", planID, view.Status)
	if view.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error: %s\n", view.ErrorMessage)
	}
	if view.Itinerary != nil {
		fmt.Fprintln(w)
		printItinerary(w, view.Itinerary)
	}
}

// formatLocation returns the location text with its map link once resolved.
func formatLocation(a itinerary.Activity) string {
	if a.LocationData == nil {
		return a.Location + " (location pending)"
	}
	return fmt.Sprintf("%s <%s>", a.Location, a.LocationData.MapURL)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
