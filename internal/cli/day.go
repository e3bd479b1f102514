package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/itinerary"
)

func newDayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Edit a single day of an itinerary",
	}
	cmd.AddCommand(newDayUpdateCmd())
	return cmd
}

func newDayUpdateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <id> <day>",
		Short: "Replace a day's activities",
		Long: `Replace the activities of one day. The day is a zero-based index.
The file holds a JSON array of activities, or an object with an "activities" array.
The new list is reordered into a sensible schedule before it is saved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := strconv.Atoi(args[1])
			if err != nil || day < 0 {
				return fmt.Errorf("invalid day index: %s", args[1])
			}

			activities, err := readActivities(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			it, err := newAPIClient().UpdateDay(commandContext(cmd), args[0], day, activities)
			if err != nil {
				return fmt.Errorf("updating day: %w", err)
			}

			if isJSON() {
				return printJSON(os.Stdout, it)
			}
			fmt.Printf("Day %d updated.\n\n", day)
			printItinerary(os.Stdout, it)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", `JSON file with the activities ("-" for stdin)`)
	return cmd
}

// readActivities decodes activities from path, or from stdin when path is "-".
func readActivities(path string, stdin io.Reader) ([]itinerary.Activity, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading activities: %w", err)
	}

	var list []itinerary.Activity
	if err := json.Unmarshal(data, &list); err == nil {
		return requireActivities(list)
	}

	var wrapped struct {
		Activities []itinerary.Activity `json:"activities"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing activities: %w", err)
	}
	return requireActivities(wrapped.Activities)
}

func requireActivities(list []itinerary.Activity) ([]itinerary.Activity, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("no activities provided")
	}
	return list, nil
}
