package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/client"
	"github.com/evcraddock/trip-planner/internal/job"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [id]",
		Short: "Check connection, or a plan's generation status",
		Long: `Without arguments, tests the connection to the server and checks the stored API key.
With a plan ID, prints the plan's generation status and its itinerary once generated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runPlanStatus(cmd, args[0])
			}
			return runStatus(cmd)
		},
	}
}

func runPlanStatus(cmd *cobra.Command, id string) error {
	view, err := newAPIClient().PlanStatus(commandContext(cmd), id)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(os.Stdout, view)
	}
	printStatus(os.Stdout, id, view)
	return nil
}

func runStatus(cmd *cobra.Command) error {
	server, key := serverURLSetting(), apiKeySetting()
	serverURL, apiKey := server.Value, key.Value

	fmt.Printf("Server:  %s (%s)\n", serverURL, server.Source)

	if apiKey == "" {
		fmt.Println("API Key: not configured")
		fmt.Println("\nRun 'tp login' to authenticate.")
		return nil
	}

	fmt.Printf("API Key: %s… (%s)\n", keyPrefix(apiKey), key.Source)

	_, err := client.New(serverURL, apiKey).ListPlans(commandContext(cmd))
	var apiErr *client.APIError
	switch {
	case err == nil:
		fmt.Println("Status:  ✓ connected and authenticated")
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
		fmt.Println("Status:  ✗ invalid API key")
		fmt.Println("\nRun 'tp login' to re-authenticate.")
	case errors.Is(err, job.ErrNotFound):
		fmt.Println("Status:  ✗ server does not serve the plans API")
	case errors.As(err, &apiErr):
		fmt.Printf("Status:  ✗ unexpected response (%d)\n", apiErr.Status)
	default:
		fmt.Printf("Status:  ✗ cannot reach server (%v)\n", err)
	}

	return nil
}

// keyPrefix returns the first eight characters of a key for display.
func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
