// Package cli defines the cobra command tree for trip-planner.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/client"
	"github.com/evcraddock/trip-planner/internal/config"
	"github.com/evcraddock/trip-planner/internal/db"
)

var (
	flagFormat string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tp",
		Short:         "Plan trips with generated itineraries",
		Long:          "Create travel plans, generate day-by-day itineraries with resolved locations, and follow generation from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: ~/.config/tp/trips.db)")

	root.AddCommand(
		newPlanCmd(),
		newGenerateCmd(),
		newRegenerateCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newDayCmd(),
		newDeleteCmd(),
		newServeCmd(),
		newGeocodeCmd(),
		newAPIKeyCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newVersionCmd(),
	)

	return root
}

// openDB opens the SQLite database using the --db flag, fallback, or the
// default path, in that order.
func openDB(fallback string) (*sql.DB, error) {
	path := flagDB
	if path == "" {
		path = fallback
	}
	if path == "" {
		var err error
		path, err = db.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return db.Open(path)
}

// openServerDB opens the database the server uses: --db, then db_path from
// the config file or TP_DB_PATH, then the default path.
func openServerDB(configPath string) (*sql.DB, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}
	database, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// newAPIClient creates an HTTP client for the trip-planner API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
