package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/config"
	"github.com/evcraddock/trip-planner/internal/geo"
	"github.com/evcraddock/trip-planner/internal/logging"
)

func newGeocodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Inspect and drain the geocode queue",
	}
	cmd.AddCommand(newGeocodeProcessCmd(), newGeocodeStatsCmd())
	return cmd
}

func newGeocodeProcessCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Resolve one batch of queued locations",
		Long:  "Run a single geocode worker pass against the local database and print what it did.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}
			provider, err := newProvider(cfg, nil)
			if err != nil {
				return err
			}
			if provider == nil {
				return errors.New("a mapbox access token is required (set TP_MAPBOX_ACCESS_TOKEN)")
			}

			database, err := openDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer closeDB(database)

			worker := geo.NewWorker(geo.NewQueue(database), geo.NewCache(database), provider,
				geo.WithLogger(logging.New(os.Stderr, cfg.DevMode)),
				geo.WithBatchSize(cfg.Worker.BatchSize),
				geo.WithGroupTimeout(cfg.Worker.GroupTimeout),
			)
			res, err := worker.ProcessBatch(commandContext(cmd), limit)
			if err != nil {
				return fmt.Errorf("processing batch: %w", err)
			}

			if isJSON() {
				return printJSON(os.Stdout, res)
			}
			fmt.Printf("Selected:  %d entries in %d regions\n", res.Selected, res.Groups)
			fmt.Printf("Resolved:  %d\n", res.Completed)
			fmt.Printf("Unmatched: %d\n", res.Unmatched)
			fmt.Printf("Retried:   %d\n", res.Retried)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum entries to select (default: worker batch size)")
	return cmd
}

func newGeocodeStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show geocode queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openServerDB(configPath)
			if err != nil {
				return err
			}
			defer closeDB(database)

			stats, err := geo.NewQueue(database).Stats(commandContext(cmd))
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(os.Stdout, stats)
			}
			fmt.Printf("Pending:   %d", stats.Pending)
			if stats.Exhausted > 0 {
				fmt.Printf(" (%d out of retries)", stats.Exhausted)
			}
			fmt.Println()
			fmt.Printf("Completed: %d\n", stats.Completed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "server YAML config file (for db_path)")
	return cmd
}
