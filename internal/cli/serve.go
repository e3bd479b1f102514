package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/config"
	"github.com/evcraddock/trip-planner/internal/enrich"
	"github.com/evcraddock/trip-planner/internal/events"
	"github.com/evcraddock/trip-planner/internal/geo"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/logging"
	"github.com/evcraddock/trip-planner/internal/mapbox"
	"github.com/evcraddock/trip-planner/internal/metrics"
	"github.com/evcraddock/trip-planner/internal/synth"
	"github.com/evcraddock/trip-planner/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP API, the geocode worker, and recover plans left generating by a previous run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return runServe(commandContext(cmd), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.Setup(cfg.DevMode)

	database, err := openDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeDB(database)

	m := metrics.New(prometheus.DefaultRegisterer)

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Close(); err != nil {
				logger.Warn("closing nats", "error", err)
			}
		}()
		publisher = nc
		logger.Info("publishing status events", "url", cfg.NATSURL)
	}

	provider, err := newProvider(cfg, m)
	if err != nil {
		return err
	}
	if provider == nil {
		logger.Warn("no mapbox access token; locations stay queued until one is configured")
	}

	cache := geo.NewCache(database)
	queue := geo.NewQueue(database)
	enricher := enrich.New(cache, queue, provider,
		enrich.WithConcurrency(cfg.Enrich.Concurrency),
		enrich.WithLogger(logger),
		enrich.WithMetrics(m),
	)

	synthesizer, err := synth.NewOpenAI(cfg.Synth(), logger)
	if err != nil {
		return err
	}

	orch := job.New(job.Config{
		DB:          database,
		Synthesizer: synthesizer,
		Enricher:    enricher,
		Events:      publisher,
		Metrics:     m,
		Logger:      logger,
		Timeout:     cfg.Generation.Timeout,
	})

	if _, err := orch.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recovering interrupted plans: %w", err)
	}

	var workers sync.WaitGroup
	if provider != nil {
		worker := geo.NewWorker(queue, cache, provider,
			geo.WithLogger(logger),
			geo.WithMetrics(m),
			geo.WithInterval(cfg.Worker.Interval),
			geo.WithBatchSize(cfg.Worker.BatchSize),
			geo.WithGroupTimeout(cfg.Worker.GroupTimeout),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(ctx)
		}()
	}

	srv := web.NewServer(web.Config{
		DB:           database,
		Orchestrator: orch,
		Gatherer:     prometheus.DefaultGatherer,
		Logger:       logger,
	})

	fmt.Printf("Starting API server on http://localhost:%d\n", cfg.Port)
	serveErr := srv.ListenAndServe(ctx, cfg.Port)

	stop()
	workers.Wait()
	logger.Info("waiting for running generations")
	orch.Wait()

	return serveErr
}

// newProvider builds the throttled Mapbox provider, or nil when no access
// token is configured.
func newProvider(cfg config.Config, m *metrics.Metrics) (geo.Provider, error) {
	if cfg.Mapbox.AccessToken == "" {
		return nil, nil
	}
	mb, err := mapbox.NewClient(cfg.Mapbox.AccessToken,
		mapbox.WithBaseURL(cfg.Mapbox.BaseURL),
		mapbox.WithHTTPClient(&http.Client{Timeout: cfg.Mapbox.Timeout}),
	)
	if err != nil {
		return nil, err
	}
	return geo.NewThrottled(mb, cfg.Mapbox.RequestInterval, cfg.Mapbox.Timeout, m), nil
}

