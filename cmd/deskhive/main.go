package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskhive/deskhive/pkg/broker"
	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/config"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/handlers"
	"github.com/deskhive/deskhive/pkg/lifecycle"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/metrics"
	"github.com/deskhive/deskhive/pkg/notifier"
	"github.com/deskhive/deskhive/pkg/pool"
	"github.com/deskhive/deskhive/pkg/queue"
	"github.com/deskhive/deskhive/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deskhive",
	Short: "Deskhive - virtual desktop session lifecycle controller",
	Long: `Deskhive orchestrates virtual desktop sessions: it consumes
lifecycle events from a FIFO queue, drives sessions through
provisioning, stop/resume cycles and deletion against a remote
desktop broker, and keeps session permissions enforced.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Deskhive version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session lifecycle controller",
	Long: `Start the controller: open the state store, connect to the
session broker, and run the worker pool against the event queue until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSONOutput,
		})
		logger := log.WithComponent("main")

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()

		q := queue.NewMemQueue(cfg.Queue.VisibilityTimeout)
		publisher := events.NewQueuePublisher(q, cfg.TrustedSenders.Controller)
		watched := notifier.New(store, publisher)

		brokerClient := broker.NewHTTPClient(
			cfg.Broker.Endpoint,
			cfg.Broker.APIToken,
			cfg.Broker.Timeout,
			cfg.Broker.RetryAttempts,
		)
		compute := cloud.NewFakeCompute()
		commands := cloud.NewFakeCommands()

		lc := lifecycle.NewManager(watched, brokerClient, compute, commands, publisher)
		dispatcher := handlers.New(watched, lc, brokerClient, compute, commands, publisher, cfg).Dispatcher()

		controller := pool.NewController(q, dispatcher, cfg.Pool, cfg.Queue)
		controller.Start()
		defer controller.Stop()

		collector := metrics.NewCollector(store)
		collector.Start()
		defer collector.Stop()

		var metricsServer *http.Server
		if cfg.Metrics.Enabled {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsServer = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("Metrics server failed")
				}
			}()
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Metrics endpoint started")
		}

		// Periodic sweep trigger
		sweepStop := make(chan struct{})
		go runSweepTicker(q, cfg, sweepStop)
		defer close(sweepStop)

		logger.Info().Msg("Controller is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("Shutting down")
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			metricsServer.Shutdown(shutdownCtx)
			cancel()
		}
		return nil
	},
}

// runSweepTicker publishes the scheduled sweep event once per minute,
// taking the place of an external cron trigger in single-node mode.
func runSweepTicker(q queue.Queue, cfg *config.Config, stopCh chan struct{}) {
	schedulerPublisher := events.NewQueuePublisher(q, cfg.TrustedSenders.Scheduler)
	logger := log.WithComponent("sweep")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			event := &events.Event{
				GroupID: "scheduled-sweep",
				Type:    events.EventScheduled,
			}
			if err := schedulerPublisher.Publish(context.Background(), event); err != nil {
				logger.Error().Err(err).Msg("Failed to publish sweep event")
			}
		case <-stopCh:
			return
		}
	}
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the controller config file")
	serveCmd.Flags().String("data-dir", "/var/lib/deskhive", "Directory for the state database")
}
