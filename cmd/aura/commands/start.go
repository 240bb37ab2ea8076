package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anaeng/aura/internal/api"
	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/config"
	"github.com/anaeng/aura/pkg/jobs"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
	"github.com/anaeng/aura/pkg/topology"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aura agent",
	Long: `Start the aura agent with configuration taken from the environment.

The agent serves its management API and NSI callback endpoint, polls the DDS
for topology documents once a minute and sends NSI requests to the configured
provider until interrupted.

Examples:
  # Start with the default configuration
  aura start

  # Start with debug logging against a local provider
  LOG_LEVEL=DEBUG NSI_PROVIDER_URL=http://localhost:9000/provider aura start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("aura starting", "version", Version, "log_level", cfg.LogLevel)

	s, err := store.New(&store.Config{URI: cfg.DatabaseURI, SQLLogging: cfg.SQLLogging})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	client, err := nsi.NewClient(nsi.ClientConfig{
		Certificate:    cfg.Certificate,
		PrivateKey:     cfg.PrivateKey,
		CACertificates: cfg.CACertificates,
		Verify:         cfg.VerifyRequests,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize NSI client: %w", err)
	}

	templates, err := nsi.LoadTemplates(cfg.StaticDirectory)
	if err != nil {
		return fmt.Errorf("failed to load message templates: %w", err)
	}

	requester := nsi.NewRequester(client, templates, cfg.ProviderURL, cfg.ProviderID, cfg.CallbackURL())
	logger.Info("NSI requester configured",
		"provider_url", cfg.ProviderURL,
		"provider_id", cfg.ProviderID,
		"reply_to", cfg.CallbackURL())

	runner := jobs.NewRunner(s, requester)
	dispatcher := jobs.NewDispatcher(runner, jobs.DefaultWorkers)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	poller := topology.NewPoller(client, s, cfg.DDSURL)
	go poller.Run(ctx)
	logger.Info("topology poller started", "dds_url", cfg.DDSURL)

	server := api.NewServer(cfg.Host, cfg.Port, s, dispatcher, requester, templates, cfg.ProviderID)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Agent is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Agent stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Agent stopped")
	}

	return nil
}
