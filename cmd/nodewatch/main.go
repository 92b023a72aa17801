package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/nodewatch/pkg/api"
	"github.com/cuemby/nodewatch/pkg/config"
	"github.com/cuemby/nodewatch/pkg/events"
	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/notify"
	"github.com/cuemby/nodewatch/pkg/reconciler"
	"github.com/cuemby/nodewatch/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once by the root command before any subcommand runs
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nodewatch",
	Short: "Nodewatch - worker node status monitor",
	Long: `Nodewatch tracks worker nodes registered on the compute ledger,
reconciles their liveness and job state, and notifies owners when a node
goes offline, comes back online, or starts and finishes a job.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = cfg.Log.Level
		}
		log.Init(log.Config{
			Level:      log.ParseLevel(level),
			JSONOutput: cfg.Log.JSON,
		})
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("Nodewatch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: search ./configs, /etc/nodewatch)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation scheduler and HTTP API",
	Long: `Serve opens the node registry, reconciles every owner's nodes on the
configured interval, and exposes the refresh, event stream, health and
metrics endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("api-addr")
		if addr == "" {
			addr = cfg.API.Addr
		}

		metrics.SetVersion(Version)

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		metrics.RegisterComponent(metrics.ComponentStorage, true, "open")
		metrics.RegisterComponent(metrics.ComponentLedger, true, "not yet checked")

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		engine, err := newEngine(store, broker)
		if err != nil {
			return err
		}

		collector := metrics.NewCollector(store, 15*time.Second)
		collector.Start()
		defer collector.Stop()

		scheduler := reconciler.NewScheduler(engine, store, cfg.Reconcile.Interval)
		scheduler.Start()
		fmt.Printf("✓ Reconciling every %s\n", cfg.Reconcile.Interval)

		server := api.NewServer(engine).WithEvents(broker)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(addr); err != nil {
				errCh <- err
			}
		}()
		fmt.Printf("✓ API listening on %s\n", addr)
		fmt.Println("\nNodewatch is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down gracefully...")
		case err := <-errCh:
			scheduler.Stop()
			return fmt.Errorf("API server failed: %w", err)
		}

		scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Logger.Warn().Err(err).Msg("API shutdown did not complete")
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("api-addr", "", "API listen address (default from config)")
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reconcile one owner's nodes now",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine, err := newEngine(store)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report := engine.Refresh(ctx, owner)
		if report.Failed() {
			return fmt.Errorf("refresh failed: %w", report.Err)
		}

		fmt.Printf("✓ Checked %d nodes, %d updated\n", len(report.Results), report.UpdatedCount)
		for _, e := range report.Errors {
			target := e.NodeID
			if target == "" {
				target = e.JobID
			}
			fmt.Printf("  ! %s %s: %s (%s)\n", e.Scope, target, e.Message, e.Kind)
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().String("owner", "", "Owner whose nodes are reconciled")
	_ = refreshCmd.MarkFlagRequired("owner")
}

// openStore opens the configured registry backend
func openStore() (storage.Store, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}

// newLedgerClient builds the indexer client with the configured retry policy
func newLedgerClient() (ledger.Client, error) {
	client, err := ledger.NewHTTPClient(cfg.Ledger.Endpoint)
	if err != nil {
		return nil, err
	}
	client.WithTimeout(cfg.Ledger.Timeout)
	return ledger.WithRetry(client, cfg.Ledger.RetryPolicy()), nil
}

// newDispatcher always logs events, posts them to Discord when a bot token
// and channel are configured, and fans out to any extra dispatchers
func newDispatcher(extra ...notify.Dispatcher) (notify.Dispatcher, error) {
	dispatchers := []notify.Dispatcher{notify.NewLogDispatcher()}
	if cfg.Discord.Enabled() {
		session, err := notify.NewDiscordSession(cfg.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		dispatchers = append(dispatchers, notify.NewDiscordDispatcher(session, cfg.Discord.ChannelID, cfg.Discord.Users))
	}
	dispatchers = append(dispatchers, extra...)
	if len(dispatchers) == 1 {
		return dispatchers[0], nil
	}
	return notify.NewMultiDispatcher(dispatchers...), nil
}

func newEngine(store storage.Store, extra ...notify.Dispatcher) (*reconciler.Engine, error) {
	client, err := newLedgerClient()
	if err != nil {
		return nil, err
	}
	dispatcher, err := newDispatcher(extra...)
	if err != nil {
		return nil, err
	}

	runner := reconciler.NewRunner(client, reconciler.Config{
		JobLimit:      cfg.Ledger.JobLimit,
		Concurrency:   cfg.Reconcile.Concurrency,
		LowBalanceSOL: cfg.Reconcile.LowBalanceSOL,
	})
	return reconciler.NewEngine(store, store, runner, notify.NewNotifier(dispatcher)), nil
}
