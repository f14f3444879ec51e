package commands

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/config"
	"github.com/ethercflow/eRPC/pkg/metrics"

	// Register Prometheus metrics constructors
	_ "github.com/ethercflow/eRPC/pkg/metrics/prometheus"
)

// Version info set by main from ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "erpc",
	Short: "eRPC session management daemon and tools",
	Long: `erpc hosts a per-process Nexus and per-thread RPC endpoints over an
unreliable UDP control plane, with a datagram datapath transport.

Configuration is read from ERPC_* environment variables, the --config
file, and built-in defaults, in that order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (YAML)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(helloCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("erpc %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

// loadConfig loads the process configuration and initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startMetrics initializes the metrics registry and serves /metrics when
// enabled. Returns the SMMetrics instance (nil when disabled).
func startMetrics(cfg *config.Config) metrics.SMMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}

	metrics.InitRegistry()
	m := metrics.NewSMMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	go func() {
		logger.Info("Metrics listener started", logger.KeyAddr, cfg.Metrics.ListenAddr)
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
			logger.Error("Metrics listener failed", logger.KeyError, err)
		}
	}()

	return m
}
