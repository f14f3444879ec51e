package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethercflow/eRPC/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration tools",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		fmt.Println("Configuration is valid")
		fmt.Printf("  nexus:     %s (drop_prob=%.2f)\n", cfg.Nexus.URI(), cfg.Nexus.DropProb)
		fmt.Printf("  transport: %s port=%d ring_size=%d\n", cfg.Transport.Kind, cfg.Transport.Port, cfg.Transport.RingSize)
		fmt.Printf("  logging:   %s/%s -> %s\n", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
		fmt.Printf("  metrics:   enabled=%t addr=%s\n", cfg.Metrics.Enabled, cfg.Metrics.ListenAddr)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
