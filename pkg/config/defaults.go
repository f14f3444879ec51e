package config

import "github.com/spf13/viper"

// Default values for every configurable setting. Anything not overridden
// by file, environment, or flags comes from here.
const (
	DefaultMgmtPort    = 31850
	DefaultMetricsAddr = ":9187"
)

func setDefaults(v *viper.Viper) {
	// Logging
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	// Nexus
	v.SetDefault("nexus.host", "localhost")
	v.SetDefault("nexus.mgmt_port", DefaultMgmtPort)
	v.SetDefault("nexus.drop_prob", 0.0)

	// Transport
	v.SetDefault("transport.kind", "udp")
	v.SetDefault("transport.port", 0)
	v.SetDefault("transport.ring_size", 0)

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", DefaultMetricsAddr)
}
