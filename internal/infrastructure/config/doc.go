// Package config handles loading and validating mqttwrap configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MQTTWRAP_*)
//   - Validation of required fields
//   - Conversion to settings.ConnectionConfig for the client layer
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/mqttwrap.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr, _ := cfg.BrokerAddress()
//	conn := cfg.ToConnectionConfig()
package config
