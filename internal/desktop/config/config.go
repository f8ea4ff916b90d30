// Package config handles configuration for the desktop agent, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the PocketDesk desktop agent.
//
// Fields:
//   - RelayURL: base URL of the relay's HTTP endpoint.
//   - APIKey: key for the relay's entity APIs.
//   - DatabaseDSN: path of the local SQLite database file.
//   - DeviceName: label shown in the relay's device list.
//   - PairingCode: if set, the agent redeems the code, stores the session,
//     and exits instead of starting the sync loop.
//   - ReconnectMinDelay / ReconnectMaxDelay: bounds of the reconnect backoff.
type Config struct {
	RelayURL          string
	APIKey            string
	DatabaseDSN       string
	DeviceName        string
	PairingCode       string
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
func (c *Config) LoadDefaults() {
	c.RelayURL = "http://localhost:8080"
	c.APIKey = ""
	c.DatabaseDSN = "pocketdesk.db"
	c.DeviceName = "desktop"
	c.PairingCode = ""
	c.ReconnectMinDelay = time.Second
	c.ReconnectMaxDelay = time.Minute
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
