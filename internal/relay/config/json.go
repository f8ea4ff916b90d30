package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/flagx"
	"github.com/pocketdesk/pocketdesk/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. It uses timex.Duration for interval fields, which parses both
// string values such as "5m" and integer nanoseconds. After unmarshalling,
// its fields are copied into the runtime Config struct.
type JsonConfig struct {
	EndpointAddrHTTP  string         `json:"endpoint_addr_http"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	SessionTTL        timex.Duration `json:"session_ttl"`
	PairingCodeTTL    timex.Duration `json:"pairing_code_ttl"`
	PairingRateWindow timex.Duration `json:"pairing_rate_window"`
	PairingRateMax    int            `json:"pairing_rate_max"`
	SweepInterval     timex.Duration `json:"sweep_interval"`
	BootstrapUser     string         `json:"bootstrap_user"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.SessionTTL = time.Duration(c.SessionTTL.Duration)
	config.PairingCodeTTL = time.Duration(c.PairingCodeTTL.Duration)
	config.PairingRateWindow = time.Duration(c.PairingRateWindow.Duration)
	config.PairingRateMax = c.PairingRateMax
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.BootstrapUser = c.BootstrapUser
}
