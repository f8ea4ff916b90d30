package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/flagx"
	"github.com/pocketdesk/pocketdesk/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct.
type JsonConfig struct {
	RelayURL          string         `json:"relay_url"`
	APIKey            string         `json:"api_key"`
	DatabaseDSN       string         `json:"database_dsn"`
	DeviceName        string         `json:"device_name"`
	ReconnectMinDelay timex.Duration `json:"reconnect_min_delay"`
	ReconnectMaxDelay timex.Duration `json:"reconnect_max_delay"`
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

	config.RelayURL = c.RelayURL
	config.APIKey = c.APIKey
	config.DatabaseDSN = c.DatabaseDSN
	config.DeviceName = c.DeviceName
	config.ReconnectMinDelay = time.Duration(c.ReconnectMinDelay.Duration)
	config.ReconnectMaxDelay = time.Duration(c.ReconnectMaxDelay.Duration)
}
