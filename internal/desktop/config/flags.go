package config

import (
	"flag"
	"os"

	"github.com/pocketdesk/pocketdesk/internal/flagx"
)

// parseFlags populates selected desktop Config fields from command-line
// flags.
//
// Supported flags (short forms):
//
//	-r string   relay base URL (e.g., "http://localhost:8080")
//	-k string   API key for the relay's entity APIs
//	-f string   local SQLite database file
//	-n string   device name
//	-p string   pairing code (pair and exit)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-r", "-k", "-f", "-n", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.RelayURL, "r", config.RelayURL, "relay base URL")
	fs.StringVar(&config.APIKey, "k", config.APIKey, "API key")
	fs.StringVar(&config.DatabaseDSN, "f", config.DatabaseDSN, "local database file")
	fs.StringVar(&config.DeviceName, "n", config.DeviceName, "device name")
	fs.StringVar(&config.PairingCode, "p", config.PairingCode, "pairing code")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
