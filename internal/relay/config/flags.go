package config

import (
	"flag"
	"os"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/flagx"
)

// parseFlags populates selected relay Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   session token HMAC secret key
//	-t int      session validity, days
//	-p int      pairing code validity, minutes
//	-w int      sweep interval, minutes
//	-u string   bootstrap user name
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers and converted to time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-p", "-w", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run relay")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionTTLDays := fs.Int("t", int(config.SessionTTL.Hours()/24), "session validity (in days)")
	codeTTLMinutes := fs.Int("p", int(config.PairingCodeTTL.Minutes()), "pairing code validity (in minutes)")
	sweepMinutes := fs.Int("w", int(config.SweepInterval.Minutes()), "expiry sweep interval (in minutes)")

	fs.StringVar(&config.BootstrapUser, "u", config.BootstrapUser, "bootstrap user name")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTLDays) * 24 * time.Hour
	config.PairingCodeTTL = time.Duration(*codeTTLMinutes) * time.Minute
	config.SweepInterval = time.Duration(*sweepMinutes) * time.Minute
}
