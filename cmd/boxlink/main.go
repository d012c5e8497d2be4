// boxlink - hub sync client
//
// boxlink keeps a local cache of the services exposed by a box on the
// local network. It finds boxes over mDNS, holds the box session token,
// polls the box and reconciles the cache, and serves the cache to local
// user interfaces over HTTP and WebSocket. Service events can also be
// mirrored to MQTT and InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path, used when it exists.
const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var gf globalFlags

	cmd := &cobra.Command{
		Use:           "boxlink",
		Short:         "Sync client for a local hub box",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&gf.configPath, "config", "c", "", "Config file (default $BOXLINK_CONFIG or "+defaultConfigPath+")")
	cmd.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "Override logging.level")

	cmd.AddCommand(
		runCmd(&gf),
		loginURLCmd(&gf),
		servicesCmd(&gf),
		boxesCmd(&gf),
		auditCmd(&gf),
	)
	return cmd
}

// getConfigPath resolves the config file: the flag, then BOXLINK_CONFIG,
// then the default path if it exists. An empty result means defaults and
// environment only.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("BOXLINK_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
