// Garaged keeps a garage door's HomeKit-style state in step with a
// cloud-connected door controller and exposes it over HTTP and MQTT.
//
// Usage:
//
//	garaged [command] [flags]
//
// Running without a command starts the service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:     "garaged",
	Short:   "Garage door state service",
	Version: version,
	RunE:    runServe,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config/config.yaml)")

	rootCmd.AddCommand(serveCmd, statusCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("garaged %s\n", version)
	},
}

// resolveConfigPath prefers the flag, then CONFIG_PATH, then the local default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config/config.yaml"
}
