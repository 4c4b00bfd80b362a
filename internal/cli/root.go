package cli

import (
	"fmt"
	"os"

	"alertbridge/internal/connector"
	"alertbridge/internal/connector/vendors"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "alertbridge",
	Short:         "Vendor connectors for alert intake and outbound actions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "Path to the configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadRegistry returns the built-in vendors plus the definitions found in dir.
func loadRegistry(dir string) (*connector.Registry, error) {
	registry, err := connector.NewRegistry(vendors.All()...)
	if err != nil {
		return nil, err
	}
	if dir != "" {
		if _, err := registry.Reload(dir); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
