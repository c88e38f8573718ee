package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Register every built-in connector
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "nebulaflow",
		Short: "nebulaflow - scheduled source to destination pipelines",
		Long: `nebulaflow moves records from a source connector to a destination connector
through field mappings and transformations, on a cron schedule or on demand.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to the engine configuration YAML file")
	root.PersistentFlags().StringVarP(&flags.pipelinesFile, "pipelines", "p", "", "Path to a pipeline definitions YAML file to load into the store")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags),
		newRunCmd(flags),
		newRetryCmd(flags),
		newDryRunCmd(flags),
		newAutomapCmd(flags),
		newSchemaCmd(flags),
		newTestConnectionCmd(flags),
		newConnectorsCmd(),
		newVersionCmd(),
	)
	return root
}
