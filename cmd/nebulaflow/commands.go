package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/nebulaflow/internal/automap"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const manualTrigger = "cli"

// withApp loads the configuration, builds the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var triggeredBy string
	cmd := &cobra.Command{
		Use:   "run <pipeline-id>",
		Short: "Run a pipeline once and print its run log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				run, runErr := a.engine.RunPipeline(ctx, args[0], triggeredBy)
				if run != nil {
					if err := printJSON(cmd.OutOrStdout(), run); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", manualTrigger, "Trigger recorded in the run log")
	return cmd
}

func newRetryCmd(flags *globalFlags) *cobra.Command {
	var triggeredBy string
	cmd := &cobra.Command{
		Use:   "retry <run-id>",
		Short: "Retry a failed run, from its snapshot while it is retained",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				run, runErr := a.engine.RetryRun(ctx, args[0], triggeredBy)
				if run != nil {
					if err := printJSON(cmd.OutOrStdout(), run); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", manualTrigger, "Trigger recorded in the run log")
	return cmd
}

func newDryRunCmd(flags *globalFlags) *cobra.Command {
	var sampleSize int
	cmd := &cobra.Command{
		Use:   "dry-run <pipeline-id>",
		Short: "Preview a pipeline without writing to the destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				result, err := a.engine.DryRun(ctx, args[0], sampleSize)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().IntVarP(&sampleSize, "sample-size", "n", 0, "Number of records to preview (engine default when 0)")
	return cmd
}

func newAutomapCmd(flags *globalFlags) *cobra.Command {
	var sourceFields, destFields string
	cmd := &cobra.Command{
		Use:   "automap [pipeline-id]",
		Short: "Suggest field mappings by name similarity",
		Long: `With a pipeline id, discovers the source schema, completes the pipeline's
mappings and saves them. With --source-fields and --destination-fields, only
prints the suggested mappings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if sourceFields == "" || destFields == "" {
					return fmt.Errorf("either a pipeline id or both --source-fields and --destination-fields are required")
				}
				maps := automap.Automap(models.ParseFieldList(sourceFields), models.ParseFieldList(destFields), nil, automap.Options{})
				return printJSON(cmd.OutOrStdout(), maps)
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				maps, err := a.engine.AutomapPipeline(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), maps)
			})
		},
	}
	cmd.Flags().StringVar(&sourceFields, "source-fields", "", "Comma separated source field names")
	cmd.Flags().StringVar(&destFields, "destination-fields", "", "Comma separated destination field names")
	return cmd
}

func newSchemaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <source-type> <connection-string>",
		Short: "Discover the field names of a source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				fields, err := a.engine.TestSourceSchema(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), fields)
			})
		},
	}
}

func newTestConnectionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection <provider> <connection-string>",
		Short: "Open and close a connection and report the outcome",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				result := a.engine.TestConnection(ctx, args[0], args[1])
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("connection test failed")
				}
				return nil
			})
		},
	}
}

func newConnectorsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "List available connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return printJSON(cmd.OutOrStdout(), registry.ListConnectorInfo())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Fprintf(out, "  - %s\n", source)
			}
			fmt.Fprintln(out, "\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Fprintf(out, "  - %s\n", dest)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the connector catalog as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nebulaflow v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
