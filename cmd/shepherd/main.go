package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/connector/registry"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/shepherd/pkg/connector/destinations"
	_ "github.com/ajitpratap0/shepherd/pkg/connector/sources"
)

var version = "0.1.0"

// envPrefix namespaces environment overrides, e.g. SHEPHERD_SINCE.
const envPrefix = "SHEPHERD"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newViper returns a viper instance reading SHEPHERD_* environment variables.
// Each command binds its own flags to its own instance.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "shepherd",
		Short: "Shepherd - congregational records migration",
		Long: `Shepherd extracts people, households, groups, contributions, attendance and
attachments from a church-management system and writes them as interchange files.
Runs can be incremental (--since) and date-bounded (--range-start/--range-end).`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Shepherd v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Sources:")
			for _, name := range registry.ListSources() {
				printConnector(cmd, core.ConnectorTypeSource, name)
			}
			fmt.Fprintln(out, "\nAvailable Destinations:")
			for _, name := range registry.ListDestinations() {
				printConnector(cmd, core.ConnectorTypeDestination, name)
			}
		},
	})

	v := newViper()
	phasesCmd := &cobra.Command{
		Use:   "phases",
		Short: "Show which phases an export would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			for _, phase := range core.AllPhases {
				state := "enabled"
				if !cfg.PhaseEnabled(phase) {
					state = "skipped"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %s\n", phase, state)
			}
			return nil
		},
	}
	phasesCmd.Flags().StringP("config", "c", "", "Path to the YAML configuration file")
	phasesCmd.Flags().StringSlice("phases", nil, "Restrict the export to these phases")
	_ = v.BindPFlags(phasesCmd.Flags())
	root.AddCommand(phasesCmd)

	root.AddCommand(newExportCommand(newViper()))
	return root
}

func printConnector(cmd *cobra.Command, typ core.ConnectorType, name string) {
	if info, ok := registry.GetRegistry().Info(typ, name); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %-10s %s\n", name, info.Description)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
}

// loadConfig reads the configuration file over the defaults and applies flag
// and environment overrides on top of it. The result is not validated.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Security.Credentials == nil {
		cfg.Security.Credentials = map[string]string{}
	}
	applyOverrides(cfg, v)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	setString("source-type", &cfg.Source.Type)
	setString("base-url", &cfg.Source.BaseURL)
	setString("dsn", &cfg.Source.DSN)
	setString("since", &cfg.Extraction.Watermark)
	setString("range-start", &cfg.Extraction.RangeStart)
	setString("range-end", &cfg.Extraction.RangeEnd)
	setString("output", &cfg.Output.Directory)
	setString("format", &cfg.Output.Format)
	setString("compression", &cfg.Output.Compression)
	setString("metrics-addr", &cfg.Observability.MetricsAddr)
	setString("log-level", &cfg.Observability.LogLevel)

	if phases := v.GetStringSlice("phases"); len(phases) > 0 {
		cfg.Source.Phases = phases
	}
	if v.IsSet("no-attachments") && v.GetBool("no-attachments") {
		cfg.Attachments.Enabled = false
	}
	if v.IsSet("tracing") && v.GetBool("tracing") {
		cfg.Observability.Tracing = true
	}
}
