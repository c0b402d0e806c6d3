// Package cmd wires the orchestration engine into the storyboard CLI.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storyboard/internal/config"
	"github.com/felixgeelhaar/storyboard/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "storyboard",
	Short: "Multi-agent content production orchestrator",
	Long: `storyboard drives a multi-agent content-production pipeline from the
command line. It turns a natural-language request into an ordered plan of
writer, visualizer, researcher, and data-analyst steps, executes the plan one
step at a time, and patches it in place when you refine or regenerate parts
of the output.`,
	SilenceUsage: true,
}

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// cfg is loaded once in the persistent pre-run and shared by subcommands
	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".storyboard/config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		// flags override file values
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}

		logCfg := log.DefaultConfig()
		logCfg.Level = log.ParseLevel(cfg.Log.Level)
		logCfg.Format = log.ParseFormat(cfg.Log.Format)
		log.SetDefaultLogger(log.New(logCfg))
		return nil
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command under the given context so signal
// cancellation propagates into in-flight provider calls.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
