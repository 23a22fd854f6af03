// Package cmd implements the jobagent command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const defaultConfigFile = "jobagent.json5"

var (
	cfgFile string
	verbose bool
	logJSON bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobagent",
		Short:         "Autonomous job agent: runs queued prompts through an LLM tool loop",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $JOBAGENT_CONFIG or ./jobagent.json5)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	root.AddCommand(workerCmd())
	root.AddCommand(runCmd())
	root.AddCommand(submitCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(interruptCmd())
	root.AddCommand(failCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(cronCmd())
	root.AddCommand(doctorCmd())
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns --config, then $JOBAGENT_CONFIG, then the default file.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if env := os.Getenv("JOBAGENT_CONFIG"); env != "" {
		return env
	}
	return defaultConfigFile
}

// setupLogging installs the default slog handler. The config level applies
// unless --verbose forces debug.
func setupLogging() {
	level := slog.LevelInfo
	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		level = config.ParseLogLevel(cfg.LogLevel)
	}
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	slog.SetDefault(slog.New(handler))
}
