package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/cardkit/internal/logger"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "cardsetctl",
	Short: "Exercise and inspect remembered-set card sets",
	Long: `cardsetctl derives card set configurations from heap geometry and
drives card sets under concurrent load, reporting occupancy, container
coarsening and memory use.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write JSON logs to daily files in this directory")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging routes library logs to stderr in verbose mode, or to log
// files when a directory is given.
func initLogging() error {
	switch {
	case logDir != "":
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return logger.Init(logger.Options{Enabled: true, LogDir: logDir, Level: level})
	case verbose:
		return logger.Init(logger.Options{Enabled: true, Output: os.Stderr, Level: slog.LevelDebug})
	}
	return nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
