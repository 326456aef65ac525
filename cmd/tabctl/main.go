// Command tabctl is the operator tool: schema migration, operator tokens and
// offline tournament simulation.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "tabctl",
	Short:         "Operator tool for the debate tab service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(migrateCmd, tokenCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("tabctl failed", slog.Any("error", err))
		os.Exit(1)
	}
}
