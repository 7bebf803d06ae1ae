// Package cmd implements the leadlink CLI.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFlag  string
	verboseFlag bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadlink",
		Short: "Messaging-channel connection orchestrator for the CasaHub CRM",
		Long: "leadlink links an external chat account to a CasaHub workspace:\n" +
			"it provisions a remote channel instance, shows the pairing QR,\n" +
			"watches for authorization and captures inbound chats as leads.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verboseFlag {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file path (default ~/.leadlink/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(connectCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(disconnectCmd())
	cmd.AddCommand(leadsCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
