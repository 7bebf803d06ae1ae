package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/casahub/leadlink/internal/connection"
)

func disconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Tear down the channel instance, remotely and locally",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()

			client, err := newClient(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			stor, err := openInstanceStore(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			svc := newService(cfg, client, stor, connection.Events{})
			if err := svc.ReconcileOnLoad(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			err = svc.Delete(cmd.Context())
			switch {
			case errors.Is(err, connection.ErrNoInstance):
				fmt.Println("No channel instance to disconnect.")
			case err != nil:
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			default:
				fmt.Println("Channel disconnected.")
			}
		},
	}
	return cmd
}
