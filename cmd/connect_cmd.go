package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/casahub/leadlink/internal/connection"
	"github.com/casahub/leadlink/internal/qr"
	"github.com/casahub/leadlink/internal/store"
)

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Provision a channel instance and pair it with a chat account",
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

			authorized := make(chan struct{})
			expired := make(chan struct{})
			events := connection.Events{
				OnAuthorized:     func() { close(authorized) },
				OnExpired:        func() { close(expired) },
				OnPairingRestart: func() { fmt.Println("\nConnection stalled, a fresh code is being issued...") },
			}

			svc := newService(cfg, client, stor, events)
			if err := svc.ReconcileOnLoad(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			outcome, err := svc.Create(cmd.Context())
			switch {
			case errors.Is(err, connection.ErrAlreadyConnected):
				fmt.Println("A channel is already connected. Run `leadlink disconnect` first to relink.")
				return
			case err != nil:
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			printPairingCode(outcome)
			fmt.Println("Scan the code with the chat app. Waiting for authorization...")

			waitForPairing(svc, authorized, expired)
			svc.Drain()
		},
	}
	return cmd
}

func printPairingCode(outcome *connection.CreateOutcome) {
	if outcome.RawCode != "" {
		art, err := qr.Terminal(outcome.RawCode)
		if err == nil {
			fmt.Println(art)
			return
		}
	}
	// Inline image only: point the user at it.
	fmt.Println("Open this image to scan the pairing code:")
	fmt.Println(outcome.PairingCode)
}

func waitForPairing(svc *connection.Service, authorized, expired <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-authorized:
			fmt.Println("\nChannel connected. Incoming chats will now arrive as leads.")
			return
		case <-expired:
			fmt.Println("\nPairing window elapsed. Run `leadlink connect` to try again.")
			return
		case <-ticker.C:
			if svc.Status() == store.StatusPending {
				fmt.Printf("\r%3ds remaining ", svc.SecondsRemaining())
			}
		}
	}
}
