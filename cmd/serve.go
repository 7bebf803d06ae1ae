package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/casahub/leadlink/internal/config"
	"github.com/casahub/leadlink/internal/connection"
	"github.com/casahub/leadlink/internal/leads"
	"github.com/casahub/leadlink/internal/webhook"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and connection orchestrator",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServe(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
	return cmd
}

func runServe(parent context.Context) error {
	cfg := mustLoadConfig()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	stor, err := openInstanceStore(cfg)
	if err != nil {
		return err
	}
	sink, err := leads.NewSQLiteSink(cfg.Store.LeadsDBPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	svc := newService(cfg, client, stor, connection.Events{
		OnAuthorized: func() { slog.Info("channel authorized", "owner", cfg.Owner.ID) },
		OnExpired:    func() { slog.Info("pairing window elapsed", "owner", cfg.Owner.ID) },
	})
	if err := svc.ReconcileOnLoad(ctx); err != nil {
		return err
	}

	recv := webhook.NewServer(cfg.Owner.ID, cfg.Webhook.Token, sink, svc)
	httpSrv := &http.Server{
		Addr:         cfg.Webhook.Listen,
		Handler:      recv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Hot reload: only the webhook token is safe to swap at runtime;
	// everything else takes effect on restart.
	stopWatch, err := config.Watch(resolveConfigPath(), func(c *config.Config) {
		recv.SetToken(c.Webhook.Token)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("webhook server listening", "addr", cfg.Webhook.Listen, "owner", cfg.Owner.ID)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	svc.Drain()
	slog.Info("serve stopped")
	return err
}
