package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/casahub/leadlink/internal/leads"
)

func leadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Inspect captured leads",
	}
	cmd.AddCommand(leadsListCmd())
	return cmd
}

func leadsListCmd() *cobra.Command {
	var jsonOutput bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent captured leads",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()

			sink, err := leads.NewSQLiteSink(cfg.Store.LeadsDBPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer sink.Close()

			rows, err := sink.RecentByOwner(cfg.Owner.ID, limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(rows, "", "  ")
				fmt.Println(string(data))
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "WHEN\tCONTACT\tNAME\tMESSAGE\n")
			for _, l := range rows {
				msg := l.Message
				if len(msg) > 60 {
					msg = msg[:60] + "..."
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					l.CreatedAt.Format("2006-01-02 15:04"), l.Contact, orDash(l.Name), msg)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max leads to list")
	return cmd
}
