package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect and retry reports the backend did not accept",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored draft reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				drafts, err := a.coach.Drafts(ctx)
				if err != nil {
					return err
				}
				if len(drafts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No drafts.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tTITLE\tATTEMPTS\tLAST ERROR\tCREATED")
				for _, d := range drafts {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID(), d.Report.Title, d.Attempts,
						d.LastError, d.CreatedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Retry saving every stored draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				pushed, err := a.coach.PushDrafts(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d draft(s)\n", pushed)
				return err
			})
		},
	})
	return cmd
}
