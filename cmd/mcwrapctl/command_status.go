package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/control"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server and backup status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			return withClient(ctx, func(c *control.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				printStatusTable(os.Stdout, st)
				return nil
			})
		},
	}
	return cmd
}
