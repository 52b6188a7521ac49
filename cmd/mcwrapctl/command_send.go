package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/control"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <command...>",
		Short: "Send a command to the server console",
		Example: `  mcwrapctl send whitelist add steve
  mcwrapctl send say server restarts in 5 minutes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			return withClient(ctx, func(c *control.Client) error {
				return c.SendCommand(ctx, strings.Join(args, " "))
			})
		},
	}
	return cmd
}

func newSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <alias>",
		Short: "Save now and name the resulting backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			return withClient(ctx, func(c *control.Client) error {
				return c.SaveAs(ctx, args[0])
			})
		},
	}
	return cmd
}
