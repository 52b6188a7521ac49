package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/control"
)

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the server cleanly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			return withClient(ctx, func(c *control.Client) error {
				if err := c.Stop(ctx); err != nil {
					return err
				}
				fmt.Println("stop requested; mcwrap exits once the server and any backup finish")
				return nil
			})
		},
	}
	return cmd
}

func newKillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill the server without saving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			return withClient(ctx, func(c *control.Client) error {
				return c.Kill(ctx)
			})
		},
	}
	return cmd
}
