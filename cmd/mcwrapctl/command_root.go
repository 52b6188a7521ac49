package main

import "github.com/spf13/cobra"

// addressFlag overrides MCWRAP_CONTROL_ADDRESS.
var addressFlag string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcwrapctl",
		Short:         "Control a running mcwrap",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&addressFlag, "address", "a", "", "control address (default $MCWRAP_CONTROL_ADDRESS or "+defaultAddress+")")

	root.AddCommand(newSendCmd())
	root.AddCommand(newSaveCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newKillCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogsCmd())

	return root
}
