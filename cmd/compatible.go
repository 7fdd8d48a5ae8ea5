package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cmdCompatible = &cobra.Command{
	Use:   "compatible <host-id>",
	Short: "List the free units the host has a free slot for",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCompatible(cmd.Context(), args[0])
	},
}

func runCompatible(ctx context.Context, hostID string) {
	ctx, placer, e := setup(ctx)

	units, err := e.CompatibleUnitsForHost(ctx, hostID)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	printJSON(units)
}

func init() {
	rootCmd.AddCommand(cmdCompatible)
}
