package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cmdRemove = &cobra.Command{
	Use:   "remove <unit-id>",
	Short: "Release the slot of a reserved or installed unit, the unit becomes free",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRemove(cmd.Context(), args[0])
	},
}

func runRemove(ctx context.Context, unitID string) {
	ctx, placer, e := setup(ctx)

	if err := e.Remove(ctx, unitID); err != nil {
		placer.Logger.Fatal(err)
	}

	placer.Logger.WithField("unitID", unitID).Info("unit removed")
}

func init() {
	rootCmd.AddCommand(cmdRemove)
}
