package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cmdInstall = &cobra.Command{
	Use:   "install <unit-id>...",
	Short: "Mark reserved units as installed in their slots",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInstall(cmd.Context(), splitIDs(args))
	},
}

func runInstall(ctx context.Context, unitIDs []string) {
	ctx, placer, e := setup(ctx)

	if err := e.Install(ctx, unitIDs); err != nil {
		placer.Logger.Fatal(err)
	}

	placer.Logger.WithField("units", unitIDs).Info("units installed")
}

func init() {
	rootCmd.AddCommand(cmdInstall)
}
