package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var cmdValidate = &cobra.Command{
	Use:   "validate <unit-id>...",
	Short: "Check that a batch of units shares one specification",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runValidate(cmd.Context(), splitIDs(args))
	},
}

func runValidate(ctx context.Context, unitIDs []string) {
	ctx, placer, e := setup(ctx)

	result, err := e.ValidateBatch(ctx, unitIDs)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	printJSON(result)

	if !result.Success {
		log.Println("batch validation failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmdValidate)
}
