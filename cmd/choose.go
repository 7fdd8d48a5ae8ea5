package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	candidateHosts []string
)

var cmdChoose = &cobra.Command{
	Use:   "choose <unit-id>... [--hosts host-a,host-b]",
	Short: "Choose the candidate host the batch fits most tightly, nothing is reserved",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runChoose(cmd.Context(), splitIDs(args))
	},
}

func runChoose(ctx context.Context, unitIDs []string) {
	ctx, placer, e := setup(ctx)

	choice, err := e.ChooseOptimalHost(ctx, unitIDs, splitIDs(candidateHosts))
	if err != nil {
		placer.Logger.Fatal(err)
	}

	printJSON(choice)
}

func init() {
	cmdChoose.PersistentFlags().StringSliceVar(&candidateHosts, "hosts", nil, "candidate hosts, all hosts when not set")

	rootCmd.AddCommand(cmdChoose)
}
