package cmd

import (
	"context"
	"log"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/spf13/cobra"
)

type assignFlags struct {
	host  string
	hosts []string
	auto  bool
}

var (
	assignFlagSet = &assignFlags{}
)

var cmdAssign = &cobra.Command{
	Use:   "assign <unit-id>... --host <host-id> | --auto [--hosts host-a,host-b]",
	Short: "Reserve free host slots for a batch of units",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAssign(cmd.Context(), splitIDs(args))
	},
}

func runAssign(ctx context.Context, unitIDs []string) {
	if assignFlagSet.auto == (assignFlagSet.host != "") {
		log.Fatal("expected --host OR --auto flag")
	}

	ctx, placer, e := setup(ctx)

	var (
		plan *model.AssignmentPlan
		err  error
	)

	if assignFlagSet.auto {
		plan, err = e.ChooseAndAssign(ctx, unitIDs, splitIDs(assignFlagSet.hosts))
	} else {
		plan, err = e.Assign(ctx, unitIDs, assignFlagSet.host)
	}

	if err != nil {
		placer.Logger.Fatal(err)
	}

	printJSON(plan)
}

func init() {
	cmdAssign.PersistentFlags().StringVar(&assignFlagSet.host, "host", "", "host to assign the units to")
	cmdAssign.PersistentFlags().BoolVar(&assignFlagSet.auto, "auto", false, "choose the host the batch fits most tightly")
	cmdAssign.PersistentFlags().StringSliceVar(&assignFlagSet.hosts, "hosts", nil, "candidate hosts for --auto, all hosts when not set")

	rootCmd.AddCommand(cmdAssign)
}
