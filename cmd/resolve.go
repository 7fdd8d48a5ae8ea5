package cmd

import (
	"context"
	"log"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/spf13/cobra"
)

type resolveFlags struct {
	componentType string
	identifier    string
}

var (
	resolveFlagSet = &resolveFlags{}
)

var cmdResolve = &cobra.Command{
	Use:   "resolve [unit-id...] | --type <component type> --identifier <catalog identifier>",
	Short: "Resolve the specification of inventory units or of a catalog identifier",
	Run: func(cmd *cobra.Command, args []string) {
		runResolve(cmd.Context(), splitIDs(args))
	},
}

func runResolve(ctx context.Context, unitIDs []string) {
	if resolveFlagSet.identifier == "" && len(unitIDs) == 0 {
		log.Fatal("expected unit identifiers OR the --identifier flag")
	}

	ctx, placer, e := setup(ctx)

	if resolveFlagSet.identifier != "" {
		componentType, err := model.ParseComponentType(resolveFlagSet.componentType)
		if err != nil {
			placer.Logger.Fatal(err)
		}

		printJSON(e.ResolveIdentifier(ctx, componentType, resolveFlagSet.identifier))

		return
	}

	specs := make([]model.ResolvedSpec, 0, len(unitIDs))

	for _, id := range unitIDs {
		spec, err := e.ResolveSpec(ctx, id)
		if err != nil {
			placer.Logger.Fatal(err)
		}

		specs = append(specs, spec)
	}

	printJSON(specs)
}

func init() {
	cmdResolve.PersistentFlags().StringVar(&resolveFlagSet.componentType, "type", "", "component type of the catalog identifier")
	cmdResolve.PersistentFlags().StringVar(&resolveFlagSet.identifier, "identifier", "", "catalog identifier to resolve")

	rootCmd.AddCommand(cmdResolve)
}
