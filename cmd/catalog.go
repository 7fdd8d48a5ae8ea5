package cmd

import (
	"context"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/spf13/cobra"
)

var (
	catalogType string
)

var cmdCatalog = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the component catalogs and the specification cache",
}

var cmdCatalogList = &cobra.Command{
	Use:   "list --type <component type>",
	Short: "List the entries of a component catalog",
	Run: func(cmd *cobra.Command, _ []string) {
		runCatalogList(cmd.Context())
	},
}

var cmdCatalogInvalidate = &cobra.Command{
	Use:   "invalidate --type <component type>",
	Short: "Reload a component catalog, dropping every specification derived from it",
	Run: func(cmd *cobra.Command, _ []string) {
		runCatalogInvalidate(cmd.Context())
	},
}

var cmdCatalogStats = &cobra.Command{
	Use:   "stats",
	Short: "Load the catalogs of every component type and print the cache counters",
	Run: func(cmd *cobra.Command, _ []string) {
		runCatalogStats(cmd.Context())
	},
}

func runCatalogList(ctx context.Context) {
	ctx, placer, e := setup(ctx)

	componentType, err := model.ParseComponentType(catalogType)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	c, err := e.Catalogs().Catalog(ctx, componentType)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	printJSON(c)
}

func runCatalogInvalidate(ctx context.Context) {
	ctx, placer, e := setup(ctx)

	componentType, err := model.ParseComponentType(catalogType)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	dropped := e.InvalidateCatalog(componentType)

	c, err := e.Catalogs().Catalog(ctx, componentType)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	printJSON(map[string]any{
		"component_type": componentType,
		"dropped":        dropped,
		"entries":        len(c.Entries),
		"origin":         c.Origin,
	})
}

func runCatalogStats(ctx context.Context) {
	ctx, placer, e := setup(ctx)

	if err := e.Catalogs().Preload(ctx, model.ComponentTypes()...); err != nil {
		placer.Logger.WithError(err).Warn("catalog load")
	}

	printJSON(e.CacheStats())
}

func init() {
	for _, c := range []*cobra.Command{cmdCatalogList, cmdCatalogInvalidate} {
		c.PersistentFlags().StringVar(&catalogType, "type", "", "component type of the catalog")

		if err := c.MarkPersistentFlagRequired("type"); err != nil {
			panic(err)
		}
	}

	cmdCatalog.AddCommand(cmdCatalogList, cmdCatalogInvalidate, cmdCatalogStats)
	rootCmd.AddCommand(cmdCatalog)
}
