package cmd

import (
	"context"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/metal-toolbox/placer/internal/app"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/engine"
	"github.com/metal-toolbox/placer/internal/metrics"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/metal-toolbox/placer/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	watch bool
)

var cmdReconcile = &cobra.Command{
	Use:   "reconcile [--watch]",
	Short: "Record the catalog identifier of units smart matched to a catalog entry",
	Long: `reconcile resolves every unit without a catalog identifier and writes back the identifier of
the catalog entry it smart matches.

With --watch the catalog directory is watched for changes, each changed catalog is invalidated and the
units are reconciled again until the process is terminated.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runReconcile(cmd.Context())
	},
}

func runReconcile(ctx context.Context) {
	ctx, placer, e := setup(ctx)

	if !watch {
		reconcileOnce(ctx, placer, e)
		return
	}

	if placer.Config.Catalog.Dir == "" {
		placer.Logger.Fatal("--watch requires catalog.dir to be configured")
	}

	// serve metrics endpoint
	metrics.ListenAndServe(placer.Config.MetricsAddress, placer.Logger)
	version.ExportBuildInfoMetric()

	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, model.AppName)
	defer otelShutdown(ctx)

	changed := make(chan struct{}, 1)

	watcher, err := catalog.NewWatcher(placer.Config.Catalog.Dir, func(componentType model.ComponentType) {
		e.InvalidateCatalog(componentType)

		select {
		case changed <- struct{}{}:
		default:
		}
	}, placer.Logger)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	placer.SyncWG.Add(1)
	go func() {
		defer placer.SyncWG.Done()

		if err := watcher.Run(ctx); err != nil {
			placer.Logger.WithError(err).Error("catalog watcher")
		}
	}()

	reconcileOnce(ctx, placer, e)

	for {
		select {
		case <-changed:
			reconcileOnce(ctx, placer, e)
		case <-ctx.Done():
			placer.Logger.Trace("wait for goroutines..")
			placer.SyncWG.Wait()

			return
		}
	}
}

func reconcileOnce(ctx context.Context, placer *app.App, e *engine.Engine) {
	result, err := e.Reconcile(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		placer.Logger.WithError(err).Error("reconcile")

		return
	}

	placer.Logger.WithFields(logrus.Fields{
		"matched":   len(result.Matched),
		"suggested": len(result.Suggested),
		"unmatched": len(result.Unmatched),
	}).Info("reconciled")

	printJSON(result)
}

func init() {
	cmdReconcile.PersistentFlags().BoolVar(&watch, "watch", false, "watch the catalog directory and reconcile on changes")

	rootCmd.AddCommand(cmdReconcile)
}
