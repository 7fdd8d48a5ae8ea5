package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/metal-toolbox/placer/internal/app"
	"github.com/metal-toolbox/placer/internal/engine"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   model.AppName,
	Short: "Resolve hardware component specifications and assign units to host slots",
	Long: `placer joins inventory units to the vendor component catalogs, checks that a batch
of units shares one specification, and assigns batches to host slots.

Results are written to stdout as JSON.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup returns the app and an engine over the configured catalogs and inventory file.
//
// The returned context is cancelled on SIGINT or SIGTERM.
func setup(ctx context.Context) (context.Context, *app.App, *engine.Engine) {
	placer, err := app.New(cfgFile, logLevel)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancelFunc := context.WithCancel(ctx)

	// routine listens for termination signal and cancels the context
	go func() {
		<-placer.TermCh
		placer.Logger.Info("got TERM signal, exiting...")
		cancelFunc()
	}()

	repository, err := placer.Repository()
	if err != nil {
		placer.Logger.Fatal(err)
	}

	e, err := placer.Engine(repository)
	if err != nil {
		placer.Logger.Fatal(err)
	}

	preload, err := placer.Config.PreloadTypes()
	if err != nil {
		placer.Logger.Fatal(err)
	}

	if err := e.Catalogs().Preload(ctx, preload...); err != nil {
		placer.Logger.WithError(err).Warn("catalog preload")
	}

	return ctx, placer, e
}

// printJSON writes the value to stdout as indented JSON.
func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(b))
}

// splitIDs returns the non empty identifiers of the comma separated values.
func splitIDs(values []string) []string {
	ids := []string{}

	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	return ids
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (default is $HOME/.placer.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "set logging level - "+strings.Join(model.LogLevels(), ", "))
}
