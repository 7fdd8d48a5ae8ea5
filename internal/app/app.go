package app

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/bombsimon/logrusr/v2"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/engine"
	"github.com/metal-toolbox/placer/internal/inventory"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

// App holds attributes for the placer application
type App struct {
	// Viper loads configuration parameters.
	v *viper.Viper
	// Sync waitgroup to wait for running go routines on termination.
	SyncWG *sync.WaitGroup
	// Placer configuration.
	Config *Configuration
	// TermCh is the channel to terminate the app based on a signal
	TermCh chan os.Signal
	// Logger is the app logger
	Logger *logrus.Logger
}

// New returns returns a new instance of the placer app
//
// The log level flag, when set, overrides the configured log level.
func New(cfgFile, logLevel string) (*App, error) {
	app := &App{
		v:      viper.New(),
		Config: &Configuration{},
		SyncWG: &sync.WaitGroup{},
		Logger: logrus.New(),
		TermCh: make(chan os.Signal, 1),
	}

	if err := app.LoadConfiguration(cfgFile); err != nil {
		return nil, err
	}

	if logLevel == "" {
		logLevel = app.Config.LogLevel
	}

	// set log level, format
	switch logLevel {
	case model.LogLevelDebug:
		app.Logger.Level = logrus.DebugLevel
	case model.LogLevelTrace:
		app.Logger.Level = logrus.TraceLevel
	default:
		app.Logger.Level = logrus.InfoLevel
	}

	app.Logger.SetFormatter(
		&runtime.Formatter{ChildFormatter: &logrus.JSONFormatter{}},
	)

	// otel internal errors and debug messages go to the app logger
	otel.SetLogger(logrusr.New(app.Logger))

	// register for SIGINT, SIGTERM
	signal.Notify(app.TermCh, syscall.SIGINT, syscall.SIGTERM)

	return app, nil
}

// CatalogSource returns the configured catalog source.
func (a *App) CatalogSource() catalog.Source {
	if a.Config.Catalog.URL != "" {
		return catalog.NewHTTPSource(
			a.Config.Catalog.URL,
			a.Config.Catalog.HTTPRetryMax,
			a.Config.Catalog.HTTPTimeout,
			a.Logger,
		)
	}

	return catalog.NewDirSource(a.Config.Catalog.Dir)
}

// Repository returns the inventory repository backed by the configured inventory file.
func (a *App) Repository() (*inventory.YAMLStore, error) {
	if a.Config.Inventory.File == "" {
		return nil, errors.Wrap(ErrConfig, "inventory.file not defined")
	}

	return inventory.NewYAMLStore(a.Config.Inventory.File)
}

// Engine returns an engine over the configured catalog source and the given repository.
func (a *App) Engine(repository inventory.Repository) (*engine.Engine, error) {
	opts, err := a.Config.EngineOptions()
	if err != nil {
		return nil, err
	}

	return engine.New(a.CatalogSource(), repository, opts, a.Logger), nil
}
