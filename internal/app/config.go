package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/placer/internal/cache"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/compat"
	"github.com/metal-toolbox/placer/internal/engine"
	"github.com/metal-toolbox/placer/internal/identity"
	"github.com/metal-toolbox/placer/internal/metrics"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	DefaultConfigFile = ".placer.yml"
)

var (
	ErrConfig = errors.New("configuration error")

	configValidate *validator.Validate
)

func init() {
	configValidate = validator.New()
}

// Configuration holds application configuration read from a YAML or set by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=info debug trace"`

	// Concurrency is the number of units resolved in parallel by reconcile.
	Concurrency int `mapstructure:"concurrency" validate:"gte=0"`

	// MetricsAddress is the listen address of the prometheus endpoint in long running mode.
	MetricsAddress string `mapstructure:"metrics_address"`

	Catalog CatalogOptions `mapstructure:"catalog"`

	Cache cache.Options `mapstructure:"cache"`

	Matching identity.Options `mapstructure:"matching"`

	Compat compat.Options `mapstructure:"compat"`

	Inventory InventoryOptions `mapstructure:"inventory"`

	Reconcile ReconcileOptions `mapstructure:"reconcile"`
}

// CatalogOptions configures the catalog source.
//
// Catalogs are read from Dir unless URL is set.
type CatalogOptions struct {
	Dir          string            `mapstructure:"dir" validate:"required_without=URL"`
	URL          string            `mapstructure:"url" validate:"omitempty,url"`
	HTTPRetryMax int               `mapstructure:"http_retry_max" validate:"gte=0"`
	HTTPTimeout  time.Duration     `mapstructure:"http_timeout"`
	Shapes       map[string]string `mapstructure:"shapes"`
	Preload      []string          `mapstructure:"preload"`
}

// InventoryOptions configures the inventory repository.
type InventoryOptions struct {
	File string `mapstructure:"file"`
}

// ReconcileOptions configures the inventory reconcile runs.
type ReconcileOptions struct {
	// MinConfidence is the smart match confidence a unit catalog identifier is recorded from.
	MinConfidence float64 `mapstructure:"min_confidence" validate:"gt=0,lte=1"`
}

// LoadConfiguration loads application configuration
//
// Reads in the cfgFile when available and overrides from environment variables.
func (a *App) LoadConfiguration(cfgFile string) error {
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(model.AppName)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	a.v.SetDefault("log_level", model.LogLevelInfo)
	a.v.SetDefault("concurrency", engine.DefaultConcurrency)
	a.v.SetDefault("metrics_address", metrics.MetricsEndpoint)
	a.v.SetDefault("matching.min_score", identity.DefaultMinScore)
	a.v.SetDefault("matching.verbatim_bonus", identity.DefaultVerbatimBonus)
	a.v.SetDefault("matching.max_confidence", identity.DefaultMaxConfidence)
	a.v.SetDefault("reconcile.min_confidence", engine.DefaultReconcileMinConfidence)

	if cfgFile == "" {
		cfgFile = defaultConfigFile()
	}

	if cfgFile != "" {
		fh, err := os.Open(cfgFile)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}

		defer fh.Close()

		if err = a.v.ReadConfig(fh); err != nil {
			return errors.Wrap(ErrConfig, "ReadConfig error:"+err.Error())
		}
	}

	if err := a.envBindVars(); err != nil {
		return errors.Wrap(ErrConfig, "env var bind error:"+err.Error())
	}

	if err := a.v.Unmarshal(a.Config); err != nil {
		return errors.Wrap(ErrConfig, "Unmarshal error: "+err.Error())
	}

	if err := configValidate.Struct(a.Config); err != nil {
		return errors.Wrap(ErrConfig, err.Error())
	}

	if _, err := a.Config.Shapes(); err != nil {
		return err
	}

	if _, err := a.Config.PreloadTypes(); err != nil {
		return err
	}

	return nil
}

// defaultConfigFile returns the config file in the user home directory when present.
func defaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	path := filepath.Join(home, DefaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (a *App) envBindVars() error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(a.Config, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for k := range flat {
		if err := a.v.BindEnv(k); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

// Shapes returns the pinned catalog shapes by component type.
func (c *Configuration) Shapes() (map[model.ComponentType]catalog.ShapeName, error) {
	shapes := make(map[model.ComponentType]catalog.ShapeName, len(c.Catalog.Shapes))

	for name, shape := range c.Catalog.Shapes {
		ct, err := model.ParseComponentType(name)
		if err != nil {
			return nil, errors.Wrap(ErrConfig, "catalog.shapes: "+err.Error())
		}

		if _, err := catalog.ShapeByName(catalog.ShapeName(shape)); err != nil {
			return nil, errors.Wrap(ErrConfig, "catalog.shapes."+name+": "+err.Error())
		}

		shapes[ct] = catalog.ShapeName(shape)
	}

	return shapes, nil
}

// PreloadTypes returns the component types whose catalogs are loaded at startup.
func (c *Configuration) PreloadTypes() ([]model.ComponentType, error) {
	types := make([]model.ComponentType, 0, len(c.Catalog.Preload))

	for _, name := range c.Catalog.Preload {
		ct, err := model.ParseComponentType(name)
		if err != nil {
			return nil, errors.Wrap(ErrConfig, "catalog.preload: "+err.Error())
		}

		types = append(types, ct)
	}

	return types, nil
}

// EngineOptions returns the engine parameters from the configuration.
func (c *Configuration) EngineOptions() (engine.Options, error) {
	shapes, err := c.Shapes()
	if err != nil {
		return engine.Options{}, err
	}

	return engine.Options{
		Cache:       c.Cache,
		Matching:    c.Matching,
		Compat:      c.Compat,
		Shapes:      shapes,
		Concurrency: c.Concurrency,

		ReconcileMinConfidence: c.Reconcile.MinConfidence,
	}, nil
}
