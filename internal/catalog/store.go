package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/metal-toolbox/placer/internal/cache"
	"github.com/metal-toolbox/placer/internal/metrics"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	pkgName = "internal/catalog"
)

var (
	ErrCatalogNotFound  = errors.New("catalog not found")
	ErrCatalogMalformed = errors.New("catalog malformed")
	ErrEntryNotFound    = errors.New("catalog entry not found")
)

// Catalog is a decoded catalog as held in the raw catalog cache tier.
//
// A Catalog is never modified once stored, reloads replace it.
type Catalog struct {
	ComponentType model.ComponentType  `json:"component_type"`
	Shape         ShapeName            `json:"shape"`
	Origin        string               `json:"origin"`
	LoadedAt      time.Time            `json:"loaded_at"`
	Entries       []model.CatalogEntry `json:"entries"`
}

// Option sets an optional Store parameter.
type Option func(*Store)

// WithShapes pins the document shape of the given component types,
// documents not in the pinned shape fail to load.
func WithShapes(pinned map[model.ComponentType]ShapeName) Option {
	return func(s *Store) {
		for ct, name := range pinned {
			s.pinned[ct] = name
		}
	}
}

// Store loads component catalogs from a Source through the raw catalog cache tier.
type Store struct {
	source Source
	cache  *cache.Cache
	logger *logrus.Logger
	pinned map[model.ComponentType]ShapeName
	flight singleflight.Group

	// generation is incremented on each invalidation of a component type,
	// loads started before an invalidation do not populate the cache.
	mu         sync.Mutex
	generation map[model.ComponentType]uint64
}

// NewStore returns a catalog Store.
func NewStore(source Source, c *cache.Cache, logger *logrus.Logger, opts ...Option) *Store {
	s := &Store{
		source:     source,
		cache:      c,
		logger:     logger,
		pinned:     map[model.ComponentType]ShapeName{},
		generation: map[model.ComponentType]uint64{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LoadCatalog returns the catalog entries of the component type in catalog order.
//
// The returned slice is shared with other callers and must not be modified.
func (s *Store) LoadCatalog(ctx context.Context, componentType model.ComponentType) ([]model.CatalogEntry, error) {
	c, err := s.Catalog(ctx, componentType)
	if err != nil {
		return nil, err
	}

	return c.Entries, nil
}

// Catalog returns the decoded catalog of the component type, loading it on a cache miss.
//
// Concurrent loads of one component type are collapsed into a single source read.
func (s *Store) Catalog(ctx context.Context, componentType model.ComponentType) (*Catalog, error) {
	key := cache.Key(componentType)

	if payload, ok := s.cache.Get(cache.TierRawCatalog, key); ok {
		if c, ok := payload.(*Catalog); ok {
			return c, nil
		}
	}

	for {
		ch := s.flight.DoChan(string(componentType), func() (any, error) {
			// a load may have completed since the cache was checked
			if payload, ok := s.cache.Get(cache.TierRawCatalog, key); ok {
				if c, ok := payload.(*Catalog); ok {
					return c, nil
				}
			}

			return s.load(ctx, componentType)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// the shared load was cancelled by another caller
				if res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}

				return nil, res.Err
			}

			return res.Val.(*Catalog), nil
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Store) load(ctx context.Context, componentType model.ComponentType) (*Catalog, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Store.load")
	defer span.End()

	span.SetAttributes(attribute.String("component_type", string(componentType)))

	generation := s.currentGeneration(componentType)
	startTS := time.Now()

	c, err := s.read(ctx, componentType)
	if err != nil {
		metrics.CatalogLoadCounter.With(prometheus.Labels{"component_type": string(componentType), "result": "failed"}).Inc()
		span.RecordError(err)

		s.logger.WithError(err).WithFields(logrus.Fields{"componentType": componentType}).Warn("catalog load failed")

		return nil, err
	}

	metrics.CatalogLoadCounter.With(prometheus.Labels{"component_type": string(componentType), "result": "succeeded"}).Inc()
	metrics.CatalogLoadRunTimeSummary.With(prometheus.Labels{"component_type": string(componentType)}).
		Observe(time.Since(startTS).Seconds())

	s.mu.Lock()
	if s.generation[componentType] == generation {
		s.cache.Set(cache.TierRawCatalog, cache.Key(componentType), c, 0)
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"componentType": componentType,
		"shape":         c.Shape,
		"origin":        c.Origin,
		"entries":       len(c.Entries),
	}).Debug("catalog loaded")

	return c, nil
}

func (s *Store) read(ctx context.Context, componentType model.ComponentType) (*Catalog, error) {
	doc, err := s.source.Read(ctx, componentType)
	if err != nil {
		if isContextErr(err) || errors.Is(err, ErrCatalogNotFound) || errors.Is(err, ErrCatalogMalformed) {
			return nil, err
		}

		return nil, errors.Wrap(ErrCatalogNotFound, err.Error())
	}

	tree, err := decode(doc)
	if err != nil {
		return nil, errors.Wrap(err, doc.Origin)
	}

	shape, err := s.shape(componentType, tree)
	if err != nil {
		return nil, errors.Wrap(err, doc.Origin)
	}

	raw, err := shape.Iterate(componentType, tree)
	if err != nil {
		return nil, errors.Wrap(err, doc.Origin)
	}

	entries, err := assignIdentifiers(componentType, raw)
	if err != nil {
		return nil, errors.Wrap(err, doc.Origin)
	}

	return &Catalog{
		ComponentType: componentType,
		Shape:         shape.Name(),
		Origin:        doc.Origin,
		LoadedAt:      time.Now(),
		Entries:       entries,
	}, nil
}

func (s *Store) shape(componentType model.ComponentType, tree any) (Shape, error) {
	name, pinned := s.pinned[componentType]
	if !pinned {
		return DetectShape(tree)
	}

	shape, err := ShapeByName(name)
	if err != nil {
		return nil, err
	}

	if !shape.Matches(tree) {
		return nil, errors.Wrap(ErrCatalogMalformed, "document is not in the pinned shape "+string(name))
	}

	return shape, nil
}

func (s *Store) currentGeneration(componentType model.ComponentType) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation[componentType]
}

// FindByIdentifier returns the catalog entry with the identifier,
// ErrEntryNotFound is returned when the catalog has no such entry.
func (s *Store) FindByIdentifier(ctx context.Context, componentType model.ComponentType, identifier string) (*model.CatalogEntry, error) {
	entries, err := s.LoadCatalog(ctx, componentType)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Identifier == identifier {
			entry := entries[i]
			entry.Attributes = entries[i].Attributes.Copy()

			return &entry, nil
		}
	}

	return nil, errors.Wrap(ErrEntryNotFound, string(componentType)+"/"+identifier)
}

// Invalidate drops the cached catalog of the component type and every
// specification derived from it, the next load reads the source again.
func (s *Store) Invalidate(componentType model.ComponentType) int {
	s.mu.Lock()
	s.generation[componentType]++
	dropped := s.cache.Invalidate(componentType)
	s.mu.Unlock()

	s.flight.Forget(string(componentType))

	return dropped
}

// Preload loads the catalogs of the given component types,
// failures are returned together once all loads were attempted.
func (s *Store) Preload(ctx context.Context, componentTypes ...model.ComponentType) error {
	var merr *multierror.Error

	for _, ct := range componentTypes {
		if _, err := s.LoadCatalog(ctx, ct); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, string(ct)))
		}
	}

	return merr.ErrorOrNil()
}
