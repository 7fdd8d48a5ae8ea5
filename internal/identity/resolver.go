package identity

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/metal-toolbox/placer/internal/cache"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/metrics"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	DefaultMinScore      = 0.3
	DefaultVerbatimBonus = 0.5
	DefaultMaxConfidence = 0.95
)

// fingerprintKey is the BLAKE3 key for unit field fingerprints in cache keys.
var fingerprintKey = [32]byte{
	'p', 'l', 'a', 'c', 'e', 'r', '.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0,
}

// Options are the smart matching parameters.
type Options struct {
	// MinScore is the score an entry must reach to be a smart match.
	MinScore float64 `mapstructure:"min_score" validate:"gte=0"`

	// VerbatimBonus is added to the score of entries whose model appears verbatim in the unit notes.
	VerbatimBonus float64 `mapstructure:"verbatim_bonus" validate:"gte=0"`

	// MaxConfidence caps the confidence of smart matches, it is below the direct match confidence.
	MaxConfidence float64 `mapstructure:"max_confidence" validate:"gt=0,lt=1"`
}

// DefaultOptions returns the default smart matching parameters.
func DefaultOptions() Options {
	return Options{
		MinScore:      DefaultMinScore,
		VerbatimBonus: DefaultVerbatimBonus,
		MaxConfidence: DefaultMaxConfidence,
	}
}

// CatalogStore is the catalog lookup surface the resolver depends on.
type CatalogStore interface {
	LoadCatalog(ctx context.Context, componentType model.ComponentType) ([]model.CatalogEntry, error)
	FindByIdentifier(ctx context.Context, componentType model.ComponentType, identifier string) (*model.CatalogEntry, error)
}

// Option sets an optional Resolver parameter.
type Option func(*Resolver)

// WithScorer sets the Scorer used for smart matching.
func WithScorer(scorer Scorer) Option {
	return func(r *Resolver) {
		r.scorer = scorer
	}
}

// Resolver joins inventory units to catalog entries.
type Resolver struct {
	store  CatalogStore
	cache  *cache.Cache
	scorer Scorer
	opts   Options
	logger *logrus.Logger
}

// NewResolver returns a Resolver, the default scorer is an OverlapScorer.
func NewResolver(store CatalogStore, c *cache.Cache, opts Options, logger *logrus.Logger, options ...Option) *Resolver {
	if opts.MaxConfidence <= 0 || opts.MaxConfidence >= model.ConfidenceDirect {
		opts.MaxConfidence = DefaultMaxConfidence
	}

	r := &Resolver{
		store:  store,
		cache:  c,
		scorer: NewOverlapScorer(opts.VerbatimBonus),
		opts:   opts,
		logger: logger,
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// searchResult is the search tier payload.
type searchResult struct {
	identifier string
	score      float64
}

// Resolve returns the specification of the unit.
//
// A unit with a catalog identifier present in the catalog is a direct match, otherwise its notes
// and serial are matched against the catalog models. When neither succeeds the spec is built from
// the structured fields recorded on the unit. Resolve does not fail, callers decide whether the
// returned match confidence is acceptable.
func (r *Resolver) Resolve(ctx context.Context, componentType model.ComponentType, unit *model.InventoryItem) model.ResolvedSpec {
	fields := append([]string{unit.Notes, unit.SerialOrTag, unit.Brand, unit.Model}, attributePairs(unit.Attributes)...)
	key := cache.Key(componentType, "unit", unit.UnitID, unit.CatalogIdentifier, fingerprint(fields...))

	if payload, ok := r.cache.Get(cache.TierResolvedSpec, key); ok {
		if spec, ok := payload.(model.ResolvedSpec); ok {
			spec.Attributes = spec.Attributes.Copy()
			return spec
		}
	}

	spec := r.resolve(ctx, componentType, unit)

	metrics.ResolveCounter.With(prometheus.Labels{
		"component_type": string(componentType),
		"matched_by":     string(spec.MatchedBy),
	}).Inc()

	// results of cancelled lookups are not cached
	if ctx.Err() == nil {
		r.cache.Set(cache.TierResolvedSpec, key, spec, 0)
	}

	out := spec
	out.Attributes = spec.Attributes.Copy()

	return out
}

func (r *Resolver) resolve(ctx context.Context, componentType model.ComponentType, unit *model.InventoryItem) model.ResolvedSpec {
	le := r.logger.WithFields(logrus.Fields{
		"componentType": componentType,
		"unitID":        unit.UnitID,
	})

	if unit.CatalogIdentifier != "" {
		entry, err := r.store.FindByIdentifier(ctx, componentType, unit.CatalogIdentifier)
		if err == nil {
			return model.SpecFromEntry(unit.UnitID, entry, model.ConfidenceDirect, model.MatchedDirect)
		}

		if !errors.Is(err, catalog.ErrEntryNotFound) {
			le.WithError(err).Warn("direct catalog lookup failed")
		}

		le.WithField("identifier", unit.CatalogIdentifier).Debug("identifier not in catalog, trying smart match")
	}

	if spec, ok := r.smartMatch(ctx, componentType, unit, le); ok {
		return spec
	}

	le.Debug("no catalog match, falling back to unit fields")

	return fallback(componentType, unit)
}

func (r *Resolver) smartMatch(ctx context.Context, componentType model.ComponentType, unit *model.InventoryItem, le *logrus.Entry) (model.ResolvedSpec, bool) {
	tokens := ExtractTokens(componentType, unit.Notes, unit.SerialOrTag)
	if len(tokens) == 0 && unit.Notes == "" {
		return model.ResolvedSpec{}, false
	}

	entries, err := r.store.LoadCatalog(ctx, componentType)
	if err != nil {
		le.WithError(err).Warn("catalog load failed, smart match skipped")
		return model.ResolvedSpec{}, false
	}

	result := r.search(componentType, entries, tokens, unit.Notes)
	if result.identifier == "" {
		return model.ResolvedSpec{}, false
	}

	for i := range entries {
		if entries[i].Identifier != result.identifier {
			continue
		}

		confidence := result.score
		if confidence > r.opts.MaxConfidence {
			confidence = r.opts.MaxConfidence
		}

		le.WithFields(logrus.Fields{
			"identifier": result.identifier,
			"score":      result.score,
			"tokens":     strings.Join(tokens, ","),
		}).Debug("smart matched")

		return model.SpecFromEntry(unit.UnitID, &entries[i], confidence, model.MatchedSmart), true
	}

	return model.ResolvedSpec{}, false
}

// search returns the best scoring entry above the minimum score,
// ties go to the entry first in catalog order.
func (r *Resolver) search(componentType model.ComponentType, entries []model.CatalogEntry, tokens []string, notes string) searchResult {
	key := cache.Key(componentType, "search", fingerprint(append([]string{notes}, tokens...)...))

	if payload, ok := r.cache.Get(cache.TierSearch, key); ok {
		if result, ok := payload.(searchResult); ok {
			return result
		}
	}

	var best searchResult

	for i := range entries {
		score := r.scorer.Score(&entries[i], tokens, notes)
		if score > best.score {
			best = searchResult{identifier: entries[i].Identifier, score: score}
		}
	}

	if best.score <= 0 || best.score < r.opts.MinScore {
		best = searchResult{}
	}

	r.cache.Set(cache.TierSearch, key, best, 0)

	return best
}

// ResolveIdentifier returns the specification of a catalog identifier,
// an identifier not in the catalog resolves to an empty fallback spec.
func (r *Resolver) ResolveIdentifier(ctx context.Context, componentType model.ComponentType, identifier string) model.ResolvedSpec {
	entry, err := r.store.FindByIdentifier(ctx, componentType, identifier)
	if err != nil {
		if !errors.Is(err, catalog.ErrEntryNotFound) {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"componentType": componentType,
				"identifier":    identifier,
			}).Warn("catalog lookup failed")
		}

		return model.ResolvedSpec{
			ComponentType:   componentType,
			Identifier:      identifier,
			MatchConfidence: model.ConfidenceFallback,
			MatchedBy:       model.MatchedFallback,
		}
	}

	return model.SpecFromEntry("", entry, model.ConfidenceDirect, model.MatchedDirect)
}

func fallback(componentType model.ComponentType, unit *model.InventoryItem) model.ResolvedSpec {
	return model.ResolvedSpec{
		UnitID:          unit.UnitID,
		ComponentType:   componentType,
		Brand:           unit.Brand,
		Model:           unit.Model,
		Attributes:      unit.Attributes.Copy(),
		MatchConfidence: model.ConfidenceFallback,
		MatchedBy:       model.MatchedFallback,
	}
}

// attributePairs returns the attributes as key=value pairs in key order.
func attributePairs(attributes model.Attributes) []string {
	keys := maps.Keys(attributes)
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+attributes[k])
	}

	return pairs
}

// fingerprint returns a short keyed hash of the values for use in cache keys.
func fingerprint(values ...string) string {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("identity: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	for _, v := range values {
		_, _ = hasher.Write([]byte(v))
		_, _ = hasher.Write([]byte{0})
	}

	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
