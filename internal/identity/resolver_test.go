package identity

import (
	"context"
	"testing"

	"github.com/metal-toolbox/placer/internal/cache"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/fixtures"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestResolver(t *testing.T, options ...Option) (*Resolver, *cache.Cache) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, fixtures.WriteCatalogs(dir))

	logger := logrus.New()
	c := cache.New(cache.Options{}, logger)
	store := catalog.NewStore(catalog.NewDirSource(dir), c, logger)

	return NewResolver(store, c, DefaultOptions(), logger, options...), c
}

func TestExtractTokens(t *testing.T) {
	testCases := []struct {
		name          string
		componentType model.ComponentType
		texts         []string
		expected      []string
	}{
		{
			"transceiver model code and link speed",
			model.ComponentTransceiver,
			[]string{"pulled from rack 12, Cisco SFP-10G-SR"},
			[]string{"SFP-10G-SR", "10G"},
		},
		{
			"transceiver form factor",
			model.ComponentTransceiver,
			[]string{"generic qsfp28 100gbase-sr4"},
			[]string{"QSFP28", "100GBASE-SR4"},
		},
		{
			"memory speed and capacity",
			model.ComponentMemory,
			[]string{"DDR4-3200 32GB Samsung"},
			[]string{"DDR4-3200", "32GB"},
		},
		{
			"memory pc rating with spaced capacity",
			model.ComponentMemory,
			[]string{"PC4-25600R 16 GB"},
			[]string{"PC4-25600R", "16GB"},
		},
		{
			"cpu model and socket",
			model.ComponentCPU,
			[]string{"Intel Xeon Gold 6338", "LGA4189"},
			[]string{"GOLD6338", "LGA4189"},
		},
		{
			"duplicates across texts are dropped",
			model.ComponentTransceiver,
			[]string{"SFP-10G-SR", "sfp-10g-sr"},
			[]string{"SFP-10G-SR", "10G"},
		},
		{
			"no tokens",
			model.ComponentChassis,
			[]string{"", "spare"},
			[]string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExtractTokens(tc.componentType, tc.texts...))
		})
	}
}

func TestOverlapScorer(t *testing.T) {
	scorer := NewOverlapScorer(0.5)

	testCases := []struct {
		name     string
		model    string
		tokens   []string
		notes    string
		expected float64
	}{
		{
			"full token match",
			"SFP-10G-SR",
			[]string{"SFP-10G-SR"},
			"",
			1.0,
		},
		{
			"token contained in model weighted by length",
			"SFP-10G-SR",
			[]string{"10G"},
			"",
			3.0 / 8.0,
		},
		{
			"model contained in token",
			"X710",
			[]string{"X710-DA2"},
			"",
			4.0 / 7.0,
		},
		{
			"short model does not match longer tokens",
			"AB",
			[]string{"ABC123"},
			"",
			0,
		},
		{
			"verbatim bonus",
			"Gold 6338",
			[]string{},
			"spare intel gold  6338 from srv-12",
			0.5,
		},
		{
			"short model earns no verbatim bonus",
			"SR",
			[]string{},
			"cisco 10g sr optic",
			0,
		},
		{
			"verbatim model inside a longer word",
			"X520",
			[]string{},
			"spare x5200 card",
			0,
		},
		{
			"verbatim model spanning the whole notes",
			"X520",
			[]string{},
			"x520",
			0.5,
		},
		{
			"verbatim model next to punctuation",
			"X520",
			[]string{},
			"nic (x520), rack 4",
			0.5,
		},
		{
			"no overlap",
			"SFP-25G-SR-S",
			[]string{"SFP-10G-SR", "10G"},
			"",
			0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entry := &model.CatalogEntry{Model: tc.model}
			assert.InDelta(t, tc.expected, scorer.Score(entry, tc.tokens, tc.notes), 0.0001)
		})
	}
}

func TestResolve(t *testing.T) {
	dimmID := catalog.DeriveIdentifier(model.ComponentMemory, "Samsung", "M393A4K40DB3-CWE DDR4-3200 32GB")

	testCases := []struct {
		name          string
		componentType model.ComponentType
		unit          *model.InventoryItem
		matchedBy     model.MatchedBy
		identifier    string
		check         func(t *testing.T, spec model.ResolvedSpec)
	}{
		{
			"direct match",
			model.ComponentTransceiver,
			fixtures.UnitsByID(fixtures.Unit10G1)[0],
			model.MatchedDirect,
			"sfp-10g-sr",
			func(t *testing.T, spec model.ResolvedSpec) {
				assert.Equal(t, model.ConfidenceDirect, spec.MatchConfidence)
				assert.Equal(t, "10G", spec.Attribute(model.AttrSpeed))
				assert.Equal(t, fixtures.Unit10G1, spec.UnitID)
			},
		},
		{
			"smart match from notes",
			model.ComponentMemory,
			fixtures.UnitsByID(fixtures.UnitDIMM)[0],
			model.MatchedSmart,
			dimmID,
			func(t *testing.T, spec model.ResolvedSpec) {
				assert.Contains(t, spec.Model, "DDR4-3200")
				assert.Greater(t, spec.MatchConfidence, 0.0)
				assert.Less(t, spec.MatchConfidence, 1.0)
				assert.Equal(t, "32GB", spec.Attribute(model.AttrCapacity))
			},
		},
		{
			"smart match confidence is capped",
			model.ComponentTransceiver,
			fixtures.UnitsByID(fixtures.UnitUnresolved)[0],
			model.MatchedSmart,
			"sfp-10g-sr",
			func(t *testing.T, spec model.ResolvedSpec) {
				assert.Equal(t, DefaultMaxConfidence, spec.MatchConfidence)
			},
		},
		{
			"unknown identifier falls through to smart match",
			model.ComponentTransceiver,
			&model.InventoryItem{
				UnitID:            "u-x",
				ComponentType:     model.ComponentTransceiver,
				CatalogIdentifier: "sfp-10g-sr-legacy",
				Notes:             "SFP-25G-SR-S",
			},
			model.MatchedSmart,
			"sfp-25g-sr",
			nil,
		},
		{
			"fallback to unit fields",
			model.ComponentTransceiver,
			&model.InventoryItem{
				UnitID:        "u-y",
				ComponentType: model.ComponentTransceiver,
				Notes:         "mystery optic from the returns bin",
				Brand:         "Acme",
				Model:         "ZX-1",
				Attributes:    model.Attributes{model.AttrSpeed: "1G"},
			},
			model.MatchedFallback,
			"",
			func(t *testing.T, spec model.ResolvedSpec) {
				assert.Equal(t, model.ConfidenceFallback, spec.MatchConfidence)
				assert.Equal(t, "Acme", spec.Brand)
				assert.Equal(t, "1G", spec.Attribute(model.AttrSpeed))
			},
		},
		{
			"missing catalog falls back",
			model.ComponentChassis,
			&model.InventoryItem{
				UnitID:            "u-z",
				ComponentType:     model.ComponentChassis,
				CatalogIdentifier: "r6515",
				Notes:             "PowerEdge R6515",
			},
			model.MatchedFallback,
			"",
			nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolver, _ := newTestResolver(t)

			spec := resolver.Resolve(context.Background(), tc.componentType, tc.unit)
			assert.Equal(t, tc.matchedBy, spec.MatchedBy)
			assert.Equal(t, tc.identifier, spec.Identifier)
			assert.Equal(t, tc.componentType, spec.ComponentType)

			if tc.check != nil {
				tc.check(t, spec)
			}
		})
	}
}

func TestResolveConfidenceMonotonicity(t *testing.T) {
	resolver, _ := newTestResolver(t)

	for _, unit := range fixtures.Units() {
		spec := resolver.Resolve(context.Background(), unit.ComponentType, unit)

		switch spec.MatchedBy {
		case model.MatchedDirect:
			assert.Equal(t, 1.0, spec.MatchConfidence, unit.UnitID)
		case model.MatchedFallback:
			assert.Equal(t, 0.0, spec.MatchConfidence, unit.UnitID)
		case model.MatchedSmart:
			assert.Greater(t, spec.MatchConfidence, 0.0, unit.UnitID)
			assert.Less(t, spec.MatchConfidence, 1.0, unit.UnitID)
		default:
			t.Fatalf("unexpected matched_by %s", spec.MatchedBy)
		}
	}
}

func TestResolveDeterminism(t *testing.T) {
	first, _ := newTestResolver(t)
	second, _ := newTestResolver(t)

	for _, unit := range fixtures.Units() {
		a := first.Resolve(context.Background(), unit.ComponentType, unit)
		b := second.Resolve(context.Background(), unit.ComponentType, unit)
		c := first.Resolve(context.Background(), unit.ComponentType, unit)

		assert.Equal(t, a, b, unit.UnitID)
		assert.Equal(t, a, c, unit.UnitID)
	}
}

func TestResolveCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := fixtures.NewMockSource(ctrl)

	source.EXPECT().Read(gomock.Any(), model.ComponentMemory).Times(1).Return(&catalog.Document{
		Format: catalog.FormatJSONC,
		Data:   fixtures.MemoryCatalog,
	}, nil)

	logger := logrus.New()
	c := cache.New(cache.Options{}, logger)
	resolver := NewResolver(catalog.NewStore(source, c, logger), c, DefaultOptions(), logger)

	unit := fixtures.UnitsByID(fixtures.UnitDIMM)[0]

	spec := resolver.Resolve(context.Background(), model.ComponentMemory, unit)
	require.Equal(t, model.MatchedSmart, spec.MatchedBy)

	// mutating a returned spec does not alter the cached spec
	spec.Attributes[model.AttrCapacity] = "1TB"

	again := resolver.Resolve(context.Background(), model.ComponentMemory, unit)
	assert.Equal(t, "32GB", again.Attribute(model.AttrCapacity))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Tiers[cache.TierResolvedSpec])
	assert.Equal(t, 1, stats.Tiers[cache.TierSearch])

	// a changed notes field is a different cache key
	unit.Notes = "DDR4-3200 16GB"
	other := resolver.Resolve(context.Background(), model.ComponentMemory, unit)
	assert.Equal(t, model.MatchedSmart, other.MatchedBy)
	assert.Equal(t, "16GB", other.Attribute(model.AttrCapacity))
}

func TestResolveFallbackTracksAttributes(t *testing.T) {
	resolver, _ := newTestResolver(t)

	unit := &model.InventoryItem{
		UnitID:        "u-cpu",
		ComponentType: model.ComponentCPU,
		Brand:         "Intel",
		Model:         "unlisted",
		Attributes:    model.Attributes{model.AttrCores: "16"},
	}

	spec := resolver.Resolve(context.Background(), model.ComponentCPU, unit)
	require.Equal(t, model.MatchedFallback, spec.MatchedBy)
	assert.Equal(t, "16", spec.Attribute(model.AttrCores))

	// an attribute corrected on the unit is not served from the previous spec
	unit.Attributes = model.Attributes{model.AttrCores: "32"}

	spec = resolver.Resolve(context.Background(), model.ComponentCPU, unit)
	assert.Equal(t, "32", spec.Attribute(model.AttrCores))

	assert.Equal(t, []string{"a=1", "b=2"}, attributePairs(model.Attributes{"b": "2", "a": "1"}))
	assert.Empty(t, attributePairs(nil))
}

type constantScorer float64

func (c constantScorer) Score(*model.CatalogEntry, []string, string) float64 { return float64(c) }

func TestResolveTieBreaksOnCatalogOrder(t *testing.T) {
	resolver, _ := newTestResolver(t, WithScorer(constantScorer(0.5)))

	spec := resolver.Resolve(context.Background(), model.ComponentTransceiver, &model.InventoryItem{
		UnitID:        "u-tie",
		ComponentType: model.ComponentTransceiver,
		Notes:         "QSFP-100G-SR4",
	})

	assert.Equal(t, model.MatchedSmart, spec.MatchedBy)
	assert.Equal(t, "sfp-10g-sr", spec.Identifier)
	assert.Equal(t, 0.5, spec.MatchConfidence)
}

func TestResolveBelowMinScore(t *testing.T) {
	resolver, _ := newTestResolver(t, WithScorer(constantScorer(DefaultMinScore/2)))

	spec := resolver.Resolve(context.Background(), model.ComponentTransceiver, &model.InventoryItem{
		UnitID:        "u-low",
		ComponentType: model.ComponentTransceiver,
		Notes:         "SFP-10G-SR",
	})

	assert.Equal(t, model.MatchedFallback, spec.MatchedBy)
}

func TestResolveCancelledNotCached(t *testing.T) {
	resolver, c := newTestResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spec := resolver.Resolve(ctx, model.ComponentMemory, fixtures.UnitsByID(fixtures.UnitDIMM)[0])
	assert.Equal(t, model.MatchedFallback, spec.MatchedBy)
	assert.Equal(t, 0, c.Stats().Tiers[cache.TierResolvedSpec])
}

func TestResolveIdentifier(t *testing.T) {
	resolver, _ := newTestResolver(t)

	spec := resolver.ResolveIdentifier(context.Background(), model.ComponentCPU,
		catalog.DeriveIdentifier(model.ComponentCPU, "Intel", "Gold 6338"))
	assert.Equal(t, model.MatchedDirect, spec.MatchedBy)
	assert.Equal(t, "LGA4189", spec.Attribute(model.AttrSocket))

	spec = resolver.ResolveIdentifier(context.Background(), model.ComponentCPU, "cpu-unknown")
	assert.Equal(t, model.MatchedFallback, spec.MatchedBy)
	assert.Equal(t, "cpu-unknown", spec.Identifier)
	assert.Equal(t, 0.0, spec.MatchConfidence)
}
