package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/metal-toolbox/placer/internal/cache"
	"github.com/metal-toolbox/placer/internal/catalog"
	"github.com/metal-toolbox/placer/internal/fixtures"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func newDirStore(t *testing.T, opts ...catalog.Option) (*catalog.Store, *cache.Cache) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, fixtures.WriteCatalogs(dir))

	c := cache.New(cache.Options{}, logrus.New())

	return catalog.NewStore(catalog.NewDirSource(dir), c, logrus.New(), opts...), c
}

func TestLoadCatalogShapes(t *testing.T) {
	testCases := []struct {
		name          string
		componentType model.ComponentType
		shape         catalog.ShapeName
		count         int
		check         func(t *testing.T, entries []model.CatalogEntry)
	}{
		{
			"record array with explicit identifiers",
			model.ComponentTransceiver,
			catalog.ShapeRecordArray,
			4,
			func(t *testing.T, entries []model.CatalogEntry) {
				assert.Equal(t, "sfp-10g-sr", entries[0].Identifier)
				assert.False(t, entries[0].DerivedIdentifier)
				assert.Equal(t, "SFP+", entries[0].Attribute(model.AttrTransceiverType))
				assert.Equal(t, "10G", entries[0].Attribute(model.AttrSpeed))

				// the last record has no identifier
				assert.True(t, entries[3].DerivedIdentifier)
				assert.Equal(t, "commercial", entries[3].Attribute("specs_temperature"))
			},
		},
		{
			"brand list with derived identifiers",
			model.ComponentMemory,
			catalog.ShapeBrandList,
			4,
			func(t *testing.T, entries []model.CatalogEntry) {
				for _, e := range entries {
					assert.True(t, e.DerivedIdentifier)
					assert.Equal(t, model.ComponentMemory, e.ComponentType)
				}

				assert.Equal(t, "Samsung", entries[0].Brand)
				assert.Equal(t, "DDR5", entries[2].Attribute(model.AttrMemoryType))
				assert.Equal(t, "4800", entries[2].Attribute(model.AttrSpeed))
				assert.Equal(t, "MTA36ASF4G72PZ-3G2", entries[3].Model)
			},
		},
		{
			"series tree",
			model.ComponentCPU,
			catalog.ShapeSeriesTree,
			3,
			func(t *testing.T, entries []model.CatalogEntry) {
				assert.Equal(t, "Intel", entries[0].Brand)
				assert.Equal(t, "Xeon Gold", entries[0].Series)
				assert.Equal(t, "LGA4189", entries[0].Attribute(model.AttrSocket))
				assert.Equal(t, "32", entries[0].Attribute(model.AttrCores))
				assert.Equal(t, "EPYC", entries[2].Series)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, _ := newDirStore(t)

			c, err := store.Catalog(context.Background(), tc.componentType)
			require.NoError(t, err)

			assert.Equal(t, tc.shape, c.Shape)
			require.Len(t, c.Entries, tc.count)
			tc.check(t, c.Entries)
		})
	}
}

func TestLoadCatalogIdentifierStability(t *testing.T) {
	first, _ := newDirStore(t)
	second, _ := newDirStore(t)

	a, err := first.LoadCatalog(context.Background(), model.ComponentMemory)
	require.NoError(t, err)

	b, err := second.LoadCatalog(context.Background(), model.ComponentMemory)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))

	for i := range a {
		assert.Equal(t, a[i].Identifier, b[i].Identifier)
	}
}

func TestLoadCatalogNotFound(t *testing.T) {
	store, c := newDirStore(t)

	_, err := store.LoadCatalog(context.Background(), model.ComponentChassis)
	assert.ErrorIs(t, err, catalog.ErrCatalogNotFound)

	// failed loads are not cached
	assert.Equal(t, 0, c.Stats().Tiers[cache.TierRawCatalog])
}

func TestLoadCatalogPinnedShape(t *testing.T) {
	store, _ := newDirStore(t, catalog.WithShapes(map[model.ComponentType]catalog.ShapeName{
		model.ComponentMemory: catalog.ShapeSeriesTree,
		model.ComponentCPU:    catalog.ShapeSeriesTree,
	}))

	_, err := store.LoadCatalog(context.Background(), model.ComponentMemory)
	assert.ErrorIs(t, err, catalog.ErrCatalogMalformed)

	_, err = store.LoadCatalog(context.Background(), model.ComponentCPU)
	assert.NoError(t, err)
}

func TestLoadCatalogCachesRawTier(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := fixtures.NewMockSource(ctrl)

	source.EXPECT().Read(gomock.Any(), model.ComponentTransceiver).Times(1).Return(&catalog.Document{
		ComponentType: model.ComponentTransceiver,
		Format:        catalog.FormatJSON,
		Origin:        "mock",
		Data:          fixtures.TransceiverCatalog,
	}, nil)

	c := cache.New(cache.Options{}, logrus.New())
	store := catalog.NewStore(source, c, logrus.New())

	for i := 0; i < 3; i++ {
		entries, err := store.LoadCatalog(context.Background(), model.ComponentTransceiver)
		require.NoError(t, err)
		assert.Len(t, entries, 4)
	}

	stats := c.Stats()
	assert.Equal(t, 1, stats.Tiers[cache.TierRawCatalog])
	assert.Equal(t, uint64(2), stats.Hits)
}

func TestLoadCatalogSourceErrors(t *testing.T) {
	testCases := []struct {
		name        string
		doc         *catalog.Document
		err         error
		expectedErr error
	}{
		{
			"source error is not found",
			nil,
			errors.New("permission denied"),
			catalog.ErrCatalogNotFound,
		},
		{
			"source malformed error is kept",
			nil,
			errors.Wrap(catalog.ErrCatalogMalformed, "bad status"),
			catalog.ErrCatalogMalformed,
		},
		{
			"undecodable document",
			&catalog.Document{Format: catalog.FormatJSON, Data: []byte(`{"brands": [`)},
			nil,
			catalog.ErrCatalogMalformed,
		},
		{
			"duplicate explicit identifier",
			&catalog.Document{Format: catalog.FormatJSON, Data: []byte(`[{"id": "a", "model": "x"}, {"id": "a", "model": "y"}]`)},
			nil,
			catalog.ErrCatalogMalformed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			source := fixtures.NewMockSource(ctrl)
			source.EXPECT().Read(gomock.Any(), model.ComponentNIC).Times(1).Return(tc.doc, tc.err)

			store := catalog.NewStore(source, cache.New(cache.Options{}, logrus.New()), logrus.New())

			_, err := store.LoadCatalog(context.Background(), model.ComponentNIC)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestLoadCatalogConcurrentLoadsCollapse(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := fixtures.NewMockSource(ctrl)

	source.EXPECT().Read(gomock.Any(), model.ComponentMemory).Times(1).DoAndReturn(
		func(ctx context.Context, ct model.ComponentType) (*catalog.Document, error) {
			time.Sleep(50 * time.Millisecond)

			return &catalog.Document{Format: catalog.FormatJSONC, Data: fixtures.MemoryCatalog}, nil
		},
	)

	store := catalog.NewStore(source, cache.New(cache.Options{}, logrus.New()), logrus.New())

	var wg sync.WaitGroup

	results := make([][]model.CatalogEntry, 10)

	for i := 0; i < len(results); i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			entries, err := store.LoadCatalog(context.Background(), model.ComponentMemory)
			assert.NoError(t, err)

			results[i] = entries
		}(i)
	}

	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestLoadCatalogCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := fixtures.NewMockSource(ctrl)

	source.EXPECT().Read(gomock.Any(), model.ComponentCPU).AnyTimes().DoAndReturn(
		func(ctx context.Context, ct model.ComponentType) (*catalog.Document, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)

	store := catalog.NewStore(source, cache.New(cache.Options{}, logrus.New()), logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.LoadCatalog(ctx, model.ComponentCPU)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFindByIdentifier(t *testing.T) {
	store, _ := newDirStore(t)

	entry, err := store.FindByIdentifier(context.Background(), model.ComponentTransceiver, "sfp-25g-sr")
	require.NoError(t, err)
	assert.Equal(t, "SFP-25G-SR-S", entry.Model)
	assert.Equal(t, "25G", entry.Attribute(model.AttrSpeed))

	// the returned entry is a copy
	entry.Attributes[model.AttrSpeed] = "1G"

	again, err := store.FindByIdentifier(context.Background(), model.ComponentTransceiver, "sfp-25g-sr")
	require.NoError(t, err)
	assert.Equal(t, "25G", again.Attribute(model.AttrSpeed))

	_, err = store.FindByIdentifier(context.Background(), model.ComponentTransceiver, "sfp-1g-lx")
	assert.ErrorIs(t, err, catalog.ErrEntryNotFound)

	_, err = store.FindByIdentifier(context.Background(), model.ComponentChassis, "x")
	assert.ErrorIs(t, err, catalog.ErrCatalogNotFound)
}

func TestInvalidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := fixtures.NewMockSource(ctrl)

	source.EXPECT().Read(gomock.Any(), model.ComponentTransceiver).Times(2).Return(&catalog.Document{
		Format: catalog.FormatJSON,
		Data:   fixtures.TransceiverCatalog,
	}, nil)

	c := cache.New(cache.Options{}, logrus.New())
	store := catalog.NewStore(source, c, logrus.New())

	_, err := store.LoadCatalog(context.Background(), model.ComponentTransceiver)
	require.NoError(t, err)

	c.Set(cache.TierResolvedSpec, cache.Key(model.ComponentTransceiver, "u1"), "spec", 0)
	c.Set(cache.TierResolvedSpec, cache.Key(model.ComponentMemory, "u2"), "spec", 0)

	assert.Equal(t, 2, store.Invalidate(model.ComponentTransceiver))

	_, ok := c.Get(cache.TierResolvedSpec, cache.Key(model.ComponentMemory, "u2"))
	assert.True(t, ok)

	_, err = store.LoadCatalog(context.Background(), model.ComponentTransceiver)
	require.NoError(t, err)
}

func TestPreload(t *testing.T) {
	store, c := newDirStore(t)

	err := store.Preload(context.Background(), model.ComponentCPU, model.ComponentMemory)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Stats().Tiers[cache.TierRawCatalog])

	err = store.Preload(context.Background(), model.ComponentTransceiver, model.ComponentChassis, model.ComponentStorage)
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
	assert.ErrorIs(t, merr.Errors[0], catalog.ErrCatalogNotFound)
}

func TestHTTPSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalogs/transceiver.json":
			_, _ = w.Write(fixtures.TransceiverCatalog)
		case "/catalogs/memory.json":
			_, _ = w.Write(fixtures.MemoryCatalog)
		case "/catalogs/cpu.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	source := catalog.NewHTTPSource(server.URL+"/catalogs/", 0, time.Second, logrus.New())
	store := catalog.NewStore(source, cache.New(cache.Options{}, logrus.New()), logrus.New())

	entries, err := store.LoadCatalog(context.Background(), model.ComponentTransceiver)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	// JSONC documents are accepted over HTTP
	entries, err = store.LoadCatalog(context.Background(), model.ComponentMemory)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	_, err = store.LoadCatalog(context.Background(), model.ComponentCPU)
	assert.ErrorIs(t, err, catalog.ErrCatalogMalformed)

	_, err = store.LoadCatalog(context.Background(), model.ComponentChassis)
	assert.ErrorIs(t, err, catalog.ErrCatalogNotFound)
}

func TestWatcher(t *testing.T) {
	// idle client connections of earlier tests may still be winding down
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()

	changed := make(chan model.ComponentType, 10)

	watcher, err := catalog.NewWatcher(dir, func(ct model.ComponentType) { changed <- ct }, logrus.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)

	go func() { done <- watcher.Run(ctx) }()

	// files that are not catalogs are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("catalogs"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fixtures.MemoryCatalogFile), fixtures.MemoryCatalog, 0o600))

	select {
	case ct := <-changed:
		assert.Equal(t, model.ComponentMemory, ct)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a catalog change notification")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := catalog.NewWatcher(filepath.Join(t.TempDir(), "missing"), func(model.ComponentType) {}, logrus.New())
	assert.ErrorIs(t, err, catalog.ErrWatcher)
}
