package busroutes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aaroncutress/busroutes/config"
	"github.com/aaroncutress/busroutes/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(outDir string) config.Config {
	cfg := config.Default()
	cfg.ServiceKey = "key"
	cfg.OutDir = outDir
	cfg.EngineDelay = 0
	cfg.CollectConcurrency = 4
	return cfg
}

func runPipeline(t *testing.T, cfg config.Config, catalog Catalog, router *roadRouter) *Summary {
	t.Helper()
	summary, err := NewPipeline(cfg, catalog, router).WithClock(fixedClock).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func TestPipelineRun(t *testing.T) {
	outDir := t.TempDir()
	cfg := testConfig(outDir)
	cfg.SQLitePath = filepath.Join(outDir, "index.db")

	catalog := newFakeCatalog(4)
	router := &roadRouter{latitude: 37.0}
	summary := runPipeline(t, cfg, catalog, router)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.Collect.Collected)
	assert.Equal(t, 4, summary.Snapped)
	assert.Zero(t, summary.SnapFailed)
	assert.Equal(t, filepath.Join(outDir, IndexFileName), summary.IndexPath)

	doc, err := ReadIndex(summary.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"R00", "R01"}, doc.RouteNumbers["1"])
	assert.Len(t, doc.RouteDetails, 4)

	for _, id := range []models.Key{"R00", "R01", "R02", "R03"} {
		path, err := ReadSnappedPath(SnappedPathFile(outDir, id))
		require.NoError(t, err, id)
		require.Len(t, path.Segments, 1)
		assert.True(t, path.Segments[0].ContainsTurningPoint)
	}

	assert.FileExists(t, filepath.Join(outDir, SnapshotFileName))
	assert.FileExists(t, cfg.SQLitePath)
}

// Identical input and a fixed clock give a byte-identical index, however the
// routes complete
func TestPipelineIndexIsIdempotent(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()

	catalog := newFakeCatalog(8)
	for i, route := range catalog.routes {
		catalog.delays[route.ID] = time.Duration(i) * time.Millisecond
	}
	cfg := testConfig(first)
	cfg.SkipSnapping = true
	runPipeline(t, cfg, catalog, &roadRouter{latitude: 37.0})

	reversed := newFakeCatalog(8)
	for i, route := range reversed.routes {
		reversed.delays[route.ID] = time.Duration(len(reversed.routes)-i) * time.Millisecond
	}
	cfg = testConfig(second)
	cfg.SkipSnapping = true
	runPipeline(t, cfg, reversed, &roadRouter{latitude: 37.0})

	a, err := os.ReadFile(filepath.Join(first, IndexFileName))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(second, IndexFileName))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestPipelineSkipSnapping(t *testing.T) {
	outDir := t.TempDir()
	cfg := testConfig(outDir)
	cfg.SkipSnapping = true

	router := &roadRouter{latitude: 37.0}
	summary := runPipeline(t, cfg, newFakeCatalog(2), router)

	assert.Equal(t, 2, summary.Collect.Collected)
	assert.Zero(t, router.callCount())
	assert.NoDirExists(t, filepath.Join(outDir, SnappedRoutesDir))
	assert.FileExists(t, filepath.Join(outDir, IndexFileName))
}

func TestPipelineSnapOnly(t *testing.T) {
	outDir := t.TempDir()
	cfg := testConfig(outDir)
	cfg.SkipSnapping = true
	runPipeline(t, cfg, newFakeCatalog(4), &roadRouter{latitude: 37.0})

	// The catalog is not consulted in snap-only mode
	offline := &fakeCatalog{routesErr: errors.New("offline")}
	cfg = testConfig(outDir)
	cfg.SnapOnly = true
	cfg.Routes = []string{"2"}
	summary := runPipeline(t, cfg, offline, &roadRouter{latitude: 37.0})

	assert.Equal(t, 2, summary.Snapped)
	assert.FileExists(t, SnappedPathFile(outDir, "R02"))
	assert.FileExists(t, SnappedPathFile(outDir, "R03"))
	assert.NoFileExists(t, SnappedPathFile(outDir, "R00"))
}

func TestPipelineSnapOnlyWithoutRawRoutes(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SnapOnly = true

	_, err := NewPipeline(cfg, &fakeCatalog{}, &roadRouter{latitude: 37.0}).Run(context.Background())
	assert.ErrorContains(t, err, "no raw routes")
}

func TestPipelineRouteWithoutPlausibleStops(t *testing.T) {
	outDir := t.TempDir()
	catalog := newFakeCatalog(2)
	catalog.stops["R01"] = models.RawStopArray{
		rawStop("X1", 1, 0, 0, "0"),
		rawStop("X2", 2, 0, 0, "0"),
	}

	summary := runPipeline(t, testConfig(outDir), catalog, &roadRouter{latitude: 37.0})
	assert.Equal(t, 2, summary.Collect.Collected)
	assert.Equal(t, 1, summary.Snapped)
	assert.Equal(t, 1, summary.SnapFailed)
	assert.NoFileExists(t, SnappedPathFile(outDir, "R01"))
}

func TestPipelineCatalogFailureIsFatal(t *testing.T) {
	catalog := &fakeCatalog{routesErr: errors.New("quota exceeded")}
	_, err := NewPipeline(testConfig(t.TempDir()), catalog, &roadRouter{latitude: 37.0}).Run(context.Background())
	assert.ErrorContains(t, err, "quota exceeded")
}
