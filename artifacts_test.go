package busroutes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aaroncutress/busroutes/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRouteFile(t *testing.T) {
	dir := t.TempDir()
	record := &models.RouteRecord{
		ID: "WJB251000010",
		No: "30/1",
		Stops: models.StopArray{
			{NodeID: "N1", Name: "터미널", Order: 1, Code: "101", Latitude: 37.34, Longitude: 127.92},
			{NodeID: "N2", Name: "A&B", Order: 2, Latitude: 37.35, Longitude: 127.93, Direction: models.UpDirection},
		},
	}

	path, err := WriteRawRoute(dir, record, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, RawRoutesDir, "30_1_WJB251000010.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "터미널"`)
	assert.Contains(t, string(data), `"name": "A&B"`)
	assert.Contains(t, string(data), `"route_no": "30/1"`)

	loaded, err := ReadRawRoute(path)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestReadRawRoutesSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []models.Key{"B", "A"} {
		_, err := WriteRawRoute(dir, &models.RouteRecord{ID: id, No: "1"}, fixedTime)
		require.NoError(t, err)
	}
	broken := filepath.Join(dir, RawRoutesDir, "9_broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0644))

	records, failures, err := ReadRawRoutes(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.Key("A"), records[0].ID)
	assert.Equal(t, models.Key("B"), records[1].ID)
	assert.Contains(t, failures, broken)
}

func TestWriteIndexIsAtomic(t *testing.T) {
	dir := t.TempDir()
	doc := &IndexDocument{
		LastUpdated:  "2024-03-15 06:30:00",
		RouteNumbers: map[string][]string{"5": {"A1"}},
		RouteDetails: map[string]RouteDetail{},
		Stations:     map[string]StationEntry{"N1": {NodeNm: "역"}},
	}

	path, err := WriteIndex(dir, doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, IndexFileName), path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")

	loaded, err := ReadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestSnappedPathFile(t *testing.T) {
	dir := t.TempDir()
	path := &models.SnappedPath{
		RouteID: "R1",
		RouteNo: "1",
		Segments: []models.Segment{
			{
				Coordinates: models.CoordinateArray{models.NewCoordinate(37.0, 127.0), models.NewCoordinate(37.0, 127.01)},
				Direction:   models.DownDirection,
				StartOrder:  1,
			},
			{
				Coordinates:          models.CoordinateArray{models.NewCoordinate(37.0, 127.02)},
				Direction:            models.UpDirection,
				ContainsTurningPoint: true,
				StartOrder:           2,
			},
		},
	}

	filePath, err := WriteSnappedPath(dir, path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SnappedRoutesDir, "R1.geojson"), filePath)

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"FeatureCollection"`))
	assert.Contains(t, string(data), `[127,37]`, "positions are longitude first")

	loaded, err := ReadSnappedPath(filePath)
	require.NoError(t, err)
	require.Len(t, loaded.Segments, 2)
	assert.Equal(t, models.Key("R1"), loaded.RouteID)
	assert.Equal(t, path.Segments[0], loaded.Segments[0])
	assert.Equal(t, path.Segments[1], loaded.Segments[1])
}
