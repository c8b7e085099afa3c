package busroutes

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aaroncutress/busroutes/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenced(t *testing.T, id, no string, raw ...models.RawStop) *RouteResult {
	t.Helper()
	result, err := Sequence(models.RouteSummary{ID: models.Key(id), No: no, Valid: true}, raw)
	require.NoError(t, err)
	return result
}

func testResults(t *testing.T) []*RouteResult {
	shared := func(name string) models.RawStop {
		stop := rawStop("N1", 1, 37.1, 127.1, "0")
		stop.Name = name
		return stop
	}
	return []*RouteResult{
		sequenced(t, "A1", "5", shared("Old name"), rawStop("N2", 2, 37.2, 127.2, "1")),
		sequenced(t, "A2", "5", shared("New name"), rawStop("N3", 2, 37.3, 127.3, "1")),
		sequenced(t, "B1", "7", rawStop("N4", 1, 37.4, 127.4, "0")),
	}
}

func buildIndex(t *testing.T, results []*RouteResult, order ...int) *Index {
	t.Helper()
	index := NewIndex()
	t.Cleanup(index.Close)
	for _, i := range order {
		require.NoError(t, index.Add(results[i]))
	}
	return index
}

func documentJSON(t *testing.T, index *Index) string {
	t.Helper()
	doc, err := index.Document(fixedTime)
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

// Two route ids sharing route number "5" end up in one bucket whatever the
// completion order
func TestIndexRouteNumbers(t *testing.T) {
	results := testResults(t)

	for _, order := range [][]int{{0, 1, 2}, {1, 0, 2}, {2, 1, 0}} {
		index := buildIndex(t, results, order...)
		assert.Equal(t, models.KeyArray{"A1", "A2"}, index.RouteIDs("5"))
		assert.Equal(t, models.KeyArray{"B1"}, index.RouteIDs("7"))
		assert.Nil(t, index.RouteIDs("9"))
		assert.Equal(t, []string{"5", "7"}, index.RouteNumbers())
		assert.Equal(t, 3, index.Len())
	}
}

func TestIndexStationLastWriteWins(t *testing.T) {
	results := testResults(t)

	for _, order := range [][]int{{0, 1, 2}, {1, 0, 2}} {
		index := buildIndex(t, results, order...)

		station, err := index.Station("N1")
		require.NoError(t, err)
		assert.Equal(t, "New name", station.Name, "the greater route id wins")
		assert.Equal(t, models.Key("A2"), station.SourceRoute)
		assert.Equal(t, 4, index.StationCount())

		routes, err := index.StationRoutes("N1")
		require.NoError(t, err)
		assert.Equal(t, models.KeyArray{"A1", "A2"}, routes)
	}

	_, err := buildIndex(t, results, 0).Station("N4")
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestIndexDocumentIsOrderIndependent(t *testing.T) {
	results := testResults(t)

	first := documentJSON(t, buildIndex(t, results, 0, 1, 2))
	second := documentJSON(t, buildIndex(t, results, 2, 1, 0))
	assert.Equal(t, first, second)
}

func TestIndexDocument(t *testing.T) {
	doc, err := buildIndex(t, testResults(t), 0, 1, 2).Document(fixedTime)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-15 06:30:00", doc.LastUpdated)
	assert.Equal(t, []string{"A1", "A2"}, doc.RouteNumbers["5"])

	detail := doc.RouteDetails["A1"]
	assert.Equal(t, "5", detail.RouteNo)
	assert.Equal(t, []SequenceEntry{
		{NodeID: "N1", NodeOrd: 1, UpDownCd: 0},
		{NodeID: "N2", NodeOrd: 2, UpDownCd: 1},
	}, detail.Sequence)

	assert.Equal(t, StationEntry{NodeNm: "Stop N4", NodeNo: "N4", GPSLati: 37.4, GPSLong: 127.4}, doc.Stations["N4"])
	assert.Len(t, doc.Stations, 4)
}

func TestIndexRecordsSorted(t *testing.T) {
	records := buildIndex(t, testResults(t), 2, 1, 0).Records()
	require.Len(t, records, 3)
	assert.Equal(t, models.Key("A1"), records[0].ID)
	assert.Equal(t, models.Key("A2"), records[1].ID)
	assert.Equal(t, models.Key("B1"), records[2].ID)
}

func TestStationSnapshot(t *testing.T) {
	index := buildIndex(t, testResults(t), 0, 1, 2)
	path := filepath.Join(t.TempDir(), SnapshotFileName)
	require.NoError(t, index.SaveSnapshot(path, fixedTime))

	db, err := LoadStations(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, CurrentVersion, db.Version)
	assert.Equal(t, fixedTime.Unix(), db.Created)
	assert.Equal(t, 4, db.Count())

	station, err := db.GetStationByID("N1")
	require.NoError(t, err)
	assert.Equal(t, "New name", station.Name)
	assert.Equal(t, models.NewCoordinate(37.1, 127.1), station.Location)

	routes, err := db.GetRoutesByStationID("N1")
	require.NoError(t, err)
	assert.Equal(t, models.KeyArray{"A1", "A2"}, routes)

	stations, err := db.GetStationsByIDs(models.KeyArray{"N2", "missing", "N4"})
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	all, err := db.GetAllStations()
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = db.GetStationByID("missing")
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestLoadStationsMissingFile(t *testing.T) {
	_, err := LoadStations(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}
