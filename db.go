package busroutes

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"

	"github.com/aaroncutress/busroutes/models"
	"github.com/kelindar/column"
)

var ErrStationNotFound = errors.New("station not found")

type stationdb struct {
	stations *column.Collection

	// Index collection of node id to the routes serving it
	routesByStation *column.Collection
}

// Initalize the station database schema
func (db *stationdb) initialize() {
	db.stations = column.NewCollection()
	db.stations.CreateColumn("node_id", column.ForKey())
	db.stations.CreateColumn("name", column.ForString())
	db.stations.CreateColumn("code", column.ForString())
	db.stations.CreateColumn("latitude", column.ForFloat64())
	db.stations.CreateColumn("longitude", column.ForFloat64())
	db.stations.CreateColumn("source_route", column.ForString())

	db.routesByStation = column.NewCollection()
	db.routesByStation.CreateColumn("node_id", column.ForKey())
	db.routesByStation.CreateColumn("ids", column.ForRecord(func() *models.KeyArray {
		return new(models.KeyArray)
	}))
}

// Stores a station unless a record from a later route is already present.
// Routes are compared by id, so the result does not depend on the order in
// which routes arrive. Reports whether the station was written.
func (db *stationdb) upsert(station *models.Station) (bool, error) {
	var stored models.Station
	err := db.stations.QueryKey(string(station.NodeID), stored.Load)
	if err == nil && station.SourceRoute < stored.SourceRoute {
		return false, nil
	}

	err = db.stations.UpsertKey(string(station.NodeID), station.Save)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Records that the route serves the station
func (db *stationdb) addRoute(nodeID, routeID models.Key) error {
	var ids models.KeyArray
	db.routesByStation.QueryKey(string(nodeID), func(r column.Row) error {
		if v, ok := r.Record("ids"); ok {
			ids = *v.(*models.KeyArray)
		}
		return nil
	})

	if slices.Contains(ids, routeID) {
		return nil
	}
	ids = append(slices.Clone(ids), routeID)
	slices.Sort(ids)

	return db.routesByStation.UpsertKey(string(nodeID), func(r column.Row) error {
		r.SetRecord("ids", &ids)
		return nil
	})
}

// Returns the station with the given node id
func (db *stationdb) get(nodeID models.Key) (*models.Station, error) {
	station := &models.Station{}
	err := db.stations.QueryKey(string(nodeID), station.Load)
	if err != nil {
		return nil, ErrStationNotFound
	}
	return station, nil
}

// Returns the ids of the routes serving the station
func (db *stationdb) routes(nodeID models.Key) (models.KeyArray, error) {
	var ids models.KeyArray
	err := db.routesByStation.QueryKey(string(nodeID), func(r column.Row) error {
		v, ok := r.Record("ids")
		if !ok {
			return errors.New("missing route ids")
		}
		ids = slices.Clone(*v.(*models.KeyArray))
		return nil
	})
	if err != nil {
		return nil, ErrStationNotFound
	}
	return ids, nil
}

// Returns every stored station
func (db *stationdb) all() (models.StationMap, error) {
	stations := make(models.StationMap, db.stations.Count())
	err := db.stations.Query(func(txn *column.Txn) error {
		return stations.Load(txn)
	})
	if err != nil {
		return nil, err
	}
	return stations, nil
}

func (db *stationdb) count() int {
	return db.stations.Count()
}

func (db *stationdb) close() {
	db.stations.Close()
	db.routesByStation.Close()
}

// Saves the collections and metadata to a zip archive. The archive is built
// next to filePath and renamed into place once complete.
func (db *stationdb) save(filePath string, version int, created int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filePath), filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	zipWriter := zip.NewWriter(tmpFile)

	collections := map[string]*column.Collection{
		"stations":          db.stations,
		"routes_by_station": db.routesByStation,
	}

	// Write each collection to a separate file in the zip archive
	for name, collection := range collections {
		file, err := zipWriter.Create(name)
		if err != nil {
			return err
		}

		err = collection.Snapshot(file)
		if err != nil {
			return err
		}
	}

	metadataFile, err := zipWriter.Create("metadata.json")
	if err != nil {
		return err
	}
	metadata := map[string]any{
		"version": version,
		"created": created,
		"count":   db.stations.Count(),
	}
	err = json.NewEncoder(metadataFile).Encode(metadata)
	if err != nil {
		return err
	}

	if err := zipWriter.Close(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpFile.Name(), filePath)
}

// Loads the station database from a zip archive written by save
func (db *stationdb) load(filePath string) (int, int64, error) {
	db.initialize()

	zipReader, err := zip.OpenReader(filePath)
	if err != nil {
		return 0, 0, err
	}
	defer zipReader.Close()

	for _, file := range zipReader.File {
		var collection *column.Collection
		switch file.Name {
		case "stations":
			collection = db.stations
		case "routes_by_station":
			collection = db.routesByStation
		default:
			continue
		}

		f, err := file.Open()
		if err != nil {
			return 0, 0, err
		}
		err = collection.Restore(f)
		f.Close()
		if err != nil {
			return 0, 0, err
		}
	}

	metadataFile, err := zipReader.Open("metadata.json")
	if err != nil {
		return 0, 0, err
	}
	defer metadataFile.Close()

	var metadata struct {
		Version *int   `json:"version"`
		Created *int64 `json:"created"`
	}
	err = json.NewDecoder(metadataFile).Decode(&metadata)
	if err != nil {
		return 0, 0, err
	}
	if metadata.Version == nil {
		return 0, 0, errors.New("invalid metadata version")
	}
	if metadata.Created == nil {
		return 0, 0, errors.New("invalid metadata created")
	}

	return *metadata.Version, *metadata.Created, nil
}
