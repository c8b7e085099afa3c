package busroutes

import (
	"github.com/aaroncutress/busroutes/models"
	"github.com/charmbracelet/log"
)

// Read access to a station snapshot written by a collection run
type StationDB struct {
	Version int
	Created int64

	filePath string
	db       *stationdb
}

// Load a station snapshot from disk
func LoadStations(filePath string) (*StationDB, error) {
	log.Debugf("Loading station snapshot from %s", filePath)

	db := &stationdb{}
	version, created, err := db.load(filePath)
	if err != nil {
		return nil, err
	}

	return &StationDB{
		Version:  version,
		Created:  created,
		filePath: filePath,
		db:       db,
	}, nil
}

// Releases the in-memory collections
func (s *StationDB) Close() error {
	if s.db == nil {
		return nil
	}
	s.db.close()
	s.db = nil
	return nil
}

// Returns the number of stations in the snapshot
func (s *StationDB) Count() int {
	return s.db.count()
}

// Returns the station with the given node id
func (s *StationDB) GetStationByID(nodeID models.Key) (*models.Station, error) {
	return s.db.get(nodeID)
}

// Returns the stations with the given node ids, skipping unknown ones
func (s *StationDB) GetStationsByIDs(nodeIDs models.KeyArray) (models.StationMap, error) {
	stations := make(models.StationMap, len(nodeIDs))
	for _, id := range nodeIDs {
		station, err := s.db.get(id)
		if err == ErrStationNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		stations[id] = station
	}
	return stations, nil
}

// Returns every station in the snapshot
func (s *StationDB) GetAllStations() (models.StationMap, error) {
	return s.db.all()
}

// Returns the ids of the routes serving the station, sorted
func (s *StationDB) GetRoutesByStationID(nodeID models.Key) (models.KeyArray, error) {
	return s.db.routes(nodeID)
}
