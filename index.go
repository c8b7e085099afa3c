package busroutes

import (
	"cmp"
	"slices"
	"time"

	"github.com/aaroncutress/busroutes/models"
	"github.com/hashicorp/go-set/v3"
)

// City-wide aggregate of route results. Not safe for concurrent use; the
// collector folds results into it from a single goroutine.
type Index struct {
	routeNumbers map[string]*set.Set[models.Key]
	records      models.RouteRecordMap
	db           *stationdb
}

// Creates an empty index
func NewIndex() *Index {
	db := &stationdb{}
	db.initialize()

	return &Index{
		routeNumbers: make(map[string]*set.Set[models.Key]),
		records:      make(models.RouteRecordMap),
		db:           db,
	}
}

// Releases the station collections
func (ix *Index) Close() {
	ix.db.close()
}

// Folds one route's result into the index. The outcome is the same whatever
// order results are added in.
func (ix *Index) Add(result *RouteResult) error {
	record := result.Record
	ix.records[record.ID] = record

	ids, ok := ix.routeNumbers[record.No]
	if !ok {
		ids = set.New[models.Key](2)
		ix.routeNumbers[record.No] = ids
	}
	ids.Insert(record.ID)

	for _, station := range result.Stations {
		if _, err := ix.db.upsert(station); err != nil {
			return err
		}
		if err := ix.db.addRoute(station.NodeID, record.ID); err != nil {
			return err
		}
	}
	return nil
}

// Number of routes in the index
func (ix *Index) Len() int {
	return len(ix.records)
}

// Number of distinct stations in the index
func (ix *Index) StationCount() int {
	return ix.db.count()
}

// Returns the route ids sharing the route number, sorted
func (ix *Index) RouteIDs(routeNo string) models.KeyArray {
	ids, ok := ix.routeNumbers[routeNo]
	if !ok {
		return nil
	}
	out := models.KeyArray(ids.Slice())
	slices.Sort(out)
	return out
}

// Returns the route numbers in the index, sorted
func (ix *Index) RouteNumbers() []string {
	numbers := make([]string, 0, len(ix.routeNumbers))
	for no := range ix.routeNumbers {
		numbers = append(numbers, no)
	}
	slices.Sort(numbers)
	return numbers
}

// Returns the route records sorted by route id
func (ix *Index) Records() []*models.RouteRecord {
	records := make([]*models.RouteRecord, 0, len(ix.records))
	for _, record := range ix.records {
		records = append(records, record)
	}
	slices.SortFunc(records, func(a, b *models.RouteRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return records
}

// Returns the station with the given node id
func (ix *Index) Station(nodeID models.Key) (*models.Station, error) {
	return ix.db.get(nodeID)
}

// Returns all stations
func (ix *Index) Stations() (models.StationMap, error) {
	return ix.db.all()
}

// Returns the ids of the routes serving the station, sorted
func (ix *Index) StationRoutes(nodeID models.Key) (models.KeyArray, error) {
	return ix.db.routes(nodeID)
}

// Writes the station collections to a snapshot archive
func (ix *Index) SaveSnapshot(filePath string, created time.Time) error {
	return ix.db.save(filePath, CurrentVersion, created.Unix())
}

// --- Serialised form ---

type IndexDocument struct {
	LastUpdated  string                  `json:"lastUpdated"`
	RouteNumbers map[string][]string     `json:"route_numbers"`
	RouteDetails map[string]RouteDetail  `json:"route_details"`
	Stations     map[string]StationEntry `json:"stations"`
}

type RouteDetail struct {
	RouteNo  string          `json:"routeno"`
	Sequence []SequenceEntry `json:"sequence"`
}

type SequenceEntry struct {
	NodeID   string `json:"nodeid"`
	NodeOrd  int    `json:"nodeord"`
	UpDownCd int    `json:"updowncd"`
}

type StationEntry struct {
	NodeNm  string  `json:"nodenm"`
	NodeNo  string  `json:"nodeno"`
	GPSLati float64 `json:"gpslati"`
	GPSLong float64 `json:"gpslong"`
}

// Builds the serialisable form of the index stamped with now. Bucket
// contents are sorted and maps are keyed so that identical input gives an
// identical document.
func (ix *Index) Document(now time.Time) (*IndexDocument, error) {
	doc := &IndexDocument{
		LastUpdated:  now.Format(TimestampLayout),
		RouteNumbers: make(map[string][]string, len(ix.routeNumbers)),
		RouteDetails: make(map[string]RouteDetail, len(ix.records)),
		Stations:     make(map[string]StationEntry, ix.db.count()),
	}

	for no := range ix.routeNumbers {
		doc.RouteNumbers[no] = ix.RouteIDs(no).Strings()
	}

	for id, record := range ix.records {
		sequence := make([]SequenceEntry, len(record.Stops))
		for i, stop := range record.Stops {
			sequence[i] = SequenceEntry{
				NodeID:   string(stop.NodeID),
				NodeOrd:  stop.Order,
				UpDownCd: int(stop.Direction),
			}
		}
		doc.RouteDetails[string(id)] = RouteDetail{
			RouteNo:  record.No,
			Sequence: sequence,
		}
	}

	stations, err := ix.db.all()
	if err != nil {
		return nil, err
	}
	for id, station := range stations {
		doc.Stations[string(id)] = StationEntry{
			NodeNm:  station.Name,
			NodeNo:  station.Code,
			GPSLati: station.Location.Latitude,
			GPSLong: station.Location.Longitude,
		}
	}

	return doc, nil
}
