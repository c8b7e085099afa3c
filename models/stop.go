package models

import (
	"errors"
	"strconv"
	"strings"

	"github.com/kelindar/column"
)

type Direction uint8

const (
	DownDirection Direction = iota
	UpDirection
)

// Parses the catalog's up/down code. "1" is up; anything else, including an
// empty or unparseable code, is down.
func ParseDirection(code string) Direction {
	code = strings.TrimSpace(code)
	if code == "" {
		return DownDirection
	}
	n, err := strconv.ParseFloat(code, 64)
	if err != nil || n != 1 {
		return DownDirection
	}
	return UpDirection
}

func (d Direction) String() string {
	if d == UpDirection {
		return "UP"
	}
	return "DOWN"
}

// Stop record as delivered by the catalog, already normalised to canonical
// field types but not yet filtered or ordered
type RawStop struct {
	NodeID        Key
	Name          string
	Code          string
	Order         int
	Coordinate    Coordinate
	DirectionCode string
}
type RawStopArray []RawStop

// Represents a bus stop on a single route
type Stop struct {
	NodeID    Key       `json:"node_id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	Code      string    `json:"code"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Direction Direction `json:"direction"`
}
type StopArray []Stop

// Returns the stop's position
func (s Stop) Coordinate() Coordinate {
	return NewCoordinate(s.Latitude, s.Longitude)
}

// Returns a copy of the stop moved to c
func (s Stop) MovedTo(c Coordinate) Stop {
	s.Latitude = c.Latitude
	s.Longitude = c.Longitude
	return s
}

// Returns the stop positions in order
func (sa StopArray) Coordinates() CoordinateArray {
	coords := make(CoordinateArray, len(sa))
	for i, stop := range sa {
		coords[i] = stop.Coordinate()
	}
	return coords
}

// Returns the stops whose coordinates fall inside the bounds
func (sa StopArray) Within(bounds Bounds) StopArray {
	out := make(StopArray, 0, len(sa))
	for _, stop := range sa {
		if bounds.Contains(stop.Coordinate()) {
			out = append(out, stop)
		}
	}
	return out
}

// Represents a physical station shared by one or more routes
type Station struct {
	NodeID      Key
	Name        string
	Code        string
	Location    Coordinate
	SourceRoute Key
}
type StationMap map[Key]*Station

// Saves a station to a column row keyed by node id
func (s Station) Save(r column.Row) error {
	r.SetString("name", s.Name)
	r.SetString("code", s.Code)
	r.SetFloat64("latitude", s.Location.Latitude)
	r.SetFloat64("longitude", s.Location.Longitude)
	r.SetString("source_route", string(s.SourceRoute))
	return nil
}

// Loads a station from a column row
func (s *Station) Load(r column.Row) error {
	key, keyOk := r.Key()
	name, nameOk := r.String("name")
	lat, latOk := r.Float64("latitude")
	lon, lonOk := r.Float64("longitude")

	if !keyOk || !nameOk || !latOk || !lonOk {
		return errors.New("missing required fields")
	}

	// Optional
	code, _ := r.String("code")
	source, _ := r.String("source_route")

	*s = Station{
		NodeID:      Key(key),
		Name:        name,
		Code:        code,
		Location:    NewCoordinate(lat, lon),
		SourceRoute: Key(source),
	}
	return nil
}

// Loads all stations from the database transaction
func (sm StationMap) Load(txn *column.Txn) error {
	idCol := txn.Key()
	nameCol := txn.String("name")
	codeCol := txn.String("code")
	latCol := txn.Float64("latitude")
	lonCol := txn.Float64("longitude")
	sourceCol := txn.String("source_route")

	var e error
	err := txn.Range(func(idx uint32) {
		id, idOk := idCol.Get()
		name, nameOk := nameCol.Get()
		lat, latOk := latCol.Get()
		lon, lonOk := lonCol.Get()

		if !idOk || !nameOk || !latOk || !lonOk {
			e = errors.New("missing required fields")
			return
		}

		code, _ := codeCol.Get()
		source, _ := sourceCol.Get()

		sm[Key(id)] = &Station{
			NodeID:      Key(id),
			Name:        name,
			Code:        code,
			Location:    NewCoordinate(lat, lon),
			SourceRoute: Key(source),
		}
	})

	if err != nil {
		return err
	}
	return e
}
