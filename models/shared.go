package models

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/umahmood/haversine"
)

type Key string
type KeyArray []Key

// Returns the keys as plain strings
func (ka KeyArray) Strings() []string {
	out := make([]string, len(ka))
	for i, key := range ka {
		out[i] = string(key)
	}
	return out
}

// Encodes the keys as a uvarint count followed by length-prefixed keys
func (ka KeyArray) MarshalBinary() ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(ka)))
	for _, key := range ka {
		buf = binary.AppendUvarint(buf, uint64(len(key)))
		buf = append(buf, key...)
	}
	return buf, nil
}

func (ka *KeyArray) UnmarshalBinary(data []byte) error {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return errors.New("invalid key array length")
	}
	data = data[n:]

	keys := make(KeyArray, 0, count)
	for i := uint64(0); i < count; i++ {
		keyLen, n := binary.Uvarint(data)
		if n <= 0 || uint64(len(data)-n) < keyLen {
			return errors.New("truncated key array")
		}
		keys = append(keys, Key(data[n:n+int(keyLen)]))
		data = data[n+int(keyLen):]
	}
	*ka = keys
	return nil
}

// --- Coordinate ---

// Represents a geographical coordinate with latitude and longitude.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Create a new Coordinate instance with the given latitude and longitude.
func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{
		Latitude:  lat,
		Longitude: lon,
	}
}

// Create a new Coordinate from a GeoJSON position ([lon, lat]).
func NewCoordinateFromPosition(pos []float64) (Coordinate, error) {
	if len(pos) < 2 {
		return Coordinate{}, fmt.Errorf("position has %d values, want 2", len(pos))
	}
	return NewCoordinate(pos[1], pos[0]), nil
}

// Return a string representation of the coordinate in the format "lat,lon".
func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
}

// Return the coordinate as a GeoJSON position ([lon, lat]).
func (c Coordinate) Position() []float64 {
	return []float64{c.Longitude, c.Latitude}
}

// Check if the coordinate is zero (0, 0).
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// Check if the coordinate is valid (latitude between -90 and 90, longitude between -180 and 180).
func (c Coordinate) IsValid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Calculate the distance in meters to another coordinate using the Haversine formula.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: c.Latitude, Lon: c.Longitude},
		haversine.Coord{Lat: other.Latitude, Lon: other.Longitude},
	)
	return km * 1000
}

type CoordinateArray []Coordinate

// Returns the coordinates as GeoJSON positions
func (ca CoordinateArray) Positions() [][]float64 {
	positions := make([][]float64, len(ca))
	for i, coord := range ca {
		positions[i] = coord.Position()
	}
	return positions
}

// Builds a coordinate array from GeoJSON positions
func CoordinatesFromPositions(positions [][]float64) (CoordinateArray, error) {
	coords := make(CoordinateArray, 0, len(positions))
	for _, pos := range positions {
		coord, err := NewCoordinateFromPosition(pos)
		if err != nil {
			return nil, err
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

// --- Bounds ---

// Rectangular latitude/longitude box used to reject implausible GPS fixes
type Bounds struct {
	MinLatitude  float64 `yaml:"min_lat"`
	MaxLatitude  float64 `yaml:"max_lat"`
	MinLongitude float64 `yaml:"min_lon"`
	MaxLongitude float64 `yaml:"max_lon"`
}

// Approximate bounding box of South Korea
var KoreaBounds = Bounds{
	MinLatitude:  33.0,
	MaxLatitude:  39.0,
	MinLongitude: 124.0,
	MaxLongitude: 132.0,
}

// Check if the coordinate lies inside the box
func (b Bounds) Contains(c Coordinate) bool {
	if !c.IsValid() {
		return false
	}
	return c.Latitude >= b.MinLatitude && c.Latitude <= b.MaxLatitude &&
		c.Longitude >= b.MinLongitude && c.Longitude <= b.MaxLongitude
}
