package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDirection(t *testing.T) {
	tests := map[string]Direction{
		"1":   UpDirection,
		" 1 ": UpDirection,
		"1.0": UpDirection,
		"0":   DownDirection,
		"":    DownDirection,
		"up":  DownDirection,
		"2":   DownDirection,
	}
	for code, want := range tests {
		assert.Equal(t, want, ParseDirection(code), "code %q", code)
	}
}

func TestStopArrayWithin(t *testing.T) {
	stops := StopArray{
		{NodeID: "A", Latitude: 37.1, Longitude: 127.1},
		{NodeID: "B"},
		{NodeID: "C", Latitude: 37.2, Longitude: 127.2},
	}
	within := stops.Within(KoreaBounds)
	assert.Equal(t, KeyArray{"A", "C"}, (&RouteRecord{Stops: within}).NodeIDs())
	assert.Len(t, stops, 3, "source slice untouched")
}

func TestStopMovedTo(t *testing.T) {
	stop := Stop{NodeID: "A", Latitude: 37.1, Longitude: 127.1}
	moved := stop.MovedTo(NewCoordinate(37.2, 127.2))
	assert.Equal(t, 37.1, stop.Latitude)
	assert.Equal(t, NewCoordinate(37.2, 127.2), moved.Coordinate())
	assert.Equal(t, Key("A"), moved.NodeID)
}
