package busroutes

import (
	"cmp"
	"errors"
	"slices"

	"github.com/aaroncutress/busroutes/models"
)

var (
	ErrInvalidRoute = errors.New("route has no usable id or number")
	ErrNoStops      = errors.New("route has no stops")
)

// Output of sequencing one route
type RouteResult struct {
	Record   *models.RouteRecord
	Stations models.StationMap
}

// Turns the catalog's stop records for one route into an ordered record and
// the station entries the route contributes. Entries without a node id are
// dropped and the rest are stably sorted by their order field.
func Sequence(summary models.RouteSummary, raw models.RawStopArray) (*RouteResult, error) {
	if !summary.Valid || summary.ID == "" || summary.No == "" {
		return nil, ErrInvalidRoute
	}

	stops := make(models.StopArray, 0, len(raw))
	for _, r := range raw {
		if r.NodeID == "" {
			continue
		}
		stops = append(stops, models.Stop{
			NodeID:    r.NodeID,
			Name:      r.Name,
			Order:     r.Order,
			Code:      r.Code,
			Latitude:  r.Coordinate.Latitude,
			Longitude: r.Coordinate.Longitude,
			Direction: models.ParseDirection(r.DirectionCode),
		})
	}
	if len(stops) == 0 {
		return nil, ErrNoStops
	}

	slices.SortStableFunc(stops, func(a, b models.Stop) int {
		return cmp.Compare(a.Order, b.Order)
	})

	stations := make(models.StationMap, len(stops))
	for _, stop := range stops {
		stations[stop.NodeID] = &models.Station{
			NodeID:      stop.NodeID,
			Name:        stop.Name,
			Code:        stop.Code,
			Location:    stop.Coordinate(),
			SourceRoute: summary.ID,
		}
	}

	return &RouteResult{
		Record: &models.RouteRecord{
			ID:    summary.ID,
			No:    summary.No,
			Stops: stops,
		},
		Stations: stations,
	}, nil
}

// Index of the first stop whose direction differs from the previous stop's,
// or the last index when the direction never changes. Returns -1 for an
// empty sequence.
func TurningPoint(stops models.StopArray) int {
	for i := 1; i < len(stops); i++ {
		if stops[i].Direction != stops[i-1].Direction {
			return i
		}
	}
	return len(stops) - 1
}
