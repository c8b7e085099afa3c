package busroutes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aaroncutress/busroutes/models"
)

var fixedTime = time.Date(2024, 3, 15, 6, 30, 0, 0, time.Local)

func fixedClock() time.Time {
	return fixedTime
}

// In-memory catalog
type fakeCatalog struct {
	routes    models.RouteSummaryArray
	routesErr error
	stops     map[models.Key]models.RawStopArray
	stopErrs  map[models.Key]error
	delays    map[models.Key]time.Duration

	mu       sync.Mutex
	fetched  []models.Key
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *fakeCatalog) ListRoutes(ctx context.Context, cityCode string) (models.RouteSummaryArray, error) {
	if c.routesErr != nil {
		return nil, c.routesErr
	}
	return c.routes, nil
}

func (c *fakeCatalog) ListStops(ctx context.Context, cityCode string, routeID models.Key) (models.RawStopArray, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	c.mu.Lock()
	c.fetched = append(c.fetched, routeID)
	c.mu.Unlock()

	if d := c.delays[routeID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := c.stopErrs[routeID]; err != nil {
		return nil, err
	}
	return c.stops[routeID], nil
}

func rawStop(id string, order int, lat, lon float64, updown string) models.RawStop {
	return models.RawStop{
		NodeID:        models.Key(id),
		Name:          "Stop " + id,
		Code:          id,
		Order:         order,
		Coordinate:    models.NewCoordinate(lat, lon),
		DirectionCode: updown,
	}
}

// Router whose roads run along a fixed latitude. Each waypoint is moved onto
// the road and a midpoint is inserted between consecutive waypoints.
type roadRouter struct {
	latitude float64
	failOn   func(waypoints models.CoordinateArray) bool

	mu    sync.Mutex
	calls []models.CoordinateArray
}

var errEngineDown = errors.New("engine unavailable")

func (r *roadRouter) Route(ctx context.Context, coords models.CoordinateArray) (models.CoordinateArray, error) {
	r.mu.Lock()
	r.calls = append(r.calls, coords)
	r.mu.Unlock()

	if r.failOn != nil && r.failOn(coords) {
		return nil, errEngineDown
	}

	var line models.CoordinateArray
	for i, c := range coords {
		if i > 0 {
			mid := (coords[i-1].Longitude + c.Longitude) / 2
			line = append(line, models.NewCoordinate(r.latitude, mid))
		}
		line = append(line, models.NewCoordinate(r.latitude, c.Longitude))
	}
	return line, nil
}

func (r *roadRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
