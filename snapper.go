package busroutes

import (
	"context"
	"errors"
	"slices"

	"github.com/aaroncutress/busroutes/models"
	"github.com/aaroncutress/busroutes/routing"
	"github.com/charmbracelet/log"
)

var ErrTooFewStops = errors.New("fewer than two plausible stops")

// Half-open range [Start, End) of stop indices queried together
type Chunk struct {
	Start int
	End   int
}

// Last stop index covered by the chunk
func (c Chunk) Last() int {
	return c.End - 1
}

// Splits n stops into chunks of at most size stops. Each chunk after the
// first starts on the previous chunk's last stop and every chunk holds at
// least two stops.
func Chunks(n, size int) []Chunk {
	size = max(size, 2)

	var chunks []Chunk
	for start := 0; start < n-1; start += size - 1 {
		chunks = append(chunks, Chunk{
			Start: start,
			End:   min(start+size, n),
		})
	}
	return chunks
}

// Builds road-following paths for route records
type Snapper struct {
	router    routing.Router
	bounds    models.Bounds
	chunkSize int
}

func NewSnapper(router routing.Router, bounds models.Bounds, chunkSize int) *Snapper {
	if chunkSize < 2 {
		chunkSize = DefaultChunkSize
	}
	return &Snapper{
		router:    router,
		bounds:    bounds,
		chunkSize: chunkSize,
	}
}

// Snaps a route's stop sequence to the road network. Stops outside the
// bounds are left out of every query. A chunk whose engine call fails is
// drawn as straight lines between its stops. Only context cancellation and
// ErrTooFewStops are returned as errors.
func (s *Snapper) Snap(ctx context.Context, record *models.RouteRecord, pace *pacer, logger *log.Logger) (*models.SnappedPath, error) {
	stops := record.Stops.Within(s.bounds)
	if len(stops) < 2 {
		return nil, ErrTooFewStops
	}

	turn := TurningPoint(stops)
	path := &models.SnappedPath{
		RouteID: record.ID,
		RouteNo: record.No,
	}

	for i, chunk := range Chunks(len(stops), s.chunkSize) {
		waypoints := stops[chunk.Start:chunk.End].Coordinates()

		if err := pace.wait(ctx); err != nil {
			return nil, err
		}

		line, err := s.router.Route(ctx, waypoints)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("chunk falls back to straight lines", "chunk", i, "start", chunk.Start, "err", err)
			line = slices.Clone(waypoints)
		}

		// Joined chunks share a stop, so the first point repeats the previous tail
		if i > 0 && len(line) > 0 {
			line = line[1:]
		}

		direction := models.DownDirection
		if chunk.Start > turn {
			direction = models.UpDirection
		}

		path.Segments = append(path.Segments, models.Segment{
			Coordinates:          line,
			Direction:            direction,
			ContainsTurningPoint: chunk.Start <= turn && turn <= chunk.Last(),
			StartOrder:           stops[chunk.Start].Order,
		})
	}

	return path, nil
}
