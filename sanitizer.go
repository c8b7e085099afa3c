package busroutes

import (
	"context"
	"time"

	"github.com/aaroncutress/busroutes/models"
	"github.com/aaroncutress/busroutes/routing"
	"github.com/charmbracelet/log"
)

// Spaces out routing engine requests made for one route. The first call is
// never delayed.
type pacer struct {
	delay time.Duration
	calls int
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{delay: delay}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.calls > 0 && p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.calls++
	return ctx.Err()
}

// Counts of what happened to each interior stop
type SanitizeReport struct {
	Snapped   int // within the snap threshold, moved onto the corridor
	Ambiguous int // between the thresholds, left in place
	Branch    int // beyond the keep threshold, left in place
	Skipped   int // no corridor available
}

// Moves noisy stop coordinates onto the road between their neighbours
type Sanitizer struct {
	router        routing.Router
	bounds        models.Bounds
	snapThreshold float64
	keepThreshold float64
}

func NewSanitizer(router routing.Router, bounds models.Bounds, snapThreshold, keepThreshold float64) *Sanitizer {
	return &Sanitizer{
		router:        router,
		bounds:        bounds,
		snapThreshold: snapThreshold,
		keepThreshold: keepThreshold,
	}
}

// Returns a copy of the stops with each interior stop projected onto the
// engine route between its neighbours when it lies within the snap
// threshold of that route. Stops are visited in order and each corridor
// starts from the already corrected predecessor. Only context cancellation
// is returned as an error; any other corridor failure leaves the stop as is.
func (s *Sanitizer) Sanitize(ctx context.Context, stops models.StopArray, pace *pacer, logger *log.Logger) (models.StopArray, SanitizeReport, error) {
	var report SanitizeReport

	out := make(models.StopArray, len(stops))
	copy(out, stops)

	for i := 1; i < len(out)-1; i++ {
		prev := out[i-1].Coordinate()
		current := out[i].Coordinate()
		next := out[i+1].Coordinate()

		if !s.bounds.Contains(prev) || !s.bounds.Contains(current) || !s.bounds.Contains(next) {
			report.Skipped++
			continue
		}

		if err := pace.wait(ctx); err != nil {
			return nil, report, err
		}

		corridor, err := s.router.Route(ctx, models.CoordinateArray{prev, next})
		if err != nil {
			if ctx.Err() != nil {
				return nil, report, ctx.Err()
			}
			logger.Debug("corridor unavailable", "node", out[i].NodeID, "err", err)
			report.Skipped++
			continue
		}

		closest, meters, ok := models.ClosestPointOnPolyline(current, corridor)
		if !ok {
			report.Skipped++
			continue
		}

		switch {
		case meters <= s.snapThreshold:
			out[i] = out[i].MovedTo(closest)
			report.Snapped++
		case meters > s.keepThreshold:
			report.Branch++
		default:
			report.Ambiguous++
		}
	}

	return out, report, nil
}
