package busroutes

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aaroncutress/busroutes/models"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-set/v3"
	"golang.org/x/sync/errgroup"
)

// Source of route and stop listings
type Catalog interface {
	ListRoutes(ctx context.Context, cityCode string) (models.RouteSummaryArray, error)
	ListStops(ctx context.Context, cityCode string, routeID models.Key) (models.RawStopArray, error)
}

type CollectorOptions struct {
	CityCode string

	// Route numbers to keep; empty keeps every route
	RouteFilter []string

	// Maximum stop listings in flight
	Concurrency int

	// Directory receiving raw stop files; empty disables them
	OutDir string

	Now    func() time.Time
	Logger *log.Logger
}

// Outcome counts of one collection run
type CollectReport struct {
	Listed    int
	Invalid   int
	Filtered  int
	Collected int
	Failed    int
}

// Fetches and sequences every route of a city under a concurrency limit
type Collector struct {
	catalog Catalog
	opts    CollectorOptions
}

func NewCollector(catalog Catalog, opts CollectorOptions) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultCollectConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Collector{
		catalog: catalog,
		opts:    opts,
	}
}

// Lists the city's routes and returns the index built from those whose
// stops could be fetched. A failing route is logged and left out; it never
// stops the others. The only errors returned are a failed route listing,
// cancellation of ctx and a failure to fold a result into the index.
func (c *Collector) Collect(ctx context.Context) (*Index, CollectReport, error) {
	var report CollectReport
	logger := c.opts.Logger

	routes, err := c.catalog.ListRoutes(ctx, c.opts.CityCode)
	if err != nil {
		return nil, report, err
	}
	report.Listed = len(routes)

	targets := c.filter(routes, &report)
	logger.Infof("Collecting %d of %d routes with %d workers", len(targets), len(routes), c.opts.Concurrency)

	index := NewIndex()
	results := make(chan *RouteResult)
	folded := make(chan error, 1)

	// Single consumer owns the index
	go func() {
		var foldErr error
		for result := range results {
			if foldErr != nil {
				continue
			}
			foldErr = index.Add(result)
		}
		folded <- foldErr
	}()

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)

	for _, route := range targets {
		g.Go(func() error {
			result, err := c.collectRoute(ctx, route)
			if err != nil {
				failed.Add(1)
				if ctx.Err() == nil {
					logger.Warn("skipping route", "route", route.ID, "no", route.No, "stage", "collect", "err", err)
				}
				return nil
			}

			select {
			case results <- result:
			case <-ctx.Done():
				failed.Add(1)
			}
			return nil
		})
	}

	g.Wait()
	close(results)
	foldErr := <-folded

	report.Failed = int(failed.Load())
	report.Collected = index.Len()

	if foldErr != nil {
		index.Close()
		return nil, report, fmt.Errorf("aggregate routes: %w", foldErr)
	}
	if err := ctx.Err(); err != nil {
		index.Close()
		return nil, report, err
	}

	logger.Infof("Collected %d routes (%d failed, %d invalid)", report.Collected, report.Failed, report.Invalid)
	return index, report, nil
}

// Drops invalid routes and applies the route number filter
func (c *Collector) filter(routes models.RouteSummaryArray, report *CollectReport) models.RouteSummaryArray {
	var wanted *set.Set[string]
	if len(c.opts.RouteFilter) > 0 {
		wanted = set.From(c.opts.RouteFilter)
	}

	targets := make(models.RouteSummaryArray, 0, len(routes))
	for _, route := range routes {
		if !route.Valid {
			report.Invalid++
			c.opts.Logger.Warn("skipping route without id or number", "route", route.ID, "no", route.No)
			continue
		}
		if wanted != nil && !wanted.Contains(route.No) {
			report.Filtered++
			continue
		}
		targets = append(targets, route)
	}
	return targets
}

// Fetches and sequences one route, then writes its raw stop file
func (c *Collector) collectRoute(ctx context.Context, route models.RouteSummary) (*RouteResult, error) {
	raw, err := c.catalog.ListStops(ctx, c.opts.CityCode, route.ID)
	if err != nil {
		return nil, err
	}

	result, err := Sequence(route, raw)
	if err != nil {
		return nil, err
	}

	if c.opts.OutDir != "" {
		_, err := WriteRawRoute(c.opts.OutDir, result.Record, c.opts.Now())
		if err != nil {
			c.opts.Logger.Warn("raw stop file not written", "route", route.ID, "no", route.No, "err", err)
		}
	}

	c.opts.Logger.Debug("collected route", "route", route.ID, "no", route.No, "stops", len(result.Record.Stops))
	return result, nil
}
