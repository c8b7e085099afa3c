package busroutes

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aaroncutress/busroutes/catalog"
	"github.com/aaroncutress/busroutes/config"
	"github.com/aaroncutress/busroutes/internal"
	"github.com/aaroncutress/busroutes/models"
	"github.com/aaroncutress/busroutes/routing"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v3"
	"golang.org/x/sync/errgroup"
)

// Outcome of one pipeline run
type Summary struct {
	RunID     string
	Collect   CollectReport
	IndexPath string

	Snapped    int
	SnapFailed int
}

// Collects a city's routes and snaps them to the road network
type Pipeline struct {
	cfg     config.Config
	catalog Catalog
	router  routing.Router
	now     func() time.Time
	logger  *log.Logger
	runID   string
}

func NewPipeline(cfg config.Config, catalog Catalog, router routing.Router) *Pipeline {
	runID := uuid.NewString()
	return &Pipeline{
		cfg:     cfg,
		catalog: catalog,
		router:  router,
		now:     time.Now,
		logger:  log.With("run", runID),
		runID:   runID,
	}
}

// Replaces the clock used for timestamps
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Runs the pipeline with clients built from cfg
func Run(ctx context.Context, cfg config.Config) (*Summary, error) {
	catalogClient := catalog.NewClient(catalog.Options{
		BaseURL:    cfg.CatalogURL,
		ServiceKey: cfg.ServiceKey,
		Timeout:    cfg.HTTPTimeout,
		Retries:    cfg.Retries,
	})
	defer catalogClient.Close()

	routingClient := routing.NewClient(cfg.RoutingURL, cfg.HTTPTimeout)
	defer routingClient.Close()

	return NewPipeline(cfg, catalogClient, routingClient).Run(ctx)
}

func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: p.runID}
	start := p.now()

	var records []*models.RouteRecord
	if p.cfg.SnapOnly {
		loaded, err := p.loadRawRoutes()
		if err != nil {
			return summary, err
		}
		records = loaded
	} else {
		index, err := p.collect(ctx, summary)
		if err != nil {
			return summary, err
		}
		defer index.Close()

		if p.cfg.SkipSnapping {
			p.logger.Infof("Finished in %s without snapping", p.now().Sub(start).Round(time.Millisecond))
			return summary, nil
		}
		records = index.Records()
	}

	if err := p.snapAll(ctx, records, summary); err != nil {
		return summary, err
	}

	p.logger.Infof("Finished in %s: %d paths written, %d routes failed",
		p.now().Sub(start).Round(time.Millisecond), summary.Snapped, summary.SnapFailed)
	return summary, nil
}

// Collection phase: builds the index and persists it
func (p *Pipeline) collect(ctx context.Context, summary *Summary) (*Index, error) {
	collector := NewCollector(p.catalog, CollectorOptions{
		CityCode:    p.cfg.CityCode,
		RouteFilter: p.cfg.Routes,
		Concurrency: p.cfg.CollectConcurrency,
		OutDir:      p.cfg.OutDir,
		Now:         p.now,
		Logger:      p.logger,
	})

	index, report, err := collector.Collect(ctx)
	summary.Collect = report
	if err != nil {
		return nil, err
	}

	now := p.now()
	doc, err := index.Document(now)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("build index: %w", err)
	}
	summary.IndexPath, err = WriteIndex(p.cfg.OutDir, doc)
	if err != nil {
		index.Close()
		return nil, err
	}
	p.logger.Infof("Wrote %s with %d routes and %d stations", summary.IndexPath, index.Len(), index.StationCount())

	snapshotPath := filepath.Join(p.cfg.OutDir, SnapshotFileName)
	if err := index.SaveSnapshot(snapshotPath, now); err != nil {
		index.Close()
		return nil, fmt.Errorf("write station snapshot: %w", err)
	}

	if p.cfg.SQLitePath != "" {
		stations, err := index.Stations()
		if err == nil {
			err = internal.ExportSQLite(p.cfg.SQLitePath, internal.ExportMeta{
				RunID:    p.runID,
				CityCode: p.cfg.CityCode,
				Exported: now,
			}, index.Records(), stations)
		}
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("export sqlite: %w", err)
		}
		p.logger.Infof("Exported index to %s", p.cfg.SQLitePath)
	}

	return index, nil
}

// Reads the raw stop files of an earlier run, applying the route filter
func (p *Pipeline) loadRawRoutes() ([]*models.RouteRecord, error) {
	records, failures, err := ReadRawRoutes(p.cfg.OutDir)
	if err != nil {
		return nil, err
	}
	for path, err := range failures {
		p.logger.Warn("skipping raw route file", "file", path, "err", err)
	}

	if len(p.cfg.Routes) > 0 {
		wanted := set.From(p.cfg.Routes)
		filtered := records[:0]
		for _, record := range records {
			if wanted.Contains(record.No) {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no raw routes found under %s", filepath.Join(p.cfg.OutDir, RawRoutesDir))
	}
	p.logger.Infof("Loaded %d raw routes", len(records))
	return records, nil
}

// Snapping phase: sanitizes and snaps each route under its own limit
func (p *Pipeline) snapAll(ctx context.Context, records []*models.RouteRecord, summary *Summary) error {
	sanitizer := NewSanitizer(p.router, p.cfg.Bounds, p.cfg.SnapThreshold, p.cfg.KeepThreshold)
	snapper := NewSnapper(p.router, p.cfg.Bounds, p.cfg.ChunkSize)

	p.logger.Infof("Snapping %d routes with %d workers", len(records), p.cfg.SnapConcurrency)

	var snapped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(p.cfg.SnapConcurrency, 1))

	for _, record := range records {
		g.Go(func() error {
			logger := p.logger.With("route", record.ID, "no", record.No)
			if err := p.snapRoute(ctx, sanitizer, snapper, record, logger); err != nil {
				failed.Add(1)
				if ctx.Err() == nil {
					logger.Warn("no snapped path", "err", err)
				}
				return nil
			}
			snapped.Add(1)
			return nil
		})
	}
	g.Wait()

	summary.Snapped = int(snapped.Load())
	summary.SnapFailed = int(failed.Load())
	return ctx.Err()
}

func (p *Pipeline) snapRoute(ctx context.Context, sanitizer *Sanitizer, snapper *Snapper, record *models.RouteRecord, logger *log.Logger) error {
	pace := newPacer(p.cfg.EngineDelay)

	stops, report, err := sanitizer.Sanitize(ctx, record.Stops, pace, logger)
	if err != nil {
		return fmt.Errorf("sanitize: %w", err)
	}
	logger.Debug("sanitized", "snapped", report.Snapped, "ambiguous", report.Ambiguous,
		"branch", report.Branch, "skipped", report.Skipped)

	path, err := snapper.Snap(ctx, record.WithStops(stops), pace, logger)
	if err != nil {
		return fmt.Errorf("snap: %w", err)
	}

	filePath, err := WriteSnappedPath(p.cfg.OutDir, path)
	if err != nil {
		return fmt.Errorf("write path: %w", err)
	}
	logger.Debug("wrote snapped path", "file", filePath, "segments", len(path.Segments))
	return nil
}
