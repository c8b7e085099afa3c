package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aaroncutress/busroutes/catalog"
	"github.com/aaroncutress/busroutes/models"
	"github.com/aaroncutress/busroutes/routing"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var ErrMissingServiceKey = errors.New("service key is required (set DATA_GO_KR_SERVICE_KEY)")

// Environment variables read by ApplyEnv
const (
	EnvServiceKey = "DATA_GO_KR_SERVICE_KEY"
	EnvCatalogURL = "TAGO_API_URL"
	EnvRoutingURL = "OSRM_ROUTE_API_URL"
	EnvLogLevel   = "LOG_LEVEL"
)

// Resolved settings of one run
type Config struct {
	ServiceKey string `yaml:"service_key"`
	CatalogURL string `yaml:"catalog_url" validate:"required,url"`
	RoutingURL string `yaml:"routing_url" validate:"required,url"`

	CityCode string   `yaml:"city_code" validate:"required"`
	Routes   []string `yaml:"routes"`
	OutDir   string   `yaml:"out_dir" validate:"required"`

	SkipSnapping bool   `yaml:"skip_snapping"`
	SnapOnly     bool   `yaml:"snap_only" validate:"excluded_with=SkipSnapping"`
	SQLitePath   string `yaml:"sqlite"`

	CollectConcurrency int           `yaml:"collect_concurrency" validate:"gt=0"`
	SnapConcurrency    int           `yaml:"snap_concurrency" validate:"gt=0"`
	ChunkSize          int           `yaml:"chunk_size" validate:"min=2,max=500"`
	SnapThreshold      float64       `yaml:"snap_threshold" validate:"gt=0"`
	KeepThreshold      float64       `yaml:"keep_threshold" validate:"gtefield=SnapThreshold"`
	EngineDelay        time.Duration `yaml:"engine_delay" validate:"gte=0"`
	HTTPTimeout        time.Duration `yaml:"http_timeout" validate:"gt=0"`
	Retries            int           `yaml:"retries" validate:"gte=0,lte=10"`

	Bounds models.Bounds `yaml:"bounds"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Returns the built-in settings
func Default() Config {
	return Config{
		CatalogURL:         catalog.DefaultBaseURL,
		RoutingURL:         routing.DefaultBaseURL,
		CityCode:           "32020",
		OutDir:             "output",
		CollectConcurrency: 8,
		SnapConcurrency:    2,
		ChunkSize:          140,
		SnapThreshold:      90,
		KeepThreshold:      250,
		EngineDelay:        time.Second,
		HTTPTimeout:        15 * time.Second,
		Retries:            3,
		Bounds:             models.KoreaBounds,
		LogLevel:           "info",
	}
}

// Overlays settings from a YAML file. Keys missing from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Overlays settings from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	set := func(name string, target *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	set(EnvServiceKey, &c.ServiceKey)
	set(EnvCatalogURL, &c.CatalogURL)
	set(EnvRoutingURL, &c.RoutingURL)
	set(EnvLogLevel, &c.LogLevel)
}

// Checks the settings. A missing service key is reported as
// ErrMissingServiceKey.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceKey) == "" {
		return ErrMissingServiceKey
	}

	v := validator.New()
	v.RegisterStructValidation(validateBounds, models.Bounds{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validateBounds(sl validator.StructLevel) {
	b := sl.Current().Interface().(models.Bounds)
	if b.MinLatitude >= b.MaxLatitude {
		sl.ReportError(b.MaxLatitude, "MaxLatitude", "max_lat", "gtfield", "MinLatitude")
	}
	if b.MinLongitude >= b.MaxLongitude {
		sl.ReportError(b.MaxLongitude, "MaxLongitude", "max_lon", "gtfield", "MinLongitude")
	}
}

// Command line flags bound to a config
type Flags struct {
	fs  *pflag.FlagSet
	cfg Config

	ConfigFile string
}

// Registers the command line flags on fs with defaults taken from Default
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, cfg: Default()}

	fs.StringVarP(&f.ConfigFile, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.cfg.CityCode, "city", f.cfg.CityCode, "city code to collect")
	fs.StringSliceVarP(&f.cfg.Routes, "routes", "r", nil, "route numbers to process (default all)")
	fs.StringVarP(&f.cfg.OutDir, "out", "o", f.cfg.OutDir, "output directory")
	fs.BoolVar(&f.cfg.SkipSnapping, "skip-snapping", false, "only build the station map")
	fs.BoolVar(&f.cfg.SnapOnly, "snap-only", false, "snap previously collected raw routes without fetching")
	fs.StringVar(&f.cfg.SQLitePath, "sqlite", "", "also export the index to this SQLite file")
	fs.IntVar(&f.cfg.CollectConcurrency, "workers", f.cfg.CollectConcurrency, "concurrent stop listings")
	fs.IntVar(&f.cfg.SnapConcurrency, "snap-workers", f.cfg.SnapConcurrency, "routes snapped concurrently")
	fs.IntVar(&f.cfg.ChunkSize, "chunk-size", f.cfg.ChunkSize, "stops per routing engine request")
	fs.Float64Var(&f.cfg.SnapThreshold, "snap-threshold", f.cfg.SnapThreshold, "max corridor distance in meters for moving a stop")
	fs.Float64Var(&f.cfg.KeepThreshold, "keep-threshold", f.cfg.KeepThreshold, "corridor distance in meters beyond which a stop is a branch")
	fs.DurationVar(&f.cfg.EngineDelay, "engine-delay", f.cfg.EngineDelay, "pause between routing engine requests of one route")
	fs.DurationVar(&f.cfg.HTTPTimeout, "timeout", f.cfg.HTTPTimeout, "timeout of each HTTP request")
	fs.IntVar(&f.cfg.Retries, "retries", f.cfg.Retries, "retries of transient catalog failures")
	fs.StringVar(&f.cfg.CatalogURL, "catalog-url", f.cfg.CatalogURL, "catalog service base URL")
	fs.StringVar(&f.cfg.RoutingURL, "routing-url", f.cfg.RoutingURL, "routing engine route service URL")
	fs.StringVar(&f.cfg.LogLevel, "log-level", f.cfg.LogLevel, "debug, info, warn or error")

	return f
}

// Copies the flags the user set into c
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "city":
			c.CityCode = f.cfg.CityCode
		case "routes":
			c.Routes = f.cfg.Routes
		case "out":
			c.OutDir = f.cfg.OutDir
		case "skip-snapping":
			c.SkipSnapping = f.cfg.SkipSnapping
		case "snap-only":
			c.SnapOnly = f.cfg.SnapOnly
		case "sqlite":
			c.SQLitePath = f.cfg.SQLitePath
		case "workers":
			c.CollectConcurrency = f.cfg.CollectConcurrency
		case "snap-workers":
			c.SnapConcurrency = f.cfg.SnapConcurrency
		case "chunk-size":
			c.ChunkSize = f.cfg.ChunkSize
		case "snap-threshold":
			c.SnapThreshold = f.cfg.SnapThreshold
		case "keep-threshold":
			c.KeepThreshold = f.cfg.KeepThreshold
		case "engine-delay":
			c.EngineDelay = f.cfg.EngineDelay
		case "timeout":
			c.HTTPTimeout = f.cfg.HTTPTimeout
		case "retries":
			c.Retries = f.cfg.Retries
		case "catalog-url":
			c.CatalogURL = f.cfg.CatalogURL
		case "routing-url":
			c.RoutingURL = f.cfg.RoutingURL
		case "log-level":
			c.LogLevel = f.cfg.LogLevel
		}
	})
}

// Resolves the final config: defaults, then the YAML file named by
// --config, then the environment, then flags set on the command line
func (f *Flags) Resolve(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if f.ConfigFile != "" {
		if err := cfg.LoadFile(f.ConfigFile); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(lookup)
	f.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
