package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aaroncutress/busroutes"
	"github.com/aaroncutress/busroutes/config"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("busroutes", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: busroutes [options]\n\nCollects bus routes and stops and snaps them to the road network.\n\n")
		fs.PrintDefaults()
	}
	flags := config.BindFlags(fs)
	fs.Parse(os.Args[1:])

	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := flags.Resolve(os.LookupEnv)
	if errors.Is(err, config.ErrMissingServiceKey) {
		log.Fatal("Missing service key", "env", config.EnvServiceKey)
	}
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error parsing log level: %v", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := busroutes.Run(ctx, cfg)
	if err != nil {
		log.Errorf("Run %s failed: %v", summary.RunID, err)
		os.Exit(1)
	}

	log.Info("Done", "routes", summary.Collect.Collected, "paths", summary.Snapped, "failed", summary.SnapFailed)
}
