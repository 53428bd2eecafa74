// Command hydrate fills the market cache ahead of traffic.
//
// Usage:
//
//	hydrate [-ecosystem ai,robotics] [-range YTD,1Y] [-force]
//	hydrate -verify
//
// With -verify it only prints a summary of the cache contents.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/strategy-index-backend/internal/app"
	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/config"
	"github.com/ndewijer/strategy-index-backend/internal/logging"
	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes the command and returns its exit code. Returning instead of
// exiting lets the deferred shutdown close the cache store and the database.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("hydrate", flag.ContinueOnError)
	verify := fs.Bool("verify", false, "print a summary of the cache and exit")
	ranges := fs.String("range", "", "comma-separated ranges to hydrate (default: all)")
	ecosystems := fs.String("ecosystem", "", "comma-separated ecosystems to hydrate (default: all)")
	force := fs.Bool("force", false, "refetch records that are still fresh")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logging.SetGlobalLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize services")
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close services")
		}
	}()

	if *verify {
		summary, err := a.System.CacheSummary(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to summarize cache")
			return 1
		}
		printJSON(stdout, summary)
		return 0
	}

	opts, err := parseOptions(a.Catalog, *ranges, *ecosystems)
	if err != nil {
		fmt.Fprintln(fs.Output(), err)
		fs.Usage()
		return 2
	}
	opts.Force = *force
	opts.Delay = cfg.Hydrate.Delay

	report, err := a.Hydration.Hydrate(ctx, opts)
	printJSON(stdout, report)
	if err != nil {
		logger.Error().Err(err).Msg("hydration aborted")
		return 1
	}
	if report.Failed > 0 {
		return 1
	}
	return 0
}

func parseOptions(cat *catalog.Catalog, ranges, ecosystems string) (service.HydrateOptions, error) {
	var opts service.HydrateOptions
	for _, raw := range splitFlag(ranges) {
		rng, err := model.ParseTimeRange(raw)
		if err != nil {
			return opts, err
		}
		opts.Ranges = append(opts.Ranges, rng)
	}
	for _, raw := range splitFlag(ecosystems) {
		eco, err := cat.ParseEcosystem(raw)
		if err != nil {
			return opts, err
		}
		opts.Ecosystems = append(opts.Ecosystems, eco)
	}
	return opts, nil
}

func splitFlag(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode output")
	}
}
