// Command exporter downloads every post of a newsletter archive and writes
// them as numbered Markdown batch files or a single ZIP archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/client"
	"github.com/Sternrassler/archive-exporter/pkg/config"
	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/export"
	"github.com/Sternrassler/archive-exporter/pkg/extract"
	"github.com/Sternrassler/archive-exporter/pkg/logging"
	"github.com/Sternrassler/archive-exporter/pkg/metrics"
	"github.com/Sternrassler/archive-exporter/pkg/pagination"
	"github.com/briandowns/spinner"
	"github.com/rs/zerolog"
	"gocloud.dev/gcerrors"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitListing   = 3
	exitStorage   = 4
	exitCancelled = 5
)

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"mode":         "mode",
	"listing-url":  "listing_url",
	"output":       "output_url",
	"prefix":       "prefix",
	"concurrency":  "concurrency",
	"retries":      "max_retries",
	"backoff":      "backoff_base",
	"batch-size":   "batch_size",
	"front-matter": "front_matter",
	"log-level":    "log_level",
	"pretty":       "log_pretty",
	"metrics-addr": "metrics_addr",
	"progress":     "progress",
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.LookupEnv, os.Stderr))
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), stderr io.Writer) int {
	cfg, notes, err := loadConfig(args, lookup, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "exporter: %v\n", err)
		return exitUsage
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: stderr,
	})
	for _, note := range notes {
		logger.Warn().Str("setting", note).Msg("Configuration adjusted")
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.Start(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	token := coordinator.NewToken()
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go watchSignals(ctx, signals, token, cancel, logger)

	exporter, closeOutput, err := build(ctx, cfg, stderr, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Setup failed")
		return exitCode(err)
	}
	defer closeOutput()

	res, err := exporter.Run(ctx, token)
	if err != nil {
		logger.Error().
			Err(err).
			Int("succeeded", res.Succeeded).
			Int("total", res.Total).
			Msg("Export failed")
		return exitCode(err)
	}

	fmt.Fprintf(stderr, "Exported %d/%d items to %s (%d files)\n", res.Succeeded, res.Total, cfg.OutputURL, len(res.Files))
	return exitOK
}

// loadConfig layers defaults, the config file, EXPORTER_* variables and
// flags, then clamps and validates the result.
func loadConfig(args []string, lookup func(string) (string, bool), stderr io.Writer) (config.Config, []string, error) {
	fs := flag.NewFlagSet("exporter", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a YAML config file")
	fs.String("mode", "", "output mode: batch or container")
	fs.String("listing-url", "", "paginated JSON listing URL")
	fs.String("output", "", "output directory or blob URL (file://, mem://)")
	fs.String("prefix", "", "output file name prefix")
	fs.Int("concurrency", 0, "parallel item fetches (1-12)")
	fs.Int("retries", 0, "retry budget per fetch (0-10)")
	fs.String("backoff", "", "base retry backoff, e.g. 500ms (100ms-5s)")
	fs.Int("batch-size", 0, "documents per batch file (1-200)")
	fs.Bool("front-matter", false, "prepend YAML front matter to every document")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.Bool("pretty", false, "human-readable console logs")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Bool("progress", false, "show a progress spinner")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return config.Config{}, nil, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || flagErr != nil {
			return
		}
		if err := cfg.Set(key, f.Value.String()); err != nil {
			flagErr = fmt.Errorf("-%s: %w", f.Name, err)
		}
	})
	if flagErr != nil {
		return config.Config{}, nil, flagErr
	}

	notes := cfg.Clamp()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, notes, nil
}

// build wires the transport, lister, extractor and output bucket.
func build(ctx context.Context, cfg config.Config, stderr io.Writer, logger zerolog.Logger) (*export.Exporter, func(), error) {
	httpClient, err := client.New(client.Config{
		UserAgent:   cfg.UserAgent,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		Timeout:     cfg.RequestTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	lister, err := pagination.NewLister(httpClient, pagination.Config{
		ListingURL: cfg.ListingURL,
		PageSize:   cfg.PageSize,
		PageDelay:  cfg.PageDelay,
	})
	if err != nil {
		return nil, nil, err
	}

	bucket, err := export.OpenOutput(ctx, cfg.OutputURL)
	if err != nil {
		return nil, nil, &export.StorageError{Key: cfg.OutputURL, Code: gcerrors.Code(err), Err: err}
	}

	mode, err := export.ParseMode(cfg.Mode)
	if err != nil {
		bucket.Close()
		return nil, nil, err
	}

	opts := export.Options{
		Mode:        mode,
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		Prefix:      cfg.Prefix,
		Extension:   cfg.Extension,
		FrontMatter: cfg.FrontMatter,
	}

	var spin *spinner.Spinner
	if cfg.Progress {
		spin = spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(stderr))
		opts.Observer = progressSuffix(spin)
		spin.Start()
	}

	exporter, err := export.New(lister, httpClient, extract.NewHTMLExtractor(), bucket, opts)
	if err != nil {
		if spin != nil {
			spin.Stop()
		}
		bucket.Close()
		return nil, nil, err
	}

	closeOutput := func() {
		if spin != nil {
			spin.Stop()
		}
		if err := bucket.Close(); err != nil {
			logger.Warn().Err(err).Msg("Closing output failed")
		}
	}
	return exporter, closeOutput, nil
}

// progressSuffix renders snapshots into the spinner's suffix.
func progressSuffix(spin *spinner.Spinner) func(coordinator.Snapshot) {
	return func(s coordinator.Snapshot) {
		spin.Lock()
		spin.Suffix = " " + formatProgress(s)
		spin.Unlock()
	}
}

func formatProgress(s coordinator.Snapshot) string {
	line := fmt.Sprintf("%s %3.0f%%", s.Phase, s.Fraction*100)
	if s.Total > 0 {
		line += fmt.Sprintf(" %d/%d", s.Resolved, s.Total)
	}
	if s.Failed > 0 {
		line += fmt.Sprintf(" (%d failed)", s.Failed)
	}
	if s.Current != "" {
		line += " " + s.Current
	}
	return line
}

// watchSignals cancels the token on the first signal so in-flight work
// drains, and the context on the second.
func watchSignals(ctx context.Context, signals <-chan os.Signal, token *coordinator.Token, cancel context.CancelFunc, logger zerolog.Logger) {
	select {
	case sig := <-signals:
		logger.Warn().Str("signal", sig.String()).Msg("Stopping after in-flight items, signal again to abort")
		token.Cancel()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-signals:
		logger.Warn().Str("signal", sig.String()).Msg("Aborting")
		cancel()
	case <-ctx.Done():
	}
}

func exitCode(err error) int {
	var listingErr *pagination.ListingError
	var storageErr *export.StorageError

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, export.ErrCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.As(err, &listingErr):
		return exitListing
	case errors.As(err, &storageErr):
		return exitStorage
	default:
		return exitError
	}
}
