// Package export runs one archive export end to end: list the collection,
// fetch and convert every item with bounded concurrency, and write the
// documents in listing order as batch files or a single ZIP container.
//
// Per-item failures are logged and counted but never stop the run. A
// listing failure or a storage failure does. A cancelled token stops new
// work cooperatively; requests already in flight finish.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/assembler"
	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/extract"
	"github.com/Sternrassler/archive-exporter/pkg/logging"
	"github.com/Sternrassler/archive-exporter/pkg/pagination"
	"github.com/Sternrassler/archive-exporter/pkg/pool"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gocloud.dev/blob"
)

var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_items_total",
		Help: "Total listed items by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exporter_run_duration_seconds",
		Help:    "Duration of export runs by mode",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"mode"})
)

// ErrCancelled is returned when the token stopped the run early.
var ErrCancelled = errors.New("export cancelled")

// Lister produces the deduplicated item sequence.
type Lister interface {
	ListAll(ctx context.Context, token *coordinator.Token) ([]pagination.ListedItem, error)
}

// Fetcher fetches one item page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, accept string) ([]byte, error)
}

// Options configures an Exporter.
type Options struct {
	Mode        Mode
	Concurrency int
	BatchSize   int
	Prefix      string
	Extension   string
	FrontMatter bool

	// Observer receives progress snapshots; it must not block for long.
	Observer func(coordinator.Snapshot)

	// Clock stamps archive entries. Defaults to time.Now.
	Clock func() time.Time

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID        string
	Mode         Mode
	Total        int
	Succeeded    int
	Failed       int
	Files        []string
	ArchiveBytes int
	Duration     time.Duration
	Cancelled    bool
}

// Exporter wires the stages of a run together.
type Exporter struct {
	lister    Lister
	fetcher   Fetcher
	extractor extract.Extractor
	bucket    *blob.Bucket
	opts      Options
	logger    zerolog.Logger
}

// New creates an exporter writing into bucket.
func New(lister Lister, fetcher Fetcher, extractor extract.Extractor, bucket *blob.Bucket, opts Options) (*Exporter, error) {
	if lister == nil || fetcher == nil || extractor == nil {
		return nil, errors.New("lister, fetcher and extractor are required")
	}
	if bucket == nil {
		return nil, errors.New("output bucket is required")
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Prefix == "" {
		return nil, errors.New("prefix is required")
	}
	if opts.Extension == "" {
		opts.Extension = "md"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	logger := logging.NewLogger("export")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Exporter{
		lister:    lister,
		fetcher:   fetcher,
		extractor: extractor,
		bucket:    bucket,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Run performs one export. The result is filled in even when an error is
// returned. A run stopped by token returns ErrCancelled; a listing failure
// returns the *pagination.ListingError; a failed write returns the
// *StorageError.
func (e *Exporter) Run(ctx context.Context, token *coordinator.Token) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Mode: e.opts.Mode}
	logger := logging.WithRun(e.logger, res.RunID)
	defer func() {
		res.Duration = time.Since(start)
		runDuration.WithLabelValues(string(e.opts.Mode)).Observe(res.Duration.Seconds())
	}()

	// The run token also stops when storage fails, without touching the
	// caller's token.
	runToken := token.Child()
	defer runToken.Cancel()

	progress := coordinator.NewProgress(e.opts.Mode.fetchSpan(), e.opts.Observer)
	progress.SetPhase(coordinator.PhaseListing)

	logger.Info().Str("mode", string(e.opts.Mode)).Msg("Export started")

	items, err := e.lister.ListAll(ctx, token)
	if err != nil {
		logger.Error().Err(err).Msg("Listing failed")
		return res, fmt.Errorf("list items: %w", err)
	}
	res.Total = len(items)

	if token.Cancelled() && len(items) == 0 {
		res.Cancelled = true
		return res, ErrCancelled
	}
	if len(items) == 0 {
		logger.Warn().Msg("Listing is empty, nothing to export")
		progress.Finish()
		return res, nil
	}

	progress.SetTotal(len(items))
	progress.SetPhase(coordinator.PhaseFetching)

	var out sink
	switch e.opts.Mode {
	case ModeContainer:
		out = newContainerSink(e.bucket, e.opts, runToken, progress, logger)
	default:
		out, err = newBatchSink(ctx, e.bucket, e.opts, runToken, logger)
		if err != nil {
			return res, err
		}
	}

	stats := pool.Run(ctx, runToken, items, e.opts.Concurrency, func(ctx context.Context, index int, item pagination.ListedItem) {
		o := e.process(ctx, item, logger)
		progress.Resolve(o.Succeeded, item.CanonicalKey)
		if err := out.accept(o); err != nil {
			logger.Error().Err(err).Int("index", index).Msg("Outcome rejected")
		}
		if o.Succeeded {
			itemsTotal.WithLabelValues("succeeded").Inc()
		} else {
			itemsTotal.WithLabelValues("failed").Inc()
		}
	})
	logger.Debug().Int("claimed", stats.Claimed).Int("workers", stats.Workers).Msg("Pool finished")

	snap := progress.Snapshot()
	res.Succeeded = snap.Succeeded
	res.Failed = snap.Failed

	files, size, err := out.finish(ctx)
	res.Files = files
	res.ArchiveBytes = size
	if err != nil {
		logger.Error().Err(err).Msg("Writing output failed")
		return res, err
	}

	if token.Cancelled() {
		res.Cancelled = true
		logger.Warn().
			Int("succeeded", res.Succeeded).
			Int("total", res.Total).
			Int("files", len(res.Files)).
			Msg("Export cancelled")
		return res, ErrCancelled
	}

	progress.Finish()
	logger.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("total", res.Total).
		Strs("files", res.Files).
		Int("archive_bytes", res.ArchiveBytes).
		Dur("duration", time.Since(start)).
		Msgf("Export complete: %d/%d items", res.Succeeded, res.Total)

	return res, nil
}

// process fetches, extracts and renders one item. Errors become a failed
// outcome.
func (e *Exporter) process(ctx context.Context, item pagination.ListedItem, logger zerolog.Logger) assembler.Outcome {
	o := assembler.Outcome{Index: item.Index}

	fail := func(stage string, err error) assembler.Outcome {
		o.Err = fmt.Errorf("%s: %w", stage, err)
		logger.Warn().
			Err(err).
			Str("url", item.CanonicalKey).
			Int("index", item.Index).
			Str("stage", stage).
			Msg("Item failed")
		return o
	}

	page, err := e.fetcher.Fetch(ctx, item.CanonicalKey, "text/html")
	if err != nil {
		return fail("fetch", err)
	}

	doc, err := e.extractor.Extract(item.CanonicalKey, page, extract.Fallback{
		Title: item.Record.Title,
		Date:  item.Record.Date(),
	})
	if err != nil {
		return fail("extract", err)
	}

	content, err := extract.Render(doc, extract.RenderOptions{FrontMatter: e.opts.FrontMatter})
	if err != nil {
		return fail("render", err)
	}

	o.Succeeded = true
	o.Content = content
	o.Title = doc.Title
	return o
}
