package export

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Sternrassler/archive-exporter/pkg/archive"
	"github.com/Sternrassler/archive-exporter/pkg/assembler"
	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/reorder"
	"github.com/rs/zerolog"
	"gocloud.dev/blob"
)

// Mode selects how successful documents are written.
type Mode string

const (
	// ModeBatch writes documents in listing order, BatchSize per file.
	ModeBatch Mode = "batch"

	// ModeContainer writes one ZIP archive with a file per document.
	ModeContainer Mode = "container"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBatch, ModeContainer:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want batch or container)", s)
	}
}

// fetchSpan is the share of the progress range item resolution covers.
func (m Mode) fetchSpan() float64 {
	if m == ModeContainer {
		return coordinator.FetchSpanContainer
	}
	return coordinator.FetchSpanBatch
}

const (
	markdownContentType = "text/markdown; charset=utf-8"
	zipContentType      = "application/zip"
)

// sink receives every outcome once and writes the output at the end.
type sink interface {
	accept(o assembler.Outcome) error
	finish(ctx context.Context) (files []string, archiveBytes int, err error)
}

// batchSink streams numbered batch files to the bucket as they complete.
type batchSink struct {
	asm *assembler.Assembler
}

func newBatchSink(ctx context.Context, bucket *blob.Bucket, opts Options, token *coordinator.Token, logger zerolog.Logger) (*batchSink, error) {
	asm, err := assembler.New(assembler.Config{
		BatchSize: opts.BatchSize,
		Prefix:    opts.Prefix,
		Extension: opts.Extension,
		Logger:    &logger,
	}, token, func(name string, content []byte) error {
		err := writeObject(ctx, bucket, name, content, markdownContentType)
		if err != nil {
			// Nothing more can be written; stop claiming items.
			token.Cancel()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &batchSink{asm: asm}, nil
}

func (s *batchSink) accept(o assembler.Outcome) error {
	return s.asm.Accept(o)
}

func (s *batchSink) finish(ctx context.Context) ([]string, int, error) {
	err := s.asm.Close()
	return s.asm.Files(), 0, err
}

// containerSink collects documents in listing order and writes them as one
// archive at the end. Entry names are assigned in index order so duplicate
// titles are numbered the same way on every run.
type containerSink struct {
	bucket   *blob.Bucket
	opts     Options
	token    *coordinator.Token
	progress *coordinator.Progress
	logger   zerolog.Logger

	mu      sync.Mutex
	pending *reorder.Buffer[assembler.Outcome]
	names   *archive.NameRegistry
	entries []archive.Entry
}

func newContainerSink(bucket *blob.Bucket, opts Options, token *coordinator.Token, progress *coordinator.Progress, logger zerolog.Logger) *containerSink {
	return &containerSink{
		bucket:   bucket,
		opts:     opts,
		token:    token,
		progress: progress,
		logger:   logger,
		pending:  reorder.New[assembler.Outcome](),
		names:    archive.NewNameRegistry(),
	}
}

func (s *containerSink) accept(o assembler.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pending.Insert(o.Index, o); err != nil {
		return err
	}
	for _, ready := range s.pending.Drain() {
		if !ready.Succeeded {
			continue
		}
		s.entries = append(s.entries, archive.Entry{
			Name:    s.names.Unique(ready.Title, s.opts.Extension),
			Content: ready.Content,
		})
	}
	return nil
}

// ArchiveName returns the object name of the container for prefix.
func ArchiveName(prefix string) string {
	return prefix + ".zip"
}

func (s *containerSink) finish(ctx context.Context) ([]string, int, error) {
	s.mu.Lock()
	entries := s.entries
	s.mu.Unlock()

	if s.token.Cancelled() {
		return nil, 0, nil
	}
	if len(entries) == 0 {
		s.logger.Warn().Msg("No documents exported, archive not written")
		return nil, 0, nil
	}

	s.progress.SetPhase(coordinator.PhaseArchiving)
	w := archive.NewWriter(
		archive.WithClock(s.opts.Clock),
		archive.WithProgress(s.progress.ArchiveStep),
		archive.WithLogger(s.logger),
	)
	data, err := w.Build(s.token, entries)
	if err != nil {
		if s.token.Cancelled() {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("build archive: %w", err)
	}

	name := ArchiveName(s.opts.Prefix)
	if err := writeObject(ctx, s.bucket, name, data, zipContentType); err != nil {
		return nil, 0, err
	}

	s.logger.Info().
		Str("file", name).
		Int("entries", len(entries)).
		Int("bytes", len(data)).
		Msg("Archive written")

	return []string{name}, len(data), nil
}
