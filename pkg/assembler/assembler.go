// Package assembler groups fetch outcomes into numbered batch files in
// listing order, whatever order the outcomes arrive in.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/logging"
	"github.com/Sternrassler/archive-exporter/pkg/reorder"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	batchFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exporter_batch_files_total",
		Help: "Total batch files emitted",
	})

	batchDocumentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exporter_batch_documents_total",
		Help: "Total documents written into batch files",
	})
)

// ErrClosed is returned by Accept after Close.
var ErrClosed = errors.New("assembler closed")

// Outcome is the single result of fetching one listed item.
type Outcome struct {
	Index     int
	Succeeded bool
	Content   []byte
	Title     string
	Err       error
}

// Emitter receives one finished batch file. Calls are serialized and made
// in file order.
type Emitter func(name string, content []byte) error

// Config holds assembler configuration.
type Config struct {
	// BatchSize is the number of documents per file.
	BatchSize int

	// Prefix and Extension form the file name <prefix>_part_<NNN>.<ext>.
	Prefix    string
	Extension string

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Assembler reorders outcomes by index and cuts the successful contents into
// files of BatchSize documents. Failed outcomes only advance the order.
type Assembler struct {
	config Config
	emit   Emitter
	token  *coordinator.Token
	logger zerolog.Logger

	mu      sync.Mutex
	pending *reorder.Buffer[Outcome]
	buffer  [][]byte
	batchNo int
	files   []string
	err     error
	closed  bool
}

// New creates an assembler. token may be nil.
func New(config Config, token *coordinator.Token, emit Emitter) (*Assembler, error) {
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1 (got %d)", config.BatchSize)
	}
	if config.Prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	if config.Extension == "" {
		config.Extension = "md"
	}
	if emit == nil {
		return nil, fmt.Errorf("emitter is required")
	}

	logger := logging.NewLogger("assembler")
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Assembler{
		config:  config,
		emit:    emit,
		token:   token,
		logger:  logger,
		pending: reorder.New[Outcome](),
		batchNo: 1,
	}, nil
}

// FileName returns the name of batch file n, counted from 1.
func FileName(prefix string, n int, ext string) string {
	return fmt.Sprintf("%s_part_%03d.%s", prefix, n, ext)
}

// Accept records one outcome and emits every batch that became complete.
// Each index must be accepted exactly once.
func (a *Assembler) Accept(o Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if err := a.pending.Insert(o.Index, o); err != nil {
		return err
	}

	for _, ready := range a.pending.Drain() {
		if !ready.Succeeded {
			continue
		}
		a.buffer = append(a.buffer, ready.Content)
		if len(a.buffer) >= a.config.BatchSize {
			a.flushLocked()
		}
	}
	return nil
}

// Close emits the remaining partial batch unless the token is cancelled,
// and returns the first emit error, if any. Outcomes still waiting for a
// gap to fill are dropped.
func (a *Assembler) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return a.err
	}
	a.closed = true

	if len(a.buffer) > 0 {
		a.flushLocked()
	}
	if n := a.pending.Pending(); n > 0 {
		a.logger.Warn().
			Int("pending", n).
			Int("next", a.pending.Next()).
			Msg("Closing with outcomes still out of order")
	}
	return a.err
}

// Files returns the names emitted so far, in order.
func (a *Assembler) Files() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.files...)
}

// flushLocked writes the buffer as the next file. It is skipped once the
// token is cancelled or an earlier emit failed.
func (a *Assembler) flushLocked() {
	if a.err != nil || a.token.Cancelled() {
		a.buffer = nil
		return
	}

	name := FileName(a.config.Prefix, a.batchNo, a.config.Extension)
	content := bytes.Join(a.buffer, nil)
	docs := len(a.buffer)
	a.buffer = nil

	if err := a.emit(name, content); err != nil {
		a.err = fmt.Errorf("emit %s: %w", name, err)
		a.logger.Error().Err(err).Str("file", name).Msg("Batch emit failed")
		return
	}

	a.files = append(a.files, name)
	a.batchNo++
	batchFilesTotal.Inc()
	batchDocumentsTotal.Add(float64(docs))

	a.logger.Info().
		Str("file", name).
		Int("documents", docs).
		Int("bytes", len(content)).
		Msg("Batch written")
}
