// Package archive builds uncompressed ZIP containers in memory.
//
// The writer produces the classic (non-ZIP64) layout: a local file header
// and the stored bytes for every entry, followed by the central directory
// and the end-of-central-directory record. Names are flagged as UTF-8.
// CRC-32 and all record fields are computed here; no external codec is used.
package archive

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	archiveBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exporter_archive_bytes",
		Help:    "Size of built archives in bytes",
		Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8),
	})

	archiveEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exporter_archive_entries_total",
		Help: "Total entries written into archives",
	})
)

var (
	// ErrArchiveTooLarge is returned when the input does not fit the
	// non-ZIP64 format: more than 65535 entries, a name over 65535 bytes,
	// or a size or offset above 4 GiB.
	ErrArchiveTooLarge = errors.New("archive exceeds zip limits")

	// ErrCancelled is returned when the token stops a build.
	ErrCancelled = errors.New("archive build cancelled")
)

// Record signatures and sizes.
const (
	sigLocalHeader   = 0x04034b50
	sigCentralHeader = 0x02014b50
	sigEndOfCentral  = 0x06054b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endOfCentralLen  = 22

	zipVersion  = 20
	flagUTF8    = 0x0800
	methodStore = 0

	maxEntries = math.MaxUint16
	maxNameLen = math.MaxUint16
	maxOffset  = math.MaxUint32
)

// Entry is one file to store.
type Entry struct {
	Name    string
	Content []byte
}

// ProgressFunc is called after each entry is written.
type ProgressFunc func(done, total int, name string)

// Option configures a Writer.
type Option func(*Writer)

// WithClock sets the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// WithProgress sets a per-entry progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(w *Writer) {
		w.progress = fn
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// Writer builds store-only ZIP archives.
type Writer struct {
	now      func() time.Time
	progress ProgressFunc
	logger   zerolog.Logger
}

// NewWriter creates a writer. Timestamps default to the local wall clock.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		now:    time.Now,
		logger: logging.NewLogger("archive"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// centralRecord is what the central directory needs to know about an
// entry already written.
type centralRecord struct {
	name   []byte
	crc    uint32
	size   uint32
	offset uint32
	time   uint16
	date   uint16
}

// Build returns the complete archive for entries, in the given order.
// The token is checked before each entry.
func (w *Writer) Build(token *coordinator.Token, entries []Entry) ([]byte, error) {
	size, err := checkLimits(entries)
	if err != nil {
		return nil, err
	}

	out := newFieldBuilder(int(size))
	records := make([]centralRecord, 0, len(entries))

	for i, e := range entries {
		if token.Cancelled() {
			return nil, ErrCancelled
		}

		name := []byte(e.Name)
		dosTime, dosDate := DOSDateTime(w.now())
		rec := centralRecord{
			name:   name,
			crc:    CRC32(e.Content),
			size:   uint32(len(e.Content)),
			offset: uint32(out.len()),
			time:   dosTime,
			date:   dosDate,
		}

		out.u32(sigLocalHeader).
			u16(zipVersion).
			u16(flagUTF8).
			u16(methodStore).
			u16(dosTime).
			u16(dosDate).
			u32(rec.crc).
			u32(rec.size).
			u32(rec.size).
			u16(uint16(len(name))).
			u16(0).
			raw(name).
			raw(e.Content)

		records = append(records, rec)
		if w.progress != nil {
			w.progress(i+1, len(entries), e.Name)
		}
	}

	cdOffset := uint32(out.len())
	for _, rec := range records {
		out.u32(sigCentralHeader).
			u16(zipVersion).
			u16(zipVersion).
			u16(flagUTF8).
			u16(methodStore).
			u16(rec.time).
			u16(rec.date).
			u32(rec.crc).
			u32(rec.size).
			u32(rec.size).
			u16(uint16(len(rec.name))).
			u16(0).
			u16(0).
			u16(0).
			u16(0).
			u32(0).
			u32(rec.offset).
			raw(rec.name)
	}
	cdSize := uint32(out.len()) - cdOffset

	out.u32(sigEndOfCentral).
		u16(0).
		u16(0).
		u16(uint16(len(records))).
		u16(uint16(len(records))).
		u32(cdSize).
		u32(cdOffset).
		u16(0)

	data := out.bytes()
	archiveBytes.Observe(float64(len(data)))
	archiveEntriesTotal.Add(float64(len(records)))

	w.logger.Debug().
		Int("entries", len(records)).
		Int("bytes", len(data)).
		Msg("Archive built")

	return data, nil
}

// checkLimits returns the final archive size, or ErrArchiveTooLarge when
// any count, size or offset would not fit its field.
func checkLimits(entries []Entry) (uint64, error) {
	if len(entries) > maxEntries {
		return 0, fmt.Errorf("%w: %d entries (max %d)", ErrArchiveTooLarge, len(entries), maxEntries)
	}

	var local, central uint64
	for _, e := range entries {
		if len(e.Name) > maxNameLen {
			return 0, fmt.Errorf("%w: name of %d bytes", ErrArchiveTooLarge, len(e.Name))
		}
		if uint64(len(e.Content)) > maxOffset {
			return 0, fmt.Errorf("%w: entry %q is %d bytes", ErrArchiveTooLarge, e.Name, len(e.Content))
		}
		// The entry's own offset must fit as well as everything after it.
		if local > maxOffset {
			return 0, fmt.Errorf("%w: offset of %q exceeds 4 GiB", ErrArchiveTooLarge, e.Name)
		}
		local += uint64(localHeaderLen + len(e.Name) + len(e.Content))
		central += uint64(centralHeaderLen + len(e.Name))
	}
	if local > maxOffset || central > maxOffset {
		return 0, fmt.Errorf("%w: %d bytes of entries", ErrArchiveTooLarge, local)
	}
	return local + central + endOfCentralLen, nil
}
