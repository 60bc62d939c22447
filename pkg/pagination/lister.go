package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/logging"
	"github.com/Sternrassler/archive-exporter/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// ErrInvalidPage is wrapped when a page body is not valid JSON.
var ErrInvalidPage = errors.New("invalid listing page")

// ListingError reports a listing that could not be completed. It is fatal
// to an export run.
type ListingError struct {
	Offset int
	Err    error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing failed at offset %d: %v", e.Offset, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// Fetcher fetches one URL through the resilient transport.
// *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, accept string) ([]byte, error)
}

// Config holds lister configuration.
type Config struct {
	// ListingURL is the collection endpoint; offset and limit are appended.
	ListingURL string

	// PageSize is the limit sent with every page request.
	PageSize int

	// PageDelay is the minimum spacing between page requests.
	PageDelay time.Duration

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default page size and delay for listingURL.
func DefaultConfig(listingURL string) Config {
	return Config{
		ListingURL: listingURL,
		PageSize:   50,
		PageDelay:  120 * time.Millisecond,
	}
}

// Lister walks a paginated listing.
type Lister struct {
	fetcher Fetcher
	config  Config
	base    *url.URL
	pacer   *ratelimit.Pacer
	logger  zerolog.Logger
}

// NewLister creates a lister. It fails when the listing URL does not parse.
func NewLister(fetcher Fetcher, config Config) (*Lister, error) {
	if config.ListingURL == "" {
		return nil, fmt.Errorf("listing url is required")
	}
	base, err := url.Parse(config.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	if config.PageDelay < 0 {
		config.PageDelay = 0
	}

	logger := logging.NewLogger("lister")
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Lister{
		fetcher: fetcher,
		config:  config,
		base:    base,
		pacer:   ratelimit.NewPacer("listing", config.PageDelay, 1, logger),
		logger:  logger,
	}, nil
}

// ListAll fetches every page, then dedupes and re-indexes the records.
// A cancelled token stops before the next page; the pages fetched so far
// are still returned.
func (l *Lister) ListAll(ctx context.Context, token *coordinator.Token) ([]ListedItem, error) {
	start := time.Now()
	var records []Record
	offset := 0

	for !token.Cancelled() {
		if err := l.pacer.Wait(ctx); err != nil {
			return nil, &ListingError{Offset: offset, Err: err}
		}

		pageURL := l.pageURL(offset)
		l.logger.Debug().
			Str("url", pageURL).
			Int("offset", offset).
			Int("limit", l.config.PageSize).
			Msg("Fetching listing page")

		body, err := l.fetcher.Fetch(ctx, pageURL, "application/json")
		if err != nil {
			return nil, &ListingError{Offset: offset, Err: err}
		}

		page, ok, err := decodePage(body)
		if err != nil {
			return nil, &ListingError{Offset: offset, Err: err}
		}
		if !ok || len(page) == 0 {
			break
		}

		for _, raw := range page {
			records = append(records, parseRecord(raw))
		}
		offset += len(page)

		if len(page) < l.config.PageSize {
			break
		}
	}

	items := Dedupe(records, l.base)

	l.logger.Info().
		Int("records", len(records)).
		Int("items", len(items)).
		Bool("cancelled", token.Cancelled()).
		Dur("duration", time.Since(start)).
		Msg("Listing complete")

	return items, nil
}

// pageURL appends offset and limit to the listing URL, keeping any query
// parameters it already carries.
func (l *Lister) pageURL(offset int) string {
	u := *l.base
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(l.config.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// decodePage reports ok=false for valid JSON that is not an array.
func decodePage(body []byte) ([]json.RawMessage, bool, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	if _, isArray := v.([]any); !isArray {
		return nil, false, nil
	}

	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	return page, true, nil
}

// Dedupe drops records without a canonical key and later duplicates, then
// assigns dense indices in listing order. Relative keys are resolved
// against base when it is non-nil.
func Dedupe(records []Record, base *url.URL) []ListedItem {
	seen := make(map[string]struct{}, len(records))
	items := make([]ListedItem, 0, len(records))

	for _, r := range records {
		key := r.Key()
		if key == "" {
			continue
		}
		if base != nil {
			if ref, err := url.Parse(key); err == nil {
				key = base.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, ListedItem{
			Index:        len(items),
			CanonicalKey: key,
			Record:       r,
		})
	}
	return items
}
