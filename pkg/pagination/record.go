package pagination

import (
	"encoding/json"
	"strings"
)

// Record is one entry of a listing page. Raw keeps the full JSON object so
// later stages can read fields this package does not know about.
type Record struct {
	Raw json.RawMessage `json:"-"`

	CanonicalURL    string `json:"canonical_url"`
	CanonicalURLAlt string `json:"canonicalUrl"`
	URL             string `json:"url"`

	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`

	PostDate        string `json:"post_date"`
	PublishedAt     string `json:"published_at"`
	PublicationDate string `json:"publication_date"`
}

// parseRecord decodes one array element. Elements that are not objects
// yield a zero record without a key.
func parseRecord(raw json.RawMessage) Record {
	var r Record
	_ = json.Unmarshal(raw, &r)
	r.Raw = raw
	return r
}

// Key returns the record's canonical URL: canonical_url, then canonicalUrl,
// then url. Empty when none is set.
func (r Record) Key() string {
	for _, k := range []string{r.CanonicalURL, r.CanonicalURLAlt, r.URL} {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return ""
}

// Date returns the first non-empty listing date field.
func (r Record) Date() string {
	for _, d := range []string{r.PostDate, r.PublishedAt, r.PublicationDate} {
		if d = strings.TrimSpace(d); d != "" {
			return d
		}
	}
	return ""
}

// ListedItem is a deduplicated listing record with its position in the
// final sequence. Index is dense: 0..N-1.
type ListedItem struct {
	Index        int
	CanonicalKey string
	Record       Record
}
