// Package extract turns a fetched post page into a Markdown document.
//
// HTMLExtractor reads the metadata (title, subtitle, author, date) from the
// page head, JSON-LD and headings, falling back to what the listing said,
// and converts the article body to GitHub-flavored Markdown. Render then
// lays the document out as one self-contained Markdown section.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent is wrapped when a page has no recognizable article body.
var ErrNoContent = errors.New("no article content found")

// ExtractionError reports a page that could not be turned into a document.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Document is an extracted post.
type Document struct {
	Title    string
	Subtitle string
	Author   string
	Date     string
	URL      string
	Body     string
}

// Fallback carries listing metadata used when the page lacks it.
type Fallback struct {
	Title string
	Date  string
}

// Extractor turns raw page bytes into a Document.
type Extractor interface {
	Extract(url string, page []byte, fallback Fallback) (Document, error)
}

// contentSelectors are tried in order; the first match is the body.
var contentSelectors = []string{"article", ".available-content", ".post-content", "main"}

// junkSelectors are removed from the body before conversion.
var junkSelectors = strings.Join([]string{
	"nav",
	"footer",
	`a[href*="subscribe"]`,
	`a[href*="signin"]`,
	"button",
	"form",
	`[role="button"]`,
	".share",
	".post-actions",
	".subscription-widget",
	".paywall",
	`[data-testid*="paywall"]`,
	`[data-testid*="subscription"]`,
}, ",")

// HTMLExtractor is the default Extractor. It is safe for concurrent use.
type HTMLExtractor struct {
	converter *md.Converter
}

// NewHTMLExtractor creates an extractor with GitHub-flavored Markdown
// output, embedded iframes as links and figures as image plus caption.
func NewHTMLExtractor() *HTMLExtractor {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		CodeBlockStyle:   "fenced",
		BulletListMarker: "-",
		EmDelimiter:      "_",
	})
	conv.Use(plugin.GitHubFlavored())
	conv.AddRules(iframeRule, figureRule)

	return &HTMLExtractor{converter: conv}
}

var iframeRule = md.Rule{
	Filter: []string{"iframe"},
	Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
		src, _ := selec.Attr("src")
		if src = strings.TrimSpace(src); src == "" {
			return md.String("\n\n")
		}
		return md.String("\n\n[Embedded content](" + src + ")\n\n")
	},
}

var figureRule = md.Rule{
	Filter: []string{"figure"},
	Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
		var b strings.Builder
		if img := selec.Find("img").First(); img.Length() > 0 {
			alt, _ := img.Attr("alt")
			src, _ := img.Attr("src")
			alt = strings.ReplaceAll(strings.TrimSpace(alt), "$", "")
			fmt.Fprintf(&b, "![%s](%s)\n", alt, src)
		}
		if caption := collapse(selec.Find("figcaption").First().Text()); caption != "" {
			fmt.Fprintf(&b, "\n_%s_\n", caption)
		}
		return md.String("\n\n" + b.String() + "\n\n")
	},
}

// Extract parses page and returns its document. It fails with an
// *ExtractionError wrapping ErrNoContent when no body element exists.
func (x *HTMLExtractor) Extract(url string, page []byte, fallback Fallback) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Document{}, &ExtractionError{URL: url, Err: err}
	}

	content := findContent(doc)
	if content == nil {
		return Document{}, &ExtractionError{URL: url, Err: ErrNoContent}
	}

	ld := parseJSONLD(doc)
	out := Document{
		Title:    firstNonEmpty(collapse(doc.Find("h1").First().Text()), metaContent(doc, `meta[property="og:title"]`), fallback.Title, "Untitled"),
		Subtitle: firstNonEmpty(collapse(doc.Find("h3").First().Text()), metaContent(doc, `meta[property="og:description"]`)),
		Author:   firstNonEmpty(metaContent(doc, `meta[name="author"]`), ld.authors()),
		Date: firstNonEmpty(ld.field("datePublished"), ld.field("dateCreated"),
			metaContent(doc, `meta[property="article:published_time"]`), attr(doc.Find("time").First(), "datetime"),
			fallback.Date),
		URL: url,
	}

	// Render writes the heading and subtitle itself.
	content.Find("h1").First().Remove()
	if h3 := content.Find("h3").First(); h3.Length() > 0 && collapse(h3.Text()) == out.Subtitle {
		h3.Remove()
	}
	content.Find(junkSelectors).Remove()
	out.Body = CleanupMarkdown(x.converter.Convert(content))

	return out, nil
}

func findContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found.Clone()
		}
	}
	return nil
}

// jsonLD is the first JSON-LD object whose @type names an article.
type jsonLD map[string]any

func parseJSONLD(doc *goquery.Document) jsonLD {
	var found jsonLD
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return true
		}
		candidates, ok := v.([]any)
		if !ok {
			candidates = []any{v}
		}
		for _, c := range candidates {
			obj, ok := c.(map[string]any)
			if ok && isArticleType(obj["@type"]) {
				found = obj
				return false
			}
		}
		return true
	})
	return found
}

func isArticleType(t any) bool {
	switch v := t.(type) {
	case string:
		// BlogPosting and SocialMediaPosting are Article subtypes.
		v = strings.ToLower(v)
		return strings.Contains(v, "article") || strings.HasSuffix(v, "posting")
	case []any:
		for _, x := range v {
			if isArticleType(x) {
				return true
			}
		}
	}
	return false
}

func (ld jsonLD) field(key string) string {
	s, _ := ld[key].(string)
	return strings.TrimSpace(s)
}

// authors joins author names; the field may be a string, an object or a
// list of objects.
func (ld jsonLD) authors() string {
	switch v := ld["author"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		name, _ := v["name"].(string)
		return strings.TrimSpace(name)
	case []any:
		var names []string
		for _, a := range v {
			if obj, ok := a.(map[string]any); ok {
				if name, _ := obj["name"].(string); strings.TrimSpace(name) != "" {
					names = append(names, strings.TrimSpace(name))
				}
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	return attr(doc.Find(selector).First(), "content")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
