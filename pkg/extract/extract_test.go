package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/archive-exporter/internal/testutil"
)

func TestHTMLExtractor_Metadata(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		fallback     Fallback
		wantTitle    string
		wantSubtitle string
		wantAuthor   string
		wantDate     string
	}{
		{
			name: "headings and json-ld",
			html: `<html><head>
				<meta property="og:title" content="OG title">
				<meta property="og:description" content="OG description">
				<script type="application/ld+json">{"@type":"NewsArticle","datePublished":"2024-02-01T08:00:00Z","author":[{"name":"Ada"},{"name":"Grace"}]}</script>
				</head><body><article><h1>  Real
				Title </h1><h3>Sub</h3><p>Body</p></article></body></html>`,
			wantTitle:    "Real Title",
			wantSubtitle: "Sub",
			wantAuthor:   "Ada, Grace",
			wantDate:     "2024-02-01T08:00:00Z",
		},
		{
			name: "og fallbacks and meta time",
			html: `<html><head>
				<meta property="og:title" content="OG title">
				<meta property="og:description" content="OG description">
				<meta name="author" content="Lenny">
				<meta property="article:published_time" content="2023-12-24">
				</head><body><main><p>Body</p></main></body></html>`,
			wantTitle:    "OG title",
			wantSubtitle: "OG description",
			wantAuthor:   "Lenny",
			wantDate:     "2023-12-24",
		},
		{
			name:      "time element then listing fallback",
			html:      `<html><body><div class="post-content"><time datetime="2022-05-05">May 5</time><p>x</p></div></body></html>`,
			fallback:  Fallback{Title: "Listing title", Date: "2020-01-01"},
			wantTitle: "Listing title",
			wantDate:  "2022-05-05",
		},
		{
			name:      "listing date when page has none",
			html:      `<html><body><div class="available-content"><p>x</p></div></body></html>`,
			fallback:  Fallback{Date: "2020-01-01"},
			wantTitle: "Untitled",
			wantDate:  "2020-01-01",
		},
		{
			name: "json-ld author object in graph list",
			html: `<html><head>
				<script type="application/ld+json">[{"@type":"WebSite"},{"@type":["BlogPosting"],"dateCreated":"2021-07-07","author":{"name":"Sam"}}]</script>
				</head><body><article><p>x</p></article></body></html>`,
			wantTitle:  "Untitled",
			wantAuthor: "Sam",
			wantDate:   "2021-07-07",
		},
		{
			name: "json-ld without an article type ignored",
			html: `<html><head>
				<script type="application/ld+json">{"@type":"WebSite","datePublished":"2019-01-01","author":"Site"}</script>
				</head><body><article><p>x</p></article></body></html>`,
			wantTitle: "Untitled",
		},
		{
			name: "broken json-ld ignored",
			html: `<html><head>
				<script type="application/ld+json">{not json</script>
				</head><body><article><h1>T</h1></article></body></html>`,
			wantTitle: "T",
		},
	}

	x := NewHTMLExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := x.Extract("https://example.com/p/x", []byte(tt.html), tt.fallback)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if doc.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", doc.Title, tt.wantTitle)
			}
			if doc.Subtitle != tt.wantSubtitle {
				t.Errorf("Subtitle = %q, want %q", doc.Subtitle, tt.wantSubtitle)
			}
			if doc.Author != tt.wantAuthor {
				t.Errorf("Author = %q, want %q", doc.Author, tt.wantAuthor)
			}
			if doc.Date != tt.wantDate {
				t.Errorf("Date = %q, want %q", doc.Date, tt.wantDate)
			}
			if doc.URL != "https://example.com/p/x" {
				t.Errorf("URL = %q", doc.URL)
			}
		})
	}
}

func TestHTMLExtractor_Body(t *testing.T) {
	page := `<html><body><nav>Home</nav><article>
		<p>Hello <strong>world</strong>, see <a href="https://example.com/more">more</a>.</p>
		<iframe src="https://www.youtube.com/embed/abc"></iframe>
		<figure><img src="https://cdn.example.com/chart.png" alt="Chart $1"><figcaption> Growth by quarter </figcaption></figure>
		<ul><li>one</li><li>two</li></ul>
		<div class="subscription-widget">Subscribe now</div>
		<a href="https://example.com/subscribe">Join</a>
		<button>Share</button>
		<div class="paywall">Paid only</div>
		</article></body></html>`

	doc, err := NewHTMLExtractor().Extract("https://example.com/p/body", []byte(page), Fallback{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	wantContains := []string{
		"Hello **world**",
		"[more](https://example.com/more)",
		"[Embedded content](https://www.youtube.com/embed/abc)",
		"![Chart 1](https://cdn.example.com/chart.png)",
		"_Growth by quarter_",
		"- one",
		"- two",
	}
	for _, want := range wantContains {
		if !strings.Contains(doc.Body, want) {
			t.Errorf("Body missing %q:\n%s", want, doc.Body)
		}
	}

	wantMissing := []string{"Subscribe now", "Join", "Share", "Paid only", "Home"}
	for _, junk := range wantMissing {
		if strings.Contains(doc.Body, junk) {
			t.Errorf("Body still contains %q:\n%s", junk, doc.Body)
		}
	}

	if !strings.HasSuffix(doc.Body, "\n") || strings.HasSuffix(doc.Body, "\n\n") {
		t.Errorf("Body should end with exactly one newline: %q", doc.Body)
	}
}

func TestHTMLExtractor_NoContent(t *testing.T) {
	_, err := NewHTMLExtractor().Extract("https://example.com/p/empty", []byte(`<html><body><div>nothing</div></body></html>`), Fallback{})

	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("error = %v, want ErrNoContent", err)
	}
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("error %T is not *ExtractionError", err)
	}
	if ee.URL != "https://example.com/p/empty" {
		t.Errorf("URL = %q", ee.URL)
	}
}

func TestHTMLExtractor_MockPost(t *testing.T) {
	post := testutil.Post{
		Slug:     "intro",
		Title:    "Intro",
		Subtitle: "Where it starts",
		Author:   "Lenny",
		Date:     "2024-01-02T03:04:05Z",
		Body:     "<p>First paragraph.</p>",
	}

	doc, err := NewHTMLExtractor().Extract("https://example.com/p/intro", []byte(testutil.PostHTML(post)), Fallback{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if doc.Title != "Intro" || doc.Subtitle != "Where it starts" || doc.Author != "Lenny" || doc.Date != post.Date {
		t.Errorf("Extract() = %+v", doc)
	}
	if !strings.Contains(doc.Body, "First paragraph.") {
		t.Errorf("Body = %q", doc.Body)
	}
	if strings.Contains(doc.Body, "Subscribe now") {
		t.Errorf("Body kept the subscription widget: %q", doc.Body)
	}
}

func TestHTMLExtractor_HeadingNotRepeated(t *testing.T) {
	page := `<html><body><article><h1>Title</h1><h3>Sub</h3><p>Text</p><h3>Section</h3></article></body></html>`

	doc, err := NewHTMLExtractor().Extract("https://example.com/p/h", []byte(page), Fallback{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if strings.Contains(doc.Body, "# Title") || strings.Contains(doc.Body, "Sub\n") {
		t.Errorf("Body repeats heading or subtitle:\n%s", doc.Body)
	}
	if !strings.Contains(doc.Body, "### Section") {
		t.Errorf("Body lost a section heading:\n%s", doc.Body)
	}
}
