// Package testutil provides a mock newsletter source for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ListingPath is the path the mock serves the paginated listing on.
const ListingPath = "/api/v1/archive"

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Post is one article served by the mock.
type Post struct {
	Slug     string
	Title    string
	Subtitle string
	Author   string
	Date     string
	Body     string
}

// MockSource is a configurable mock of a newsletter archive: a paginated
// JSON listing plus one HTML page per post.
type MockSource struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	scripted map[string][]MockResponse
	records  []map[string]any
	posts    map[string]Post
	latency  time.Duration

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockSource creates and starts a mock source.
func NewMockSource() *MockSource {
	mock := &MockSource{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		scripted:   make(map[string][]MockResponse),
		posts:      make(map[string]Post),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()

		var scripted *MockResponse
		if queue := mock.scripted[r.URL.Path]; len(queue) > 0 {
			scripted = &queue[0]
			mock.scripted[r.URL.Path] = queue[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if scripted != nil {
			writeResponse(w, *scripted)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// ListingURL returns the listing endpoint with the query a real archive
// uses; offset and limit are added by the caller.
func (m *MockSource) ListingURL() string {
	return m.server.URL + ListingPath + "?sort=new&search="
}

// PostURL returns the canonical URL of the post with slug.
func (m *MockSource) PostURL(slug string) string {
	return m.server.URL + "/p/" + slug
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSource) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Script queues responses for path. They are served in order before the
// path falls back to its handler.
func (m *MockSource) Script(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[path] = append(m.scripted[path], responses...)
}

// SetLatency makes every post page wait a random time up to max.
func (m *MockSource) SetLatency(max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = max
}

// AddPost lists p and serves its page under /p/<slug>.
func (m *MockSource) AddPost(p Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.Slug] = p
	m.records = append(m.records, map[string]any{
		"slug":          p.Slug,
		"title":         p.Title,
		"subtitle":      p.Subtitle,
		"canonical_url": m.server.URL + "/p/" + p.Slug,
		"post_date":     p.Date,
	})
}

// AddPosts adds n generated posts with slugs post-000, post-001, ...
func (m *MockSource) AddPosts(n int) {
	for i := 0; i < n; i++ {
		m.AddPost(Post{
			Slug:  fmt.Sprintf("post-%03d", i),
			Title: fmt.Sprintf("Post %03d", i),
			Date:  "2024-01-02T03:04:05Z",
			Body:  fmt.Sprintf("<p>Body of post %03d.</p>", i),
		})
	}
}

// AddRecord appends a raw listing record without serving a page for it.
func (m *MockSource) AddRecord(record map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSource) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockSource) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

func (m *MockSource) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == ListingPath {
		m.listingHandler(w, r)
		return
	}

	slug, ok := strings.CutPrefix(r.URL.Path, "/p/")
	m.mu.RLock()
	post, exists := m.posts[slug]
	latency := m.latency
	m.mu.RUnlock()

	if !ok || !exists {
		writeResponse(w, NewNotFoundResponse())
		return
	}
	if latency > 0 {
		time.Sleep(rand.N(latency))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(PostHTML(post)))
}

func (m *MockSource) listingHandler(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	m.mu.RLock()
	var page []map[string]any
	if offset < len(m.records) {
		end := min(offset+limit, len(m.records))
		page = m.records[offset:end]
	}
	body, _ := json.Marshal(append([]map[string]any{}, page...))
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// PostHTML renders a post the way a newsletter platform does: metadata in
// the head, the article body inside <article>.
func PostHTML(p Post) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head>")
	fmt.Fprintf(&b, `<meta property="og:title" content="%s">`, html.EscapeString(p.Title))
	if p.Author != "" {
		fmt.Fprintf(&b, `<meta name="author" content="%s">`, html.EscapeString(p.Author))
	}
	if p.Date != "" {
		fmt.Fprintf(&b, `<script type="application/ld+json">{"@type":"NewsArticle","datePublished":%q}</script>`, p.Date)
	}
	b.WriteString("</head><body><nav>Home Archive About</nav><article>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(p.Title))
	if p.Subtitle != "" {
		fmt.Fprintf(&b, "<h3>%s</h3>", html.EscapeString(p.Subtitle))
	}
	b.WriteString(`<div class="available-content">`)
	b.WriteString(p.Body)
	b.WriteString(`</div><div class="subscription-widget">Subscribe now</div></article></body></html>`)
	return b.String()
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       "Too Many Requests",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a response with a 5xx status.
func NewServerErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       http.StatusText(status),
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       "Not Found",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}
