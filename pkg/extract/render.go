package extract

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Separator ends every rendered document so documents can be concatenated.
const Separator = "\n\n---\n\n"

var (
	crlf           = regexp.MustCompile(`\r\n`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
	trailingBlanks = regexp.MustCompile(`[ \t]+\n`)
)

// CleanupMarkdown normalizes line endings, collapses runs of blank lines,
// strips trailing spaces and ends the text with a single newline.
func CleanupMarkdown(s string) string {
	s = crlf.ReplaceAllString(s, "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	s = trailingBlanks.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s) + "\n"
}

// RenderOptions controls document layout.
type RenderOptions struct {
	// FrontMatter prepends a YAML block with title, date, author and url.
	FrontMatter bool
}

type frontMatter struct {
	Title  string `yaml:"title"`
	Date   string `yaml:"date,omitempty"`
	Author string `yaml:"author,omitempty"`
	URL    string `yaml:"url"`
}

// Render lays out doc as a Markdown section: optional front matter, the
// title heading, subtitle quote, a metadata list, the body and Separator.
func Render(doc Document, opts RenderOptions) ([]byte, error) {
	var b strings.Builder

	if opts.FrontMatter {
		fm, err := yaml.Marshal(frontMatter{
			Title:  doc.Title,
			Date:   doc.Date,
			Author: doc.Author,
			URL:    doc.URL,
		})
		if err != nil {
			return nil, err
		}
		b.WriteString("---\n")
		b.Write(fm)
		b.WriteString("---\n\n")
	}

	b.WriteString("# " + doc.Title + "\n\n")
	if doc.Subtitle != "" {
		b.WriteString("> " + doc.Subtitle + "\n\n")
	}
	if doc.Date != "" {
		b.WriteString("- Date: " + doc.Date + "\n")
	}
	if doc.Author != "" {
		b.WriteString("- Author: " + doc.Author + "\n")
	}
	b.WriteString("- Link: " + doc.URL + "\n\n")
	b.WriteString(doc.Body)
	b.WriteString(Separator)

	return []byte(b.String()), nil
}
