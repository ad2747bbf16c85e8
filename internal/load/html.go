package load

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/clausewise/internal/model"
)

// HTMLLoader extracts visible text from HTML pages
type HTMLLoader struct{}

func (l *HTMLLoader) Name() string      { return "html" }
func (l *HTMLLoader) Formats() []string { return []string{"html", "htm"} }

func (l *HTMLLoader) Load(ctx context.Context, src Source) (*model.Document, error) {
	root, err := html.Parse(src.Reader)
	if err != nil {
		return nil, corrupt(src, model.FormatHTML, fmt.Errorf("parse html: %w", err))
	}
	return &model.Document{Text: extractVisibleText(root)}, nil
}

// blockElements end a paragraph, so each becomes its own clause candidate
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true,
	"footer": true, "main": true, "aside": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "tr": true, "title": true, "address": true, "hr": true,
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\f\v\r]+`)
	excessBlank = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// extractVisibleText extracts text nodes from HTML, skipping scripts/styles.
// Block elements are separated by a blank line and <br> by a newline.
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template", "svg":
				return
			case "br":
				buf.WriteString("\n")
				return
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(inlineSpace.ReplaceAllString(strings.ReplaceAll(n.Data, "\n", " "), " "))
		}

		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			buf.WriteString("\n\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			buf.WriteString("\n\n")
		}
	}

	walk(n)

	lines := strings.Split(buf.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text := excessBlank.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
