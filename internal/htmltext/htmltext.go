// Package htmltext flattens CMS rich-text bodies into plain text the
// suggestion engine can analyze.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// elements whose text content is markup plumbing, not copy.
var skipElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// elements that end a run of inline text.
var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "tr": {}, "td": {}, "th": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"blockquote": {}, "pre": {}, "section": {}, "article": {}, "header": {},
	"footer": {}, "table": {}, "ul": {}, "ol": {},
}

// Flatten extracts the visible text from an HTML fragment, separating
// block-level elements with spaces and collapsing runs of whitespace.
// Input that fails to parse is returned unchanged.
func Flatten(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skipElements[n.Data]; skip {
				return
			}
			if _, block := blockElements[n.Data]; block {
				buf.WriteByte(' ')
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			if _, block := blockElements[n.Data]; block {
				buf.WriteByte(' ')
			}
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(buf.String()), " ")
}
