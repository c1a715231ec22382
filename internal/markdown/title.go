package markdown

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// ExtractTitle returns the document title, falling back to the first h1
// heading when no title element exists. Best-effort: parse failures are
// treated as no title.
func ExtractTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if t := firstElementText(doc, "title"); t != "" {
		return t
	}
	return firstElementText(doc, "h1")
}

// firstElementText finds the first element with the given tag and returns its
// flattened text content.
func firstElementText(root *html.Node, tag string) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			var sb strings.Builder
			collectText(n, &sb)
			found = strings.TrimSpace(sb.String())
			return
		}
		for c := n.FirstChild; c != nil && found == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// headerSafe strips characters that would break a header value.
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, s)
}
