package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

var skipped = map[string]bool{
	"script": true, "style": true, "nav": true, "header": true, "footer": true, "noscript": true,
}

// walk visits n depth-first. Returning false from fn skips n's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// extractText returns visible text, one line per text node with runs of
// spaces collapsed.
func extractText(root *html.Node) string {
	var lines []string
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && skipped[n.Data] {
			return false
		}
		if n.Type == html.TextNode {
			if line := strings.Join(strings.Fields(n.Data), " "); line != "" {
				lines = append(lines, line)
			}
		}
		return true
	})
	return strings.Join(lines, "\n")
}

// findContent picks the first <article>, else <main>, else a <div> whose
// class mentions "content".
func findContent(doc *html.Node) *html.Node {
	for _, match := range []func(*html.Node) bool{
		func(n *html.Node) bool { return n.Data == "article" },
		func(n *html.Node) bool { return n.Data == "main" },
		func(n *html.Node) bool { return n.Data == "div" && strings.Contains(attr(n, "class"), "content") },
	} {
		var found *html.Node
		walk(doc, func(n *html.Node) bool {
			if found != nil {
				return false
			}
			if n.Type == html.ElementNode && match(n) {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
