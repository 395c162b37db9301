package mineru

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StripHTML flattens an HTML fragment to its visible text. Extraction
// artifacts embed tables and styled runs as raw HTML inside markdown and
// JSON text fields; only the text matters for review.
func StripHTML(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return collapseSpace(fragment)
	}
	nodes, err := parseNodes(fragment)
	if err != nil {
		return collapseSpace(fragment)
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "td", "th", "li", "tr", "p", "br", "div":
				if buf.Len() > 0 {
					buf.WriteByte(' ')
				}
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	return collapseSpace(buf.String())
}

// parseNodes parses the fragment as a full document, except when it
// carries table cells or rows with no surrounding <table>: document
// parsing foster-parents their text and drops the cell elements, so the
// separators between cells are lost. Those fragments parse in a table
// body context instead.
func parseNodes(fragment string) ([]*html.Node, error) {
	lower := strings.ToLower(fragment)
	bareCells := !strings.Contains(lower, "<table") &&
		(strings.Contains(lower, "<td") || strings.Contains(lower, "<tr") || strings.Contains(lower, "<th"))
	if bareCells {
		ctx := &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}
		return html.ParseFragment(strings.NewReader(fragment), ctx)
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	return []*html.Node{doc}, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
