package mineru

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/model"
)

// MarkdownParagraphs is the text-only fallback for documents whose JSON
// artifact yields no usable paragraphs: the rendered markdown artifact is
// parsed and each top-level block becomes a paragraph. No bbox or page
// information survives this path, so every paragraph lands on page 1 and
// geometry comes from later text-layer or layout matching.
func MarkdownParagraphs(src []byte) []model.Paragraph {
	if len(src) == 0 {
		return nil
	}
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var paragraphs []model.Paragraph
	add := func(t string) {
		t = strings.TrimSpace(RepairMojibake(t))
		if t == "" {
			return
		}
		paragraphs = append(paragraphs, model.Paragraph{Content: t, PageNum: 1})
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			add(string(node.Text(src)))
		case *ast.HTMLBlock:
			add(StripHTML(blockSource(node, src)))
		default:
			add(blockText(n, src))
		}
	}
	return paragraphs
}

// blockText gets the text content of a goldmark AST node, including
// nested inlines.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	// A parsed block carries its text either in Lines (raw blocks like
	// fenced code) or in inline children (paragraphs, text blocks), never
	// meaningfully in both; reading both duplicates the content.
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(blockText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

func blockSource(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.String()
}
