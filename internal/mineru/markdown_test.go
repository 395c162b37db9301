package mineru

import "testing"

func TestMarkdownParagraphs(t *testing.T) {
	src := []byte(`# 合同标题

第一段正文内容。

第二段正文，
跨了两行。

- 列表项甲
- 列表项乙
`)
	paras := MarkdownParagraphs(src)
	if len(paras) < 3 {
		t.Fatalf("expected at least 3 paragraphs, got %d: %+v", len(paras), paras)
	}
	if paras[0].Content != "合同标题" {
		t.Errorf("heading paragraph = %q", paras[0].Content)
	}
	if paras[1].Content != "第一段正文内容。" {
		t.Errorf("first body paragraph = %q", paras[1].Content)
	}
	for _, p := range paras {
		if p.PageNum != 1 {
			t.Errorf("markdown paragraph on page %d, want 1", p.PageNum)
		}
		if p.BBox != nil {
			t.Errorf("markdown paragraph carries bbox %v", p.BBox)
		}
	}
}

func TestMarkdownParagraphs_HTMLTable(t *testing.T) {
	src := []byte(`<table><tr><td>甲方</td><td>乙方</td></tr></table>
`)
	paras := MarkdownParagraphs(src)
	if len(paras) != 1 {
		t.Fatalf("expected 1 paragraph, got %d: %+v", len(paras), paras)
	}
	got := paras[0].Content
	if got != "甲方 乙方" {
		t.Errorf("table text = %q", got)
	}
}

func TestMarkdownParagraphs_NoDuplicatedText(t *testing.T) {
	paras := MarkdownParagraphs([]byte("plain paragraph text\n"))
	if len(paras) != 1 {
		t.Fatalf("expected 1 paragraph, got %d: %+v", len(paras), paras)
	}
	if paras[0].Content != "plain paragraph text" {
		t.Errorf("paragraph = %q, want the source text exactly once", paras[0].Content)
	}
}

func TestMarkdownParagraphs_CodeBlock(t *testing.T) {
	// Raw blocks have no inline children; their text comes from Lines.
	paras := MarkdownParagraphs([]byte("```\n付款期限=30天\n```\n"))
	if len(paras) != 1 {
		t.Fatalf("expected 1 paragraph, got %d: %+v", len(paras), paras)
	}
	if paras[0].Content != "付款期限=30天" {
		t.Errorf("code block paragraph = %q", paras[0].Content)
	}
}

func TestMarkdownParagraphs_Empty(t *testing.T) {
	if paras := MarkdownParagraphs(nil); paras != nil {
		t.Errorf("expected nil for empty source, got %+v", paras)
	}
	if paras := MarkdownParagraphs([]byte("\n\n\n")); len(paras) != 0 {
		t.Errorf("expected no paragraphs for blank source, got %+v", paras)
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<p>你好</p>", "你好"},
		{"plain text", "plain text"},
		{"<td>a</td><td>b</td>", "a b"},
		{"<tr><td>x</td><td>y</td></tr><tr><td>z</td></tr>", "x y z"},
		{"<table><tr><td>甲方</td><td>乙方</td></tr></table>", "甲方 乙方"},
		{"<script>alert(1)</script>visible", "visible"},
		{"  spaced   out  ", "spaced out"},
	}
	for _, c := range cases {
		if got := StripHTML(c.in); got != c.want {
			t.Errorf("StripHTML(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
