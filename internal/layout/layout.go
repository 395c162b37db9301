// Package layout reads the extraction service's layout artifact: a
// per-page tree of para_blocks -> lines -> spans, each carrying text and
// a pixel-space bbox. The artifact is optional; every lookup degrades to
// "no match" when it, or a page, is absent.
package layout

import (
	"strings"

	"github.com/bytedance/sonic"
)

// Span is a run of text with one bbox, the smallest layout unit.
type Span struct {
	Content string    `json:"content"`
	BBox    []float64 `json:"bbox"`
}

// Line groups spans sharing a baseline.
type Line struct {
	Spans []Span    `json:"spans"`
	BBox  []float64 `json:"bbox"`
}

// Block is a paragraph-like grouping of lines.
type Block struct {
	Lines []Line    `json:"lines"`
	BBox  []float64 `json:"bbox"`
}

// Page is one page of the layout artifact. PageIdx is 0-based and
// PageSize is the rendered pixel canvas [width, height].
type Page struct {
	PageIdx    int       `json:"page_idx"`
	PageSize   []float64 `json:"page_size"`
	ParaBlocks []Block   `json:"para_blocks"`
}

// Document is the root of the layout artifact.
type Document struct {
	PDFInfo []Page `json:"pdf_info"`
}

// Parse decodes a layout artifact. Unknown fields are ignored; a payload
// without pdf_info yields an empty document rather than an error.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Page returns the page for a 1-based page number, or nil.
func (d *Document) Page(pageNum int) *Page {
	if d == nil || pageNum < 1 {
		return nil
	}
	for i := range d.PDFInfo {
		if d.PDFInfo[i].PageIdx == pageNum-1 {
			return &d.PDFInfo[i]
		}
	}
	return nil
}

// CanvasSizes returns the declared pixel canvas per 1-based page number.
// These are authoritative full-page sizes, not content extents.
func (d *Document) CanvasSizes() map[int][2]float64 {
	if d == nil {
		return nil
	}
	sizes := make(map[int][2]float64)
	for _, p := range d.PDFInfo {
		if len(p.PageSize) != 2 || p.PageSize[0] <= 0 || p.PageSize[1] <= 0 {
			continue
		}
		sizes[p.PageIdx+1] = [2]float64{p.PageSize[0], p.PageSize[1]}
	}
	if len(sizes) == 0 {
		return nil
	}
	return sizes
}

// IndexedSpan is a span with a usable bbox, ready for matching.
type IndexedSpan struct {
	Content string
	BBox    []float64
}

// IndexedLine is a line with its text reconstructed from its spans.
type IndexedLine struct {
	Text  string
	BBox  []float64
	Spans []IndexedSpan
}

// Index is a read-only, per-page view of the layout tree used by the
// text locator. A nil or missing page produces an empty index whose
// lookups all miss.
type Index struct {
	lines    []IndexedLine
	pageSize [2]float64
	hasPage  bool
}

// NewIndex builds the index for a 1-based page number.
func NewIndex(doc *Document, pageNum int) *Index {
	idx := &Index{}
	page := doc.Page(pageNum)
	if page == nil {
		return idx
	}
	if len(page.PageSize) == 2 && page.PageSize[0] > 0 && page.PageSize[1] > 0 {
		idx.pageSize = [2]float64{page.PageSize[0], page.PageSize[1]}
		idx.hasPage = true
	}
	for _, b := range page.ParaBlocks {
		for _, ln := range b.Lines {
			var sb strings.Builder
			var spans []IndexedSpan
			for _, s := range ln.Spans {
				sb.WriteString(s.Content)
				if s.Content != "" && len(s.BBox) == 4 {
					spans = append(spans, IndexedSpan{Content: s.Content, BBox: s.BBox})
				}
			}
			bbox := ln.BBox
			if len(bbox) != 4 {
				bbox = b.BBox
			}
			text := sb.String()
			if text == "" || len(bbox) != 4 {
				continue
			}
			idx.lines = append(idx.lines, IndexedLine{Text: text, BBox: bbox, Spans: spans})
		}
	}
	return idx
}

// Lines returns the page's lines in document order.
func (ix *Index) Lines() []IndexedLine {
	if ix == nil {
		return nil
	}
	return ix.lines
}

// PageSize returns the pixel canvas size declared for the page.
func (ix *Index) PageSize() ([2]float64, bool) {
	if ix == nil {
		return [2]float64{}, false
	}
	return ix.pageSize, ix.hasPage
}

// Empty reports whether the index has no searchable content.
func (ix *Index) Empty() bool {
	return ix == nil || len(ix.lines) == 0
}
