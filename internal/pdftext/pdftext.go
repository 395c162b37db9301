// Package pdftext reads the source PDF's real text layer: page sizes in
// points and positioned per-line text, used for the highest-confidence
// highlight placement. Coordinates follow PDF user space (points,
// bottom-left origin).
package pdftext

import (
	"fmt"
	"os"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/geom"
)

// Rect is an axis-aligned region in point space, bottom-left origin.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Doc is an open PDF with lazily built per-page text indexes. All methods
// tolerate a nil receiver, which stands for "no text layer available".
type Doc struct {
	file   *os.File
	reader *pdflib.Reader
	pages  map[int]*pageIndex
	sizes  map[int]geom.PageSize
}

// Open opens a PDF from disk. The caller owns Close.
func Open(path string) (*Doc, error) {
	f, r, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &Doc{
		file:   f,
		reader: r,
		pages:  make(map[int]*pageIndex),
		sizes:  make(map[int]geom.PageSize),
	}, nil
}

func (d *Doc) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	return d.file.Close()
}

// PageCount returns the number of pages, 0 for a nil doc.
func (d *Doc) PageCount() int {
	if d == nil {
		return 0
	}
	return d.reader.NumPage()
}

// PageSize returns the page dimensions in points for a 1-based page
// number, resolving an inherited MediaBox when the page dict lacks one.
func (d *Doc) PageSize(pageNum int) (geom.PageSize, bool) {
	if d == nil || pageNum < 1 || pageNum > d.reader.NumPage() {
		return geom.PageSize{}, false
	}
	if size, ok := d.sizes[pageNum]; ok {
		return size, size.W > 0 && size.H > 0
	}
	size := readPageSize(d.reader.Page(pageNum))
	d.sizes[pageNum] = size
	return size, size.W > 0 && size.H > 0
}

func readPageSize(page pdflib.Page) (size geom.PageSize) {
	// Malformed page trees can make the parser panic; a missing size is
	// recoverable downstream, a crash is not.
	defer func() {
		if r := recover(); r != nil {
			size = geom.PageSize{}
		}
	}()
	if page.V.IsNull() {
		return geom.PageSize{}
	}
	v := page.V.Key("MediaBox")
	for parent := page.V.Key("Parent"); v.IsNull() && !parent.IsNull(); parent = parent.Key("Parent") {
		v = parent.Key("MediaBox")
	}
	if v.Kind() != pdflib.Array || v.Len() != 4 {
		return geom.PageSize{}
	}
	var coords [4]float64
	for i := 0; i < 4; i++ {
		el := v.Index(i)
		switch el.Kind() {
		case pdflib.Integer:
			coords[i] = float64(el.Int64())
		case pdflib.Real:
			coords[i] = el.Float64()
		default:
			return geom.PageSize{}
		}
	}
	w := coords[2] - coords[0]
	h := coords[3] - coords[1]
	if w <= 0 || h <= 0 {
		return geom.PageSize{}
	}
	return geom.PageSize{W: w, H: h}
}

// Search looks for the first candidate string present on the page and
// returns its covering rects (one per line touched), capped at six.
// Candidates are tried strictly in order; an empty result means the page
// text layer has none of them.
func (d *Doc) Search(pageNum int, candidates ...string) []Rect {
	if d == nil {
		return nil
	}
	idx := d.pageIndexFor(pageNum)
	if idx == nil || len(idx.lines) == 0 {
		return nil
	}
	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		if rects := idx.search(cand); len(rects) > 0 {
			return rects
		}
	}
	return nil
}

func (d *Doc) pageIndexFor(pageNum int) *pageIndex {
	if pageNum < 1 || pageNum > d.reader.NumPage() {
		return nil
	}
	if idx, ok := d.pages[pageNum]; ok {
		return idx
	}
	idx := buildPageIndex(d.reader.Page(pageNum))
	d.pages[pageNum] = idx
	return idx
}

const maxMatchRects = 6

// textLine is one baseline-grouped run of text with per-rune x extents.
type textLine struct {
	runes   []rune
	x0s     []float64 // left edge per rune
	x1s     []float64 // right edge per rune
	yTop    float64
	yBottom float64
}

type pageIndex struct {
	lines []textLine
}

func buildPageIndex(page pdflib.Page) (idx *pageIndex) {
	idx = &pageIndex{}
	defer func() {
		if r := recover(); r != nil {
			idx = &pageIndex{}
		}
	}()
	if page.V.IsNull() {
		return idx
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return idx
	}
	for _, row := range rows {
		if row == nil || len(row.Content) == 0 {
			continue
		}
		texts := make([]pdflib.Text, len(row.Content))
		copy(texts, row.Content)
		sort.Slice(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

		var line textLine
		for _, t := range texts {
			rs := []rune(t.S)
			if len(rs) == 0 {
				continue
			}
			// Per-glyph width is approximated by splitting the run's
			// advance evenly across its runes.
			step := t.W / float64(len(rs))
			for i, r := range rs {
				line.runes = append(line.runes, r)
				line.x0s = append(line.x0s, t.X+step*float64(i))
				line.x1s = append(line.x1s, t.X+step*float64(i+1))
			}
			top := t.Y + t.FontSize*0.8
			bottom := t.Y - t.FontSize*0.2
			if line.yTop == 0 && line.yBottom == 0 {
				line.yTop, line.yBottom = top, bottom
			} else {
				if top > line.yTop {
					line.yTop = top
				}
				if bottom < line.yBottom {
					line.yBottom = bottom
				}
			}
		}
		if len(line.runes) > 0 {
			idx.lines = append(idx.lines, line)
		}
	}
	return idx
}

func (idx *pageIndex) search(cand string) []Rect {
	needle := []rune(cand)

	// Within single lines first: exact, then with spaces ignored (CJK
	// extraction frequently drops or injects them). Every occurrence on
	// the page yields a rect, up to the cap.
	var rects []Rect
	for _, line := range idx.lines {
		from := 0
		for {
			at := indexRunes(line.runes[from:], needle)
			if at < 0 {
				break
			}
			at += from
			rects = append(rects, line.rect(at, at+len(needle)))
			if len(rects) >= maxMatchRects {
				return rects
			}
			from = at + len(needle)
		}
	}
	if len(rects) > 0 {
		return rects
	}

	stripped := stripSpaces(needle)
	if len(stripped) > 0 {
		for _, line := range idx.lines {
			hay, back := stripSpacesMapped(line.runes)
			from := 0
			for {
				at := indexRunes(hay[from:], stripped)
				if at < 0 {
					break
				}
				at += from
				rects = append(rects, line.rect(back[at], back[at+len(stripped)-1]+1))
				if len(rects) >= maxMatchRects {
					return rects
				}
				from = at + len(stripped)
			}
		}
		if len(rects) > 0 {
			return rects
		}
	}

	// Cross-line: concatenate the page (space-stripped) and map the match
	// back to one rect per covered line.
	return idx.searchAcrossLines(stripped)
}

func (idx *pageIndex) searchAcrossLines(needle []rune) []Rect {
	if len(needle) == 0 {
		return nil
	}
	type segment struct {
		line  int
		start int // page-rune offset of this line's first stripped rune
		back  []int
	}
	var page []rune
	var segs []segment
	for i, line := range idx.lines {
		hay, back := stripSpacesMapped(line.runes)
		if len(hay) == 0 {
			continue
		}
		segs = append(segs, segment{line: i, start: len(page), back: back})
		page = append(page, hay...)
	}
	at := indexRunes(page, needle)
	if at < 0 {
		return nil
	}
	end := at + len(needle)

	var rects []Rect
	for _, seg := range segs {
		segEnd := seg.start + len(seg.back)
		if seg.start >= end || segEnd <= at {
			continue
		}
		lo := max(at, seg.start) - seg.start
		hi := min(end, segEnd) - seg.start
		line := idx.lines[seg.line]
		rects = append(rects, line.rect(seg.back[lo], seg.back[hi-1]+1))
		if len(rects) >= maxMatchRects {
			break
		}
	}
	return rects
}

// rect covers the half-open rune range [start, end) of the line.
func (l *textLine) rect(start, end int) Rect {
	if start < 0 {
		start = 0
	}
	if end > len(l.runes) {
		end = len(l.runes)
	}
	return Rect{X0: l.x0s[start], Y0: l.yBottom, X1: l.x1s[end-1], Y1: l.yTop}
}

// indexRunes reports the rune offset of needle in haystack, -1 if absent.
func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if haystack[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func stripSpaces(rs []rune) []rune {
	out := make([]rune, 0, len(rs))
	for _, r := range rs {
		if r == ' ' || r == '　' || r == '\t' {
			continue
		}
		out = append(out, r)
	}
	return out
}

// stripSpacesMapped returns the space-free runes and, for each of them,
// the index of the original rune they came from.
func stripSpacesMapped(rs []rune) ([]rune, []int) {
	out := make([]rune, 0, len(rs))
	back := make([]int, 0, len(rs))
	for i, r := range rs {
		if r == ' ' || r == '　' || r == '\t' {
			continue
		}
		out = append(out, r)
		back = append(back, i)
	}
	return out, back
}
