// Package locate maps LLM-reported issue text back onto page geometry.
// It works through increasingly permissive tiers: the PDF's real text
// layer, span-level layout matches, line-level layout matches, and a
// fuzzy whole-line similarity fallback.
package locate

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/geom"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/layout"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/pdftext"
)

// Score thresholds and tier scores. Exact text-layer hits bypass scoring
// entirely; layout tiers compete on these values, strictly greater wins.
const (
	scoreSpanExact     = 1.0
	scoreSpanSubstring = 0.95
	scoreSpanStripped  = 0.9
	scoreSpanUnion     = 0.85
	scoreLineExact     = 0.85
	scoreLineStripped  = 0.75

	lineFallbackBelow  = 0.7
	fuzzyFallbackBelow = 0.55
	fuzzyAcceptAbove   = 0.55
)

// prefix length tried as a last resort in the text layer tier.
const needlePrefixRunes = 12

// FromTextLayer searches the PDF's extractable text for the needle, then
// the fallback sentence, then space-stripped variants, then a short
// needle prefix. A hit returns ready-to-use quadpoints (8 per matched
// rect, already point-space and bottom-left origin); this tier wins
// outright over any layout match.
func FromTextLayer(doc *pdftext.Doc, pageNum int, needle, fallback string) []float64 {
	var candidates []string
	if s := strings.TrimSpace(needle); s != "" {
		candidates = append(candidates, s)
	}
	if s := strings.TrimSpace(fallback); s != "" {
		candidates = append(candidates, s)
	}
	for _, c := range candidates {
		if strings.Contains(c, " ") {
			candidates = append(candidates, strings.ReplaceAll(c, " ", ""))
		}
	}
	rects := doc.Search(pageNum, candidates...)
	if len(rects) == 0 && needle != "" {
		if short := []rune(strings.TrimSpace(needle)); len(short) > needlePrefixRunes {
			rects = doc.Search(pageNum, string(short[:needlePrefixRunes]))
		}
	}
	if len(rects) == 0 {
		return nil
	}
	quad := make([]float64, 0, len(rects)*8)
	for _, r := range rects {
		quad = append(quad,
			round2(r.X0), round2(r.Y1),
			round2(r.X1), round2(r.Y1),
			round2(r.X0), round2(r.Y0),
			round2(r.X1), round2(r.Y0),
		)
	}
	return quad
}

// FromLayout runs the span, line, and fuzzy tiers over the page's layout
// index and converts the winning pixel bbox to point-space quadpoints.
// Returns nil when nothing clears the acceptance bar.
func FromLayout(idx *layout.Index, pageSize *geom.PageSize, needle, fallback string) []float64 {
	if idx.Empty() || pageSize == nil {
		return nil
	}
	canvas, ok := idx.PageSize()
	if !ok {
		return nil
	}

	var candidates []string
	if s := strings.TrimSpace(needle); s != "" {
		candidates = append(candidates, s)
	}
	if s := strings.TrimSpace(fallback); s != "" {
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil
	}

	var bestBBox []float64
	bestScore := 0.0

	// Span level: exact and substring matches within single spans, then
	// matches spanning several spans of one line.
	for _, cand := range candidates {
		for _, line := range idx.Lines() {
			bbox, score := matchSpans(line.Spans, cand)
			if score > bestScore {
				bestScore, bestBBox = score, bbox
			}
			if bestScore >= scoreSpanSubstring {
				break
			}
		}
		if bestScore >= scoreSpanSubstring {
			break
		}
	}

	// Line level: whole reconstructed line text.
	if bestScore < lineFallbackBelow {
	lineSearch:
		for _, cand := range candidates {
			candNorm := normalizeForMatch(cand)
			candStripped := stripAllSpace(candNorm)
			for _, line := range idx.Lines() {
				lineNorm := normalizeForMatch(line.Text)
				if at := runeIndex(lineNorm, candNorm); at >= 0 {
					if scoreLineExact > bestScore {
						bbox := substringBBox(lineNorm, line.BBox, at, at+runeLen(candNorm))
						if bbox == nil {
							bbox = line.BBox
						}
						bestScore, bestBBox = scoreLineExact, bbox
					}
					break lineSearch
				}
				if strings.Contains(stripAllSpace(lineNorm), candStripped) && candStripped != "" {
					if scoreLineStripped > bestScore {
						bestScore, bestBBox = scoreLineStripped, line.BBox
					}
					break
				}
			}
		}
	}

	// Fuzzy: best edit-distance similarity against every line, needle only.
	if bestScore < fuzzyFallbackBelow && strings.TrimSpace(needle) != "" {
		candNorm := normalizeForMatch(needle)
		for _, line := range idx.Lines() {
			ratio := similarity(candNorm, normalizeForMatch(line.Text))
			if ratio > bestScore {
				bestScore, bestBBox = ratio, line.BBox
			}
		}
		if bestScore < fuzzyAcceptAbove {
			bestBBox = nil
		}
	}

	if bestBBox == nil {
		return nil
	}

	// Layout boxes are top-left-origin pixels and the layout page_size is
	// the authoritative canvas, so no shrink correction applies.
	observed := [2]float64{canvas[0], canvas[1]}
	return geom.Quadpoints(bestBBox, pageSize, geom.Options{
		Origin:          geom.OriginTopLeft,
		Units:           geom.UnitsPx,
		ObservedMax:     &observed,
		ContentCoverage: 1.0,
	})
}

// matchSpans scores a candidate against one line's spans.
func matchSpans(spans []layout.IndexedSpan, cand string) ([]float64, float64) {
	if len(spans) == 0 || cand == "" {
		return nil, 0
	}
	candNorm := normalizeForMatch(cand)
	candStripped := stripAllSpace(candNorm)

	for _, span := range spans {
		contentNorm := normalizeForMatch(span.Content)
		if contentNorm == candNorm {
			return span.BBox, scoreSpanExact
		}
		if at := runeIndex(contentNorm, candNorm); at >= 0 {
			bbox := substringBBox(contentNorm, span.BBox, at, at+runeLen(candNorm))
			if bbox == nil {
				bbox = span.BBox
			}
			return bbox, scoreSpanSubstring
		}
		if candStripped != "" && strings.Contains(stripAllSpace(contentNorm), candStripped) {
			return span.BBox, scoreSpanStripped
		}
	}

	// Across spans: concatenate and union the bboxes of every span whose
	// character range overlaps the match.
	type spanRange struct {
		start, end int
		bbox       []float64
	}
	var full strings.Builder
	var ranges []spanRange
	runeCount := 0
	for _, span := range spans {
		n := runeLen(span.Content)
		if n == 0 {
			continue
		}
		ranges = append(ranges, spanRange{start: runeCount, end: runeCount + n, bbox: span.BBox})
		full.WriteString(span.Content)
		runeCount += n
	}
	fullNorm := normalizeForMatch(full.String())
	at := runeIndex(fullNorm, candNorm)
	if at < 0 {
		return nil, 0
	}
	end := at + runeLen(candNorm)
	var union []float64
	for _, r := range ranges {
		if r.start < end && r.end > at {
			union = unionBBox(union, r.bbox)
		}
	}
	if union == nil {
		return nil, 0
	}
	return union, scoreSpanUnion
}

func unionBBox(a, b []float64) []float64 {
	if len(b) != 4 {
		return a
	}
	if a == nil {
		return []float64{b[0], b[1], b[2], b[3]}
	}
	if b[0] < a[0] {
		a[0] = b[0]
	}
	if b[1] < a[1] {
		a[1] = b[1]
	}
	if b[2] > a[2] {
		a[2] = b[2]
	}
	if b[3] > a[3] {
		a[3] = b[3]
	}
	return a
}

// similarity is a normalized edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	la, lb := runeLen(a), runeLen(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// normalizeForMatch applies NFKC and flattens whitespace variants so
// extraction artifacts (ideographic spaces, stray newlines) do not block
// exact matching.
func normalizeForMatch(s string) string {
	s = norm.NFKC.String(s)
	s = strings.NewReplacer("　", " ", "\r", "", "\n", "", "\t", "").Replace(s)
	return strings.TrimSpace(s)
}

func stripAllSpace(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func runeLen(s string) int {
	return len([]rune(s))
}

// runeIndex returns the rune offset of needle within haystack, -1 if absent.
func runeIndex(haystack, needle string) int {
	if needle == "" {
		return -1
	}
	byteAt := strings.Index(haystack, needle)
	if byteAt < 0 {
		return -1
	}
	return runeLen(haystack[:byteAt])
}
