package locate

import (
	"math"
	"unicode"
)

// Minimum sub-box width as a fraction of the containing box, so a short
// match never collapses into an invisible sliver.
const minSubBoxFraction = 0.02

// charWeight estimates the relative rendered width of one character.
// Layout spans only carry a box for the whole run, so substring positions
// are interpolated through these weights: fullwidth CJK glyphs occupy a
// full cell, ASCII roughly half, whitespace less.
func charWeight(r rune) float64 {
	switch {
	case unicode.IsSpace(r):
		return 0.3
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return 1.0
	case r >= 0x3400 && r <= 0x4DBF: // CJK Extension A
		return 1.0
	case r >= 0x3000 && r <= 0x303F: // CJK Symbols and Punctuation
		return 1.0
	case r >= 0xFF00 && r <= 0xFFEF: // Fullwidth Forms
		return 1.0
	case r < 128:
		return 0.55
	default:
		return 0.8
	}
}

// substringBBox computes the pixel box of the rune range [start, end) of
// text, interpolated across bbox by cumulative character weight. Returns
// nil when the box or range is unusable.
func substringBBox(text string, bbox []float64, start, end int) []float64 {
	if len(bbox) != 4 {
		return nil
	}
	x0, y0, x1, y1 := bbox[0], bbox[1], bbox[2], bbox[3]
	if x1 <= x0 || y1 <= y0 {
		return nil
	}
	runes := []rune(text)
	if start < 0 || end <= start || end > len(runes) {
		return nil
	}

	prefix := make([]float64, len(runes)+1)
	for i, r := range runes {
		prefix[i+1] = prefix[i] + charWeight(r)
	}
	total := prefix[len(runes)]
	if total == 0 {
		total = float64(len(runes))
	}

	width := x1 - x0
	sx0 := x0 + width*(prefix[start]/total)
	sx1 := x0 + width*(prefix[end]/total)

	if minWidth := width * minSubBoxFraction; sx1-sx0 < minWidth {
		mid := (sx0 + sx1) / 2
		sx0 = math.Max(x0, mid-minWidth/2)
		sx1 = math.Min(x1, mid+minWidth/2)
	}

	return []float64{round2(sx0), round2(y0), round2(sx1), round2(y1)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
