// Package geom converts extraction-space bounding boxes into PDF
// annotation quadpoints: 8 numbers in point space, bottom-left origin,
// canonical corner order (upper-left, upper-right, lower-left,
// lower-right).
package geom

import "math"

// Origin names the corner a bbox coordinate space is measured from.
type Origin string

const (
	OriginTopLeft    Origin = "top-left"
	OriginBottomLeft Origin = "bottom-left"
)

// Units describes the unit system of an input bbox.
type Units string

const (
	UnitsAuto Units = "auto"
	UnitsPx   Units = "px"
	UnitsPt   Units = "pt"
)

// PageSize is the true page dimensions in PDF points.
type PageSize struct {
	W float64
	H float64
}

// Options controls how a raw bbox is interpreted.
type Options struct {
	Origin Origin
	Units  Units
	// ObservedMax is the maximum (x, y) seen in the bbox coordinate space
	// for the page: either the known pixel canvas size, or the content
	// extent when the canvas is unknown.
	ObservedMax *[2]float64
	// ContentCoverage is the assumed fraction of the canvas that the
	// observed content extent occupies. Clamped to [0.5, 1.0]; values
	// >= 0.999 mean the observed max IS the canvas (no shrink correction).
	ContentCoverage float64
}

// Quadpoints converts a 4-number box (unordered corners) or an 8-number
// quad into canonical point-space quadpoints. Returns nil for malformed
// input; it never panics. Values are rounded to 2 decimal places.
func Quadpoints(box []float64, page *PageSize, opts Options) []float64 {
	quad, ok := toQuad(box)
	if !ok {
		return nil
	}
	quad = scaleQuad(quad, page, opts)
	if page != nil && opts.Origin == OriginTopLeft {
		flipY(quad, page.H)
	}
	return canonicalize(quad)
}

func toQuad(box []float64) ([]float64, bool) {
	for _, v := range box {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	switch {
	case len(box) >= 8:
		quad := make([]float64, 8)
		copy(quad, box[:8])
		return quad, true
	case len(box) == 4:
		x1, y1, x2, y2 := box[0], box[1], box[2], box[3]
		left, right := math.Min(x1, x2), math.Max(x1, x2)
		top, bottom := math.Min(y1, y2), math.Max(y1, y2)
		// Corner order is resolved later by canonicalize, so the
		// top/bottom naming here is per the input origin only.
		return []float64{left, top, right, top, left, bottom, right, bottom}, true
	default:
		return nil, false
	}
}

func scaleQuad(quad []float64, page *PageSize, opts Options) []float64 {
	if page == nil || page.W <= 0 || page.H <= 0 {
		return quad
	}
	if opts.Units == UnitsPt {
		return quad
	}
	if opts.ObservedMax == nil {
		return quad
	}
	maxX, maxY := opts.ObservedMax[0], opts.ObservedMax[1]
	if maxX <= 0 || maxY <= 0 {
		return quad
	}

	// Infer the full canvas size in bbox space. Content rarely reaches the
	// page edges, so dividing by a coverage fraction estimates the real
	// canvas; the aspect ratio is pinned to the true page so x and y stay
	// consistent even when content hugs only one axis.
	cov := opts.ContentCoverage
	if cov >= 0.999 {
		cov = 1.0
	}
	cov = math.Min(math.Max(cov, 0.5), 1.0)

	aspect := page.H / page.W
	cw := math.Max(maxX/cov, (maxY/cov)/aspect)
	ch := cw * aspect
	if cw <= 0 || ch <= 0 {
		return quad
	}

	// Auto: a canvas already near the page point size means the bbox is
	// point-space; scaling again would shrink it to nothing.
	if opts.Units == UnitsAuto && cw <= page.W*1.2 && ch <= page.H*1.2 {
		return quad
	}

	sx := page.W / cw
	sy := page.H / ch
	for i := range quad {
		if i%2 == 0 {
			quad[i] *= sx
		} else {
			quad[i] *= sy
		}
	}
	return quad
}

func flipY(quad []float64, pageH float64) {
	for i := 1; i < len(quad); i += 2 {
		quad[i] = pageH - quad[i]
	}
}

// canonicalize rebuilds the quad as [minX,maxY, maxX,maxY, minX,minY,
// maxX,minY] regardless of the corner order it arrived in.
func canonicalize(quad []float64) []float64 {
	xLeft, xRight := quad[0], quad[0]
	yBottom, yTop := quad[1], quad[1]
	for i := 0; i < 8; i += 2 {
		xLeft = math.Min(xLeft, quad[i])
		xRight = math.Max(xRight, quad[i])
		yBottom = math.Min(yBottom, quad[i+1])
		yTop = math.Max(yTop, quad[i+1])
	}
	out := []float64{xLeft, yTop, xRight, yTop, xLeft, yBottom, xRight, yBottom}
	for i, v := range out {
		out[i] = round2(v)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
