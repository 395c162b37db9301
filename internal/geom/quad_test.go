package geom

import (
	"math"
	"testing"
)

func TestQuadpoints_CornerOrderIndependent(t *testing.T) {
	page := &PageSize{W: 612, H: 792}
	opts := Options{Origin: OriginTopLeft, Units: UnitsPt}

	boxes := [][]float64{
		{100, 200, 300, 250},
		{300, 250, 100, 200},
		{100, 250, 300, 200},
		{300, 200, 100, 250},
	}

	want := Quadpoints(boxes[0], page, opts)
	if want == nil {
		t.Fatal("expected non-nil quad for base box")
	}
	for i, box := range boxes[1:] {
		got := Quadpoints(box, page, opts)
		if !quadEqual(got, want) {
			t.Errorf("ordering %d: got %v, want %v", i+1, got, want)
		}
	}
}

func TestQuadpoints_CanonicalOrder(t *testing.T) {
	page := &PageSize{W: 612, H: 792}
	got := Quadpoints([]float64{100, 200, 300, 250}, page, Options{Origin: OriginBottomLeft, Units: UnitsPt})
	want := []float64{100, 250, 300, 250, 100, 200, 300, 200}
	if !quadEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQuadpoints_PointUnitsSkipScaling(t *testing.T) {
	// With pt units the numbers must come back unscaled regardless of
	// page size or observed max.
	observed := [2]float64{5000, 7000}
	got := Quadpoints([]float64{10, 20, 30, 40}, &PageSize{W: 612, H: 792}, Options{
		Origin:          OriginBottomLeft,
		Units:           UnitsPt,
		ObservedMax:     &observed,
		ContentCoverage: 0.92,
	})
	want := []float64{10, 40, 30, 40, 10, 20, 30, 20}
	if !quadEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQuadpoints_AutoSkipsNearPageSpace(t *testing.T) {
	// Observed max within 20% of the page size: treated as already
	// point-space, so only the origin flip applies.
	page := &PageSize{W: 612, H: 792}
	observed := [2]float64{610, 790}
	got := Quadpoints([]float64{100, 100, 200, 150}, page, Options{
		Origin:          OriginTopLeft,
		Units:           UnitsAuto,
		ObservedMax:     &observed,
		ContentCoverage: 1.0,
	})
	want := []float64{100, 692, 200, 692, 100, 642, 200, 642}
	if !quadEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQuadpoints_PxAlwaysScales(t *testing.T) {
	page := &PageSize{W: 612, H: 792}
	observed := [2]float64{1224, 1584} // exactly 2x page
	got := Quadpoints([]float64{200, 400, 600, 440}, page, Options{
		Origin:          OriginTopLeft,
		Units:           UnitsPx,
		ObservedMax:     &observed,
		ContentCoverage: 1.0,
	})
	want := []float64{100, 592, 300, 592, 100, 572, 300, 572}
	if !quadEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQuadpoints_CoverageClamped(t *testing.T) {
	page := &PageSize{W: 612, H: 792}
	observed := [2]float64{800, 1000}
	box := []float64{100, 200, 300, 220}

	// 0.999 and 1.0 must behave identically (no shrink correction).
	a := Quadpoints(box, page, Options{Origin: OriginTopLeft, Units: UnitsPx, ObservedMax: &observed, ContentCoverage: 0.999})
	b := Quadpoints(box, page, Options{Origin: OriginTopLeft, Units: UnitsPx, ObservedMax: &observed, ContentCoverage: 1.0})
	if !quadEqual(a, b) {
		t.Errorf("coverage 0.999 vs 1.0: got %v, want %v", a, b)
	}

	// Out-of-range values clamp to the nearest bound.
	lo := Quadpoints(box, page, Options{Origin: OriginTopLeft, Units: UnitsPx, ObservedMax: &observed, ContentCoverage: 0.1})
	clamped := Quadpoints(box, page, Options{Origin: OriginTopLeft, Units: UnitsPx, ObservedMax: &observed, ContentCoverage: 0.5})
	if !quadEqual(lo, clamped) {
		t.Errorf("coverage 0.1 should clamp to 0.5: got %v, want %v", lo, clamped)
	}
	hi := Quadpoints(box, page, Options{Origin: OriginTopLeft, Units: UnitsPx, ObservedMax: &observed, ContentCoverage: 2.5})
	if !quadEqual(hi, b) {
		t.Errorf("coverage 2.5 should clamp to 1.0: got %v, want %v", hi, b)
	}
}

func TestQuadpoints_MalformedInput(t *testing.T) {
	page := &PageSize{W: 612, H: 792}
	opts := Options{Origin: OriginTopLeft, Units: UnitsAuto}

	cases := [][]float64{
		nil,
		{},
		{1, 2, 3},
		{1, 2, 3, 4, 5},
		{1, math.NaN(), 3, 4},
		{1, 2, math.Inf(1), 4},
	}
	for i, box := range cases {
		if got := Quadpoints(box, page, opts); got != nil {
			t.Errorf("case %d: expected nil, got %v", i, got)
		}
	}
}

func TestQuadpoints_EightNumberInputPassesThrough(t *testing.T) {
	got := Quadpoints([]float64{10, 50, 30, 50, 10, 20, 30, 20}, nil, Options{Units: UnitsPt})
	want := []float64{10, 50, 30, 50, 10, 20, 30, 20}
	if !quadEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQuadpoints_ContractScenario(t *testing.T) {
	// Pixel-space paragraph bbox on a letter page: scaled, flipped, and
	// fully inside [0,612]x[0,792].
	page := &PageSize{W: 612, H: 792}
	observed := [2]float64{800, 1000}
	got := Quadpoints([]float64{100, 200, 300, 220}, page, Options{
		Origin:          OriginTopLeft,
		Units:           UnitsAuto,
		ObservedMax:     &observed,
		ContentCoverage: 0.92,
	})
	if len(got) != 8 {
		t.Fatalf("expected 8 quadpoints, got %v", got)
	}
	for i := 0; i < 8; i += 2 {
		x, y := got[i], got[i+1]
		if x < 0 || x > 612 {
			t.Errorf("x out of page bounds: %v", x)
		}
		if y < 0 || y > 792 {
			t.Errorf("y out of page bounds: %v", y)
		}
	}
	// Top-left origin means the smaller input y must end up as the
	// larger output y.
	if got[1] <= got[5] {
		t.Errorf("expected flipped y: top %v should exceed bottom %v", got[1], got[5])
	}
}

func quadEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 0.011 {
			return false
		}
	}
	return true
}
