package pdftext

import "testing"

func syntheticLine(text string, x0, yBottom, yTop float64) textLine {
	rs := []rune(text)
	line := textLine{runes: rs, yTop: yTop, yBottom: yBottom}
	const step = 10.0
	for i := range rs {
		line.x0s = append(line.x0s, x0+step*float64(i))
		line.x1s = append(line.x1s, x0+step*float64(i+1))
	}
	return line
}

func TestIndexRunes(t *testing.T) {
	cases := []struct {
		haystack, needle string
		want             int
	}{
		{"甲方应支付工资", "支付", 3},
		{"甲方应支付工资", "乙方", -1},
		{"hello world", "world", 6},
		{"short", "much longer needle", -1},
		{"anything", "", -1},
	}
	for _, c := range cases {
		if got := indexRunes([]rune(c.haystack), []rune(c.needle)); got != c.want {
			t.Errorf("indexRunes(%q, %q) = %d, want %d", c.haystack, c.needle, got, c.want)
		}
	}
}

func TestSearch_SingleLineExact(t *testing.T) {
	idx := &pageIndex{lines: []textLine{
		syntheticLine("第一行内容", 100, 700, 712),
		syntheticLine("甲方应支付工资", 100, 680, 692),
	}}
	rects := idx.search("支付工资")
	if len(rects) != 1 {
		t.Fatalf("expected 1 rect, got %d", len(rects))
	}
	r := rects[0]
	// "支付" starts at rune 3 of the second line: x = 100 + 3*10.
	if r.X0 != 130 || r.X1 != 170 {
		t.Errorf("unexpected x extent: %+v", r)
	}
	if r.Y0 != 680 || r.Y1 != 692 {
		t.Errorf("unexpected y extent: %+v", r)
	}
}

func TestSearch_SpaceInsensitive(t *testing.T) {
	// Extraction injected spaces between CJK glyphs; the needle has none.
	idx := &pageIndex{lines: []textLine{
		syntheticLine("甲 方 应 支 付", 100, 680, 692),
	}}
	rects := idx.search("甲方应支付")
	if len(rects) != 1 {
		t.Fatalf("expected 1 rect, got %d", len(rects))
	}
	if rects[0].X0 != 100 {
		t.Errorf("expected match from line start, got %+v", rects[0])
	}
}

func TestSearch_AllOccurrences(t *testing.T) {
	idx := &pageIndex{lines: []textLine{
		syntheticLine("违约金按日计算，违约金上限另行约定", 100, 700, 712),
		syntheticLine("双方确认违约金条款有效", 100, 680, 692),
	}}
	rects := idx.search("违约金")
	if len(rects) != 3 {
		t.Fatalf("expected 3 rects, got %d: %+v", len(rects), rects)
	}
	// Line 1 carries occurrences at runes 0 and 8, line 2 at rune 4.
	if rects[0].X0 != 100 || rects[1].X0 != 180 {
		t.Errorf("unexpected first-line rects: %+v %+v", rects[0], rects[1])
	}
	if rects[2].X0 != 140 || rects[2].Y1 != 692 {
		t.Errorf("unexpected second-line rect: %+v", rects[2])
	}
}

func TestSearch_CapsMatchRects(t *testing.T) {
	var lines []textLine
	for i := 0; i < 8; i++ {
		y := 700 - float64(i)*20
		lines = append(lines, syntheticLine("不可抗力", 100, y, y+12))
	}
	idx := &pageIndex{lines: lines}
	if rects := idx.search("不可抗力"); len(rects) != maxMatchRects {
		t.Fatalf("expected %d rects, got %d", maxMatchRects, len(rects))
	}
}

func TestSearch_AcrossLines(t *testing.T) {
	idx := &pageIndex{lines: []textLine{
		syntheticLine("本合同自双方", 100, 700, 712),
		syntheticLine("签字之日起生效", 100, 680, 692),
	}}
	rects := idx.search("双方签字之日")
	if len(rects) != 2 {
		t.Fatalf("expected 2 rects (one per line), got %d", len(rects))
	}
	// First rect covers the tail of line 1 ("双方" at runes 4..6).
	if rects[0].X0 != 140 || rects[0].Y1 != 712 {
		t.Errorf("unexpected first rect: %+v", rects[0])
	}
	// Second rect covers the head of line 2 ("签字之日").
	if rects[1].X0 != 100 || rects[1].X1 != 140 {
		t.Errorf("unexpected second rect: %+v", rects[1])
	}
}

func TestSearch_NoMatch(t *testing.T) {
	idx := &pageIndex{lines: []textLine{
		syntheticLine("完全无关的文字", 100, 680, 692),
	}}
	if rects := idx.search("找不到的内容"); rects != nil {
		t.Errorf("expected nil, got %v", rects)
	}
}

func TestDoc_NilReceiver(t *testing.T) {
	var d *Doc
	if d.PageCount() != 0 {
		t.Error("nil doc should report zero pages")
	}
	if _, ok := d.PageSize(1); ok {
		t.Error("nil doc should have no page size")
	}
	if rects := d.Search(1, "anything"); rects != nil {
		t.Errorf("nil doc search should be nil, got %v", rects)
	}
	if err := d.Close(); err != nil {
		t.Errorf("nil doc close: %v", err)
	}
}
