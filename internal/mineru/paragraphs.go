package mineru

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/model"
)

// ToParagraphs flattens an extraction payload into ordered paragraphs.
// Artifacts arrive in several schema variants and this is deliberately
// tolerant of all of them:
//
//   - a flat block list, each block carrying text/content, bbox, and a
//     0-based page_idx
//   - a document keyed by pages, each page holding paragraphs or blocks
//   - a top-level paragraphs list
//
// Blocks without text are dropped. canvasSizes attaches the full-page
// pixel canvas to each paragraph when known.
func ToParagraphs(payload []byte, canvasSizes map[int][2]float64) []model.Paragraph {
	var data any
	if err := sonic.Unmarshal(payload, &data); err != nil {
		return nil
	}

	if items, ok := data.([]any); ok {
		return paragraphsFromBlockList(items, canvasSizes)
	}
	doc, ok := data.(map[string]any)
	if !ok {
		return nil
	}

	pages := anySlice(doc["pages"])
	if pages == nil {
		if inner, ok := doc["data"].(map[string]any); ok {
			pages = anySlice(inner["pages"])
		}
	}
	if pm, ok := doc["pages"].(map[string]any); ok {
		pages = anySlice(pm["pages"])
		if pages == nil {
			pages = anySlice(pm["items"])
		}
	}

	var paragraphs []model.Paragraph
	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		pageNum := firstInt(page, 1, "page", "page_num", "page_number")
		pageHeight := firstFloat(page, "height", "page_height", "h")
		blocks := anySlice(page["paragraphs"])
		if blocks == nil {
			blocks = anySlice(page["blocks"])
		}
		if blocks == nil {
			blocks = anySlice(page["content"])
		}
		if bm, ok := page["paragraphs"].(map[string]any); ok {
			blocks = anySlice(bm["paragraphs"])
			if blocks == nil {
				blocks = anySlice(bm["blocks"])
			}
		}
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			text := strings.TrimSpace(StripHTML(firstString(block, "text", "content")))
			if text == "" {
				continue
			}
			paragraphs = append(paragraphs, model.Paragraph{
				Content:    text,
				PageNum:    pageNum,
				BBox:       floatSlice(firstValue(block, "bbox", "bounding_box", "box")),
				PageHeight: pageHeight,
				CanvasSize: canvasFor(canvasSizes, pageNum),
			})
		}
	}

	if len(paragraphs) == 0 {
		for _, p := range anySlice(doc["paragraphs"]) {
			para, ok := p.(map[string]any)
			if !ok {
				continue
			}
			text := strings.TrimSpace(firstString(para, "text", "content"))
			if text == "" {
				continue
			}
			paragraphs = append(paragraphs, model.Paragraph{
				Content:    text,
				PageNum:    firstInt(para, 1, "page_num"),
				BBox:       floatSlice(firstValue(para, "bbox", "bounding_box")),
				PageHeight: firstFloat(para, "page_height"),
			})
		}
	}
	return paragraphs
}

func paragraphsFromBlockList(items []any, canvasSizes map[int][2]float64) []model.Paragraph {
	var paragraphs []model.Paragraph
	for _, it := range items {
		block, ok := it.(map[string]any)
		if !ok {
			continue
		}
		text := strings.TrimSpace(StripHTML(RepairMojibake(firstString(block, "text", "content"))))
		if text == "" {
			continue
		}
		pageNum := 1
		if idx, ok := asInt(block["page_idx"]); ok {
			pageNum = idx + 1
		} else {
			pageNum = firstInt(block, 1, "page_num")
		}
		paragraphs = append(paragraphs, model.Paragraph{
			Content:    text,
			PageNum:    pageNum,
			BBox:       floatSlice(firstValue(block, "bbox", "bounding_box", "box")),
			CanvasSize: canvasFor(canvasSizes, pageNum),
		})
	}
	return paragraphs
}

// PageSpace describes the bbox coordinate space observed on one page.
type PageSpace struct {
	// ObservedMax is the page's full canvas when IsCanvas is true, else
	// the maximum coordinate seen across paragraph bboxes.
	ObservedMax [2]float64
	// IsCanvas marks an authoritative full-page pixel size; raw-bbox
	// conversion then applies no content-coverage correction.
	IsCanvas bool
}

// PageSpaces computes the per-page coordinate space from paragraphs. An
// explicit canvas size wins for its page and is never downgraded by
// later bbox observations, though the observed maximum still grows.
func PageSpaces(paragraphs []model.Paragraph) map[int]PageSpace {
	spaces := make(map[int]PageSpace)
	for _, p := range paragraphs {
		pageNum := p.PageNum
		if pageNum < 1 {
			pageNum = 1
		}
		if p.CanvasSize != nil && p.CanvasSize[0] > 0 && p.CanvasSize[1] > 0 {
			spaces[pageNum] = PageSpace{ObservedMax: *p.CanvasSize, IsCanvas: true}
			continue
		}
		mx, my, ok := bboxMax(p.BBox)
		if !ok {
			continue
		}
		cur, seen := spaces[pageNum]
		if !seen {
			spaces[pageNum] = PageSpace{ObservedMax: [2]float64{mx, my}}
			continue
		}
		if mx > cur.ObservedMax[0] {
			cur.ObservedMax[0] = mx
		}
		if my > cur.ObservedMax[1] {
			cur.ObservedMax[1] = my
		}
		spaces[pageNum] = cur
	}
	return spaces
}

func bboxMax(bbox []float64) (float64, float64, bool) {
	switch {
	case len(bbox) == 4:
		mx, my := bbox[0], bbox[1]
		if bbox[2] > mx {
			mx = bbox[2]
		}
		if bbox[3] > my {
			my = bbox[3]
		}
		return mx, my, true
	case len(bbox) >= 8:
		mx, my := bbox[0], bbox[1]
		for i := 2; i+1 < 8; i += 2 {
			if bbox[i] > mx {
				mx = bbox[i]
			}
			if bbox[i+1] > my {
				my = bbox[i+1]
			}
		}
		return mx, my, true
	default:
		return 0, 0, false
	}
}

func canvasFor(sizes map[int][2]float64, pageNum int) *[2]float64 {
	if sizes == nil {
		return nil
	}
	size, ok := sizes[pageNum]
	if !ok || size[0] <= 0 || size[1] <= 0 {
		return nil
	}
	return &size
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstInt(m map[string]any, fallback int, keys ...string) int {
	for _, k := range keys {
		if n, ok := asInt(m[k]); ok {
			return n
		}
	}
	return fallback
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if f, ok := m[k].(float64); ok {
			return f
		}
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func floatSlice(v any) []float64 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, it := range items {
		f, ok := it.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
