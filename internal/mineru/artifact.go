package mineru

import (
	"archive/zip"
	"encoding/binary"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// selectPayload picks the JSON artifact most likely to carry per-block
// text with bounding boxes. Names hinting at structured output are tried
// first; each candidate is decoded and scored, highest score wins. When
// nothing scores, the first candidate is returned as-is.
func selectPayload(zr *zip.Reader, jsonNames []string) ([]byte, string) {
	var preferred []string
	for _, n := range jsonNames {
		ln := strings.ToLower(n)
		if strings.Contains(ln, "layout") || strings.Contains(ln, "extract") ||
			strings.Contains(ln, "result") || strings.Contains(ln, "content") {
			preferred = append(preferred, n)
		}
	}
	candidates := preferred
	if len(candidates) == 0 {
		candidates = append(candidates, jsonNames...)
		sort.Strings(candidates)
	}

	var bestRaw []byte
	bestName := ""
	bestScore := -1
	for _, name := range candidates {
		raw, err := readZipFile(zr, name)
		if err != nil {
			continue
		}
		var data any
		if err := sonic.Unmarshal(raw, &data); err != nil {
			continue
		}
		if score := scorePayload(data); score > bestScore {
			bestScore, bestName, bestRaw = score, name, raw
		}
	}
	if bestRaw == nil {
		raw, err := readZipFile(zr, candidates[0])
		if err != nil {
			return nil, ""
		}
		return raw, candidates[0]
	}
	return bestRaw, bestName
}

// scorePayload rates a decoded artifact. Block lists score one point per
// entry carrying both text and a bbox; page-keyed documents start at 10
// plus their block counts.
func scorePayload(data any) int {
	switch v := data.(type) {
	case []any:
		score := 0
		for i, it := range v {
			if i >= 200 {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			_, hasBBox := m["bbox"]
			if !hasBBox {
				_, hasBBox = m["bounding_box"]
			}
			_, hasText := m["text"]
			if !hasText {
				_, hasText = m["content"]
			}
			if hasBBox && hasText {
				score++
			}
		}
		return score
	case map[string]any:
		pages, _ := v["pages"].([]any)
		if pages == nil {
			if inner, ok := v["data"].(map[string]any); ok {
				pages, _ = inner["pages"].([]any)
			}
		}
		if pages == nil {
			return 0
		}
		score := 10
		for i, p := range pages {
			if i >= 10 {
				break
			}
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			blocks, _ := pm["paragraphs"].([]any)
			if blocks == nil {
				blocks, _ = pm["blocks"].([]any)
			}
			n := len(blocks)
			if n > 200 {
				n = 200
			}
			score += n
		}
		return score
	default:
		return 0
	}
}

// canvasSizesFromImages reads image headers from rendered page images in
// the zip and maps them to 1-based page numbers inferred from filenames.
func canvasSizesFromImages(zr *zip.Reader) map[int][2]float64 {
	sizes := make(map[int][2]float64)
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		isPNG := strings.HasSuffix(lower, ".png")
		if !isPNG && !strings.HasSuffix(lower, ".jpg") && !strings.HasSuffix(lower, ".jpeg") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		head := make([]byte, 4096)
		n, _ := io.ReadFull(rc, head)
		rc.Close()
		head = head[:n]

		var w, h int
		var ok bool
		if isPNG {
			w, h, ok = pngSize(head)
		} else {
			w, h, ok = jpegSize(head)
		}
		if !ok {
			continue
		}
		if page, found := inferPageNum(f.Name); found {
			sizes[page] = [2]float64{float64(w), float64(h)}
		}
	}
	return sizes
}

var (
	pageTagPattern = regexp.MustCompile(`(?i)(?:page|p)[-_]?(\d+)$`)
	trailingDigits = regexp.MustCompile(`(\d+)$`)
)

// inferPageNum guesses the 1-based page number from an image filename.
// "page_3" style names are taken as-is; bare trailing digits are assumed
// 0-based page indexes.
func inferPageNum(name string) (int, bool) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if m := pageTagPattern.FindStringSubmatch(base); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if m := trailingDigits.FindStringSubmatch(base); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n + 1, true
	}
	return 0, false
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// pngSize reads width and height from the IHDR chunk.
func pngSize(buf []byte) (int, int, bool) {
	if len(buf) < 24 || string(buf[:8]) != string(pngSignature) {
		return 0, 0, false
	}
	if string(buf[12:16]) != "IHDR" {
		return 0, 0, false
	}
	w := int(binary.BigEndian.Uint32(buf[16:20]))
	h := int(binary.BigEndian.Uint32(buf[20:24]))
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// jpegSize walks segment markers to the first SOF0/SOF2 frame header.
func jpegSize(buf []byte) (int, int, bool) {
	if len(buf) < 4 || buf[0] != 0xFF || buf[1] != 0xD8 {
		return 0, 0, false
	}
	i := 2
	for i+9 < len(buf) {
		if buf[i] != 0xFF {
			i++
			continue
		}
		marker := buf[i+1]
		i += 2
		if marker == 0xC0 || marker == 0xC2 {
			length := int(binary.BigEndian.Uint16(buf[i : i+2]))
			if i+length > len(buf) {
				return 0, 0, false
			}
			h := int(binary.BigEndian.Uint16(buf[i+3 : i+5]))
			w := int(binary.BigEndian.Uint16(buf[i+5 : i+7]))
			if w <= 0 || h <= 0 {
				return 0, 0, false
			}
			return w, h, true
		}
		if i+2 > len(buf) {
			return 0, 0, false
		}
		i += int(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	return 0, 0, false
}
