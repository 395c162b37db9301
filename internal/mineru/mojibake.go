package mineru

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// RepairMojibake undoes the classic UTF-8-read-as-latin-1 corruption that
// shows up in some extraction artifacts. The text is re-encoded to
// latin-1 bytes and decoded as UTF-8; the repair is kept only when it
// yields CJK text, or when the original carries the telltale "å" marker
// common to mangled CJK. Anything that cannot round-trip is returned
// unchanged.
func RepairMojibake(text string) string {
	if text == "" {
		return text
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		return text
	}
	if !utf8.ValidString(raw) {
		return text
	}
	if containsCJK(raw) || strings.Contains(text, "å") {
		return raw
	}
	return text
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
